package api

import (
	"context"  // Context for cache operations
	"net/http" // HTTP status codes
	"time"     // Response timestamps and cache TTL

	"scratchgems/internal/ledger" // Ledger store
	"scratchgems/internal/utils"  // Read cache

	"github.com/gin-gonic/gin" // Gin web framework
)

// cacheTTL bounds the staleness of the cached aggregate views
const cacheTTL = 60 * time.Second

// DocsURL is the public documentation link advertised by the root
// endpoint
const DocsURL = "https://scratchgems.onrender.com/docs"

// RegisterRoutes mounts the read-only views over the ledger. Nothing
// here mutates; every endpoint is an unauthenticated GET.
func RegisterRoutes(r *gin.Engine, store *ledger.Store, cache *utils.Cache, docsFile string) {
	r.GET("/", HomeHandler(store, cache))                           // Service metadata and stats
	r.GET("/users", UsersHandler(store))                            // Full identity list
	r.GET("/balances", BalancesHandler(store, cache))               // Full balances map
	r.GET("/users/:name", UserHandler(store))                       // Single identity lookup
	r.GET("/verify", VerifyHandler())                               // Static verification string
	r.GET("/transactions", TransactionsHandler(store))              // Full transaction list
	r.GET("/transactions/:name", UserTransactionsHandler(store))    // Transactions by participant
	r.GET("/notifications/:name", NotificationsHandler(store))      // Notifications by identity
	r.GET("/docs", DocsHandler(docsFile))                           // Static documentation page
}

// homeResponse is the cached shape of the root endpoint
type homeResponse struct {
	Version      string `json:"version"`       // API version tag
	Time         string `json:"time"`          // Server time
	Docs         string `json:"docs"`          // Documentation link
	UserCount    int    `json:"user_count"`    // Identities with a balance
	TotalBalance int    `json:"total_balance"` // Rounded sum of all balances
}

// HomeHandler returns service metadata and aggregate stats
func HomeHandler(store *ledger.Store, cache *utils.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := context.Background() // Context for cache operations
		var cached homeResponse
		// Serve the cached stats when fresh enough
		if found, err := cache.Get(ctx, utils.CacheKeyHome, &cached); err == nil && found {
			cached.Time = time.Now().Format("2006-01-02 15:04:05") // Time is always live
			c.JSON(http.StatusOK, cached)
			return
		}
		resp := homeResponse{
			Version:      "v1",                                    // API version tag
			Time:         time.Now().Format("2006-01-02 15:04:05"), // Server time
			Docs:         DocsURL,                                 // Documentation link
			UserCount:    store.UserCount(),                       // Identities with a balance
			TotalBalance: store.TotalBalance(),                    // Rounded total
		}
		_ = cache.Set(ctx, utils.CacheKeyHome, resp, cacheTTL) // Cache the stats
		c.JSON(http.StatusOK, resp)
	}
}

// UsersHandler lists every identity holding a balance
func UsersHandler(store *ledger.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"users": store.Users()})
	}
}

// BalancesHandler returns the full balances map, rounded for display
func BalancesHandler(store *ledger.Store, cache *utils.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := context.Background() // Context for cache operations
		var cached map[string]int
		// Serve the cached map when fresh enough
		if found, err := cache.Get(ctx, utils.CacheKeyBalances, &cached); err == nil && found {
			c.JSON(http.StatusOK, cached)
			return
		}
		balances := store.BalancesRounded()
		_ = cache.Set(ctx, utils.CacheKeyBalances, balances, cacheTTL) // Cache the map
		c.JSON(http.StatusOK, balances)
	}
}

// UserHandler looks up one identity's balance, 404 on miss
func UserHandler(store *ledger.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := ledger.Normalize(c.Param("name"))
		if !store.HasBalance(user) {
			// Unknown identity
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"username": user, "balance": store.Balance(user)})
	}
}

// VerifyHandler returns the static verification string
func VerifyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"verification": "api-verified-v1"})
	}
}

// TransactionsHandler returns every recorded transaction
func TransactionsHandler(store *ledger.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"transactions": store.Transactions()})
	}
}

// UserTransactionsHandler returns the transactions where the identity
// is sender or recipient
func UserTransactionsHandler(store *ledger.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"transactions": store.TransactionsFor(c.Param("name"))})
	}
}

// NotificationsHandler returns the identity's notification sequence
func NotificationsHandler(store *ledger.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"notifications": store.Notifications(c.Param("name"))})
	}
}

// DocsHandler serves the static documentation page from disk
func DocsHandler(docsFile string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.File(docsFile)
	}
}
