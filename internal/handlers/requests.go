package handlers

import (
	"context" // Context for store round trips
	"strconv" // Balance formatting and amount parsing

	"scratchgems/internal/domain"  // Ledger record types
	"scratchgems/internal/ledger"  // Ledger store and transfer engine
	"scratchgems/internal/scratch" // Polling transport contract
	"scratchgems/internal/utils"   // Read cache invalidation

	"github.com/sirupsen/logrus" // Logging library
)

// Registrar is the part of the polling transport handlers attach to
type Registrar interface {
	Handle(name string, fn scratch.HandlerFunc)
}

// ReadyRegistrar additionally exposes the on-ready lifecycle hook
type ReadyRegistrar interface {
	Registrar
	OnReady(fn func())
}

// RegisterAuth attaches signup and login to the isolated auth
// transport, keeping authentication traffic off the economy channel
func RegisterAuth(t Registrar, store *ledger.Store) {
	t.Handle("signup", SignupHandler(store)) // Account creation
	t.Handle("login", LoginHandler(store))   // Credential check
}

// RegisterEconomy attaches the economy operations to the main
// transport
func RegisterEconomy(t ReadyRegistrar, store *ledger.Store, engine *ledger.Engine, cache *utils.Cache) {
	t.Handle("ping", PingHandler())                               // Liveness
	t.Handle("balance", BalanceHandler(store, cache))             // Balance lookup
	t.Handle("give", GiveHandler(engine, cache))                  // Balance transfer
	t.Handle("search", SearchHandler(store))                      // Balance search
	t.Handle("leaderboard", LeaderboardHandler(store))            // Top balances
	t.Handle("notifications", NotificationsHandler(store))        // Message history
	t.Handle("change_balance", ChangeBalanceHandler(store, cache)) // Admin overwrite
	t.Handle("get_preferences", GetPreferencesHandler(store))     // Preference values
	t.Handle("set_preferences", SetPreferencesHandler(store))     // Preference update
	t.OnReady(func() {
		logrus.Info("Request handlers are running")
	})
}

// invalidate drops the cached aggregate views after a mutation
func invalidate(cache *utils.Cache) {
	ctx := context.Background()
	_ = cache.Delete(ctx, utils.CacheKeyHome)     // Stats view
	_ = cache.Delete(ctx, utils.CacheKeyBalances) // Balances view
}

// SignupHandler creates a credential for a new identity. An identity
// that already has one keeps it untouched.
func SignupHandler(store *ledger.Store) scratch.HandlerFunc {
	return func(args []string) any {
		if len(args) != 2 {
			return ledger.MsgInvalidRequest
		}
		password, username := args[0], args[1]
		user := ledger.Normalize(username)
		if !store.CreateCredential(context.Background(), user, password) {
			return "You Already Have An Account!"
		}
		logrus.WithField("user", user).Info("Account created")
		return "Welcome " + user + "!"
	}
}

// LoginHandler checks a credential. No session or token is issued; a
// successful login just greets the user.
func LoginHandler(store *ledger.Store) scratch.HandlerFunc {
	return func(args []string) any {
		if len(args) != 2 {
			return ledger.MsgInvalidRequest
		}
		password, username := args[0], args[1]
		user := ledger.Normalize(username)
		stored, ok := store.Credential(user)
		if !ok {
			return "User Not Found!"
		}
		if stored != password {
			return "Incorrect Password!"
		}
		return "Welcome " + user + "!"
	}
}

// PingHandler answers the liveness probe
func PingHandler() scratch.HandlerFunc {
	return func(args []string) any {
		return "pong"
	}
}

// BalanceHandler returns the identity's rounded balance, materializing
// the default for a first-time identity
func BalanceHandler(store *ledger.Store, cache *utils.Cache) scratch.HandlerFunc {
	return func(args []string) any {
		if len(args) != 1 {
			return ledger.MsgInvalidRequest
		}
		user := args[0]
		if !store.HasBalance(user) {
			store.SetBalance(context.Background(), user, ledger.DefaultBalance)
			invalidate(cache) // A new identity changes the aggregates
		}
		return strconv.Itoa(store.Balance(user))
	}
}

// GiveHandler delegates to the transfer engine
func GiveHandler(engine *ledger.Engine, cache *utils.Cache) scratch.HandlerFunc {
	return func(args []string) any {
		if len(args) != 2 {
			return ledger.MsgInvalidRequest
		}
		result := engine.Transfer(context.Background(), args[0], args[1])
		invalidate(cache) // Balances may have moved even on failure
		return result
	}
}

// SearchHandler formats another identity's balance, or reports it
// missing
func SearchHandler(store *ledger.Store) scratch.HandlerFunc {
	return func(args []string) any {
		if len(args) != 1 {
			return ledger.MsgInvalidRequest
		}
		user := ledger.Normalize(args[0])
		if !store.HasBalance(user) {
			return user + "'s balance couldn't be found."
		}
		return user + " has " + strconv.Itoa(store.Balance(user)) + " Gems!"
	}
}

// LeaderboardHandler returns the top ten balances, formatted one
// identity per line
func LeaderboardHandler(store *ledger.Store) scratch.HandlerFunc {
	return func(args []string) any {
		entries := store.Leaderboard(10)
		lines := make([]string, len(entries))
		for i, e := range entries {
			lines[i] = e.Name + ": " + strconv.Itoa(e.Balance)
		}
		return lines
	}
}

// NotificationsHandler returns the identity's messages, oldest first
func NotificationsHandler(store *ledger.Store) scratch.HandlerFunc {
	return func(args []string) any {
		if len(args) != 1 {
			return ledger.MsgInvalidRequest
		}
		return store.Notifications(args[0])
	}
}

// ChangeBalanceHandler unconditionally overwrites a balance. There is
// no authorization check on this operation; whether it needs one is an
// unresolved question, so every use is logged loudly instead.
func ChangeBalanceHandler(store *ledger.Store, cache *utils.Cache) scratch.HandlerFunc {
	return func(args []string) any {
		if len(args) != 2 {
			return ledger.MsgInvalidRequest
		}
		user, rawAmount := args[0], args[1]
		amount, err := strconv.ParseFloat(rawAmount, 64)
		if err != nil {
			return ledger.MsgInvalidRequest
		}
		logrus.WithFields(logrus.Fields{
			"user":   ledger.Normalize(user), // Target identity
			"amount": amount,                 // New balance
		}).Warn("Unauthenticated balance overwrite")
		store.SetBalance(context.Background(), user, amount)
		invalidate(cache)
		return "success!"
	}
}

// GetPreferencesHandler returns the preference values only, theme
// first, falling back to the defaults
func GetPreferencesHandler(store *ledger.Store) scratch.HandlerFunc {
	return func(args []string) any {
		if len(args) != 1 {
			return ledger.MsgInvalidRequest
		}
		return store.Preferences(args[0]).Values()
	}
}

// SetPreferencesHandler overwrites the identity's preferences with the
// given theme. Mute is not settable through this operation and always
// resets to "False".
func SetPreferencesHandler(store *ledger.Store) scratch.HandlerFunc {
	return func(args []string) any {
		if len(args) != 2 {
			return ledger.MsgInvalidRequest
		}
		theme, user := args[0], args[1]
		store.SetPreferences(context.Background(), user, domain.Preferences{Theme: theme, Mute: "False"})
		return "updated preferences"
	}
}
