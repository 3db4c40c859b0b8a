package main

import (
	"context" // context package is needed for startup and transports
	"log"     // log package is needed for logging

	"scratchgems/internal/api"         // Custom package for HTTP read API
	"scratchgems/internal/backup"      // Custom package for scheduled backups
	"scratchgems/internal/config"      // Custom package for configuration
	"scratchgems/internal/githubstore" // Custom package for the blob store
	"scratchgems/internal/handlers"    // Custom package for polling request handlers
	"scratchgems/internal/ledger"      // Custom package for the ledger
	"scratchgems/internal/scratch"     // Custom package for the cloud transport
	"scratchgems/internal/utils"       // Read cache wrapper

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logrus for structured logging
)

// Main function to set up and run the server
func main() {
	cfg := config.LoadConfig() // Load configuration

	// Setup logger
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// Both external credentials are required for startup
	if cfg.GitHubToken == "" {
		logrus.Fatal("GH_KEY is required")
	}
	if cfg.ScratchPass == "" {
		logrus.Fatal("SCRATCH_PS is required")
	}

	ctx := context.Background() // Root context for startup and transports

	// Setup the blob store and load the five ledger mappings once
	blobs := githubstore.NewClient(cfg.GitHubToken, cfg.RepoOwner, cfg.RepoName, cfg.Branch)
	store := ledger.Load(ctx, blobs)

	// Authenticate the service account on the Scratch website
	session, err := scratch.Login(ctx, "https://scratch.mit.edu", cfg.ScratchUser, cfg.ScratchPass)
	if err != nil {
		logrus.Fatalf("failed to log in service account: %v", err) // Fatal error if login fails
	}

	// Setup Redis read cache, optional
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr, // Redis server address
			Password: cfg.RedisPass, // Redis password
			DB:       cfg.RedisDB,   // Redis database number
		})
		// Test Redis connection
		if _, err := rdb.Ping(ctx).Result(); err != nil {
			logrus.Fatalf("failed to connect to Redis: %v", err)
		}
	}
	cache := utils.NewCache(rdb) // Nil-safe when Redis is not configured

	// The transfer engine posts gift announcements through the session
	engine := ledger.NewEngine(store, session, cfg.MainProjectID)

	// Two polling connections: economy traffic on the main project,
	// signup/login isolated on the auth project
	mainTransport := scratch.NewTransport(session, cfg.MainProjectID)
	authTransport := scratch.NewTransport(session, cfg.AuthProjectID)
	handlers.RegisterEconomy(mainTransport, store, engine, cache)
	handlers.RegisterAuth(authTransport, store)
	go func() {
		if err := mainTransport.Run(ctx); err != nil {
			logrus.Errorf("main transport stopped: %v", err)
		}
	}()
	go func() {
		if err := authTransport.Run(ctx); err != nil {
			logrus.Errorf("auth transport stopped: %v", err)
		}
	}()

	// Setup scheduled backups if configured
	if cfg.BackupCron != "" {
		runner := backup.New(store, blobs)
		if err := runner.Start(cfg.BackupCron); err != nil {
			logrus.Fatalf("failed to schedule backups: %v", err)
		}
	}

	// Set Mode to Release if in production
	if cfg.IsProd {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup Gin
	r := gin.Default() // Gin router instance

	// Set trusted proxies for Gin
	if err := r.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		logrus.Fatalf("failed to set trusted proxies: %v", err)
	}

	// Read-only API routes over the in-memory ledger
	api.RegisterRoutes(r, store, cache, "docs.html")

	log.Println("Server running on " + cfg.AppPort) // Log server start
	r.Run(":" + cfg.AppPort)                        // Start the server on port cfg.AppPort
}
