package config

import (
	"os"      // For environment variables
	"strconv" // For string to int conversion

	"github.com/joho/godotenv" // For loading .env files
)

// Config holds the application configuration
type Config struct {
	AppPort       string // HTTP port for the read API
	GitHubToken   string // GitHub API token for the blob store
	RepoOwner     string // Owner of the database repository
	RepoName      string // Name of the database repository
	Branch        string // Branch the database files live on
	ScratchUser   string // Scratch service account username
	ScratchPass   string // Scratch service account password
	MainProjectID int    // Project carrying the economy cloud variables
	AuthProjectID int    // Project carrying the signup/login cloud variables
	RedisAddr     string // Redis server address (optional read cache)
	RedisPass     string // Redis password
	RedisDB       int    // Redis database number
	BackupCron    string // Cron schedule for database backups (optional)
	IsProd        bool   // Is production environment
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	_ = godotenv.Load() // Load .env file if present
	redisDB, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
	return &Config{
		AppPort:       getEnv("APP_PORT", "5000"),                 // HTTP port
		GitHubToken:   os.Getenv("GH_KEY"),                        // GitHub token, required
		RepoOwner:     getEnv("GH_REPO_OWNER", "kRxZykRxZy"),      // Database repo owner
		RepoName:      getEnv("GH_REPO_NAME", "ScratchGems-MAIN"), // Database repo name
		Branch:        getEnv("GH_BRANCH", "main"),                // Database branch
		ScratchUser:   getEnv("SCRATCH_USER", "Dev-Server"),       // Service account username
		ScratchPass:   os.Getenv("SCRATCH_PS"),                    // Service account password, required
		MainProjectID: getEnvInt("MAIN_PROJECT_ID", 1134723891),   // Economy project
		AuthProjectID: getEnvInt("AUTH_PROJECT_ID", 1169132014),   // Auth project
		RedisAddr:     os.Getenv("REDIS_ADDR"),                    // Redis server address
		RedisPass:     os.Getenv("REDIS_PASS"),                    // Redis password
		RedisDB:       redisDB,                                    // Redis database number
		BackupCron:    os.Getenv("BACKUP_CRON"),                   // Backup schedule
		IsProd:        os.Getenv("IS_PROD") == "true",             // Is production environment
	}
}

// getEnv returns the value of an environment variable or a fallback
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v // Use the configured value
	}
	return fallback // Fall back to the default
}

// getEnvInt returns an integer environment variable or a fallback
func getEnvInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v // Use the configured value
	}
	return fallback // Fall back to the default
}
