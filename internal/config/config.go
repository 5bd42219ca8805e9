package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	NodeEnv    string
	Port       string
	JWTSecret  string
	BranchCode string
	DataDir    string
	Database   DatabaseConfig
	Cloud      CloudConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver   string // sqlite or postgres
	Path     string // sqlite file path
	Host     string
	Port     string
	Username string
	Password string
	Database string
	Debug    bool
}

// CloudConfig holds defaults for the cloud sync endpoint
type CloudConfig struct {
	ServerURL      string // optional preset, normally set at runtime via the sync API
	TimeoutSeconds int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	branchCode := os.Getenv("BRANCH_CODE")
	if branchCode == "" {
		return nil, fmt.Errorf("BRANCH_CODE is required")
	}

	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = filepath.Join(xdg.DataHome, "pharmgo")
	}

	return &Config{
		NodeEnv:    getEnv("NODE_ENV", "development"),
		Port:       getEnv("PORT", "3001"),
		JWTSecret:  jwtSecret,
		BranchCode: branchCode,
		DataDir:    dataDir,
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "sqlite"),
			Path:     getEnv("DB_PATH", filepath.Join(dataDir, "pharmgo.db")),
			Host:     getEnv("PG_HOST", "localhost"),
			Port:     getEnv("PG_PORT", "5432"),
			Username: getEnv("PG_USERNAME", "postgres"),
			Password: os.Getenv("PG_PASSWORD"),
			Database: getEnv("PG_DATABASE", "pharmgo"),
			Debug:    getEnv("DB_DEBUG", "false") == "true",
		},
		Cloud: CloudConfig{
			ServerURL:      os.Getenv("CLOUD_SERVER_URL"),
			TimeoutSeconds: getEnvInt("CLOUD_TIMEOUT", 30),
		},
	}, nil
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var n int
		if _, err := fmt.Sscanf(value, "%d", &n); err == nil {
			return n
		}
	}
	return defaultValue
}
