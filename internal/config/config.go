// Package config provides process-level configuration from the environment.
// Runtime tunables live in the settings table, not here.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	DataDir  string // base directory for the database file, always absolute
	LogLevel string
	Port     int
	DevMode  bool

	// AI gateways.
	AnalysisURL     string // local analysis model endpoint
	SearchURL       string // hosted search model endpoint
	SearchAPIKey    string
	AnalysisTimeout time.Duration
	SearchTimeout   time.Duration

	// Market data.
	MarketDataURL     string
	MarketDataTimeout time.Duration
	QuoteStreamURL    string // empty disables streaming

	// Nightly database backup. Empty bucket disables it. Static keys are
	// optional; without them the default AWS credential chain applies.
	BackupBucket    string
	BackupRegion    string
	BackupAccessKey string
	BackupSecretKey string
}

// Load reads configuration from environment variables, with a .env file as
// a convenience.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DataDir:           getEnv("DATA_DIR", "./data"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		Port:              getEnvAsInt("PORT", 8090),
		DevMode:           getEnvAsBool("DEV_MODE", false),
		AnalysisURL:       getEnv("ANALYSIS_URL", "http://localhost:11434"),
		SearchURL:         getEnv("SEARCH_URL", "https://api.x.ai"),
		SearchAPIKey:      getEnv("SEARCH_API_KEY", ""),
		AnalysisTimeout:   getEnvAsDuration("ANALYSIS_TIMEOUT", 10*time.Minute),
		SearchTimeout:     getEnvAsDuration("SEARCH_TIMEOUT", 3*time.Minute),
		MarketDataURL:     getEnv("MARKET_DATA_URL", "http://localhost:9010"),
		MarketDataTimeout: getEnvAsDuration("MARKET_DATA_TIMEOUT", 15*time.Second),
		QuoteStreamURL:    getEnv("QUOTE_STREAM_URL", ""),
		BackupBucket:      getEnv("BACKUP_S3_BUCKET", ""),
		BackupRegion:      getEnv("BACKUP_S3_REGION", "us-east-1"),
		BackupAccessKey:   getEnv("BACKUP_S3_ACCESS_KEY", ""),
		BackupSecretKey:   getEnv("BACKUP_S3_SECRET_KEY", ""),
	}

	abs, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("resolving data dir: %w", err)
	}
	cfg.DataDir = abs

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if required configuration is present.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("DATA_DIR is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be a valid port number, got %d", c.Port)
	}
	return nil
}

// DatabasePath is the full path of the trader database file.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "trader.db")
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
