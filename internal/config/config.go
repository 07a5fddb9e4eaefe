package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port            int
	DevMode         bool
	LogLevel        string
	DatabasePath    string
	CacheTTLHours   int
	CachePruneCron  string
	RiskFreeRate    float64
	FrontierPoints  int
	LookbackDays    int
	RequestTimeout  int // seconds
	ShutdownTimeout int // seconds
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnvAsInt("PORT", 8010),
		DevMode:         getEnvAsBool("DEV_MODE", false),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		DatabasePath:    getEnv("DATABASE_PATH", "./data/engine.db"),
		CacheTTLHours:   getEnvAsInt("COVARIANCE_CACHE_TTL_HOURS", 24),
		CachePruneCron:  getEnv("CACHE_PRUNE_SCHEDULE", "0 3 * * *"), // daily at 03:00
		RiskFreeRate:    getEnvAsFloat("RISK_FREE_RATE", 0.02),
		FrontierPoints:  getEnvAsInt("FRONTIER_POINTS", 20),
		LookbackDays:    getEnvAsInt("LOOKBACK_DAYS", 252),
		RequestTimeout:  getEnvAsInt("REQUEST_TIMEOUT_SECONDS", 60),
		ShutdownTimeout: getEnvAsInt("SHUTDOWN_TIMEOUT_SECONDS", 10),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if c.RiskFreeRate < 0 || c.RiskFreeRate > 1 {
		return fmt.Errorf("RISK_FREE_RATE must be in [0, 1], got %f", c.RiskFreeRate)
	}
	if c.FrontierPoints < 2 {
		return fmt.Errorf("FRONTIER_POINTS must be at least 2, got %d", c.FrontierPoints)
	}
	return nil
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
