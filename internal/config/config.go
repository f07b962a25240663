package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Settings holds all process-level configuration
type Settings struct {
	Paths PathConfig
	HTTP  HTTPConfig
	App   AppConfig
}

// PathConfig holds filesystem paths used by the engine
type PathConfig struct {
	DevicesFile string
	TokenStore  string
	TokenEnv    string
}

// HTTPConfig holds outbound HTTP settings
type HTTPConfig struct {
	Timeout time.Duration
}

// AppConfig holds application-specific configuration
type AppConfig struct {
	Environment string
	LogLevel    string
	WorkerCount int
}

// Load loads settings from environment variables
func Load() (*Settings, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// Only return error if file exists but couldn't be loaded
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading .env file: %w", err)
		}
	}

	cfg := &Settings{}

	cfg.Paths = PathConfig{
		DevicesFile: getEnv("CONFIG_PATH", filepath.Join("config", "devices.yml")),
		TokenStore:  getEnv("TOKEN_STORE_PATH", filepath.Join("data", "token_store.db")),
		TokenEnv:    getEnv("TOKEN_ENV_PATH", filepath.Join("data", "auth_tokens.env")),
	}

	cfg.HTTP = HTTPConfig{
		Timeout: getDurationEnv("HTTP_TIMEOUT", 10*time.Second),
	}

	cfg.App = AppConfig{
		Environment: getEnv("APP_ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		WorkerCount: getIntEnv("WORKER_COUNT", 5),
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return cfg, nil
}

// validate performs settings validation
func (c *Settings) validate() error {
	if c.Paths.DevicesFile == "" {
		return fmt.Errorf("CONFIG_PATH is required")
	}
	if c.Paths.TokenStore == "" {
		return fmt.Errorf("TOKEN_STORE_PATH is required")
	}
	if c.HTTP.Timeout < 1*time.Second {
		return fmt.Errorf("HTTP_TIMEOUT must be at least 1 second")
	}
	if !isValidEnvironment(c.App.Environment) {
		return fmt.Errorf("invalid APP_ENV: %s", c.App.Environment)
	}
	if !isValidLogLevel(c.App.LogLevel) {
		return fmt.Errorf("invalid LOG_LEVEL: %s", c.App.LogLevel)
	}
	if c.App.WorkerCount < 1 {
		return fmt.Errorf("WORKER_COUNT must be at least 1")
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func isValidEnvironment(env string) bool {
	validEnvs := map[string]bool{
		"development": true,
		"testing":     true,
		"staging":     true,
		"production":  true,
	}
	return validEnvs[env]
}

func isValidLogLevel(level string) bool {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"fatal": true,
	}
	return validLevels[level]
}
