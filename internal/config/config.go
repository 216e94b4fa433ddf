// Package config contains everything related to configuration
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	DatabasePath      string
	SettingsPath      string
	LogPath           string
	LogLevel          string
	AnthropicAPIKey   string
	AnthropicModel    string
	AnthropicBaseURL  string
	MetricsAddr       string
	BatchSize         int
	CostPromptTimeout time.Duration
}

// Default values
const (
	defaultBatchSize         = 10
	defaultCostPromptTimeout = 5 * time.Minute
	defaultLogLevel          = "info"
	appDirName               = "complyscan"
)

// Load reads configuration from .env files and environment variables.
func Load() (*Config, error) {
	// Try loading .env from multiple locations
	envPaths := getEnvPaths()
	for _, path := range envPaths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			break
		}
	}

	cfg := &Config{
		DatabasePath:      getEnvString("DATABASE_PATH", defaultPath("complyscan.db")),
		SettingsPath:      getEnvString("SETTINGS_PATH", defaultPath("settings.json")),
		LogPath:           getEnvString("LOG_PATH", defaultPath("complyscan.log")),
		LogLevel:          getEnvString("LOG_LEVEL", defaultLogLevel),
		AnthropicAPIKey:   getEnvString("ANTHROPIC_API_KEY", ""),
		AnthropicModel:    getEnvString("ANTHROPIC_MODEL", ""),
		AnthropicBaseURL:  getEnvString("ANTHROPIC_BASE_URL", ""),
		MetricsAddr:       getEnvString("METRICS_ADDR", ""),
		BatchSize:         getEnvInt("BATCH_SIZE", defaultBatchSize),
		CostPromptTimeout: getEnvDuration("COST_PROMPT_TIMEOUT", defaultCostPromptTimeout),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	for _, path := range []string{cfg.DatabasePath, cfg.SettingsPath, cfg.LogPath} {
		if err := ensureDir(filepath.Dir(path)); err != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
	}

	return cfg, nil
}

// Validate checks values that have no safe fallback.
func (c *Config) Validate() error {
	if c.BatchSize < 1 {
		return fmt.Errorf("BATCH_SIZE must be >= 1, got: %d", c.BatchSize)
	}
	if c.CostPromptTimeout < 0 {
		return fmt.Errorf("COST_PROMPT_TIMEOUT must not be negative, got: %s", c.CostPromptTimeout)
	}
	return nil
}

// HasAnthropicKey reports whether the paid detector can be used.
func (c *Config) HasAnthropicKey() bool {
	return c.AnthropicAPIKey != ""
}

// getEnvPaths returns a list of paths to check for .env files.
func getEnvPaths() []string {
	var paths []string

	// Current directory
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".env"))
	}

	// Home directory locations
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".config", appDirName, ".env"),
			filepath.Join(home, "."+appDirName, ".env"),
		)
	}

	// Parent directories (useful for development)
	if cwd, err := os.Getwd(); err == nil {
		parent := filepath.Dir(cwd)
		paths = append(paths, filepath.Join(parent, ".env"))
		grandparent := filepath.Dir(parent)
		paths = append(paths, filepath.Join(grandparent, ".env"))
	}

	return paths
}

// defaultPath returns name inside the per-user config directory, or name
// itself when no home directory is available.
func defaultPath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return filepath.Join(home, ".config", appDirName, name)
}

// getEnvString retrieves a string environment variable or returns the default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable or returns the default.
// Accepts values like "30s", "1m", "500ms".
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		// Try parsing as seconds if no unit specified
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

// ensureDir creates a directory and all parent directories if they don't exist.
func ensureDir(path string) error {
	if path == "" || path == "." {
		return nil
	}
	return os.MkdirAll(path, 0o750)
}
