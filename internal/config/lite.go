package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/water-quality-server/internal/domain"
)

// LiteConfig is a simplified configuration for standalone operation: an
// embedded SQLite database, an in-memory prediction cache and no broker.
type LiteConfig struct {
	DataDir string

	CacheMaxItems int
	CacheTTL      time.Duration

	ModelFile     string
	GuidelineFile string

	LogLevel  string
	LogFormat string
}

// DefaultLiteConfig returns a configuration with sensible defaults.
func DefaultLiteConfig() *LiteConfig {
	homeDir, _ := os.UserHomeDir()

	return &LiteConfig{
		DataDir:       filepath.Join(homeDir, ".water-quality"),
		CacheMaxItems: 1000,
		CacheTTL:      time.Hour,
		LogLevel:      "info",
		LogFormat:     "json",
	}
}

// LoadLiteConfig loads configuration from WATER_QUALITY_* environment
// variables, falling back to defaults.
func LoadLiteConfig() *LiteConfig {
	cfg := DefaultLiteConfig()

	if v := os.Getenv(EnvPrefix + "_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	if v := os.Getenv(EnvPrefix + "_CACHE_MAX_ITEMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheMaxItems = n
		}
	}
	if v := os.Getenv(EnvPrefix + "_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CacheTTL = d
		}
	}

	cfg.ModelFile = os.Getenv(EnvPrefix + "_MODEL_FILE")
	cfg.GuidelineFile = os.Getenv(EnvPrefix + "_GUIDELINE_FILE")

	if v := os.Getenv(EnvPrefix + "_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(EnvPrefix + "_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

// DatabasePath returns the path to the embedded database.
func (c *LiteConfig) DatabasePath() string {
	return filepath.Join(c.DataDir, "water_quality.db")
}

// ExportDir returns the directory for CSV and Excel exports.
func (c *LiteConfig) ExportDir() string {
	return filepath.Join(c.DataDir, "exports")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *LiteConfig) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return err
	}
	return os.MkdirAll(c.ExportDir(), 0755)
}

// Config expands the lite settings into a full configuration. Logs go to
// stderr since standalone mode serves MCP over stdio.
func (c *LiteConfig) Config() *domain.Config {
	return &domain.Config{
		Environment: "standalone",
		Server:      domain.ServerConfig{Host: "127.0.0.1", Port: 8000},
		Database: domain.DatabaseConfig{
			Driver:     "sqlite",
			SQLitePath: c.DatabasePath(),
		},
		Cache: domain.CacheConfig{
			Enabled:        true,
			DefaultTTL:     c.CacheTTL,
			MemoryMaxItems: c.CacheMaxItems,
		},
		Predictor:  domain.PredictorConfig{Mode: "local", ModelFile: c.ModelFile},
		Guidelines: domain.GuidelineConfig{File: c.GuidelineFile},
		Assessment: domain.AssessmentConfig{PredictTimeout: 10 * time.Second, PersistTimeout: 10 * time.Second},
		Logging:    domain.LoggingConfig{Level: c.LogLevel, Format: c.LogFormat, Output: "stderr"},
		MCP:        domain.MCPConfig{ServerName: "water-quality-mcp", ServerVersion: "1.0.0"},
	}
}
