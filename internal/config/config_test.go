package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/water-quality-server/internal/domain"
)

func TestNewManagerDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	m, err := NewManager()
	require.NoError(t, err)

	cfg := m.GetConfig()
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 10*time.Second, cfg.Assessment.PredictTimeout)
	assert.Equal(t, "water-quality/samples/+", cfg.MQTT.Topic)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)
	assert.Equal(t, "local", m.GetPredictorConfig().Mode)
	assert.True(t, m.IsDevelopment())
	assert.False(t, m.IsProduction())
	assert.NoError(t, m.Validate())
}

const sampleConfig = `
environment: production
server:
  port: 9090
  rate_limit: 5
database:
  driver: sqlite
  sqlite_path: /var/lib/wq/wq.db
predictor:
  mode: remote
  base_url: http://model.internal:5000
logging:
  level: warn
  format: text
`

func TestNewManagerFromFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wq.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))
	t.Setenv("WATER_QUALITY_SERVER_PORT", "9191")
	t.Setenv("WATER_QUALITY_ASSESSMENT_PERSIST_TIMEOUT", "3s")

	m, err := NewManagerFromFile(path)
	require.NoError(t, err)

	cfg := m.GetConfig()
	assert.Equal(t, 9191, m.GetServerConfig().Port, "environment overrides file")
	assert.Equal(t, 5.0, cfg.Server.RateLimit)
	assert.Equal(t, "sqlite", m.GetDatabaseConfig().Driver)
	assert.Equal(t, 3*time.Second, cfg.Assessment.PersistTimeout)
	assert.Equal(t, "http://model.internal:5000", cfg.Predictor.BaseURL)
	assert.True(t, m.IsProduction())
	assert.NoError(t, m.Validate())
}

func TestNewManagerFromMissingFile(t *testing.T) {
	_, err := NewManagerFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func validConfig() *domain.Config {
	return &domain.Config{
		Server:    domain.ServerConfig{Port: 8000},
		Database:  domain.DatabaseConfig{Driver: "postgres", Host: "localhost", Database: "wq", Username: "wq"},
		Predictor: domain.PredictorConfig{Mode: "local"},
		Logging:   domain.LoggingConfig{Level: "info"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.Config)
	}{
		{"bad port", func(c *domain.Config) { c.Server.Port = 70000 }},
		{"negative rate", func(c *domain.Config) { c.Server.RateLimit = -1 }},
		{"unknown driver", func(c *domain.Config) { c.Database.Driver = "mysql" }},
		{"postgres without host", func(c *domain.Config) { c.Database.Host = "" }},
		{"sqlite without path", func(c *domain.Config) { c.Database.Driver = "sqlite" }},
		{"remote without url", func(c *domain.Config) { c.Predictor.Mode = "remote" }},
		{"unknown predictor", func(c *domain.Config) { c.Predictor.Mode = "oracle" }},
		{"mqtt without broker", func(c *domain.Config) { c.MQTT.Enabled = true }},
		{"bad qos", func(c *domain.Config) { c.MQTT.QoS = 3 }},
		{"negative timeout", func(c *domain.Config) { c.Assessment.PredictTimeout = -time.Second }},
		{"bad log level", func(c *domain.Config) { c.Logging.Level = "loud" }},
	}

	require.NoError(t, Validate(validConfig()))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestDatabaseURL(t *testing.T) {
	got := DatabaseURL(domain.DatabaseConfig{
		Host: "db", Port: 5432, Database: "wq", Username: "user", Password: "p@ss", SSLMode: "disable",
	})
	assert.Equal(t, "postgres://user:p%40ss@db:5432/wq?sslmode=disable", got)
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(domain.LoggingConfig{Level: "DEBUG", Format: "text", Output: "stderr"})
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)
	assert.Equal(t, os.Stderr, logger.Out)

	path := filepath.Join(t.TempDir(), "wq.log")
	logger, err = NewLogger(domain.LoggingConfig{Level: "info", Output: path})
	require.NoError(t, err)
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)
	logger.Info("hello")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)

	_, err = NewLogger(domain.LoggingConfig{Level: "chatty"})
	assert.Error(t, err)
}
