package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cybertip/triage/pkg/config"
)

// TestLoad_Defaults verifies that Load() returns sensible defaults
// when no environment variables are set.
func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_MODE", "")
	t.Setenv("QUEUE_MODE", "")
	t.Setenv("DEMO_MODE", "")
	t.Setenv("OFFLINE_MODE", "")
	t.Setenv("CORS_ORIGINS", "")

	cfg := config.Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "memory", cfg.DBMode)
	assert.Equal(t, "memory", cfg.QueueMode)
	assert.Contains(t, cfg.DatabaseURL, "localhost")
	assert.False(t, cfg.DemoMode)
	assert.False(t, cfg.OfflineMode)
	assert.Nil(t, cfg.CORSOrigins)
}

// TestLoad_Overrides verifies that environment variables correctly
// override default values.
func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("DB_MODE", "postgres")
	t.Setenv("DATABASE_URL", "postgres://production:5432/db")
	t.Setenv("QUEUE_MODE", "redis")
	t.Setenv("DEMO_MODE", "true")
	t.Setenv("CORS_ORIGINS", "https://a.example.com,https://b.example.com")

	cfg := config.Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "postgres", cfg.DBMode)
	assert.Equal(t, "postgres://production:5432/db", cfg.DatabaseURL)
	assert.Equal(t, "redis", cfg.QueueMode)
	assert.True(t, cfg.DemoMode)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSOrigins)
}
