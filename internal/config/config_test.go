package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8090, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 10*time.Minute, cfg.AnalysisTimeout)
	assert.Empty(t, cfg.QuoteStreamURL)
	assert.Empty(t, cfg.BackupBucket)
	assert.Contains(t, cfg.DatabasePath(), "trader.db")
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("ANALYSIS_TIMEOUT", "5m")
	t.Setenv("QUOTE_STREAM_URL", "wss://stream.example.com/v1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5*time.Minute, cfg.AnalysisTimeout)
	assert.Equal(t, "wss://stream.example.com/v1", cfg.QuoteStreamURL)
}

func TestLoadRejectsBadPort(t *testing.T) {
	t.Setenv("PORT", "99999")
	_, err := Load()
	assert.Error(t, err)
}

func TestGetEnvHelpersFallBack(t *testing.T) {
	t.Setenv("SOME_INT", "not-a-number")
	assert.Equal(t, 7, getEnvAsInt("SOME_INT", 7))

	t.Setenv("SOME_BOOL", "maybe")
	assert.False(t, getEnvAsBool("SOME_BOOL", false))

	t.Setenv("SOME_DUR", "eventually")
	assert.Equal(t, time.Minute, getEnvAsDuration("SOME_DUR", time.Minute))
}
