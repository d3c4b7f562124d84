package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8083", cfg.Port)
	assert.Equal(t, FeedTransportPostgres, cfg.FeedTransport)
	assert.Equal(t, 5*time.Minute, cfg.ProfileCacheTTL)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.False(t, cfg.DebugRoutes)
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsUnknownTransport(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("FEED_TRANSPORT", "kafka")

	_, err := Load()
	require.ErrorContains(t, err, "FEED_TRANSPORT")
}

func TestLoadNormalisesTransport(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("FEED_TRANSPORT", " NATS ")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, FeedTransportNATS, cfg.FeedTransport)
}

func TestSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, Config{LogLevel: "DEBUG"}.SlogLevel())
	assert.Equal(t, slog.LevelWarn, Config{LogLevel: "warning"}.SlogLevel())
	assert.Equal(t, slog.LevelInfo, Config{LogLevel: ""}.SlogLevel())
}
