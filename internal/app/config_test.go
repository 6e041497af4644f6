package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	_ "github.com/warewave/warewave/internal/testing/guard"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, "development", cfg.AppEnv)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, 30*time.Second, cfg.AppRequestTimeout)
	require.Equal(t, "127.0.0.1:6379", cfg.RedisAddr)
	require.Equal(t, 5*time.Minute, cfg.StatsCacheTTL)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("WAREWAVE_APP_ENV", "production")
	t.Setenv("WAREWAVE_APP_ADDR", ":9999")
	t.Setenv("WAREWAVE_RATE_LIMIT_PER_MINUTE", "30")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.True(t, cfg.IsProduction())
	require.Equal(t, ":9999", cfg.AppAddr)
	require.Equal(t, 30, cfg.RateLimitPerMinute)
}

func TestInTestMode(t *testing.T) {
	t.Setenv("WAREWAVE_TEST_MODE", "1")
	RefreshTestMode()
	require.True(t, InTestMode())

	t.Setenv("WAREWAVE_TEST_MODE", "")
	RefreshTestMode()
	require.False(t, InTestMode())
}
