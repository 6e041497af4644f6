package app

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLoggerHonorsLevel(t *testing.T) {
	ctx := context.Background()

	debug := NewLogger(&Config{LogLevel: "debug"})
	require.True(t, debug.Enabled(ctx, slog.LevelDebug))

	warn := NewLogger(&Config{LogLevel: "warn", LogFormat: "json"})
	require.False(t, warn.Enabled(ctx, slog.LevelInfo))
	require.True(t, warn.Enabled(ctx, slog.LevelWarn))

	// unknown levels and a nil config fall back to info
	fallback := NewLogger(&Config{LogLevel: "verbose"})
	require.False(t, fallback.Enabled(ctx, slog.LevelDebug))
	require.True(t, fallback.Enabled(ctx, slog.LevelInfo))
	require.True(t, NewLogger(nil).Enabled(ctx, slog.LevelInfo))
}
