package config

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/bloc")
	t.Setenv("CORS_ORIGINS", "")
	t.Setenv("WEBHOOK_SECRET", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_FORMAT", "")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	require.Equal(t, "postgres://localhost/bloc", cfg.DatabaseURL)
	require.Equal(t, []string{"http://localhost:5173"}, cfg.CORSOrigins)
	require.Empty(t, cfg.WebhookSecret)
	require.Equal(t, slog.LevelInfo, cfg.LogLevel)
	require.Equal(t, LogFormatDev, cfg.LogFormat)
}

func TestLoadFromEnvRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := LoadFromEnv()
	require.ErrorContains(t, err, "DATABASE_URL")
}

func TestLoadFromEnvParsesOrigins(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/bloc")
	t.Setenv("CORS_ORIGINS", "https://crm.example.com, https://staging.example.com ,")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	require.Equal(t,
		[]string{"https://crm.example.com", "https://staging.example.com"},
		cfg.CORSOrigins)
}

func TestLoadFromEnvLogLevels(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/bloc")

	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for raw, want := range cases {
		t.Setenv("LOG_LEVEL", raw)
		cfg, err := LoadFromEnv()
		require.NoError(t, err)
		require.Equal(t, want, cfg.LogLevel)
	}

	t.Setenv("LOG_LEVEL", "verbose")
	_, err := LoadFromEnv()
	require.ErrorContains(t, err, "LOG_LEVEL")
}

func TestLoadFromEnvLogFormat(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/bloc")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	require.Equal(t, LogFormatJSON, cfg.LogFormat)

	t.Setenv("LOG_FORMAT", "xml")
	_, err = LoadFromEnv()
	require.ErrorContains(t, err, "LOG_FORMAT")
}
