package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Config holds the service configuration loaded from the environment.
type Config struct {
	DatabaseURL   string
	CORSOrigins   []string
	WebhookSecret string
	LogLevel      slog.Level
	LogFormat     string
}

const (
	LogFormatDev  = "dev"
	LogFormatJSON = "json"
)

// LoadFromEnv reads configuration from environment variables.
// WEBHOOK_SECRET is optional; when empty the webhook secret check is disabled.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		WebhookSecret: os.Getenv("WEBHOOK_SECRET"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	origins := os.Getenv("CORS_ORIGINS")
	if origins == "" {
		origins = "http://localhost:5173"
	}
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, o)
		}
	}

	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		cfg.LogLevel = slog.LevelDebug
	case "", "info":
		cfg.LogLevel = slog.LevelInfo
	case "warn", "warning":
		cfg.LogLevel = slog.LevelWarn
	case "error":
		cfg.LogLevel = slog.LevelError
	default:
		return nil, fmt.Errorf("invalid LOG_LEVEL %q", os.Getenv("LOG_LEVEL"))
	}

	switch format := os.Getenv("LOG_FORMAT"); format {
	case "", LogFormatDev:
		cfg.LogFormat = LogFormatDev
	case LogFormatJSON:
		cfg.LogFormat = LogFormatJSON
	default:
		return nil, fmt.Errorf("invalid LOG_FORMAT %q (want dev or json)", format)
	}

	return cfg, nil
}
