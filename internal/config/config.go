// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// ErrNoProviderConfigured is returned when no provider credentials are
// present at all; the service cannot submit work anywhere.
var ErrNoProviderConfigured = errors.New("config: no provider configured, set FAL_API_KEY, DECART_API_KEY or MIRAGE_BASE_URL")

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port"`

	// Provider selection. Empty means route by model code, falling back
	// to the first configured provider.
	ProviderName string `env:"PROVIDER_NAME" json:"provider_name,omitempty"`

	// fal.ai settings (lucy14b)
	FALAPIKey  string `env:"FAL_API_KEY" json:"-"` // Masked in JSON
	FALBaseURL string `env:"FAL_BASE_URL, default=https://fal.run" json:"fal_base_url"`

	// Decart settings (splice, miragelsd)
	DecartAPIKey  string `env:"DECART_API_KEY" json:"-"` // Masked in JSON
	MirageBaseURL string `env:"MIRAGE_BASE_URL" json:"mirage_base_url,omitempty"`

	// Webhook settings
	WebhookSecret string `env:"WEBHOOK_SECRET" json:"-"` // Masked in JSON

	// Database settings. Empty falls back to the in-memory job store.
	DatabaseURL string `env:"DATABASE_URL" json:"-"` // Masked in JSON

	// Job settings
	JobTTL time.Duration `env:"JOB_TTL, default=15m" json:"job_ttl"`

	// Local storage settings (used when S3 is not configured)
	StorageDir     string `env:"STORAGE_DIR, default=/tmp/promptreel" json:"storage_dir"`
	StorageBaseURL string `env:"STORAGE_BASE_URL" json:"storage_base_url,omitempty"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// FALEnabled returns true if fal.ai credentials are present.
func (c *Config) FALEnabled() bool {
	return c.FALAPIKey != ""
}

// DecartEnabled returns true if Decart vid2vid credentials are present.
func (c *Config) DecartEnabled() bool {
	return c.DecartAPIKey != ""
}

// MirageEnabled returns true if a Mirage endpoint is configured.
func (c *Config) MirageEnabled() bool {
	return c.MirageBaseURL != ""
}

// Load reads configuration from environment variables using go-envconfig.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Validate checks that at least one provider can be constructed.
func (c *Config) Validate() error {
	if !c.FALEnabled() && !c.DecartEnabled() && !c.MirageEnabled() {
		return ErrNoProviderConfigured
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, ProviderName: %s, FALBaseURL: %s, MirageBaseURL: %s, JobTTL: %s, StorageDir: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.ProviderName,
		c.FALBaseURL,
		c.MirageBaseURL,
		c.JobTTL,
		c.StorageDir,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
