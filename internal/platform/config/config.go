// Copyright (c) 2026 Unilink. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values. A local '.env' file is
read first (via 'joho/godotenv') so development setups do not need to export
anything; real environment variables always win over the file.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (DB, Redis, SMTP) via constructors.
  - Zero Hidden State: No global variables are used to store config.
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/taibuivan/unilink/pkg/slice"
)

// # Configuration Schema

// Config holds all runtime configuration for the unilink server and CLI.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8000"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// AppBaseURL is the public origin used to build reset links and vendor callbacks.
	AppBaseURL string `env:"APP_BASE_URL" envDefault:"http://127.0.0.1:8000"`

	// Relational Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// MigrationPath is the filesystem path to the SQL migrations directory.
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./data/migrations"`

	// Key-Value Cache (Redis). Optional: without it reset requests are not throttled.
	RedisURL string `env:"REDIS_URL"`

	// SecretKey signs bearer API tokens (HS256).
	SecretKey string `env:"SECRET_KEY,required"`

	// Session and recovery lifetimes
	SessionTTL    time.Duration `env:"SESSION_TTL"     envDefault:"24h"`
	ResetTokenTTL time.Duration `env:"RESET_TOKEN_TTL" envDefault:"30m"`
	CookieSecure  bool          `env:"COOKIE_SECURE"   envDefault:"true"`

	// Reset request throttle (per identifier, Redis-backed)
	ResetThrottleLimit  int           `env:"RESET_THROTTLE_LIMIT"  envDefault:"5"`
	ResetThrottleWindow time.Duration `env:"RESET_THROTTLE_WINDOW" envDefault:"15m"`

	// Cross-Origin Resource Sharing (comma separated origins)
	AllowedOrigins string `env:"ALLOWED_ORIGINS"`

	SMTP    SMTPConfig
	Queue   QueueConfig
	Unipile UnipileConfig
	Tracing TracingConfig
}

// SMTPConfig describes the outbound mail transport.
type SMTPConfig struct {
	Host     string        `env:"SMTP_HOST"`
	Port     int           `env:"SMTP_PORT"     envDefault:"587"`
	Username string        `env:"SMTP_USERNAME"`
	Password string        `env:"SMTP_PASSWORD"`
	From     string        `env:"SMTP_FROM"`
	TLS      string        `env:"SMTP_TLS"      envDefault:"opportunistic"`
	Timeout  time.Duration `env:"SMTP_TIMEOUT"  envDefault:"10s"`
}

// QueueConfig enables queue-backed mail delivery when URL is set.
type QueueConfig struct {
	URL       string `env:"MAIL_QUEUE_URL"`
	QueueName string `env:"MAIL_QUEUE_NAME" envDefault:"mail.outbound"`
	Prefetch  int    `env:"MAIL_QUEUE_PREFETCH" envDefault:"10"`
}

// UnipileConfig holds the account-connection vendor settings.
type UnipileConfig struct {
	APIBase       string        `env:"UNIPILE_API_BASE"`
	APIHost       string        `env:"UNIPILE_API_HOST"`
	APIKey        string        `env:"UNIPILE_API_KEY"`
	Timeout       time.Duration `env:"UNIPILE_TIMEOUT"        envDefault:"30s"`
	LinkTTL       time.Duration `env:"UNIPILE_LINK_TTL"       envDefault:"15m"`
	WebhookSecret string        `env:"UNIPILE_WEBHOOK_SECRET"`
}

// TracingConfig drives the OTLP exporter. Tracing is off when Endpoint is empty.
type TracingConfig struct {
	Endpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Insecure bool   `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"false"`
}

// # Configuration Loading

// Load reads an optional .env file and parses environment variables into a [Config].
func Load() (*Config, error) {

	// A missing .env is normal outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: failed to read .env file: %w", err)
	}

	cfg := &Config{}

	// This will fail if any field marked with 'required' is missing.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	cfg.AppBaseURL = strings.TrimRight(cfg.AppBaseURL, "/")
	cfg.Unipile.APIBase = strings.TrimRight(cfg.Unipile.APIBase, "/")
	cfg.Unipile.APIHost = strings.TrimRight(cfg.Unipile.APIHost, "/")

	return cfg, nil
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Origins returns the configured CORS origins.
func (c *Config) Origins() []string {
	origins := slice.Map(strings.Split(c.AllowedOrigins, ","), strings.TrimSpace)
	return slice.Filter(origins, func(origin string) bool { return origin != "" })
}
