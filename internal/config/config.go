// Package config loads the typed, environment-sourced configuration
// for the tunnel lifecycle engine.
package config

import (
	"fmt"
	"os"

	caarlosenv "github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"github.com/dropwire/dropwire/internal/logging"
)

// Config enumerates every tunable the control plane recognizes, per
// the tunnel lifecycle engine, plus the ambient knobs a service like this carries
// (port, environment, log file).
type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	Port        string `env:"PORT" envDefault:"8080"`
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9090"`

	MaxTunnelSeconds    int `env:"MAX_TUNNEL_SECONDS" envDefault:"3600"`
	StallTimeoutSeconds int `env:"STALL_TIMEOUT_SECONDS" envDefault:"300"`
	GracePeriodSeconds  int `env:"GRACE_PERIOD_SECONDS" envDefault:"3600"`

	LibraryRoot string `env:"LIBRARY_ROOT" envDefault:"/data"`
	StagingRoot string `env:"STAGING_ROOT" envDefault:"/var/lib/dropwire/staging"`

	StateStoreURL string `env:"STATE_STORE_URL" envDefault:"redis://localhost:6379/0"`
	JWTSecret     string `env:"JWT_SECRET"`
	AccessLogPath string `env:"ACCESS_LOG_PATH" envDefault:"/var/log/dropwire/access.log"`

	HistoryRetentionLimit  int    `env:"HISTORY_RETENTION_LIMIT" envDefault:"200"`
	TokenSweepCron         string `env:"TOKEN_SWEEP_CRON" envDefault:"@every 5m"`
	OffsetCheckpointEvents int    `env:"OFFSET_CHECKPOINT_EVENTS" envDefault:"50"`
	OffsetCheckpointSeconds int   `env:"OFFSET_CHECKPOINT_SECONDS" envDefault:"10"`
	TriggerTickSeconds     int    `env:"TRIGGER_TICK_SECONDS" envDefault:"5"`

	EdgeProviderSocket string `env:"EDGE_PROVIDER_SOCKET" envDefault:"/run/caddy/admin.sock"`
	EdgeBaseDomain     string `env:"EDGE_BASE_DOMAIN" envDefault:"share.example.com"`

	LogFile    string `env:"LOG_FILE" envDefault:"stdout"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	MaxSize    int    `env:"LOG_MAX_SIZE_MB" envDefault:"100"`
	MaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"3"`
	MaxAge     int    `env:"LOG_MAX_AGE_DAYS" envDefault:"7"`

	OTLPEndpoint string `env:"OTLP_ENDPOINT"`
}

// Load reads a .env file for the current ENV (if present, following
// the common env-file convention) and then parses the
// process environment into a Config.
func Load() (*Config, error) {
	envName := os.Getenv("ENV")
	if envName == "" {
		envName = "development"
	}
	envFile := ".env." + envName
	if _, err := os.Stat(envFile); err == nil {
		if loadErr := godotenv.Load(envFile); loadErr != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, loadErr)
		}
	}

	cfg := &Config{}
	if err := caarlosenv.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate enforces the invariants the rest of the engine relies on: a minimum
// secret length for token signing and sane, non-zero timing windows.
func (c *Config) Validate() error {
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 bytes")
	}
	if c.MaxTunnelSeconds <= 0 {
		return fmt.Errorf("MAX_TUNNEL_SECONDS must be positive")
	}
	if c.StallTimeoutSeconds <= 0 {
		return fmt.Errorf("STALL_TIMEOUT_SECONDS must be positive")
	}
	if c.GracePeriodSeconds <= 0 {
		return fmt.Errorf("GRACE_PERIOD_SECONDS must be positive")
	}
	if c.LibraryRoot == "" {
		return fmt.Errorf("LIBRARY_ROOT is required")
	}
	if c.StagingRoot == "" {
		return fmt.Errorf("STAGING_ROOT is required")
	}
	return nil
}

// Logging adapts the flat env config into the logging package's Config.
func (c *Config) Logging() *logging.Config {
	return &logging.Config{
		Level:      c.LogLevel,
		File:       c.LogFile,
		MaxSize:    c.MaxSize,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAge,
	}
}
