// Package config defines the top-level configuration for the arbalert
// service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by ARBALERT_* environment
// variables.
type Config struct {
	Provider   ProviderConfig    `toml:"provider"`
	Database   DatabaseConfig    `toml:"database"`
	Redis      RedisConfig       `toml:"redis"`
	S3         S3Config          `toml:"s3"`
	Twilio     TwilioConfig      `toml:"twilio"`
	Detector   DetectorConfig    `toml:"detector"`
	Scheduler  SchedulerConfig   `toml:"scheduler"`
	Retry      RetryConfig       `toml:"retry"`
	Metrics    MetricsConfig     `toml:"metrics"`
	Recipients []RecipientConfig `toml:"recipients"`
	Mode       string            `toml:"mode"`
	LogLevel   string            `toml:"log_level"`
}

// ProviderConfig holds odds provider API parameters.
type ProviderConfig struct {
	ApiKey      string   `toml:"api_key"`
	BaseURL     string   `toml:"base_url"`
	Sports      []string `toml:"sports"`
	MarketTypes []string `toml:"market_types"`
	Regions     string   `toml:"regions"`
	Bookmakers  []string `toml:"bookmakers"`
	// MinRemaining is the request budget floor: when the provider reports
	// fewer remaining requests, fetching is treated as quota exhaustion.
	MinRemaining int      `toml:"min_remaining"`
	MaxParallel  int      `toml:"max_parallel"`
	Timeout      duration `toml:"timeout"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the audit
// archive. Archival is optional and disabled by default.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// TwilioConfig holds SMS delivery credentials.
type TwilioConfig struct {
	AccountSID string `toml:"account_sid"`
	AuthToken  string `toml:"auth_token"`
	FromNumber string `toml:"from_number"`
}

// DetectorConfig holds arbitrage detection and dedup parameters.
type DetectorConfig struct {
	// Epsilon is the safety margin absorbing quote staleness and rounding:
	// an opportunity requires sum(1/odds) < 1 - epsilon.
	Epsilon float64 `toml:"epsilon"`
	// RetentionDays controls when stored opportunities are marked EXPIRED.
	RetentionDays int `toml:"retention_days"`
}

// SchedulerConfig holds the daily trigger parameters.
type SchedulerConfig struct {
	// DailyAt is the wall-clock trigger time in "HH:MM" form.
	DailyAt string `toml:"daily_at"`
	// Timezone names the IANA zone for the trigger and for the calendar
	// date folded into idempotency keys.
	Timezone string `toml:"timezone"`
}

// RetryConfig holds the shared retry policy for provider and delivery calls.
type RetryConfig struct {
	MaxAttempts int      `toml:"max_attempts"`
	BaseDelay   duration `toml:"base_delay"`
	MaxDelay    duration `toml:"max_delay"`
}

// MetricsConfig holds the Prometheus endpoint parameters.
type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
}

// RecipientConfig is one alert subscriber as declared in the TOML file.
type RecipientConfig struct {
	Name  string  `toml:"name"`
	Phone string  `toml:"phone"`
	Unit  float64 `toml:"unit"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "30s", "5m").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Provider: ProviderConfig{
			BaseURL:     "https://api.the-odds-api.com/v4",
			Sports:      []string{"basketball_nba"},
			MarketTypes: []string{"h2h"},
			Regions:     "us",
			Bookmakers: []string{
				"draftkings", "fanduel", "betmgm", "caesars",
				"pointsbet", "wynnbet", "bet365", "barstool",
			},
			MinRemaining: 10,
			MaxParallel:  4,
			Timeout:      duration{30 * time.Second},
		},
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "arbalert",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   10,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "arbalert-audit",
			ForcePathStyle: true,
		},
		Detector: DetectorConfig{
			Epsilon:       0.005,
			RetentionDays: 7,
		},
		Scheduler: SchedulerConfig{
			DailyAt:  "06:00",
			Timezone: "America/New_York",
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   duration{500 * time.Millisecond},
			MaxDelay:    duration{5 * time.Second},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
		Mode:     "watch",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"watch": true, // scheduled daemon
	"once":  true, // run a single cycle and exit
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: watch, once)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Provider
	if c.Provider.ApiKey == "" {
		errs = append(errs, "provider: api_key is required")
	}
	if c.Provider.BaseURL == "" {
		errs = append(errs, "provider: base_url must not be empty")
	}
	if len(c.Provider.Sports) == 0 {
		errs = append(errs, "provider: at least one sport key is required")
	}
	if len(c.Provider.MarketTypes) == 0 {
		errs = append(errs, "provider: at least one market type is required")
	}
	if c.Provider.MaxParallel < 1 {
		errs = append(errs, "provider: max_parallel must be >= 1")
	}
	if c.Provider.MinRemaining < 0 {
		errs = append(errs, "provider: min_remaining must be >= 0")
	}

	// Database
	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host must not be empty (or set database.dsn)")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}
	if c.Database.PoolMinConns < 0 {
		errs = append(errs, "database: pool_min_conns must be >= 0")
	}
	if c.Database.PoolMinConns > c.Database.PoolMaxConns {
		errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 (only when archival is on)
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
	}

	// Twilio
	if c.Twilio.AccountSID == "" {
		errs = append(errs, "twilio: account_sid is required")
	}
	if c.Twilio.AuthToken == "" {
		errs = append(errs, "twilio: auth_token is required")
	}
	if c.Twilio.FromNumber == "" {
		errs = append(errs, "twilio: from_number is required")
	}

	// Detector
	if c.Detector.Epsilon < 0 || c.Detector.Epsilon >= 1 {
		errs = append(errs, fmt.Sprintf("detector: epsilon must be in [0, 1), got %g", c.Detector.Epsilon))
	}
	if c.Detector.RetentionDays < 1 {
		errs = append(errs, "detector: retention_days must be >= 1")
	}

	// Scheduler
	if _, err := ParseDailyAt(c.Scheduler.DailyAt); err != nil {
		errs = append(errs, fmt.Sprintf("scheduler: %v", err))
	}
	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("scheduler: unknown timezone %q", c.Scheduler.Timezone))
	}

	// Retry
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, "retry: max_attempts must be >= 1")
	}

	// Metrics
	if c.Metrics.Enabled {
		if c.Metrics.Port <= 0 || c.Metrics.Port > 65535 {
			errs = append(errs, fmt.Sprintf("metrics: port must be 1-65535, got %d", c.Metrics.Port))
		}
	}

	// Recipients — individual validation happens per cycle; here only catch
	// a completely empty list, which would make every cycle a no-op.
	if len(c.Recipients) == 0 {
		errs = append(errs, "recipients: at least one recipient is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ParseDailyAt parses a "HH:MM" wall-clock time and returns hour and minute
// packed as minutes since midnight.
func ParseDailyAt(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("daily_at %q is not HH:MM", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}
