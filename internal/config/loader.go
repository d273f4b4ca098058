package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ARBALERT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ARBALERT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Provider ──
	setStr(&cfg.Provider.ApiKey, "ARBALERT_PROVIDER_API_KEY")
	setStr(&cfg.Provider.ApiKey, "ODDS_API_KEY") // compatibility alias
	setStr(&cfg.Provider.BaseURL, "ARBALERT_PROVIDER_BASE_URL")
	setStringSlice(&cfg.Provider.Sports, "ARBALERT_PROVIDER_SPORTS")
	setStringSlice(&cfg.Provider.MarketTypes, "ARBALERT_PROVIDER_MARKET_TYPES")
	setStr(&cfg.Provider.Regions, "ARBALERT_PROVIDER_REGIONS")
	setStringSlice(&cfg.Provider.Bookmakers, "ARBALERT_PROVIDER_BOOKMAKERS")
	setInt(&cfg.Provider.MinRemaining, "ARBALERT_PROVIDER_MIN_REMAINING")
	setInt(&cfg.Provider.MaxParallel, "ARBALERT_PROVIDER_MAX_PARALLEL")
	setDuration(&cfg.Provider.Timeout, "ARBALERT_PROVIDER_TIMEOUT")

	// ── Database ──
	setStr(&cfg.Database.DSN, "ARBALERT_DATABASE_DSN")
	setStr(&cfg.Database.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Database.Host, "ARBALERT_DATABASE_HOST")
	setInt(&cfg.Database.Port, "ARBALERT_DATABASE_PORT")
	setStr(&cfg.Database.Database, "ARBALERT_DATABASE_NAME")
	setStr(&cfg.Database.User, "ARBALERT_DATABASE_USER")
	setStr(&cfg.Database.Password, "ARBALERT_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "ARBALERT_DATABASE_SSL_MODE")
	setInt(&cfg.Database.PoolMaxConns, "ARBALERT_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "ARBALERT_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "ARBALERT_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "ARBALERT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARBALERT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARBALERT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ARBALERT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ARBALERT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ARBALERT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "ARBALERT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "ARBALERT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ARBALERT_S3_REGION")
	setStr(&cfg.S3.Bucket, "ARBALERT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ARBALERT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ARBALERT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ARBALERT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ARBALERT_S3_FORCE_PATH_STYLE")

	// ── Twilio ──
	setStr(&cfg.Twilio.AccountSID, "ARBALERT_TWILIO_ACCOUNT_SID")
	setStr(&cfg.Twilio.AccountSID, "TWILIO_ACCOUNT_SID") // compatibility alias
	setStr(&cfg.Twilio.AuthToken, "ARBALERT_TWILIO_AUTH_TOKEN")
	setStr(&cfg.Twilio.AuthToken, "TWILIO_AUTH_TOKEN") // compatibility alias
	setStr(&cfg.Twilio.FromNumber, "ARBALERT_TWILIO_FROM_NUMBER")
	setStr(&cfg.Twilio.FromNumber, "TWILIO_FROM_NUMBER") // compatibility alias

	// ── Detector ──
	setFloat64(&cfg.Detector.Epsilon, "ARBALERT_DETECTOR_EPSILON")
	setInt(&cfg.Detector.RetentionDays, "ARBALERT_DETECTOR_RETENTION_DAYS")

	// ── Scheduler ──
	setStr(&cfg.Scheduler.DailyAt, "ARBALERT_SCHEDULER_DAILY_AT")
	setStr(&cfg.Scheduler.Timezone, "ARBALERT_SCHEDULER_TIMEZONE")

	// ── Retry ──
	setInt(&cfg.Retry.MaxAttempts, "ARBALERT_RETRY_MAX_ATTEMPTS")
	setDuration(&cfg.Retry.BaseDelay, "ARBALERT_RETRY_BASE_DELAY")
	setDuration(&cfg.Retry.MaxDelay, "ARBALERT_RETRY_MAX_DELAY")

	// ── Metrics ──
	setBool(&cfg.Metrics.Enabled, "ARBALERT_METRICS_ENABLED")
	setInt(&cfg.Metrics.Port, "ARBALERT_METRICS_PORT")

	// ── Top-level ──
	setStr(&cfg.Mode, "ARBALERT_MODE")
	setStr(&cfg.LogLevel, "ARBALERT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
