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
// built-in defaults, applies VENUE_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known VENUE_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Database ──
	setStr(&cfg.Database.DSN, "VENUE_DATABASE_DSN")
	setStr(&cfg.Database.Host, "VENUE_DATABASE_HOST")
	setInt(&cfg.Database.Port, "VENUE_DATABASE_PORT")
	setStr(&cfg.Database.Database, "VENUE_DATABASE_NAME")
	setStr(&cfg.Database.User, "VENUE_DATABASE_USER")
	setStr(&cfg.Database.Password, "VENUE_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "VENUE_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "VENUE_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "VENUE_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "VENUE_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "VENUE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "VENUE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "VENUE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "VENUE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "VENUE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "VENUE_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "VENUE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "VENUE_S3_REGION")
	setStr(&cfg.S3.Bucket, "VENUE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "VENUE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "VENUE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "VENUE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "VENUE_S3_FORCE_PATH_STYLE")

	// ── Engine ──
	setFloat64(&cfg.Engine.WithdrawRatioCap, "VENUE_ENGINE_WITHDRAW_RATIO_CAP")
	setFloat64(&cfg.Engine.SolvencyFactor, "VENUE_ENGINE_SOLVENCY_FACTOR")
	setFloat64(&cfg.Engine.DefaultFeeRate, "VENUE_ENGINE_DEFAULT_FEE_RATE")

	// ── Server ──
	setInt(&cfg.Server.Port, "VENUE_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "VENUE_SERVER_CORS_ORIGINS")
	setStringSlice(&cfg.Server.APIKeys, "VENUE_SERVER_API_KEYS")
	setStringSlice(&cfg.Server.AdminAPIKeys, "VENUE_SERVER_ADMIN_API_KEYS")
	setInt(&cfg.Server.RateLimitPerMin, "VENUE_SERVER_RATE_LIMIT_PER_MIN")
	setDuration(&cfg.Server.ReadTimeout, "VENUE_SERVER_READ_TIMEOUT")
	setDuration(&cfg.Server.WriteTimeout, "VENUE_SERVER_WRITE_TIMEOUT")
	setDuration(&cfg.Server.ShutdownTimeout, "VENUE_SERVER_SHUTDOWN_TIMEOUT")

	// ── Sweeper ──
	setBool(&cfg.Sweeper.Enabled, "VENUE_SWEEPER_ENABLED")
	setDuration(&cfg.Sweeper.Interval, "VENUE_SWEEPER_INTERVAL")
	setDuration(&cfg.Sweeper.LockTTL, "VENUE_SWEEPER_LOCK_TTL")
	setInt(&cfg.Sweeper.Batch, "VENUE_SWEEPER_BATCH")

	// ── Audit ──
	setBool(&cfg.Audit.Enabled, "VENUE_AUDIT_ENABLED")
	setDuration(&cfg.Audit.Interval, "VENUE_AUDIT_INTERVAL")
	setInt(&cfg.Audit.BatchSize, "VENUE_AUDIT_BATCH_SIZE")
	setStr(&cfg.Audit.Prefix, "VENUE_AUDIT_PREFIX")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "VENUE_LOG_LEVEL")
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
