// Package config defines the top-level configuration for the trading venue
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by VENUE_* environment variables.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Engine   EngineConfig   `toml:"engine"`
	Server   ServerConfig   `toml:"server"`
	Sweeper  SweeperConfig  `toml:"sweeper"`
	Audit    AuditConfig    `toml:"audit"`
	LogLevel string         `toml:"log_level"`
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

// S3Config holds S3-compatible object storage parameters for audit exports.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// EngineConfig holds the trading engine's safety parameters.
type EngineConfig struct {
	// WithdrawRatioCap is the maximum fraction of a market's total reserves a
	// single liquidity withdrawal may take.
	WithdrawRatioCap float64 `toml:"withdraw_ratio_cap"`

	// SolvencyFactor: post-withdrawal reserves must stay at or above
	// SolvencyFactor times cumulative volume.
	SolvencyFactor float64 `toml:"solvency_factor"`

	// DefaultFeeRate is used when market creation omits a fee rate.
	DefaultFeeRate float64 `toml:"default_fee_rate"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	APIKeys         []string `toml:"api_keys"`
	AdminAPIKeys    []string `toml:"admin_api_keys"`
	RateLimitPerMin int      `toml:"rate_limit_per_min"`
	ReadTimeout     duration `toml:"read_timeout"`
	WriteTimeout    duration `toml:"write_timeout"`
	ShutdownTimeout duration `toml:"shutdown_timeout"`
}

// SweeperConfig holds the close-expired-markets background job parameters.
type SweeperConfig struct {
	Enabled  bool     `toml:"enabled"`
	Interval duration `toml:"interval"`
	LockTTL  duration `toml:"lock_ttl"`
	Batch    int      `toml:"batch"`
}

// AuditConfig holds the filled-order export job parameters.
type AuditConfig struct {
	Enabled   bool     `toml:"enabled"`
	Interval  duration `toml:"interval"`
	BatchSize int      `toml:"batch_size"`
	Prefix    string   `toml:"prefix"`
}

// duration wraps time.Duration so the TOML decoder can parse strings like
// "5m" or "30s".
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "venue",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "venue-audit",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Engine: EngineConfig{
			WithdrawRatioCap: 0.8,
			SolvencyFactor:   0.5,
			DefaultFeeRate:   0.02,
		},
		Server: ServerConfig{
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimitPerMin: 120,
			ReadTimeout:     duration{15 * time.Second},
			WriteTimeout:    duration{30 * time.Second},
			ShutdownTimeout: duration{10 * time.Second},
		},
		Sweeper: SweeperConfig{
			Enabled:  true,
			Interval: duration{time.Minute},
			LockTTL:  duration{50 * time.Second},
			Batch:    100,
		},
		Audit: AuditConfig{
			Enabled:   false,
			Interval:  duration{15 * time.Minute},
			BatchSize: 500,
			Prefix:    "orders",
		},
		LogLevel: "info",
	}
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

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Database.DSN == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host is required when dsn is not set")
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database name is required when dsn is not set")
		}
	}
	if c.Database.PoolMinConns > c.Database.PoolMaxConns {
		errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr is required")
	}

	if c.Engine.WithdrawRatioCap <= 0 || c.Engine.WithdrawRatioCap > 1 {
		errs = append(errs, fmt.Sprintf("engine: withdraw_ratio_cap %v must be in (0, 1]", c.Engine.WithdrawRatioCap))
	}
	if c.Engine.SolvencyFactor < 0 || c.Engine.SolvencyFactor > 1 {
		errs = append(errs, fmt.Sprintf("engine: solvency_factor %v must be in [0, 1]", c.Engine.SolvencyFactor))
	}
	if c.Engine.DefaultFeeRate < 0 || c.Engine.DefaultFeeRate >= 1 {
		errs = append(errs, fmt.Sprintf("engine: default_fee_rate %v must be in [0, 1)", c.Engine.DefaultFeeRate))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port %d out of range", c.Server.Port))
	}
	if c.Server.RateLimitPerMin < 0 {
		errs = append(errs, "server: rate_limit_per_min must not be negative")
	}

	if c.Sweeper.Enabled {
		if c.Sweeper.Interval.Duration <= 0 {
			errs = append(errs, "sweeper: interval must be positive")
		}
		if c.Sweeper.LockTTL.Duration <= 0 {
			errs = append(errs, "sweeper: lock_ttl must be positive")
		}
		if c.Sweeper.Batch <= 0 {
			errs = append(errs, "sweeper: batch must be positive")
		}
	}

	if c.Audit.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "audit: s3 bucket is required when audit export is enabled")
		}
		if c.Audit.Interval.Duration <= 0 {
			errs = append(errs, "audit: interval must be positive")
		}
		if c.Audit.BatchSize <= 0 {
			errs = append(errs, "audit: batch_size must be positive")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// RedactedConfig returns a copy of cfg with sensitive fields replaced by
// "***" so the active configuration can be logged safely.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Database.DSN)
	redact(&out.Database.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	if cfg.Server.CORSOrigins != nil {
		out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)
	}
	if cfg.Server.APIKeys != nil {
		out.Server.APIKeys = make([]string, len(cfg.Server.APIKeys))
		for i := range cfg.Server.APIKeys {
			out.Server.APIKeys[i] = redacted
		}
	}
	if cfg.Server.AdminAPIKeys != nil {
		out.Server.AdminAPIKeys = make([]string, len(cfg.Server.AdminAPIKeys))
		for i := range cfg.Server.AdminAPIKeys {
			out.Server.AdminAPIKeys[i] = redacted
		}
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redaction placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
