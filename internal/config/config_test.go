package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, 0.8, cfg.Engine.WithdrawRatioCap)
	assert.Equal(t, 0.5, cfg.Engine.SolvencyFactor)
	assert.Equal(t, 0.02, cfg.Engine.DefaultFeeRate)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.Sweeper.Enabled)
	assert.False(t, cfg.Audit.Enabled)
}

func TestLoadTOMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	const data = `
log_level = "debug"

[server]
port = 9100
api_keys = ["k1", "k2"]
read_timeout = "5s"

[engine]
default_fee_rate = 0.01

[sweeper]
interval = "30s"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Server.APIKeys)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout.Duration)
	assert.Equal(t, 0.01, cfg.Engine.DefaultFeeRate)
	assert.Equal(t, 30*time.Second, cfg.Sweeper.Interval.Duration)

	// Untouched sections keep their defaults.
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 0.8, cfg.Engine.WithdrawRatioCap)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VENUE_DATABASE_DSN", "postgres://u:p@db:5432/venue")
	t.Setenv("VENUE_REDIS_ADDR", "redis:6380")
	t.Setenv("VENUE_SERVER_PORT", "8443")
	t.Setenv("VENUE_SERVER_API_KEYS", "a, b ,c")
	t.Setenv("VENUE_ENGINE_WITHDRAW_RATIO_CAP", "0.5")
	t.Setenv("VENUE_SWEEPER_ENABLED", "false")
	t.Setenv("VENUE_SWEEPER_INTERVAL", "90s")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	assert.Equal(t, "postgres://u:p@db:5432/venue", cfg.Database.DSN)
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
	assert.Equal(t, 8443, cfg.Server.Port)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Server.APIKeys)
	assert.Equal(t, 0.5, cfg.Engine.WithdrawRatioCap)
	assert.False(t, cfg.Sweeper.Enabled)
	assert.Equal(t, 90*time.Second, cfg.Sweeper.Interval.Duration)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.LogLevel = "verbose"
	cfg.Server.Port = 0
	cfg.Engine.WithdrawRatioCap = 1.5
	cfg.Redis.Addr = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_level")
	assert.Contains(t, err.Error(), "port")
	assert.Contains(t, err.Error(), "withdraw_ratio_cap")
	assert.Contains(t, err.Error(), "redis")
}

func TestValidateAuditRequiresBucket(t *testing.T) {
	cfg := Defaults()
	cfg.Audit.Enabled = true
	cfg.S3.Bucket = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket")
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Database.Password = "secret"
	cfg.Database.DSN = "postgres://u:secret@db/venue"
	cfg.Redis.Password = "hunter2"
	cfg.S3.SecretKey = "aws-secret"
	cfg.Server.APIKeys = []string{"key-1"}

	out := RedactedConfig(&cfg)

	assert.Equal(t, "***", out.Database.Password)
	assert.Equal(t, "***", out.Database.DSN)
	assert.Equal(t, "***", out.Redis.Password)
	assert.Equal(t, "***", out.S3.SecretKey)
	assert.Equal(t, []string{"***"}, out.Server.APIKeys)

	// The original is untouched.
	assert.Equal(t, "secret", cfg.Database.Password)
	assert.Equal(t, []string{"key-1"}, cfg.Server.APIKeys)
}
