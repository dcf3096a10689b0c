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
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 7*24*time.Hour, cfg.Engine.GracePeriod.Duration)
	assert.Equal(t, time.Hour, cfg.Engine.ClaimDelay.Duration)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown mode", func(c *Config) { c.Mode = "worker" }, "unknown mode"},
		{"unknown log level", func(c *Config) { c.LogLevel = "trace" }, "unknown log_level"},
		{"missing redis addr", func(c *Config) { c.Redis.Addr = "" }, "redis: addr"},
		{"bad server port", func(c *Config) { c.Server.Port = 0 }, "server: port"},
		{"zero sweep interval", func(c *Config) { c.Sweep.Interval.Duration = 0 }, "sweep: interval"},
		{"zero grace period", func(c *Config) { c.Engine.GracePeriod.Duration = 0 }, "grace_period"},
		{
			"claim delay at least grace period",
			func(c *Config) {
				c.Engine.GracePeriod.Duration = time.Hour
				c.Engine.ClaimDelay.Duration = time.Hour
			},
			"claim_delay must be shorter",
		},
		{
			"s3 checks only when enabled",
			func(c *Config) {
				c.S3.Enabled = true
				c.S3.Bucket = ""
			},
			"s3: bucket",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateSkipsServerChecksInSweepMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "sweep"
	cfg.Server.Port = 0
	assert.NoError(t, cfg.Validate())
}

func TestLoadTOMLAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "server"
log_level = "debug"

[postgres]
host = "db.internal"
database = "polls"

[engine]
grace_period = "96h"
claim_delay = "2h"

[server]
port = 9000
rate_limit = 60
rate_window = "30s"
`), 0o600))

	t.Setenv("STAKEPOLL_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("STAKEPOLL_SERVER_PORT", "9100")
	t.Setenv("STAKEPOLL_SERVER_AUTH_ENABLED", "false")

	cfg, err := Load(path)
	require.NoError(t, err)

	// File values over defaults.
	assert.Equal(t, "server", cfg.Mode)
	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	assert.Equal(t, 96*time.Hour, cfg.Engine.GracePeriod.Duration)
	assert.Equal(t, 2*time.Hour, cfg.Engine.ClaimDelay.Duration)
	assert.Equal(t, 30*time.Second, cfg.Server.RateWindow.Duration)

	// Env overrides win over the file.
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.False(t, cfg.Server.AuthEnabled)

	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestRedactedConfigMasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "hunter2"
	cfg.Postgres.DSN = "postgres://user:hunter2@db/polls"
	cfg.Redis.Password = "redispass"
	cfg.S3.AccessKey = "AKIA123"
	cfg.S3.SecretKey = "secret"

	red := RedactedConfig(&cfg)
	assert.NotContains(t, red.Postgres.DSN, "hunter2")
	assert.NotEqual(t, "hunter2", red.Postgres.Password)
	assert.NotEqual(t, "redispass", red.Redis.Password)
	assert.NotEqual(t, "secret", red.S3.SecretKey)

	// The original is untouched.
	assert.Equal(t, "hunter2", cfg.Postgres.Password)
}
