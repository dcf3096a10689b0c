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
// built-in defaults, applies STAKEPOLL_* environment variable overrides, and
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

// applyEnvOverrides reads well-known STAKEPOLL_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "STAKEPOLL_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "STAKEPOLL_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "STAKEPOLL_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "STAKEPOLL_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "STAKEPOLL_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "STAKEPOLL_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "STAKEPOLL_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "STAKEPOLL_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "STAKEPOLL_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "STAKEPOLL_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "STAKEPOLL_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "STAKEPOLL_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "STAKEPOLL_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "STAKEPOLL_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "STAKEPOLL_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "STAKEPOLL_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "STAKEPOLL_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "STAKEPOLL_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "STAKEPOLL_S3_REGION")
	setStr(&cfg.S3.Bucket, "STAKEPOLL_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "STAKEPOLL_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "STAKEPOLL_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "STAKEPOLL_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "STAKEPOLL_S3_FORCE_PATH_STYLE")

	// ── Engine ──
	setDuration(&cfg.Engine.GracePeriod, "STAKEPOLL_ENGINE_GRACE_PERIOD")
	setDuration(&cfg.Engine.ClaimDelay, "STAKEPOLL_ENGINE_CLAIM_DELAY")

	// ── Server ──
	setInt(&cfg.Server.Port, "STAKEPOLL_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "STAKEPOLL_SERVER_CORS_ORIGINS")
	setBool(&cfg.Server.AuthEnabled, "STAKEPOLL_SERVER_AUTH_ENABLED")
	setInt(&cfg.Server.RateLimit, "STAKEPOLL_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "STAKEPOLL_SERVER_RATE_WINDOW")

	// ── Sweep ──
	setDuration(&cfg.Sweep.Interval, "STAKEPOLL_SWEEP_INTERVAL")

	// ── Top-level ──
	setStr(&cfg.Mode, "STAKEPOLL_MODE")
	setStr(&cfg.LogLevel, "STAKEPOLL_LOG_LEVEL")
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
