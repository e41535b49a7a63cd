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
// built-in defaults, applies FUTURIFY_* environment variable overrides, and
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

// applyEnvOverrides reads well-known FUTURIFY_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Engine ──
	setUint64(&cfg.Engine.DenominationFactor, "FUTURIFY_ENGINE_DENOMINATION_FACTOR")
	setStr(&cfg.Engine.InputKeyHex, "FUTURIFY_ENGINE_INPUT_KEY_HEX")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "FUTURIFY_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "FUTURIFY_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "FUTURIFY_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "FUTURIFY_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "FUTURIFY_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "FUTURIFY_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "FUTURIFY_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "FUTURIFY_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "FUTURIFY_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "FUTURIFY_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "FUTURIFY_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "FUTURIFY_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "FUTURIFY_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "FUTURIFY_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "FUTURIFY_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "FUTURIFY_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "FUTURIFY_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "FUTURIFY_S3_REGION")
	setStr(&cfg.S3.Bucket, "FUTURIFY_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "FUTURIFY_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "FUTURIFY_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "FUTURIFY_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "FUTURIFY_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "FUTURIFY_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "FUTURIFY_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.RetentionDays, "FUTURIFY_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Archive.Prefix, "FUTURIFY_ARCHIVE_PREFIX")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "FUTURIFY_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "FUTURIFY_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "FUTURIFY_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "FUTURIFY_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "FUTURIFY_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "FUTURIFY_SERVER_RATE_LIMIT_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "FUTURIFY_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "FUTURIFY_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "FUTURIFY_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "FUTURIFY_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "FUTURIFY_MODE")
	setStr(&cfg.LogLevel, "FUTURIFY_LOG_LEVEL")
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

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
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
