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
// built-in defaults, applies BIDSPHERE_* environment variable overrides, and
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

// applyEnvOverrides reads well-known BIDSPHERE_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Profile ──
	setStr(&cfg.Profile.Path, "BIDSPHERE_PROFILE_PATH")
	setStr(&cfg.Profile.UserID, "BIDSPHERE_PROFILE_USER_ID")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrimaryEndpoint, "BIDSPHERE_WALLET_PRIMARY_ENDPOINT")
	setStr(&cfg.Wallet.LegacyEndpoint, "BIDSPHERE_WALLET_LEGACY_ENDPOINT")
	setStringSlice(&cfg.Wallet.ExtraEndpoints, "BIDSPHERE_WALLET_EXTRA_ENDPOINTS")
	setStr(&cfg.Wallet.EncryptedKeyPath, "BIDSPHERE_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "BIDSPHERE_WALLET_KEY_PASSWORD")
	setStr(&cfg.Wallet.PrivateKey, "BIDSPHERE_WALLET_PRIVATE_KEY")
	setDuration(&cfg.Wallet.PollInterval, "BIDSPHERE_WALLET_POLL_INTERVAL")

	// ── Chain ──
	setInt64(&cfg.Chain.ChainID, "BIDSPHERE_CHAIN_ID")
	setStr(&cfg.Chain.EscrowAddress, "BIDSPHERE_CHAIN_ESCROW_ADDRESS")
	setInt(&cfg.Chain.GasBufferPct, "BIDSPHERE_CHAIN_GAS_BUFFER_PCT")

	// ── Backend ──
	setStr(&cfg.Backend.BaseURL, "BIDSPHERE_BACKEND_BASE_URL")
	setStr(&cfg.Backend.APIKey, "BIDSPHERE_BACKEND_API_KEY")
	setDuration(&cfg.Backend.Timeout, "BIDSPHERE_BACKEND_TIMEOUT")

	// ── Price feed ──
	setStr(&cfg.PriceFeed.URL, "BIDSPHERE_PRICE_FEED_URL")
	setFloat64(&cfg.PriceFeed.FallbackRate, "BIDSPHERE_PRICE_FEED_FALLBACK_RATE")
	setDuration(&cfg.PriceFeed.CacheTTL, "BIDSPHERE_PRICE_FEED_CACHE_TTL")

	// ── Bid ──
	setStr(&cfg.Bid.ListingID, "BIDSPHERE_BID_LISTING_ID")
	setFloat64(&cfg.Bid.Amount, "BIDSPHERE_BID_AMOUNT")
	setDuration(&cfg.Bid.PollInterval, "BIDSPHERE_BID_POLL_INTERVAL")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "BIDSPHERE_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "BIDSPHERE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "BIDSPHERE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "BIDSPHERE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "BIDSPHERE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "BIDSPHERE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "BIDSPHERE_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "BIDSPHERE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "BIDSPHERE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "BIDSPHERE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "BIDSPHERE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "BIDSPHERE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "BIDSPHERE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "BIDSPHERE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "BIDSPHERE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "BIDSPHERE_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "BIDSPHERE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "BIDSPHERE_S3_REGION")
	setStr(&cfg.S3.Bucket, "BIDSPHERE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "BIDSPHERE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "BIDSPHERE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "BIDSPHERE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "BIDSPHERE_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "BIDSPHERE_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "BIDSPHERE_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "BIDSPHERE_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "BIDSPHERE_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "BIDSPHERE_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "BIDSPHERE_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "BIDSPHERE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "BIDSPHERE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "BIDSPHERE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "BIDSPHERE_NOTIFY_EVENTS")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "BIDSPHERE_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "BIDSPHERE_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "BIDSPHERE_ARCHIVE_INTERVAL")

	// ── Top-level ──
	setStr(&cfg.Mode, "BIDSPHERE_MODE")
	setStr(&cfg.LogLevel, "BIDSPHERE_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
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
