// Package config defines the top-level configuration for BidSphere and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by BIDSPHERE_* environment variables.
type Config struct {
	Profile   ProfileConfig   `toml:"profile"`
	Wallet    WalletConfig    `toml:"wallet"`
	Chain     ChainConfig     `toml:"chain"`
	Backend   BackendConfig   `toml:"backend"`
	PriceFeed PriceFeedConfig `toml:"price_feed"`
	Bid       BidConfig       `toml:"bid"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Archive   ArchiveConfig   `toml:"archive"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// ProfileConfig locates the locally persisted user profile.
type ProfileConfig struct {
	Path   string `toml:"path"`
	UserID string `toml:"user_id"`
}

// WalletConfig describes how the wallet provider is discovered. Endpoints are
// tried in order: primary, then legacy, then each extra endpoint that passes
// the capability probe. An encrypted key file turns the local keystore into a
// provider of its own.
type WalletConfig struct {
	PrimaryEndpoint  string   `toml:"primary_endpoint"`
	LegacyEndpoint   string   `toml:"legacy_endpoint"`
	ExtraEndpoints   []string `toml:"extra_endpoints"`
	EncryptedKeyPath string   `toml:"encrypted_key_path"`
	KeyPassword      string   `toml:"key_password"`
	PrivateKey       string   `toml:"private_key"` // raw hex key, development only
	PollInterval     duration `toml:"poll_interval"`
}

// ChainConfig holds escrow contract and chain parameters.
type ChainConfig struct {
	ChainID       int64  `toml:"chain_id"`
	EscrowAddress string `toml:"escrow_address"`
	GasBufferPct  int    `toml:"gas_buffer_pct"`
}

// BackendConfig holds the BidSphere REST API endpoint consumed by the client.
type BackendConfig struct {
	BaseURL string   `toml:"base_url"`
	APIKey  string   `toml:"api_key"`
	Timeout duration `toml:"timeout"`
}

// PriceFeedConfig holds the external fiat price feed parameters.
type PriceFeedConfig struct {
	URL          string   `toml:"url"`
	FallbackRate float64  `toml:"fallback_rate"`
	CacheTTL     duration `toml:"cache_ttl"`
}

// BidConfig holds the parameters for a single bid submission run.
type BidConfig struct {
	ListingID    string   `toml:"listing_id"`
	Amount       float64  `toml:"amount"`
	PollInterval duration `toml:"poll_interval"`
}

// PostgresConfig holds PostgreSQL connection parameters for server mode.
type PostgresConfig struct {
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

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters. RateLimit is the per-IP request
// budget per RateWindow; zero disables rate limiting.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// ArchiveConfig holds bid/audit archival parameters for server mode.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "1s", "5m").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "1s" or "5m".
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
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Profile: ProfileConfig{
			Path: "profile.json",
		},
		Wallet: WalletConfig{
			PrimaryEndpoint: "http://localhost:8545",
			PollInterval:    duration{2 * time.Second},
		},
		Chain: ChainConfig{
			ChainID:      11155111, // Sepolia
			GasBufferPct: 20,
		},
		Backend: BackendConfig{
			BaseURL: "http://localhost:8000",
			Timeout: duration{30 * time.Second},
		},
		PriceFeed: PriceFeedConfig{
			URL:          "https://api.coingecko.com/api/v3/simple/price",
			FallbackRate: 3000,
			CacheTTL:     duration{30 * time.Second},
		},
		Bid: BidConfig{
			PollInterval: duration{1 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "bidsphere",
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
			Bucket:         "bidsphere-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   50,
			RateWindow:  duration{1 * time.Second},
		},
		Notify: NotifyConfig{
			Events: []string{"bid_succeeded", "bid_partial_failure", "wallet_mismatch", "error"},
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
		},
		Mode:     "monitor",
		LogLevel: "info",
	}
}

// Redacted returns a copy of the Config with secret values masked, safe for
// logging.
func (c Config) Redacted() Config {
	out := c
	out.Wallet.KeyPassword = mask(c.Wallet.KeyPassword)
	out.Wallet.PrivateKey = mask(c.Wallet.PrivateKey)
	out.Backend.APIKey = mask(c.Backend.APIKey)
	out.Postgres.DSN = mask(c.Postgres.DSN)
	out.Postgres.Password = mask(c.Postgres.Password)
	out.Redis.Password = mask(c.Redis.Password)
	out.S3.SecretKey = mask(c.S3.SecretKey)
	out.Server.APIKey = mask(c.Server.APIKey)
	out.Notify.TelegramToken = mask(c.Notify.TelegramToken)
	out.Notify.DiscordWebhookURL = mask(c.Notify.DiscordWebhookURL)
	return out
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"bid":     true,
	"monitor": true,
	"server":  true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: bid, monitor, server, full)", c.Mode))
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Client modes need a discoverable wallet provider and a backend.
	needsWallet := c.Mode == "bid" || c.Mode == "monitor" || c.Mode == "full"
	if needsWallet {
		hasEndpoint := c.Wallet.PrimaryEndpoint != "" || c.Wallet.LegacyEndpoint != "" || len(c.Wallet.ExtraEndpoints) > 0
		hasKeystore := c.Wallet.EncryptedKeyPath != "" || c.Wallet.PrivateKey != ""
		if !hasEndpoint && !hasKeystore {
			errs = append(errs, "wallet: at least one endpoint or a keystore must be configured for mode "+c.Mode)
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
		if c.Backend.BaseURL == "" {
			errs = append(errs, "backend: base_url must not be empty for mode "+c.Mode)
		}
	}

	if c.Mode == "bid" {
		if c.Bid.ListingID == "" {
			errs = append(errs, "bid: listing_id is required for bid mode")
		}
		if c.Bid.Amount <= 0 {
			errs = append(errs, fmt.Sprintf("bid: amount must be > 0, got %v", c.Bid.Amount))
		}
	}
	if c.Bid.PollInterval.Duration <= 0 {
		errs = append(errs, "bid: poll_interval must be positive")
	}

	// Chain — the escrow address is required whenever bids can be submitted.
	if c.Mode == "bid" || c.Mode == "full" {
		if c.Chain.EscrowAddress == "" {
			errs = append(errs, "chain: escrow_address is required for mode "+c.Mode)
		}
	}
	if c.Chain.ChainID <= 0 {
		errs = append(errs, "chain: chain_id must be positive")
	}
	if c.Chain.GasBufferPct < 0 || c.Chain.GasBufferPct > 100 {
		errs = append(errs, fmt.Sprintf("chain: gas_buffer_pct must be 0-100, got %d", c.Chain.GasBufferPct))
	}

	// Price feed
	if c.PriceFeed.URL == "" {
		errs = append(errs, "price_feed: url must not be empty")
	}
	if c.PriceFeed.FallbackRate <= 0 {
		errs = append(errs, "price_feed: fallback_rate must be > 0")
	}

	// Postgres — only for modes that persist.
	if c.Mode == "server" || c.Mode == "full" {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3 — only needed when archival is on.
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	// Server
	if c.Server.Enabled && (c.Mode == "server" || c.Mode == "full") {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
