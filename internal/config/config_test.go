package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	require.Equal(t, "monitor", cfg.Mode)
	require.Equal(t, time.Second, cfg.Bid.PollInterval.Duration)
}

func TestValidateBidMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "bid"

	// Bid mode needs a listing, an amount, and an escrow contract.
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "listing_id")
	require.Contains(t, err.Error(), "amount")
	require.Contains(t, err.Error(), "escrow_address")

	cfg.Bid.ListingID = "a3bb189e-8bf9-3888-9912-ace4e6543002"
	cfg.Bid.Amount = 150
	cfg.Chain.EscrowAddress = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	require.NoError(t, cfg.Validate())
}

func TestValidateServerMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "server"
	require.NoError(t, cfg.Validate())

	cfg.Postgres.DSN = ""
	cfg.Postgres.Host = ""
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "postgres: host")

	// A DSN replaces the discrete connection fields.
	cfg.Postgres.DSN = "postgres://u:p@db:5432/bidsphere"
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "turbo"
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown mode")
}

func TestValidateWalletRequirements(t *testing.T) {
	cfg := Defaults()
	cfg.Wallet.PrimaryEndpoint = ""
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "at least one endpoint or a keystore")

	// A raw private key counts as a keystore.
	cfg.Wallet.PrivateKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	require.NoError(t, cfg.Validate())

	cfg.Wallet.EncryptedKeyPath = "key.json"
	err = cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "key_password")
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "bid"
log_level = "debug"

[bid]
listing_id = "a3bb189e-8bf9-3888-9912-ace4e6543002"
amount = 150.0
poll_interval = "500ms"

[chain]
escrow_address = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "bid", cfg.Mode)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 150.0, cfg.Bid.Amount)
	require.Equal(t, 500*time.Millisecond, cfg.Bid.PollInterval.Duration)

	// Untouched sections keep their defaults.
	require.Equal(t, "http://localhost:8545", cfg.Wallet.PrimaryEndpoint)
	require.Equal(t, 3000.0, cfg.PriceFeed.FallbackRate)
	require.NoError(t, cfg.Validate())
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`mode = "monitor"`), 0o600))

	t.Setenv("BIDSPHERE_BACKEND_API_KEY", "from-env")
	t.Setenv("BIDSPHERE_BID_POLL_INTERVAL", "250ms")
	t.Setenv("BIDSPHERE_SERVER_RATE_LIMIT", "100")
	t.Setenv("BIDSPHERE_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.Backend.APIKey)
	require.Equal(t, 250*time.Millisecond, cfg.Bid.PollInterval.Duration)
	require.Equal(t, 100, cfg.Server.RateLimit)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestRedactedMasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	cfg.Backend.APIKey = "backend-key"
	cfg.Postgres.Password = "pg-pass"
	cfg.Redis.Password = ""

	red := cfg.Redacted()
	require.Equal(t, "***", red.Wallet.PrivateKey)
	require.Equal(t, "***", red.Backend.APIKey)
	require.Equal(t, "***", red.Postgres.Password)
	require.Empty(t, red.Redis.Password)

	// Non-secret fields pass through untouched.
	require.Equal(t, cfg.Backend.BaseURL, red.Backend.BaseURL)
	require.Equal(t, cfg.Mode, red.Mode)

	// The original is not mutated.
	require.Equal(t, "backend-key", cfg.Backend.APIKey)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}
