package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/bidsphere/bidsphere/internal/blob/s3"
	"github.com/bidsphere/bidsphere/internal/cache/redis"
	"github.com/bidsphere/bidsphere/internal/chain"
	"github.com/bidsphere/bidsphere/internal/config"
	appcrypto "github.com/bidsphere/bidsphere/internal/crypto"
	"github.com/bidsphere/bidsphere/internal/domain"
	"github.com/bidsphere/bidsphere/internal/funds"
	"github.com/bidsphere/bidsphere/internal/notify"
	"github.com/bidsphere/bidsphere/internal/platform/bidsphere"
	"github.com/bidsphere/bidsphere/internal/pricefeed"
	"github.com/bidsphere/bidsphere/internal/store/localfile"
	"github.com/bidsphere/bidsphere/internal/store/postgres"
	"github.com/bidsphere/bidsphere/internal/wallet"
)

// Dependencies bundles every dependency the application modes need. Client
// fields are set for modes that talk to a wallet (bid, monitor, full); server
// fields for modes that persist (server, full). Wire constructs it and the
// returned cleanup function tears it down.
type Dependencies struct {
	// Client side
	Profiles  domain.ProfileStore
	Backend   *bidsphere.Client
	Connector *wallet.Connector
	Validator *wallet.Validator
	Oracle    *funds.Oracle
	Escrow    *chain.EscrowClient

	// Server side
	ListingStore   domain.ListingStore
	BidStore       domain.BidStore
	ServerProfiles domain.ProfileStore
	AuditStore     domain.AuditStore

	RateCache   domain.RateCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	Notifier *notify.Notifier

	// Concrete clients kept for health checks.
	PG    *postgres.Client
	Redis *redis.Client
}

// needsWallet returns true for modes that drive a wallet provider.
func needsWallet(mode string) bool {
	switch mode {
	case "bid", "monitor", "full":
		return true
	default:
		return false
	}
}

// needsPostgres returns true for modes that require a database connection.
func needsPostgres(mode string) bool {
	switch mode {
	case "server", "full":
		return true
	default:
		return false
	}
}

// needsRedis matches needsPostgres: the lock manager, signal bus, and rate
// limiter only matter where bids are recorded.
func needsRedis(mode string) bool {
	return needsPostgres(mode)
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL (only for modes that persist) ---
	if needsPostgres(cfg.Mode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.PG = pgClient
		deps.ListingStore = postgres.NewListingStore(pool)
		deps.BidStore = postgres.NewBidStore(pool)
		deps.ServerProfiles = postgres.NewProfileStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
	}

	// --- Redis ---
	if needsRedis(cfg.Mode) {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Redis = redisClient
		deps.RateCache = redis.NewRateCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
	}

	// --- S3 blob storage (only when archival is on) ---
	if cfg.Archive.Enabled && needsPostgres(cfg.Mode) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(
			deps.BlobWriter,
			postgres.NewBidStore(deps.PG.Pool()),
			postgres.NewAuditStore(deps.PG.Pool()),
			deps.AuditStore,
		)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Client side: profile, backend API, wallet, price oracle ---
	if needsWallet(cfg.Mode) {
		deps.Profiles = localfile.NewProfileStore(cfg.Profile.Path)
		deps.Backend = bidsphere.NewClient(
			cfg.Backend.BaseURL,
			cfg.Backend.APIKey,
			cfg.Backend.Timeout.Duration,
		)

		discovery := wallet.NewDiscovery(wallet.DiscoveryConfig{
			PrimaryEndpoint: cfg.Wallet.PrimaryEndpoint,
			LegacyEndpoint:  cfg.Wallet.LegacyEndpoint,
			ExtraEndpoints:  cfg.Wallet.ExtraEndpoints,
			KeyConfig: appcrypto.KeyConfig{
				RawPrivateKey:    cfg.Wallet.PrivateKey,
				EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
				KeyPassword:      cfg.Wallet.KeyPassword,
			},
			ChainID:      cfg.Chain.ChainID,
			PollInterval: cfg.Wallet.PollInterval.Duration,
		}, logger)

		deps.Connector = wallet.NewConnector(discovery, deps.Profiles, cfg.Profile.UserID, logger)
		closers = append(closers, deps.Connector.Close)
		deps.Validator = wallet.NewValidator(deps.Connector, deps.Profiles, cfg.Profile.UserID, logger)

		var feed pricefeed.RateSource = pricefeed.NewClient(cfg.PriceFeed.URL)
		if deps.RateCache != nil {
			feed = pricefeed.NewCachedSource(feed, deps.RateCache, cfg.PriceFeed.CacheTTL.Duration, logger)
		}
		deps.Oracle = funds.NewOracle(feed, cfg.PriceFeed.FallbackRate, logger)

		if cfg.Chain.EscrowAddress != "" {
			escrow, err := chain.NewEscrowClient(cfg.Chain.EscrowAddress, cfg.Chain.GasBufferPct, logger)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: escrow client: %w", err)
			}
			deps.Escrow = escrow
		}
	}

	return deps, cleanup, nil
}
