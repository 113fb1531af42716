package wallet

import (
	"context"
	"log/slog"
	"time"

	appcrypto "github.com/bidsphere/bidsphere/internal/crypto"
)

// probeTimeout bounds how long a single endpoint probe may take during
// discovery.
const probeTimeout = 3 * time.Second

// DiscoveryConfig lists the wallet access points, tried in order: the primary
// endpoint, the legacy endpoint, then each extra endpoint that passes the
// wallet-capability probe. When a local key source is configured, the
// discovered endpoint is used for broadcast only and signing stays local.
type DiscoveryConfig struct {
	PrimaryEndpoint string
	LegacyEndpoint  string
	ExtraEndpoints  []string
	KeyConfig       appcrypto.KeyConfig
	ChainID         int64
	PollInterval    time.Duration
	Confirm         ConfirmFunc
}

// Discovery resolves the wallet provider from the configured access points so
// the rest of the system depends on one interface instead of
// environment-specific endpoints.
type Discovery struct {
	cfg    DiscoveryConfig
	logger *slog.Logger

	// probe is replaceable in tests.
	probe func(ctx context.Context, endpoint string) bool
}

// NewDiscovery creates a Discovery for the given access points.
func NewDiscovery(cfg DiscoveryConfig, logger *slog.Logger) *Discovery {
	d := &Discovery{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "wallet_discovery")),
	}
	d.probe = d.probeWalletCapable
	return d
}

// Discover returns the first provider reachable through the configured access
// points, or nil when none is found. Discovery never prompts.
func (d *Discovery) Discover(ctx context.Context) Provider {
	type candidate struct {
		name     string
		endpoint string
		probed   bool // extras must prove wallet capability before use
	}

	candidates := make([]candidate, 0, 2+len(d.cfg.ExtraEndpoints))
	if d.cfg.PrimaryEndpoint != "" {
		candidates = append(candidates, candidate{name: "rpc:primary", endpoint: d.cfg.PrimaryEndpoint})
	}
	if d.cfg.LegacyEndpoint != "" {
		candidates = append(candidates, candidate{name: "rpc:legacy", endpoint: d.cfg.LegacyEndpoint})
	}
	for _, ep := range d.cfg.ExtraEndpoints {
		candidates = append(candidates, candidate{name: "rpc:extra", endpoint: ep, probed: true})
	}

	for _, c := range candidates {
		if c.probed && !d.probe(ctx, c.endpoint) {
			d.logger.Debug("endpoint failed wallet capability probe", slog.String("endpoint", c.endpoint))
			continue
		}

		p, err := d.dial(ctx, c.name, c.endpoint)
		if err != nil {
			d.logger.Debug("endpoint unreachable",
				slog.String("endpoint", c.endpoint),
				slog.String("error", err.Error()),
			)
			continue
		}

		d.logger.Info("wallet provider discovered",
			slog.String("provider", p.Name()),
			slog.String("endpoint", c.endpoint),
		)
		return p
	}

	d.logger.Warn("no wallet provider discovered")
	return nil
}

// dial builds the concrete provider for an endpoint: a keystore provider when
// a local key source is configured, otherwise a wallet RPC provider.
func (d *Discovery) dial(ctx context.Context, name, endpoint string) (Provider, error) {
	hasKey := d.cfg.KeyConfig.RawPrivateKey != "" || d.cfg.KeyConfig.EncryptedKeyPath != ""
	if hasKey {
		return DialKeystore(ctx, endpoint, d.cfg.ChainID, d.cfg.KeyConfig, d.cfg.Confirm, d.logger)
	}
	return DialRPC(ctx, name, endpoint, d.cfg.PollInterval, d.logger)
}

// probeWalletCapable checks that the endpoint answers a non-interactive
// eth_accounts query, which distinguishes wallet-enabled endpoints from plain
// data nodes.
func (d *Discovery) probeWalletCapable(ctx context.Context, endpoint string) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	p, err := DialRPC(ctx, "probe", endpoint, 0, d.logger)
	if err != nil {
		return false
	}
	defer p.Close()

	_, err = p.Accounts(ctx)
	return err == nil
}
