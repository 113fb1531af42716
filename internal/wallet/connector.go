package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bidsphere/bidsphere/internal/domain"
)

// ProviderSource yields the active wallet provider, or nil when none is
// available. Connector implements it; tests substitute fakes.
type ProviderSource interface {
	Provider(ctx context.Context) Provider
}

// Connector owns provider discovery and the explicit connect flow. It is the
// only component allowed to write the profile's wallet address: set-if-unset
// on connect or account change, and a hard rejection when the user tries to
// connect a different wallet than the one already on file.
type Connector struct {
	discovery *Discovery
	profiles  domain.ProfileStore
	userID    string
	logger    *slog.Logger

	mu       sync.Mutex
	provider Provider
	offWatch func()
}

// NewConnector creates a Connector for the given user profile.
func NewConnector(discovery *Discovery, profiles domain.ProfileStore, userID string, logger *slog.Logger) *Connector {
	return &Connector{
		discovery: discovery,
		profiles:  profiles,
		userID:    userID,
		logger:    logger.With(slog.String("component", "wallet_connector")),
	}
}

// Provider returns the discovered provider, running discovery on first use.
// Returns nil when no provider is reachable; a later call retries discovery.
func (c *Connector) Provider(ctx context.Context) Provider {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.provider != nil {
		return c.provider
	}

	p := c.discovery.Discover(ctx)
	if p == nil {
		return nil
	}
	c.provider = p
	c.offWatch = p.OnAccountsChanged(c.handleAccountsChanged)
	return p
}

// Connect runs the interactive connect flow: request account access, then
// synchronize the profile wallet address. A profile that already carries a
// different wallet is never overwritten; the attempt is rejected so the user
// switches accounts in the wallet instead.
func (c *Connector) Connect(ctx context.Context) (string, error) {
	p := c.Provider(ctx)
	if p == nil {
		return "", domain.ErrNoProviderDetected
	}

	accounts, err := p.RequestAccounts(ctx)
	if err != nil {
		return "", fmt.Errorf("connector: request accounts: %w", err)
	}
	if len(accounts) == 0 {
		return "", domain.ErrNoAccountConnected
	}
	connected := accounts[0].Hex()

	profile, err := c.profiles.Get(ctx, c.userID)
	if err != nil {
		return "", fmt.Errorf("connector: load profile %s: %w", c.userID, err)
	}

	if !profile.HasWallet() {
		profile.WalletAddress = connected
		if err := c.profiles.Save(ctx, profile); err != nil {
			return "", fmt.Errorf("connector: save profile wallet: %w", err)
		}
		c.logger.InfoContext(ctx, "wallet bound to profile",
			slog.String("wallet", domain.TruncateAddress(connected)),
		)
		return connected, nil
	}

	if !profile.WalletMatches(connected) {
		return "", fmt.Errorf(
			"connector: connected wallet %s differs from profile wallet %s: %w",
			domain.TruncateAddress(connected),
			domain.TruncateAddress(profile.WalletAddress),
			domain.ErrWalletMismatch,
		)
	}

	return connected, nil
}

// OnAccountsChanged registers cb with the active provider. Returns a no-op
// unsubscribe when no provider is available.
func (c *Connector) OnAccountsChanged(ctx context.Context, cb func(accounts []common.Address)) (off func()) {
	p := c.Provider(ctx)
	if p == nil {
		return func() {}
	}
	return p.OnAccountsChanged(cb)
}

// handleAccountsChanged synchronizes the profile wallet when the profile has
// none set. An already-bound profile is left alone; changing it requires the
// explicit Connect flow.
func (c *Connector) handleAccountsChanged(accounts []common.Address) {
	if len(accounts) == 0 {
		return
	}
	ctx := context.Background()

	profile, err := c.profiles.Get(ctx, c.userID)
	if err != nil {
		c.logger.Warn("account change: load profile failed", slog.String("error", err.Error()))
		return
	}
	if profile.HasWallet() {
		return
	}

	profile.WalletAddress = accounts[0].Hex()
	if err := c.profiles.Save(ctx, profile); err != nil {
		c.logger.Warn("account change: save profile failed", slog.String("error", err.Error()))
		return
	}
	c.logger.Info("wallet bound to profile on account change",
		slog.String("wallet", domain.TruncateAddress(profile.WalletAddress)),
	)
}

// Close releases the provider and its account watcher.
func (c *Connector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.offWatch != nil {
		c.offWatch()
		c.offWatch = nil
	}
	if c.provider != nil {
		c.provider.Close()
		c.provider = nil
	}
}

// Compile-time interface check.
var _ ProviderSource = (*Connector)(nil)
