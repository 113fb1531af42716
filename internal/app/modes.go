package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/bidsphere/bidsphere/internal/bid"
	"github.com/bidsphere/bidsphere/internal/domain"
	"github.com/bidsphere/bidsphere/internal/server"
	"github.com/bidsphere/bidsphere/internal/server/handler"
	"github.com/bidsphere/bidsphere/internal/server/ws"
	"github.com/bidsphere/bidsphere/internal/service"
)

// sweepInterval is how often expired listings are closed in server mode.
const sweepInterval = 1 * time.Minute

// BidMode runs a single bid submission end to end: connect the wallet, open
// the bid panel for the configured listing, validate the amount, submit, and
// report the outcome.
func (a *App) BidMode(ctx context.Context, deps *Dependencies) error {
	if deps.Escrow == nil {
		return fmt.Errorf("app: bid mode requires an escrow contract address")
	}

	// Bind the wallet to the profile on first use. A missing local profile is
	// seeded with the configured user ID so the connect flow has somewhere to
	// record the wallet address.
	profile, err := deps.Profiles.Get(ctx, a.cfg.Profile.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		profile = domain.UserProfile{ID: a.cfg.Profile.UserID}
		if err := deps.Profiles.Save(ctx, profile); err != nil {
			return fmt.Errorf("app: seed profile: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("app: load profile: %w", err)
	}
	if !profile.HasWallet() {
		addr, err := deps.Connector.Connect(ctx)
		if err != nil {
			return fmt.Errorf("app: connect wallet: %w", err)
		}
		a.logger.InfoContext(ctx, "wallet connected",
			slog.String("wallet", domain.TruncateAddress(addr)),
		)
	}

	session := a.newBidSession(deps, a.cfg.Bid.ListingID)
	if err := session.Open(ctx); err != nil {
		return fmt.Errorf("app: open bid panel: %w", err)
	}
	defer session.Close()

	if val := session.SetAmount(ctx, a.cfg.Bid.Amount); !val.Valid {
		if val.Err != nil {
			return fmt.Errorf("app: bid amount rejected: %s: %w", val.Message, val.Err)
		}
		return fmt.Errorf("app: bid amount rejected: %s", val.Message)
	}

	out := session.SubmitBid(ctx)
	switch out.State {
	case bid.StateSucceeded:
		a.logger.InfoContext(ctx, "bid placed",
			slog.String("listing_id", a.cfg.Bid.ListingID),
			slog.Float64("amount", a.cfg.Bid.Amount),
			slog.String("tx_hash", out.TxHash),
		)
		return nil
	case bid.StatePartialFailure:
		// The payment is on chain; only the backend record is missing. Never
		// report this as a plain failure.
		a.logger.WarnContext(ctx, "bid paid on chain but not recorded, keep the transaction hash for reconciliation",
			slog.String("listing_id", a.cfg.Bid.ListingID),
			slog.String("tx_hash", out.TxHash),
		)
		if out.Err != nil {
			return fmt.Errorf("app: bid recorded on chain only (tx %s): %w", out.TxHash, out.Err)
		}
		return fmt.Errorf("app: bid recorded on chain only (tx %s)", out.TxHash)
	default:
		if out.Err != nil {
			return fmt.Errorf("app: bid failed: %s: %w", out.Message, out.Err)
		}
		return fmt.Errorf("app: bid failed: %s", out.Message)
	}
}

// newBidSession assembles the validation and submission pipeline for one
// listing.
func (a *App) newBidSession(deps *Dependencies, listingID string) *bid.Session {
	amounts := bid.NewAmountValidator(deps.Validator, deps.Connector, deps.Oracle, a.logger)
	submitter := bid.NewSubmitter(
		deps.Validator,
		amounts,
		deps.Connector,
		deps.Oracle,
		deps.Escrow,
		deps.Backend,
		deps.Notifier,
		a.cfg.Profile.UserID,
		a.logger,
	)
	return bid.NewSession(
		deps.Backend,
		deps.Validator,
		amounts,
		submitter,
		deps.Connector,
		listingID,
		a.cfg.Bid.PollInterval.Duration,
		a.logger,
	)
}

// MonitorMode polls the wallet validation state and logs every transition
// until the context is cancelled. It is the headless stand-in for an open
// panel without a listing: provider presence, account, and profile match are
// re-checked on each tick.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	interval := a.cfg.Bid.PollInterval.Duration
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last domain.WalletValidationState
	first := true

	check := func() {
		state := deps.Validator.CheckWalletMatch(ctx)
		if !first && state == last {
			return
		}
		first = false
		last = state

		attrs := []any{
			slog.Bool("valid", state.IsValid),
			slog.String("reason", string(state.Reason)),
		}
		if state.ConnectedWallet != "" {
			attrs = append(attrs, slog.String("wallet", domain.TruncateAddress(state.ConnectedWallet)))
		}
		if state.IsValid {
			p := deps.Connector.Provider(ctx)
			if p != nil {
				balance := deps.Oracle.FetchBalance(ctx, p, common.HexToAddress(state.ConnectedWallet))
				attrs = append(attrs,
					slog.Float64("balance_eth", balance.ETH),
					slog.Float64("balance_usd", balance.USD),
				)
			}
			a.logger.InfoContext(ctx, "wallet state", attrs...)
			return
		}
		a.logger.WarnContext(ctx, "wallet state", attrs...)
		if state.Reason == domain.ReasonWalletMismatch {
			_ = deps.Notifier.Notify(ctx, "wallet_mismatch", "Wallet mismatch", state.Message)
		}
	}

	check()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			check()
		}
	}
}

// ServerMode runs the marketplace backend: REST API, WebSocket hub, the
// expired-listing sweeper, and the optional archival loop.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	logger := a.logger

	listingSvc := service.NewListingService(deps.ListingStore, deps.AuditStore, deps.SignalBus, logger)
	bidSvc := service.NewBidService(deps.BidStore, deps.ListingStore, deps.LockManager, deps.AuditStore, deps.SignalBus, logger)
	userSvc := service.NewUserService(deps.ServerProfiles, deps.AuditStore, logger)

	pingers := map[string]handler.Pinger{}
	if deps.PG != nil {
		pingers["postgres"] = deps.PG.Pool()
	}
	if deps.Redis != nil {
		pingers["redis"] = deps.Redis
	}

	hub := ws.NewHub(deps.SignalBus, logger)

	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKey:      a.cfg.Server.APIKey,
			RateLimit:   a.cfg.Server.RateLimit,
			RateWindow:  a.cfg.Server.RateWindow.Duration,
		},
		server.Handlers{
			Health:   handler.NewHealthHandler(pingers),
			Listings: handler.NewListingHandler(listingSvc),
			Bids:     handler.NewBidHandler(bidSvc),
			Users:    handler.NewUserHandler(userSvc),
		},
		hub,
		deps.RateLimiter,
		logger,
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := hub.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(srv.Start)

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return a.runListingSweeper(gctx, listingSvc)
	})

	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		g.Go(func() error {
			return a.runArchiver(gctx, deps.Archiver)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// FullMode runs the server and the wallet monitor in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.ServerMode(gctx, deps) })
	g.Go(func() error { return a.MonitorMode(gctx, deps) })
	return g.Wait()
}

// runListingSweeper closes expired listings on a fixed interval.
func (a *App) runListingSweeper(ctx context.Context, listings *service.ListingService) error {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			closed, err := listings.CloseExpired(ctx)
			if err != nil {
				a.logger.ErrorContext(ctx, "listing sweep failed",
					slog.String("error", err.Error()),
				)
				continue
			}
			if closed > 0 {
				a.logger.InfoContext(ctx, "expired listings closed",
					slog.Int("count", closed),
				)
			}
		}
	}
}

// runArchiver exports bids and audit entries older than the retention window
// to blob storage on the configured interval.
func (a *App) runArchiver(ctx context.Context, archiver domain.Archiver) error {
	interval := a.cfg.Archive.Interval.Duration
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			before := time.Now().UTC().AddDate(0, 0, -a.cfg.Archive.RetentionDays)

			key, count, err := archiver.ArchiveBids(ctx, before)
			if err != nil {
				a.logger.ErrorContext(ctx, "bid archive failed", slog.String("error", err.Error()))
			} else if count > 0 {
				a.logger.InfoContext(ctx, "bids archived",
					slog.Int("count", count),
					slog.String("key", key),
				)
			}

			key, count, err = archiver.ArchiveAudit(ctx, before)
			if err != nil {
				a.logger.ErrorContext(ctx, "audit archive failed", slog.String("error", err.Error()))
			} else if count > 0 {
				a.logger.InfoContext(ctx, "audit entries archived",
					slog.Int("count", count),
					slog.String("key", key),
				)
			}
		}
	}
}
