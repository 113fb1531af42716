package bid

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bidsphere/bidsphere/internal/domain"
)

// defaultPollInterval is how often the session re-runs the wallet check while
// the panel is open.
const defaultPollInterval = 1 * time.Second

// ListingSource fetches listings from the backend. The platform API client
// implements it.
type ListingSource interface {
	GetListing(ctx context.Context, id string) (domain.Listing, error)
}

// AccountWatcher delivers wallet account-change events. wallet.Connector
// implements it.
type AccountWatcher interface {
	OnAccountsChanged(ctx context.Context, cb func(accounts []common.Address)) (off func())
}

// Snapshot is the session's observable state at a point in time.
type Snapshot struct {
	Listing     domain.Listing
	Wallet      domain.WalletValidationState
	Amount      float64
	AmountState AmountValidation
	Submitting  bool
}

// Session is one open bid panel for a single listing. While open it polls the
// wallet match on a fixed interval and re-validates on account-change events;
// the polling stops on every exit path, including an error during open. A
// session never runs more than one submission at a time.
type Session struct {
	listings     ListingSource
	wallets      WalletChecker
	amounts      *AmountValidator
	submitter    *Submitter
	watcher      AccountWatcher
	listingID    string
	pollInterval time.Duration
	logger       *slog.Logger

	mu          sync.Mutex
	listing     domain.Listing
	walletState domain.WalletValidationState
	amount      float64
	amountState AmountValidation
	amountSet   bool
	submitting  bool
	closed      bool

	// valSeq orders concurrent validations so only the latest result is kept.
	valSeq uint64

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSession creates a Session for listingID. watcher may be nil when the
// provider cannot emit account events.
func NewSession(
	listings ListingSource,
	wallets WalletChecker,
	amounts *AmountValidator,
	submitter *Submitter,
	watcher AccountWatcher,
	listingID string,
	pollInterval time.Duration,
	logger *slog.Logger,
) *Session {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &Session{
		listings:     listings,
		wallets:      wallets,
		amounts:      amounts,
		submitter:    submitter,
		watcher:      watcher,
		listingID:    listingID,
		pollInterval: pollInterval,
		logger: logger.With(
			slog.String("component", "bid_session"),
			slog.String("listing_id", listingID),
		),
	}
}

// Open fetches the listing, runs the initial wallet check, and starts the
// polling loop. A wallet that fails validation keeps the panel closed: the
// caller gets the validation error and no background work is left running.
func (s *Session) Open(ctx context.Context) error {
	listing, err := s.listings.GetListing(ctx, s.listingID)
	if err != nil {
		return fmt.Errorf("session: load listing: %w", err)
	}

	state := s.wallets.CheckWalletMatch(ctx)
	if !state.IsValid {
		return fmt.Errorf("session: %s: %w", state.Message, walletReasonErr(state.Reason))
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrPanelClosed
	}
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("session: panel already open")
	}
	s.listing = listing
	s.walletState = state

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	var offWatch func()
	if s.watcher != nil {
		offWatch = s.watcher.OnAccountsChanged(runCtx, func([]common.Address) {
			s.refresh(runCtx)
		})
	}

	go s.run(runCtx, done, offWatch)

	s.logger.InfoContext(ctx, "bid panel opened",
		slog.Float64("minimum_bid", listing.MinimumBid()),
	)
	return nil
}

// run is the polling loop. The ticker is stopped on every exit path.
func (s *Session) run(ctx context.Context, done chan struct{}, offWatch func()) {
	defer close(done)
	if offWatch != nil {
		defer offWatch()
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refresh(ctx)
		}
	}
}

// refresh recomputes the wallet verdict and, when an amount has been entered,
// re-validates it against the current listing and wallet.
func (s *Session) refresh(ctx context.Context) {
	state := s.wallets.CheckWalletMatch(ctx)

	s.mu.Lock()
	prev := s.walletState
	s.walletState = state
	amount, amountSet := s.amount, s.amountSet
	listing := s.listing
	s.mu.Unlock()

	if prev.Reason != state.Reason {
		s.logger.DebugContext(ctx, "wallet state changed",
			slog.String("from", string(prev.Reason)),
			slog.String("to", string(state.Reason)),
		)
	}

	if amountSet {
		s.validateAmount(ctx, listing, amount)
	}
}

// SetAmount records the user's bid amount and validates it. Rapid successive
// calls may overlap; only the outcome of the latest call is kept.
func (s *Session) SetAmount(ctx context.Context, amount float64) AmountValidation {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return AmountValidation{Message: "panel is closed", Err: domain.ErrPanelClosed}
	}
	s.amount = amount
	s.amountSet = true
	listing := s.listing
	s.mu.Unlock()

	return s.validateAmount(ctx, listing, amount)
}

func (s *Session) validateAmount(ctx context.Context, listing domain.Listing, amount float64) AmountValidation {
	s.mu.Lock()
	s.valSeq++
	seq := s.valSeq
	s.mu.Unlock()

	verdict := s.amounts.Validate(ctx, listing, amount)

	s.mu.Lock()
	if seq == s.valSeq {
		s.amountState = verdict
	}
	s.mu.Unlock()
	return verdict
}

// SubmitBid places the currently entered amount. A second call while a
// submission is in flight fails immediately; after a terminal state the
// listing is refreshed so the panel shows the new price floor.
func (s *Session) SubmitBid(ctx context.Context) Outcome {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Outcome{State: StateFailed, Message: "panel is closed", Err: domain.ErrPanelClosed}
	}
	if s.submitting {
		s.mu.Unlock()
		return Outcome{
			State:   s.submitter.State(),
			Message: "a bid is already being placed, wait for it to finish",
			Err:     domain.ErrSubmissionInFlight,
		}
	}
	if !s.amountSet {
		s.mu.Unlock()
		return Outcome{State: StateFailed, Message: "enter a bid amount first", Err: domain.ErrInvalidBidAmount}
	}
	s.submitting = true
	listing, amount := s.listing, s.amount
	s.mu.Unlock()

	out := s.submitter.Submit(ctx, listing, amount)

	s.mu.Lock()
	s.submitting = false
	s.mu.Unlock()

	if out.State.Terminal() && out.State != StateFailed {
		s.reloadListing(ctx)
	}
	return out
}

// reloadListing refreshes the cached listing after a successful or partially
// successful bid.
func (s *Session) reloadListing(ctx context.Context) {
	listing, err := s.listings.GetListing(ctx, s.listingID)
	if err != nil {
		s.logger.WarnContext(ctx, "listing refresh failed", slog.String("error", err.Error()))
		return
	}
	s.mu.Lock()
	s.listing = listing
	s.mu.Unlock()
}

// Snapshot returns a copy of the session's current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Listing:     s.listing,
		Wallet:      s.walletState,
		Amount:      s.amount,
		AmountState: s.amountState,
		Submitting:  s.submitting,
	}
}

// Close stops the polling loop and waits for it to exit. Closing the panel
// does not abort a submission that has already broadcast its transaction.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	s.logger.Info("bid panel closed")
}
