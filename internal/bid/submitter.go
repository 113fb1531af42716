package bid

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/bidsphere/bidsphere/internal/domain"
	"github.com/bidsphere/bidsphere/internal/funds"
	"github.com/bidsphere/bidsphere/internal/platform/bidsphere"
	"github.com/bidsphere/bidsphere/internal/wallet"
)

// State is a phase of the bid submission pipeline.
type State string

const (
	StateIdle              State = "idle"
	StateWalletChecking    State = "wallet_checking"
	StateFundsChecking     State = "funds_checking"
	StateAwaitingSignature State = "awaiting_signature"
	StateBroadcasting      State = "broadcasting"
	StateConfirming        State = "confirming_on_chain"
	StateRecording         State = "recording_bid"
	StateSucceeded         State = "succeeded"
	StatePartialFailure    State = "partial_failure"
	StateFailed            State = "failed"
)

// Terminal reports whether the pipeline has finished in this state.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StatePartialFailure || s == StateFailed
}

// Outcome is the result of one submission attempt. Confirmation is set
// whenever the chain transaction was mined, including the partial-failure
// case; TxHash is set as soon as the transaction is broadcast.
type Outcome struct {
	State        State
	TxHash       string
	Confirmation *domain.BidConfirmation
	Message      string
	Err          error
}

// EscrowSubmitter broadcasts the escrow payment and waits for it to mine.
// chain.EscrowClient implements it.
type EscrowSubmitter interface {
	SubmitBid(ctx context.Context, p wallet.Provider, from common.Address, listingID string, valueWei *big.Int) (common.Hash, error)
	WaitMined(ctx context.Context, p wallet.Provider, hash common.Hash) (*types.Receipt, error)
}

// Recorder persists a mined bid in the backend. The platform API client
// implements it.
type Recorder interface {
	CreateBid(ctx context.Context, req bidsphere.CreateBidRequest) (domain.Bid, error)
}

// Notifier pushes submission events to external channels. May be nil.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// confirmTimeout bounds how long a broadcast transaction is watched after the
// caller's context is detached.
const confirmTimeout = 5 * time.Minute

// Submitter drives a bid from validation through on-chain payment to backend
// recording. States progress monotonically and every run ends in exactly one
// terminal state. The wallet identity is verified three times along the way
// (poll, amount validation, immediately before signing) because the connected
// account can change between any two steps.
//
// Once a transaction hash exists the submission is never reported as a plain
// failure: an unrecorded or unconfirmed payment surfaces as a partial failure
// that preserves the hash for reconciliation.
type Submitter struct {
	wallets   WalletChecker
	amounts   *AmountValidator
	providers wallet.ProviderSource
	oracle    BalanceOracle
	escrow    EscrowSubmitter
	recorder  Recorder
	notifier  Notifier
	userID    string
	logger    *slog.Logger

	mu       sync.Mutex
	state    State
	inFlight bool
	onState  func(State)
}

// NewSubmitter creates a Submitter. notifier may be nil.
func NewSubmitter(
	wallets WalletChecker,
	amounts *AmountValidator,
	providers wallet.ProviderSource,
	oracle BalanceOracle,
	escrow EscrowSubmitter,
	recorder Recorder,
	notifier Notifier,
	userID string,
	logger *slog.Logger,
) *Submitter {
	return &Submitter{
		wallets:   wallets,
		amounts:   amounts,
		providers: providers,
		oracle:    oracle,
		escrow:    escrow,
		recorder:  recorder,
		notifier:  notifier,
		userID:    userID,
		state:     StateIdle,
		logger:    logger.With(slog.String("component", "bid_submitter")),
	}
}

// State returns the current pipeline state.
func (s *Submitter) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OnStateChange registers an observer invoked on every state transition.
func (s *Submitter) OnStateChange(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onState = fn
}

func (s *Submitter) setState(next State) {
	s.mu.Lock()
	s.state = next
	fn := s.onState
	s.mu.Unlock()
	if fn != nil {
		fn(next)
	}
}

// Submit runs the full submission pipeline for amount on listing. Only one
// submission may run at a time; concurrent calls fail immediately with
// domain.ErrSubmissionInFlight.
func (s *Submitter) Submit(ctx context.Context, listing domain.Listing, amount float64) Outcome {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return Outcome{
			State:   s.state,
			Message: "a bid is already being placed, wait for it to finish",
			Err:     domain.ErrSubmissionInFlight,
		}
	}
	s.inFlight = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight = false
		s.mu.Unlock()
	}()

	out := s.run(ctx, listing, amount)
	s.setState(out.State)
	s.logOutcome(ctx, listing.ID, amount, out)
	return out
}

func (s *Submitter) run(ctx context.Context, listing domain.Listing, amount float64) Outcome {
	s.setState(StateWalletChecking)
	state := s.wallets.CheckWalletMatch(ctx)
	if !state.IsValid {
		return Outcome{
			State:   StateFailed,
			Message: state.Message,
			Err:     walletReasonErr(state.Reason),
		}
	}
	from := common.HexToAddress(state.ConnectedWallet)

	s.setState(StateFundsChecking)
	verdict := s.amounts.Validate(ctx, listing, amount)
	if !verdict.Valid {
		return Outcome{
			State:   StateFailed,
			Message: verdict.Message,
			Err:     verdict.Err,
		}
	}

	s.setState(StateAwaitingSignature)
	p := s.providers.Provider(ctx)
	if p == nil {
		return Outcome{
			State:   StateFailed,
			Message: "wallet provider disappeared, reconnect and try again",
			Err:     domain.ErrNoProviderDetected,
		}
	}
	// Final identity check right before the signature prompt.
	accounts, err := p.Accounts(ctx)
	if err != nil || len(accounts) == 0 {
		return Outcome{
			State:   StateFailed,
			Message: "wallet disconnected before signing, reconnect and try again",
			Err:     domain.ErrNoAccountConnected,
		}
	}
	if !domain.AddressesEqual(accounts[0].Hex(), state.ExpectedWallet) {
		return Outcome{
			State: StateFailed,
			Message: fmt.Sprintf(
				"wallet switched to %s before signing, switch back to %s",
				domain.TruncateAddress(accounts[0].Hex()),
				domain.TruncateAddress(state.ExpectedWallet),
			),
			Err: domain.ErrWalletMismatch,
		}
	}

	rate := s.oracle.Rate(ctx)
	valueWei := funds.UsdToWei(amount, rate)

	hash, err := s.escrow.SubmitBid(ctx, p, from, listing.ID, valueWei)
	if err != nil {
		if wallet.IsUserRejected(err) {
			return Outcome{
				State:   StateFailed,
				Message: "you declined the signature request, the bid was not placed",
				Err:     err,
			}
		}
		return Outcome{
			State:   StateFailed,
			Message: "could not submit the payment, no funds were moved",
			Err:     err,
		}
	}

	s.setState(StateBroadcasting)

	// Past this point the transaction is in the network. Detach from the
	// caller's context so closing the panel cannot abandon a live payment.
	tail, cancel := context.WithTimeout(context.WithoutCancel(ctx), confirmTimeout)
	defer cancel()

	s.setState(StateConfirming)
	receipt, err := s.escrow.WaitMined(tail, p, hash)
	if err != nil {
		return Outcome{
			State:  StatePartialFailure,
			TxHash: hash.Hex(),
			Confirmation: &domain.BidConfirmation{
				BidPrice:        amount,
				BidDate:         time.Now().UTC(),
				TransactionHash: hash.Hex(),
				Error:           true,
			},
			Message: fmt.Sprintf(
				"transaction %s was sent but its status is unknown, check it before bidding again",
				domain.TruncateAddress(hash.Hex()),
			),
			Err: fmt.Errorf("submitter: confirm %s: %w", hash.Hex(), err),
		}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return Outcome{
			State:  StateFailed,
			TxHash: hash.Hex(),
			Message: fmt.Sprintf(
				"transaction %s was reverted on chain, the bid was not placed",
				domain.TruncateAddress(hash.Hex()),
			),
			Err: fmt.Errorf("submitter: tx %s reverted: %w", hash.Hex(), domain.ErrOnChainSubmission),
		}
	}

	s.setState(StateRecording)
	confirmation := domain.BidConfirmation{
		BidPrice:        amount,
		BidDate:         time.Now().UTC(),
		TransactionHash: hash.Hex(),
	}

	_, err = s.recorder.CreateBid(tail, bidsphere.CreateBidRequest{
		ListingID:       listing.ID,
		UserID:          s.userID,
		Amount:          int64(math.Floor(amount)),
		TransactionHash: hash.Hex(),
	})
	if err != nil {
		confirmation.Error = true
		s.notify(tail, "bid_partial_failure", "Bid needs reconciliation", fmt.Sprintf(
			"bid of $%.2f on listing %s paid in tx %s but not recorded, reconcile manually",
			amount, listing.ID, hash.Hex(),
		))
		return Outcome{
			State:        StatePartialFailure,
			TxHash:       hash.Hex(),
			Confirmation: &confirmation,
			Message: fmt.Sprintf(
				"your payment went through (tx %s) but the bid could not be recorded, keep the hash and contact support",
				domain.TruncateAddress(hash.Hex()),
			),
			Err: err,
		}
	}

	s.notify(tail, "bid_succeeded", "Bid placed", fmt.Sprintf(
		"bid of $%.2f placed on listing %s in tx %s",
		amount, listing.ID, hash.Hex(),
	))
	return Outcome{
		State:        StateSucceeded,
		TxHash:       hash.Hex(),
		Confirmation: &confirmation,
		Message:      fmt.Sprintf("bid of $%.2f placed", amount),
	}
}

func (s *Submitter) notify(ctx context.Context, event, title, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, event, title, message); err != nil {
		s.logger.WarnContext(ctx, "notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Submitter) logOutcome(ctx context.Context, listingID string, amount float64, out Outcome) {
	attrs := []any{
		slog.String("listing_id", listingID),
		slog.Float64("amount", amount),
		slog.String("state", string(out.State)),
	}
	if out.TxHash != "" {
		attrs = append(attrs, slog.String("tx", out.TxHash))
	}
	if out.Err != nil {
		attrs = append(attrs, slog.String("error", out.Err.Error()))
		s.logger.WarnContext(ctx, "bid submission finished", attrs...)
		return
	}
	s.logger.InfoContext(ctx, "bid submission finished", attrs...)
}
