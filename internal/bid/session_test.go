package bid

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/bidsphere/bidsphere/internal/domain"
)

type sessionFixture struct {
	listings *fakeListings
	checker  *fakeChecker
	escrow   *fakeEscrow
	recorder *fakeRecorder
	session  *Session
}

func newSessionFixture(t *testing.T, escrow *fakeEscrow, listings ...domain.Listing) *sessionFixture {
	t.Helper()
	if len(listings) == 0 {
		listings = []domain.Listing{openListing()}
	}
	src := &fakeListings{listings: listings}
	checker := &fakeChecker{state: validWalletState()}
	oracle := &fakeOracle{rate: 3000, balance: domain.WalletBalance{ETH: 10, USD: 30000}}
	providers := stubProviders{p: &fakeWalletProvider{
		accounts: []common.Address{common.HexToAddress(bidderWallet)},
	}}
	recorder := &fakeRecorder{}
	amounts := NewAmountValidator(checker, providers, oracle, testLogger)
	sub := NewSubmitter(checker, amounts, providers, oracle, escrow, recorder, nil, "user-1", testLogger)
	session := NewSession(src, checker, amounts, sub, nil, "listing-1", 10*time.Millisecond, testLogger)
	return &sessionFixture{
		listings: src,
		checker:  checker,
		escrow:   escrow,
		recorder: recorder,
		session:  session,
	}
}

// A wallet that fails validation keeps the panel closed and leaves no polling
// loop behind.
func TestSessionOpenInvalidWallet(t *testing.T) {
	f := newSessionFixture(t, &fakeEscrow{})
	f.checker.set(domain.WalletValidationState{
		Reason:  domain.ReasonNoWalletInProfile,
		Message: "register a wallet address on your profile before bidding",
	})

	err := f.session.Open(context.Background())
	require.ErrorIs(t, err, domain.ErrNoWalletOnProfile)

	// Close must be a no-op for a panel that never opened.
	f.session.Close()
}

func TestSessionSubmitWithoutAmount(t *testing.T) {
	f := newSessionFixture(t, &fakeEscrow{})
	require.NoError(t, f.session.Open(context.Background()))
	defer f.session.Close()

	out := f.session.SubmitBid(context.Background())
	require.Equal(t, StateFailed, out.State)
	require.ErrorIs(t, out.Err, domain.ErrInvalidBidAmount)
}

func TestSessionSubmitRefreshesListing(t *testing.T) {
	first := openListing()
	second := first
	second.LatestBid = &domain.BidSnapshot{BidPrice: 150, BidDate: time.Now()}

	f := newSessionFixture(t, &fakeEscrow{hash: common.HexToHash("0x01")}, first, second)
	require.NoError(t, f.session.Open(context.Background()))
	defer f.session.Close()

	verdict := f.session.SetAmount(context.Background(), 150)
	require.True(t, verdict.Valid)

	out := f.session.SubmitBid(context.Background())
	require.Equal(t, StateSucceeded, out.State)

	// The panel now shows the new price floor.
	require.Equal(t, 150.0, f.session.Snapshot().Listing.MinimumBid())
	require.Len(t, f.recorder.requests(), 1)
}

func TestSessionRejectsConcurrentSubmissions(t *testing.T) {
	escrow := &fakeEscrow{
		hash:        common.HexToHash("0x02"),
		enterSubmit: make(chan struct{}),
		release:     make(chan struct{}),
	}
	f := newSessionFixture(t, escrow)
	require.NoError(t, f.session.Open(context.Background()))
	defer f.session.Close()

	require.True(t, f.session.SetAmount(context.Background(), 150).Valid)

	outcomes := make(chan Outcome, 1)
	go func() {
		outcomes <- f.session.SubmitBid(context.Background())
	}()

	select {
	case <-escrow.enterSubmit:
	case <-time.After(5 * time.Second):
		t.Fatal("first submission never reached the escrow")
	}

	second := f.session.SubmitBid(context.Background())
	require.ErrorIs(t, second.Err, domain.ErrSubmissionInFlight)

	close(escrow.release)
	first := <-outcomes
	require.Equal(t, StateSucceeded, first.State)
}

func TestSessionPollingTracksWalletState(t *testing.T) {
	f := newSessionFixture(t, &fakeEscrow{})
	require.NoError(t, f.session.Open(context.Background()))
	defer f.session.Close()

	f.checker.set(domain.WalletValidationState{
		Reason:  domain.ReasonWalletMismatch,
		Message: "connected wallet does not match",
	})

	require.Eventually(t, func() bool {
		return f.session.Snapshot().Wallet.Reason == domain.ReasonWalletMismatch
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSessionCloseStopsEverything(t *testing.T) {
	f := newSessionFixture(t, &fakeEscrow{})
	require.NoError(t, f.session.Open(context.Background()))

	f.session.Close()
	f.session.Close() // idempotent

	verdict := f.session.SetAmount(context.Background(), 150)
	require.ErrorIs(t, verdict.Err, domain.ErrPanelClosed)

	out := f.session.SubmitBid(context.Background())
	require.ErrorIs(t, out.Err, domain.ErrPanelClosed)

	// The wallet check is no longer polled once the panel is closed.
	f.checker.mu.Lock()
	before := f.checker.calls
	f.checker.mu.Unlock()
	time.Sleep(50 * time.Millisecond)
	f.checker.mu.Lock()
	after := f.checker.calls
	f.checker.mu.Unlock()
	require.Equal(t, before, after)
}
