package bid

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/bidsphere/bidsphere/internal/domain"
	"github.com/bidsphere/bidsphere/internal/wallet"
)

type submitterFixture struct {
	checker  *fakeChecker
	oracle   *fakeOracle
	escrow   *fakeEscrow
	recorder *fakeRecorder
	notifier *fakeNotifier
	sub      *Submitter
}

func newSubmitterFixture(escrow *fakeEscrow) *submitterFixture {
	checker := &fakeChecker{state: validWalletState()}
	oracle := &fakeOracle{rate: 3000, balance: domain.WalletBalance{ETH: 10, USD: 30000}}
	providers := stubProviders{p: &fakeWalletProvider{
		accounts: []common.Address{common.HexToAddress(bidderWallet)},
	}}
	recorder := &fakeRecorder{}
	notifier := &fakeNotifier{}
	amounts := NewAmountValidator(checker, providers, oracle, testLogger)
	sub := NewSubmitter(checker, amounts, providers, oracle, escrow, recorder, notifier, "user-1", testLogger)
	return &submitterFixture{
		checker:  checker,
		oracle:   oracle,
		escrow:   escrow,
		recorder: recorder,
		notifier: notifier,
		sub:      sub,
	}
}

func TestSubmitSuccess(t *testing.T) {
	hash := common.HexToHash("0xaaaa")
	f := newSubmitterFixture(&fakeEscrow{hash: hash})

	var states []State
	f.sub.OnStateChange(func(s State) { states = append(states, s) })

	out := f.sub.Submit(context.Background(), openListing(), 150.5)
	require.Equal(t, StateSucceeded, out.State)
	require.NoError(t, out.Err)
	require.Equal(t, hash.Hex(), out.TxHash)
	require.NotNil(t, out.Confirmation)
	require.False(t, out.Confirmation.Error)
	require.Equal(t, 150.5, out.Confirmation.BidPrice)
	require.Equal(t, hash.Hex(), out.Confirmation.TransactionHash)

	reqs := f.recorder.requests()
	require.Len(t, reqs, 1)
	require.Equal(t, "listing-1", reqs[0].ListingID)
	require.Equal(t, "user-1", reqs[0].UserID)
	require.Equal(t, int64(math.Floor(150.5)), reqs[0].Amount)
	require.Equal(t, hash.Hex(), reqs[0].TransactionHash)

	require.Equal(t, []string{"bid_succeeded"}, f.notifier.sent())

	require.Equal(t, []State{
		StateWalletChecking,
		StateFundsChecking,
		StateAwaitingSignature,
		StateBroadcasting,
		StateConfirming,
		StateRecording,
		StateSucceeded,
	}, states)
}

func TestSubmitFailsOnInvalidWallet(t *testing.T) {
	f := newSubmitterFixture(&fakeEscrow{})
	f.checker.set(domain.WalletValidationState{
		Reason:  domain.ReasonNoAccounts,
		Message: "connect your wallet",
	})

	out := f.sub.Submit(context.Background(), openListing(), 150)
	require.Equal(t, StateFailed, out.State)
	require.ErrorIs(t, out.Err, domain.ErrNoAccountConnected)
	require.Empty(t, out.TxHash)
	require.Zero(t, f.escrow.calls())
	require.Empty(t, f.recorder.requests())
}

// The account can change between the poll and the signature prompt, so the
// identity is re-checked immediately before signing.
func TestSubmitFailsOnAccountSwitchBeforeSigning(t *testing.T) {
	f := newSubmitterFixture(&fakeEscrow{})
	checker := f.checker
	oracle := f.oracle
	providers := stubProviders{p: &fakeWalletProvider{
		accounts: []common.Address{common.HexToAddress(strayWallet)},
	}}
	amounts := NewAmountValidator(checker, providers, oracle, testLogger)
	sub := NewSubmitter(checker, amounts, providers, oracle, f.escrow, f.recorder, f.notifier, "user-1", testLogger)

	out := sub.Submit(context.Background(), openListing(), 150)
	require.Equal(t, StateFailed, out.State)
	require.ErrorIs(t, out.Err, domain.ErrWalletMismatch)
	require.Zero(t, f.escrow.calls())
}

func TestSubmitUserRejection(t *testing.T) {
	rejection := fmt.Errorf("chain: submit bid: %w", &wallet.ProviderError{
		Code:    wallet.CodeUserRejected,
		Message: "user denied transaction signature",
	})
	f := newSubmitterFixture(&fakeEscrow{submitErr: rejection})

	out := f.sub.Submit(context.Background(), openListing(), 150)
	require.Equal(t, StateFailed, out.State)
	require.ErrorIs(t, out.Err, domain.ErrUserRejected)
	require.Contains(t, out.Message, "declined")
	require.Empty(t, out.TxHash)
	require.Nil(t, out.Confirmation)
	require.Empty(t, f.recorder.requests())
}

func TestSubmitBroadcastError(t *testing.T) {
	f := newSubmitterFixture(&fakeEscrow{submitErr: errors.New("nonce too low")})

	out := f.sub.Submit(context.Background(), openListing(), 150)
	require.Equal(t, StateFailed, out.State)
	require.Contains(t, out.Message, "no funds were moved")
	require.Empty(t, out.TxHash)
	require.Empty(t, f.recorder.requests())
}

func TestSubmitRevertedTransaction(t *testing.T) {
	hash := common.HexToHash("0xbbbb")
	f := newSubmitterFixture(&fakeEscrow{
		hash:    hash,
		receipt: &types.Receipt{Status: types.ReceiptStatusFailed},
	})

	out := f.sub.Submit(context.Background(), openListing(), 150)
	require.Equal(t, StateFailed, out.State)
	require.ErrorIs(t, out.Err, domain.ErrOnChainSubmission)
	require.Equal(t, hash.Hex(), out.TxHash)
	require.Empty(t, f.recorder.requests())
}

// An unconfirmed transaction is never reported as a plain failure: the hash
// and a flagged confirmation survive for reconciliation.
func TestSubmitConfirmationTimeout(t *testing.T) {
	hash := common.HexToHash("0xcccc")
	f := newSubmitterFixture(&fakeEscrow{hash: hash, waitErr: errors.New("context deadline exceeded")})

	out := f.sub.Submit(context.Background(), openListing(), 150)
	require.Equal(t, StatePartialFailure, out.State)
	require.Equal(t, hash.Hex(), out.TxHash)
	require.NotNil(t, out.Confirmation)
	require.True(t, out.Confirmation.Error)
	require.Equal(t, hash.Hex(), out.Confirmation.TransactionHash)
	require.Empty(t, f.recorder.requests())
}

func TestSubmitBackendRecordingFailure(t *testing.T) {
	hash := common.HexToHash("0xdddd")
	f := newSubmitterFixture(&fakeEscrow{hash: hash})
	f.recorder.err = fmt.Errorf("bidsphere: create bid: %w", domain.ErrBackendRecording)

	out := f.sub.Submit(context.Background(), openListing(), 250)
	require.Equal(t, StatePartialFailure, out.State)
	require.ErrorIs(t, out.Err, domain.ErrBackendRecording)
	require.Equal(t, hash.Hex(), out.TxHash)
	require.NotNil(t, out.Confirmation)
	require.True(t, out.Confirmation.Error)
	require.Equal(t, 250.0, out.Confirmation.BidPrice)
	require.Equal(t, hash.Hex(), out.Confirmation.TransactionHash)
	require.Equal(t, []string{"bid_partial_failure"}, f.notifier.sent())
}

func TestSubmitRejectsConcurrentRuns(t *testing.T) {
	escrow := &fakeEscrow{
		hash:        common.HexToHash("0xeeee"),
		enterSubmit: make(chan struct{}),
		release:     make(chan struct{}),
	}
	f := newSubmitterFixture(escrow)

	outcomes := make(chan Outcome, 1)
	go func() {
		outcomes <- f.sub.Submit(context.Background(), openListing(), 150)
	}()

	select {
	case <-escrow.enterSubmit:
	case <-time.After(5 * time.Second):
		t.Fatal("first submission never reached the escrow")
	}

	second := f.sub.Submit(context.Background(), openListing(), 150)
	require.ErrorIs(t, second.Err, domain.ErrSubmissionInFlight)
	require.False(t, second.State.Terminal())

	close(escrow.release)
	first := <-outcomes
	require.Equal(t, StateSucceeded, first.State)
	require.Equal(t, 1, escrow.calls())
}
