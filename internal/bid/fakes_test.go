package bid

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"sync"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/bidsphere/bidsphere/internal/domain"
	"github.com/bidsphere/bidsphere/internal/platform/bidsphere"
	"github.com/bidsphere/bidsphere/internal/wallet"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

const (
	bidderWallet = "0xAb5801a7D398351b8bE11C439e05C5b3259aec9B"
	strayWallet  = "0x0102030405060708090a0b0c0d0e0f1011121314"
)

func validWalletState() domain.WalletValidationState {
	return domain.WalletValidationState{
		IsValid:         true,
		Reason:          domain.ReasonSuccess,
		Message:         "wallet connected",
		ConnectedWallet: bidderWallet,
		ExpectedWallet:  bidderWallet,
	}
}

// fakeChecker returns a fixed wallet verdict and counts calls.
type fakeChecker struct {
	mu    sync.Mutex
	state domain.WalletValidationState
	calls int
}

func (f *fakeChecker) CheckWalletMatch(ctx context.Context) domain.WalletValidationState {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.state
}

func (f *fakeChecker) set(state domain.WalletValidationState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = state
}

// fakeOracle returns a fixed rate and balance.
type fakeOracle struct {
	rate    float64
	balance domain.WalletBalance
}

func (f *fakeOracle) Rate(ctx context.Context) float64 { return f.rate }

func (f *fakeOracle) FetchBalance(ctx context.Context, p wallet.Provider, addr common.Address) domain.WalletBalance {
	return f.balance
}

// stubProviders yields a fixed provider, or nil.
type stubProviders struct {
	p wallet.Provider
}

func (s stubProviders) Provider(ctx context.Context) wallet.Provider { return s.p }

// fakeWalletProvider exposes a fixed account set; everything else is inert.
type fakeWalletProvider struct {
	accounts []common.Address
}

func (f *fakeWalletProvider) Name() string { return "fake" }

func (f *fakeWalletProvider) Accounts(ctx context.Context) ([]common.Address, error) {
	return f.accounts, nil
}

func (f *fakeWalletProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	return f.accounts, nil
}

func (f *fakeWalletProvider) BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (f *fakeWalletProvider) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

func (f *fakeWalletProvider) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return 21000, nil
}

func (f *fakeWalletProvider) SendTransaction(ctx context.Context, req wallet.TxRequest) (common.Hash, error) {
	return common.Hash{}, nil
}

func (f *fakeWalletProvider) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeWalletProvider) OnAccountsChanged(cb func(accounts []common.Address)) (off func()) {
	return func() {}
}

func (f *fakeWalletProvider) Close() {}

// fakeEscrow stands in for the escrow contract client. enterSubmit and
// release let a test hold a submission open to exercise concurrency guards.
type fakeEscrow struct {
	mu          sync.Mutex
	hash        common.Hash
	submitErr   error
	receipt     *types.Receipt
	waitErr     error
	submitCalls int
	enterSubmit chan struct{}
	release     chan struct{}
}

func (f *fakeEscrow) SubmitBid(ctx context.Context, p wallet.Provider, from common.Address, listingID string, valueWei *big.Int) (common.Hash, error) {
	f.mu.Lock()
	f.submitCalls++
	f.mu.Unlock()

	if f.enterSubmit != nil {
		f.enterSubmit <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if f.submitErr != nil {
		return common.Hash{}, f.submitErr
	}
	return f.hash, nil
}

func (f *fakeEscrow) WaitMined(ctx context.Context, p wallet.Provider, hash common.Hash) (*types.Receipt, error) {
	if f.waitErr != nil {
		return nil, f.waitErr
	}
	if f.receipt != nil {
		return f.receipt, nil
	}
	return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
}

func (f *fakeEscrow) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitCalls
}

// fakeRecorder captures backend bid-recording requests.
type fakeRecorder struct {
	mu   sync.Mutex
	err  error
	reqs []bidsphere.CreateBidRequest
}

func (f *fakeRecorder) CreateBid(ctx context.Context, req bidsphere.CreateBidRequest) (domain.Bid, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.Bid{}, f.err
	}
	f.reqs = append(f.reqs, req)
	return domain.Bid{
		ID:              "bid-1",
		ListingID:       req.ListingID,
		UserID:          req.UserID,
		Amount:          float64(req.Amount),
		TransactionHash: req.TransactionHash,
	}, nil
}

func (f *fakeRecorder) requests() []bidsphere.CreateBidRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bidsphere.CreateBidRequest(nil), f.reqs...)
}

// fakeNotifier records the events it was asked to send.
type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeNotifier) Notify(ctx context.Context, event, title, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeNotifier) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

// fakeListings serves a sequence of listings, one per GetListing call,
// sticking on the last.
type fakeListings struct {
	mu       sync.Mutex
	listings []domain.Listing
	err      error
	calls    int
}

func (f *fakeListings) GetListing(ctx context.Context, id string) (domain.Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return domain.Listing{}, f.err
	}
	idx := f.calls - 1
	if idx >= len(f.listings) {
		idx = len(f.listings) - 1
	}
	return f.listings[idx], nil
}
