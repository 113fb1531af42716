package wallet

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/bidsphere/bidsphere/internal/domain"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeProvider is a Provider stub exposing a fixed account set.
type fakeProvider struct {
	accounts    []common.Address
	accountsErr error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Accounts(ctx context.Context) ([]common.Address, error) {
	return f.accounts, f.accountsErr
}

func (f *fakeProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	return f.accounts, f.accountsErr
}

func (f *fakeProvider) BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (f *fakeProvider) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

func (f *fakeProvider) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return 21000, nil
}

func (f *fakeProvider) SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error) {
	return common.Hash{}, nil
}

func (f *fakeProvider) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeProvider) OnAccountsChanged(cb func(accounts []common.Address)) (off func()) {
	return func() {}
}

func (f *fakeProvider) Close() {}

// stubSource returns a fixed provider, or nil.
type stubSource struct {
	p Provider
}

func (s stubSource) Provider(ctx context.Context) Provider { return s.p }

// memProfiles is an in-memory domain.ProfileStore.
type memProfiles struct {
	profiles map[string]domain.UserProfile
}

func (m *memProfiles) Get(ctx context.Context, id string) (domain.UserProfile, error) {
	p, ok := m.profiles[id]
	if !ok {
		return domain.UserProfile{}, domain.ErrNotFound
	}
	return p, nil
}

func (m *memProfiles) GetByEmail(ctx context.Context, email string) (domain.UserProfile, error) {
	for _, p := range m.profiles {
		if p.Email == email {
			return p, nil
		}
	}
	return domain.UserProfile{}, domain.ErrNotFound
}

func (m *memProfiles) Save(ctx context.Context, p domain.UserProfile) error {
	if m.profiles == nil {
		m.profiles = map[string]domain.UserProfile{}
	}
	m.profiles[p.ID] = p
	return nil
}

const (
	profileWallet = "0xAb5801a7D398351b8bE11C439e05C5b3259aec9B"
	otherWallet   = "0x0102030405060708090a0b0c0d0e0f1011121314"
)

func TestCheckWalletMatch(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		profile    domain.UserProfile
		provider   Provider
		wantValid  bool
		wantReason domain.ValidationReason
	}{
		{
			name:       "no_wallet_in_profile",
			profile:    domain.UserProfile{ID: "u1"},
			provider:   &fakeProvider{accounts: []common.Address{common.HexToAddress(profileWallet)}},
			wantReason: domain.ReasonNoWalletInProfile,
		},
		{
			name:       "no_provider",
			profile:    domain.UserProfile{ID: "u1", WalletAddress: profileWallet},
			provider:   nil,
			wantReason: domain.ReasonNoProvider,
		},
		{
			name:       "accounts_error",
			profile:    domain.UserProfile{ID: "u1", WalletAddress: profileWallet},
			provider:   &fakeProvider{accountsErr: errors.New("rpc down")},
			wantReason: domain.ReasonError,
		},
		{
			name:       "no_accounts",
			profile:    domain.UserProfile{ID: "u1", WalletAddress: profileWallet},
			provider:   &fakeProvider{},
			wantReason: domain.ReasonNoAccounts,
		},
		{
			name:       "wallet_mismatch",
			profile:    domain.UserProfile{ID: "u1", WalletAddress: profileWallet},
			provider:   &fakeProvider{accounts: []common.Address{common.HexToAddress(otherWallet)}},
			wantReason: domain.ReasonWalletMismatch,
		},
		{
			name:       "match_case_insensitive",
			profile:    domain.UserProfile{ID: "u1", WalletAddress: profileWallet},
			provider:   &fakeProvider{accounts: []common.Address{common.HexToAddress(profileWallet)}},
			wantValid:  true,
			wantReason: domain.ReasonSuccess,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profiles := &memProfiles{profiles: map[string]domain.UserProfile{"u1": tt.profile}}
			v := NewValidator(stubSource{p: tt.provider}, profiles, "u1", testLogger)

			state := v.CheckWalletMatch(ctx)
			require.Equal(t, tt.wantValid, state.IsValid)
			require.Equal(t, tt.wantReason, state.Reason)
			require.NotEmpty(t, state.Message)
		})
	}
}

// The profile check runs before the provider check: a missing wallet must not
// surface a provider problem.
func TestCheckWalletMatchShortCircuitOrder(t *testing.T) {
	profiles := &memProfiles{profiles: map[string]domain.UserProfile{"u1": {ID: "u1"}}}
	v := NewValidator(stubSource{p: nil}, profiles, "u1", testLogger)

	state := v.CheckWalletMatch(context.Background())
	require.Equal(t, domain.ReasonNoWalletInProfile, state.Reason)
}

func TestCheckWalletMatchMismatchMessageTruncatesAddresses(t *testing.T) {
	profiles := &memProfiles{profiles: map[string]domain.UserProfile{
		"u1": {ID: "u1", WalletAddress: profileWallet},
	}}
	connected := common.HexToAddress(otherWallet)
	v := NewValidator(stubSource{p: &fakeProvider{accounts: []common.Address{connected}}}, profiles, "u1", testLogger)

	state := v.CheckWalletMatch(context.Background())
	require.Equal(t, domain.ReasonWalletMismatch, state.Reason)
	require.Contains(t, state.Message, domain.TruncateAddress(connected.Hex()))
	require.Contains(t, state.Message, domain.TruncateAddress(profileWallet))
	require.NotContains(t, state.Message, connected.Hex())
	require.Equal(t, connected.Hex(), state.ConnectedWallet)
	require.Equal(t, profileWallet, state.ExpectedWallet)
}

// The check holds no state: repeated calls with unchanged inputs return the
// same verdict.
func TestCheckWalletMatchIdempotent(t *testing.T) {
	profiles := &memProfiles{profiles: map[string]domain.UserProfile{
		"u1": {ID: "u1", WalletAddress: profileWallet},
	}}
	v := NewValidator(stubSource{p: &fakeProvider{accounts: []common.Address{common.HexToAddress(profileWallet)}}}, profiles, "u1", testLogger)

	first := v.CheckWalletMatch(context.Background())
	second := v.CheckWalletMatch(context.Background())
	require.Equal(t, first, second)
	require.True(t, second.IsValid)
}

func TestCheckWalletMatchProfileLoadError(t *testing.T) {
	v := NewValidator(stubSource{}, &memProfiles{}, "missing", testLogger)

	state := v.CheckWalletMatch(context.Background())
	require.False(t, state.IsValid)
	require.Equal(t, domain.ReasonError, state.Reason)
}
