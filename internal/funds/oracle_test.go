package funds

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
	"github.com/bidsphere/bidsphere/internal/wallet"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// stubFeed returns a fixed rate or error.
type stubFeed struct {
	rate float64
	err  error
}

func (s stubFeed) USDRate(ctx context.Context) (float64, error) { return s.rate, s.err }

// balanceProvider is a wallet.Provider whose only interesting method is
// BalanceAt.
type balanceProvider struct {
	wei *big.Int
	err error
}

func (p *balanceProvider) Name() string { return "stub" }

func (p *balanceProvider) Accounts(ctx context.Context) ([]common.Address, error) { return nil, nil }

func (p *balanceProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	return nil, nil
}

func (p *balanceProvider) BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error) {
	return p.wei, p.err
}

func (p *balanceProvider) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

func (p *balanceProvider) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return 21000, nil
}

func (p *balanceProvider) SendTransaction(ctx context.Context, req wallet.TxRequest) (common.Hash, error) {
	return common.Hash{}, nil
}

func (p *balanceProvider) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return nil, domain.ErrNotFound
}

func (p *balanceProvider) OnAccountsChanged(cb func(accounts []common.Address)) (off func()) {
	return func() {}
}

func (p *balanceProvider) Close() {}

func TestRateFallsBackWhenFeedFails(t *testing.T) {
	o := NewOracle(stubFeed{err: errors.New("timeout")}, 3000, testLogger)
	require.Equal(t, 3000.0, o.Rate(context.Background()))
}

func TestRateFallsBackOnNonPositiveRate(t *testing.T) {
	o := NewOracle(stubFeed{rate: 0}, 2500, testLogger)
	require.Equal(t, 2500.0, o.Rate(context.Background()))

	o = NewOracle(stubFeed{rate: -1}, 2500, testLogger)
	require.Equal(t, 2500.0, o.Rate(context.Background()))
}

func TestRateUsesFeedWhenHealthy(t *testing.T) {
	o := NewOracle(stubFeed{rate: 3123.45}, 3000, testLogger)
	require.Equal(t, 3123.45, o.Rate(context.Background()))
}

func TestFetchBalanceConvertsWeiToUsd(t *testing.T) {
	oneEth := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	o := NewOracle(stubFeed{rate: 3000}, 3000, testLogger)

	b := o.FetchBalance(context.Background(), &balanceProvider{wei: oneEth}, common.Address{})
	require.Equal(t, 1.0, b.ETH)
	require.Equal(t, 3000.0, b.USD)
}

func TestFetchBalanceZeroOnMissingProvider(t *testing.T) {
	o := NewOracle(stubFeed{rate: 3000}, 3000, testLogger)
	require.Equal(t, domain.WalletBalance{}, o.FetchBalance(context.Background(), nil, common.Address{}))
}

// A failed balance read degrades to zero funds instead of an error.
func TestFetchBalanceZeroOnReadError(t *testing.T) {
	o := NewOracle(stubFeed{rate: 3000}, 3000, testLogger)
	p := &balanceProvider{err: errors.New("rpc down")}
	require.Equal(t, domain.WalletBalance{}, o.FetchBalance(context.Background(), p, common.Address{}))
}

func TestWeiToEth(t *testing.T) {
	require.Equal(t, 0.0, WeiToEth(nil))
	require.Equal(t, 0.0, WeiToEth(big.NewInt(0)))

	half := new(big.Int).Exp(big.NewInt(10), big.NewInt(17), nil)
	half.Mul(half, big.NewInt(5))
	require.Equal(t, 0.5, WeiToEth(half))
}

func TestUsdToWei(t *testing.T) {
	// $300 at $3000/ETH is 0.1 ETH.
	want := new(big.Int).Exp(big.NewInt(10), big.NewInt(17), nil)
	require.Equal(t, 0, want.Cmp(UsdToWei(300, 3000)))

	require.Equal(t, 0, new(big.Int).Cmp(UsdToWei(0, 3000)))
	require.Equal(t, 0, new(big.Int).Cmp(UsdToWei(-10, 3000)))
	require.Equal(t, 0, new(big.Int).Cmp(UsdToWei(100, 0)))
}
