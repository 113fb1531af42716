// Package funds derives a wallet's fiat-equivalent balance from its on-chain
// balance and the external price feed.
package funds

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bidsphere/bidsphere/internal/domain"
	"github.com/bidsphere/bidsphere/internal/pricefeed"
	"github.com/bidsphere/bidsphere/internal/wallet"
)

// weiPerEth is the chain's fixed unit scale (10^18).
var weiPerEth = new(big.Float).SetFloat64(1e18)

// Oracle reads balances through the wallet provider and converts them to USD
// at the current feed rate. Price accuracy is non-critical here: the value
// backs a coarse sufficiency estimate, so feed outages degrade to a fixed
// fallback rate instead of failing the whole operation.
type Oracle struct {
	feed         pricefeed.RateSource
	fallbackRate float64
	logger       *slog.Logger
}

// NewOracle creates an Oracle. fallbackRate is used whenever the price feed
// is unreachable.
func NewOracle(feed pricefeed.RateSource, fallbackRate float64, logger *slog.Logger) *Oracle {
	if fallbackRate <= 0 {
		fallbackRate = 3000
	}
	return &Oracle{
		feed:         feed,
		fallbackRate: fallbackRate,
		logger:       logger.With(slog.String("component", "balance_oracle")),
	}
}

// Rate returns the current ETH/USD conversion rate, falling back to the fixed
// approximate rate when the feed is unreachable.
func (o *Oracle) Rate(ctx context.Context) float64 {
	rate, err := o.feed.USDRate(ctx)
	if err != nil || rate <= 0 {
		if err != nil {
			o.logger.WarnContext(ctx, "price feed unreachable, using fallback rate",
				slog.Float64("fallback", o.fallbackRate),
				slog.String("error", err.Error()),
			)
		}
		return o.fallbackRate
	}
	return rate
}

// FetchBalance reads addr's native balance and converts it to USD. A failed
// balance read yields a zero balance rather than a hard error: zero funds
// fail the sufficiency check and steer the user toward reconnecting.
func (o *Oracle) FetchBalance(ctx context.Context, p wallet.Provider, addr common.Address) domain.WalletBalance {
	if p == nil {
		return domain.WalletBalance{}
	}

	wei, err := p.BalanceAt(ctx, addr)
	if err != nil {
		o.logger.WarnContext(ctx, "balance read failed, treating as zero",
			slog.String("address", domain.TruncateAddress(addr.Hex())),
			slog.String("error", err.Error()),
		)
		return domain.WalletBalance{}
	}

	eth := WeiToEth(wei)
	return domain.WalletBalance{
		ETH: eth,
		USD: eth * o.Rate(ctx),
	}
}

// WeiToEth converts a wei amount to a float ETH value.
func WeiToEth(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	eth, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), weiPerEth).Float64()
	return eth
}

// UsdToWei converts a fiat amount to wei at the given ETH/USD rate.
func UsdToWei(usd, rate float64) *big.Int {
	if rate <= 0 || usd <= 0 {
		return new(big.Int)
	}
	eth := new(big.Float).Quo(new(big.Float).SetFloat64(usd), new(big.Float).SetFloat64(rate))
	wei, _ := new(big.Float).Mul(eth, weiPerEth).Int(nil)
	return wei
}
