// Package bid implements the bid placement flow: amount validation, the
// submission state machine, and the interactive panel session that drives
// them.
package bid

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bidsphere/bidsphere/internal/domain"
	"github.com/bidsphere/bidsphere/internal/wallet"
)

// fundsMargin is the headroom factor applied to a bid amount before comparing
// it against the wallet's fiat balance. The margin absorbs gas cost and price
// movement between validation and submission.
const fundsMargin = 1.2

// WalletChecker recomputes the wallet validation verdict.
// wallet.Validator implements it; tests substitute fakes.
type WalletChecker interface {
	CheckWalletMatch(ctx context.Context) domain.WalletValidationState
}

// BalanceOracle converts on-chain balances to fiat. funds.Oracle implements it.
type BalanceOracle interface {
	Rate(ctx context.Context) float64
	FetchBalance(ctx context.Context, p wallet.Provider, addr common.Address) domain.WalletBalance
}

// AmountValidation is the verdict of a single amount check. Err carries the
// matching sentinel so callers can branch without parsing the message.
type AmountValidation struct {
	Valid   bool
	Message string
	Err     error
}

// AmountValidator validates a proposed bid amount against the listing's
// price floor and the connected wallet's funds.
type AmountValidator struct {
	wallets   WalletChecker
	providers wallet.ProviderSource
	oracle    BalanceOracle
	logger    *slog.Logger
}

// NewAmountValidator creates an AmountValidator.
func NewAmountValidator(wallets WalletChecker, providers wallet.ProviderSource, oracle BalanceOracle, logger *slog.Logger) *AmountValidator {
	return &AmountValidator{
		wallets:   wallets,
		providers: providers,
		oracle:    oracle,
		logger:    logger.With(slog.String("component", "amount_validator")),
	}
}

// Validate checks amount against the listing and the wallet, in order: wallet
// problems mask amount problems, cheap numeric checks run before the balance
// read, and the wallet verdict is recomputed here rather than trusted from an
// earlier poll because the connected account can change at any moment.
func (v *AmountValidator) Validate(ctx context.Context, listing domain.Listing, amount float64) AmountValidation {
	state := v.wallets.CheckWalletMatch(ctx)
	if !state.IsValid {
		return AmountValidation{
			Message: state.Message,
			Err:     walletReasonErr(state.Reason),
		}
	}

	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return AmountValidation{
			Message: "enter a valid bid amount",
			Err:     domain.ErrInvalidBidAmount,
		}
	}

	min := listing.MinimumBid()
	if amount <= min {
		return AmountValidation{
			Message: fmt.Sprintf("bid must be higher than the current price of $%.2f", min),
			Err:     fmt.Errorf("amount %.2f vs minimum %.2f: %w", amount, min, domain.ErrBidTooLow),
		}
	}

	balance := v.oracle.FetchBalance(ctx, v.providers.Provider(ctx), common.HexToAddress(state.ConnectedWallet))
	required := amount * fundsMargin
	if required > balance.USD {
		return AmountValidation{
			Message: fmt.Sprintf(
				"insufficient funds: a $%.2f bid needs about $%.2f available (incl. gas headroom), wallet holds $%.2f",
				amount, required, balance.USD,
			),
			Err: fmt.Errorf("required %.2f vs balance %.2f: %w", required, balance.USD, domain.ErrInsufficientFunds),
		}
	}

	return AmountValidation{
		Valid:   true,
		Message: fmt.Sprintf("bid of $%.2f is ready to place", amount),
	}
}

// walletReasonErr maps a wallet validation reason onto its sentinel error.
func walletReasonErr(reason domain.ValidationReason) error {
	switch reason {
	case domain.ReasonNoWalletInProfile:
		return domain.ErrNoWalletOnProfile
	case domain.ReasonNoProvider:
		return domain.ErrNoProviderDetected
	case domain.ReasonNoAccounts:
		return domain.ErrNoAccountConnected
	case domain.ReasonWalletMismatch:
		return domain.ErrWalletMismatch
	default:
		return fmt.Errorf("wallet check failed: %s", reason)
	}
}
