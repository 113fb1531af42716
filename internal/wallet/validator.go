package wallet

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bidsphere/bidsphere/internal/domain"
)

// Validator compares the currently connected wallet account against the
// address recorded in the user's profile. The check is read-only and
// idempotent: it never prompts and holds no state, so it can run on a polling
// interval and again immediately before every state-changing bid action.
type Validator struct {
	providers ProviderSource
	profiles  domain.ProfileStore
	userID    string
	logger    *slog.Logger
}

// NewValidator creates a Validator for the given user profile.
func NewValidator(providers ProviderSource, profiles domain.ProfileStore, userID string, logger *slog.Logger) *Validator {
	return &Validator{
		providers: providers,
		profiles:  profiles,
		userID:    userID,
		logger:    logger.With(slog.String("component", "wallet_validator")),
	}
}

// CheckWalletMatch recomputes the wallet validation verdict. Checks run in
// strict order and short-circuit on the first failure:
//
//  1. no wallet address on the profile
//  2. no provider discoverable
//  3. no accounts exposed
//  4. connected account differs from the profile wallet (case-insensitive)
//
// Addresses are normalized to lowercase before comparison.
func (v *Validator) CheckWalletMatch(ctx context.Context) domain.WalletValidationState {
	profile, err := v.profiles.Get(ctx, v.userID)
	if err != nil {
		v.logger.WarnContext(ctx, "profile load failed", slog.String("error", err.Error()))
		return domain.WalletValidationState{
			Reason:  domain.ReasonError,
			Message: "could not load your profile, please try again",
		}
	}

	if !profile.HasWallet() {
		return domain.WalletValidationState{
			Reason:  domain.ReasonNoWalletInProfile,
			Message: "no wallet is linked to your profile yet, connect one to place bids",
		}
	}
	expected := profile.WalletAddress

	p := v.providers.Provider(ctx)
	if p == nil {
		return domain.WalletValidationState{
			Reason:         domain.ReasonNoProvider,
			Message:        "no wallet provider detected, install or start your wallet",
			ExpectedWallet: expected,
		}
	}

	accounts, err := p.Accounts(ctx)
	if err != nil {
		v.logger.WarnContext(ctx, "accounts query failed", slog.String("error", err.Error()))
		return domain.WalletValidationState{
			Reason:         domain.ReasonError,
			Message:        "could not read wallet accounts, please reconnect",
			ExpectedWallet: expected,
		}
	}
	if len(accounts) == 0 {
		return domain.WalletValidationState{
			Reason:         domain.ReasonNoAccounts,
			Message:        "wallet is locked or not connected, unlock it and connect an account",
			ExpectedWallet: expected,
		}
	}
	connected := accounts[0].Hex()

	if !domain.AddressesEqual(connected, expected) {
		return domain.WalletValidationState{
			Reason: domain.ReasonWalletMismatch,
			Message: fmt.Sprintf(
				"connected wallet %s does not match your profile wallet %s, switch accounts in your wallet",
				domain.TruncateAddress(connected),
				domain.TruncateAddress(expected),
			),
			ConnectedWallet: connected,
			ExpectedWallet:  expected,
		}
	}

	return domain.WalletValidationState{
		IsValid:         true,
		Reason:          domain.ReasonSuccess,
		Message:         "wallet connected",
		ConnectedWallet: connected,
		ExpectedWallet:  expected,
	}
}
