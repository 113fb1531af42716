// Package wallet abstracts the external wallet provider behind a single
// interface: account discovery and access, balance reads, transaction
// submission, and account-change notifications. The connected account is
// global mutable state owned by the wallet, not by this application; every
// read of it must be treated as possibly stale the instant after it is taken.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/bidsphere/bidsphere/internal/domain"
)

// CodeUserRejected is the standard provider error code returned when the user
// declines an interactive request (EIP-1193 error 4001).
const CodeUserRejected = 4001

// ProviderError carries a provider-specific JSON-RPC error code so callers
// can distinguish a user rejection from a transport failure.
type ProviderError struct {
	Code    int
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// Unwrap maps the user-rejection code onto the domain sentinel so callers can
// use errors.Is(err, domain.ErrUserRejected).
func (e *ProviderError) Unwrap() error {
	if e.Code == CodeUserRejected {
		return domain.ErrUserRejected
	}
	return nil
}

// IsUserRejected reports whether err represents the user declining an
// interactive wallet prompt.
func IsUserRejected(err error) bool {
	return errors.Is(err, domain.ErrUserRejected)
}

// TxRequest describes a value-transfer contract call for the provider to sign
// and broadcast.
type TxRequest struct {
	From     common.Address
	To       common.Address
	Value    *big.Int
	Gas      uint64
	GasPrice *big.Int
	Data     []byte
}

// Provider is the injected-wallet surface the bid flow consumes. Accounts is
// non-interactive and never prompts; RequestAccounts triggers a user-facing
// permission prompt and fails with a ProviderError carrying CodeUserRejected
// when the user declines.
type Provider interface {
	// Name identifies the provider for logs (e.g. "rpc:primary", "keystore").
	Name() string

	// Accounts returns the currently exposed accounts without prompting.
	Accounts(ctx context.Context) ([]common.Address, error)

	// RequestAccounts prompts the user for account access.
	RequestAccounts(ctx context.Context) ([]common.Address, error)

	// BalanceAt reads the native-currency balance of addr at the latest block.
	BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error)

	// SuggestGasPrice returns the provider's current gas price estimate.
	SuggestGasPrice(ctx context.Context) (*big.Int, error)

	// EstimateGas estimates the gas needed for the given call.
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)

	// SendTransaction signs and broadcasts the transaction, returning its hash.
	SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error)

	// TransactionReceipt returns the receipt for a mined transaction, or
	// domain.ErrNotFound while it is still pending.
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)

	// OnAccountsChanged registers a callback invoked whenever the set of
	// exposed accounts changes. The returned function unsubscribes it.
	OnAccountsChanged(cb func(accounts []common.Address)) (off func())

	// Close releases provider resources and stops account watching.
	Close()
}
