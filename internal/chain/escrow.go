// Package chain builds and submits the escrow contract calls that custody
// bid funds on chain.
package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/bidsphere/bidsphere/internal/domain"
	"github.com/bidsphere/bidsphere/internal/wallet"
)

// receiptPollInterval is how often WaitMined polls for a receipt.
const receiptPollInterval = 1 * time.Second

// placeBidSelector is the 4-byte function selector of placeBid(bytes16).
var placeBidSelector = ethcrypto.Keccak256([]byte("placeBid(bytes16)"))[:4]

// bytes16Args is the ABI argument list for placeBid's single parameter.
var bytes16Args = func() abi.Arguments {
	t, err := abi.NewType("bytes16", "", nil)
	if err != nil {
		panic(fmt.Sprintf("chain: build bytes16 ABI type: %v", err))
	}
	return abi.Arguments{{Type: t}}
}()

// EscrowClient submits placeBid value transfers to the fixed escrow contract.
type EscrowClient struct {
	address      common.Address
	gasBufferPct int64
	logger       *slog.Logger
}

// NewEscrowClient creates an EscrowClient for the escrow contract at
// escrowHex. gasBufferPct is the safety margin applied over gas estimates.
func NewEscrowClient(escrowHex string, gasBufferPct int, logger *slog.Logger) (*EscrowClient, error) {
	if !common.IsHexAddress(escrowHex) {
		return nil, fmt.Errorf("chain: invalid escrow address %q", escrowHex)
	}
	if gasBufferPct <= 0 {
		gasBufferPct = 20
	}
	return &EscrowClient{
		address:      common.HexToAddress(escrowHex),
		gasBufferPct: int64(gasBufferPct),
		logger:       logger.With(slog.String("component", "escrow")),
	}, nil
}

// Address returns the escrow contract address.
func (e *EscrowClient) Address() common.Address {
	return e.address
}

// PackPlaceBid encodes the placeBid(bytes16) calldata for a listing. Listing
// IDs are UUIDs; the hyphen-stripped UUID is exactly the 16 bytes the
// contract expects.
func PackPlaceBid(listingID string) ([]byte, error) {
	id, err := listingIDBytes(listingID)
	if err != nil {
		return nil, err
	}
	packed, err := bytes16Args.Pack(id)
	if err != nil {
		return nil, fmt.Errorf("chain: pack listing id: %w", err)
	}
	return append(append([]byte{}, placeBidSelector...), packed...), nil
}

// listingIDBytes packs a listing identifier into 16 bytes. Well-formed UUIDs
// map directly; anything else is truncated or zero-padded to fit.
func listingIDBytes(listingID string) ([16]byte, error) {
	if id, err := uuid.Parse(listingID); err == nil {
		return [16]byte(id), nil
	}
	if listingID == "" {
		return [16]byte{}, fmt.Errorf("chain: empty listing id")
	}
	var out [16]byte
	copy(out[:], listingID)
	return out, nil
}

// SubmitBid submits the escrow payment for a bid: estimate gas with the
// configured safety buffer, verify the balance covers value plus the full gas
// cost, then hand the transaction to the provider for signing and broadcast.
// A declined signature prompt surfaces as domain.ErrUserRejected through the
// provider error chain.
func (e *EscrowClient) SubmitBid(ctx context.Context, p wallet.Provider, from common.Address, listingID string, valueWei *big.Int) (common.Hash, error) {
	data, err := PackPlaceBid(listingID)
	if err != nil {
		return common.Hash{}, err
	}

	gasPrice, err := p.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: %w: %w", domain.ErrGasEstimation, err)
	}

	gas, err := p.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &e.address,
		Value: valueWei,
		Data:  data,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: %w: %w", domain.ErrGasEstimation, err)
	}
	gas = gas * uint64(100+e.gasBufferPct) / 100

	gasCost := new(big.Int).Mul(new(big.Int).SetUint64(gas), gasPrice)
	total := new(big.Int).Add(valueWei, gasCost)

	balance, err := p.BalanceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: read balance: %w", err)
	}
	if balance.Cmp(total) < 0 {
		return common.Hash{}, fmt.Errorf(
			"chain: %w: need %s wei (value %s + gas %s), have %s wei",
			domain.ErrInsufficientFunds,
			total.String(), valueWei.String(), gasCost.String(), balance.String(),
		)
	}

	hash, err := p.SendTransaction(ctx, wallet.TxRequest{
		From:     from,
		To:       e.address,
		Value:    valueWei,
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
	})
	if err != nil {
		if wallet.IsUserRejected(err) {
			return common.Hash{}, fmt.Errorf("chain: submit bid: %w", err)
		}
		return common.Hash{}, fmt.Errorf("chain: %w: %w", domain.ErrOnChainSubmission, err)
	}

	e.logger.InfoContext(ctx, "bid transaction broadcast",
		slog.String("tx", hash.Hex()),
		slog.String("listing_id", listingID),
		slog.Uint64("gas", gas),
	)
	return hash, nil
}

// WaitMined polls for the transaction receipt until it is available or the
// context expires.
func (e *EscrowClient) WaitMined(ctx context.Context, p wallet.Provider, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := p.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if err != domain.ErrNotFound {
			e.logger.DebugContext(ctx, "receipt poll failed",
				slog.String("tx", hash.Hex()),
				slog.String("error", err.Error()),
			)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("chain: wait mined %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
