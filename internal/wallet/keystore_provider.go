package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	appcrypto "github.com/bidsphere/bidsphere/internal/crypto"
	"github.com/bidsphere/bidsphere/internal/domain"
)

// ConfirmFunc models the wallet's user-facing approval prompt. action is
// "connect" or "sign". Returning false maps to a user rejection (code 4001).
type ConfirmFunc func(action string) bool

// KeystoreProvider implements Provider with a locally held private key. The
// key stays encrypted at rest and is only resolved on the first interactive
// RequestAccounts, which stands in for the wallet's permission prompt.
// Transactions are signed locally and broadcast through a plain RPC endpoint.
type KeystoreProvider struct {
	eth     *ethclient.Client
	keyCfg  appcrypto.KeyConfig
	chainID *big.Int
	confirm ConfirmFunc
	logger  *slog.Logger

	mu      sync.Mutex
	key     *ecdsa.PrivateKey
	address common.Address
}

// DialKeystore connects to the broadcast endpoint and returns a locked
// KeystoreProvider. confirm may be nil, in which case prompts auto-approve
// (headless operation).
func DialKeystore(ctx context.Context, endpoint string, chainID int64, keyCfg appcrypto.KeyConfig, confirm ConfirmFunc, logger *slog.Logger) (*KeystoreProvider, error) {
	eth, err := ethclient.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("wallet: dial %s: %w", endpoint, err)
	}
	return &KeystoreProvider{
		eth:     eth,
		keyCfg:  keyCfg,
		chainID: big.NewInt(chainID),
		confirm: confirm,
		logger:  logger.With(slog.String("component", "wallet_provider"), slog.String("provider", "keystore")),
	}, nil
}

// Name returns the provider identifier.
func (p *KeystoreProvider) Name() string { return "keystore" }

// Accounts returns the unlocked account without prompting. A locked keystore
// exposes no accounts, mirroring a wallet that has not granted access yet.
func (p *KeystoreProvider) Accounts(ctx context.Context) ([]common.Address, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.key == nil {
		return nil, nil
	}
	return []common.Address{p.address}, nil
}

// RequestAccounts unlocks the keystore. This is the interactive path: the
// confirm hook stands in for the permission prompt and a refusal surfaces as
// a ProviderError with CodeUserRejected.
func (p *KeystoreProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	if p.confirm != nil && !p.confirm("connect") {
		return nil, &ProviderError{Code: CodeUserRejected, Message: "account access denied"}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.key == nil {
		keyHex, err := appcrypto.ResolveKey(p.keyCfg)
		if err != nil {
			return nil, fmt.Errorf("wallet: unlock keystore: %w", err)
		}
		key, err := ethcrypto.HexToECDSA(keyHex)
		if err != nil {
			return nil, fmt.Errorf("wallet: invalid keystore key: %w", err)
		}
		p.key = key
		p.address = ethcrypto.PubkeyToAddress(key.PublicKey)
		p.logger.Info("keystore unlocked", slog.String("address", p.address.Hex()))
	}
	return []common.Address{p.address}, nil
}

// BalanceAt reads the latest-block balance through the broadcast endpoint.
func (p *KeystoreProvider) BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error) {
	balance, err := p.eth.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("wallet: balance at %s: %w", addr.Hex(), err)
	}
	return balance, nil
}

// SuggestGasPrice returns the endpoint's gas price estimate.
func (p *KeystoreProvider) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	price, err := p.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("wallet: gas price: %w", err)
	}
	return price, nil
}

// EstimateGas estimates gas for the given call.
func (p *KeystoreProvider) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	gas, err := p.eth.EstimateGas(ctx, msg)
	if err != nil {
		return 0, fmt.Errorf("wallet: estimate gas: %w", err)
	}
	return gas, nil
}

// SendTransaction signs the transaction locally and broadcasts it. The sign
// prompt can be declined through the confirm hook.
func (p *KeystoreProvider) SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error) {
	p.mu.Lock()
	key := p.key
	from := p.address
	p.mu.Unlock()

	if key == nil {
		return common.Hash{}, fmt.Errorf("wallet: send transaction: %w", domain.ErrNoAccountConnected)
	}
	if req.From != from {
		return common.Hash{}, fmt.Errorf("wallet: send transaction from %s: %w", req.From.Hex(), domain.ErrWalletMismatch)
	}
	if p.confirm != nil && !p.confirm("sign") {
		return common.Hash{}, &ProviderError{Code: CodeUserRejected, Message: "signature request denied"}
	}

	nonce, err := p.eth.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("wallet: pending nonce: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &req.To,
		Value:    req.Value,
		Gas:      req.Gas,
		GasPrice: req.GasPrice,
		Data:     req.Data,
	})

	signed, err := types.SignTx(tx, types.NewEIP155Signer(p.chainID), key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("wallet: sign transaction: %w", err)
	}

	if err := p.eth.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("wallet: broadcast transaction: %w", err)
	}
	return signed.Hash(), nil
}

// TransactionReceipt returns the receipt for a mined transaction.
func (p *KeystoreProvider) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	receipt, err := p.eth.TransactionReceipt(ctx, hash)
	if err != nil {
		if err == ethereum.NotFound {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("wallet: transaction receipt: %w", err)
	}
	return receipt, nil
}

// OnAccountsChanged is a no-op for the keystore: the local key never changes
// underneath the application. The callback contract is still honored so
// callers can treat all providers uniformly.
func (p *KeystoreProvider) OnAccountsChanged(cb func(accounts []common.Address)) (off func()) {
	return func() {}
}

// Close releases the endpoint connection.
func (p *KeystoreProvider) Close() {
	p.eth.Close()
}

// Compile-time interface check.
var _ Provider = (*KeystoreProvider)(nil)
