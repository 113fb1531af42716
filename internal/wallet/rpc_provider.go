package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/bidsphere/bidsphere/internal/domain"
)

// RPCProvider implements Provider over a wallet-enabled JSON-RPC endpoint.
// Signing happens on the wallet side (eth_sendTransaction); this process never
// sees the private key. Account changes are detected by polling eth_accounts,
// since the wallet can switch the active account at any time outside of
// application control.
type RPCProvider struct {
	name   string
	rpc    *rpc.Client
	eth    *ethclient.Client
	logger *slog.Logger

	pollInterval time.Duration

	mu       sync.Mutex
	subs     map[int]func(accounts []common.Address)
	nextSub  int
	last     []common.Address
	watching bool
	stopCh   chan struct{}
}

// DialRPC connects to a wallet RPC endpoint and returns an RPCProvider.
func DialRPC(ctx context.Context, name, endpoint string, pollInterval time.Duration, logger *slog.Logger) (*RPCProvider, error) {
	c, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("wallet: dial %s: %w", endpoint, err)
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &RPCProvider{
		name:         name,
		rpc:          c,
		eth:          ethclient.NewClient(c),
		logger:       logger.With(slog.String("component", "wallet_provider"), slog.String("provider", name)),
		pollInterval: pollInterval,
		subs:         make(map[int]func([]common.Address)),
		stopCh:       make(chan struct{}),
	}, nil
}

// Name returns the provider identifier.
func (p *RPCProvider) Name() string { return p.name }

// Accounts performs a non-interactive eth_accounts query.
func (p *RPCProvider) Accounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := p.rpc.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, wrapRPCError("wallet: eth_accounts", err)
	}
	return accounts, nil
}

// RequestAccounts performs an interactive eth_requestAccounts call, which
// triggers the wallet's permission prompt. The prompt may stay open
// indefinitely; callers pass a context if they want a deadline.
func (p *RPCProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := p.rpc.CallContext(ctx, &accounts, "eth_requestAccounts"); err != nil {
		return nil, wrapRPCError("wallet: eth_requestAccounts", err)
	}
	return accounts, nil
}

// BalanceAt reads the latest-block balance via eth_getBalance. The provider
// returns a hex-encoded wei amount.
func (p *RPCProvider) BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error) {
	var result hexutil.Big
	if err := p.rpc.CallContext(ctx, &result, "eth_getBalance", addr, "latest"); err != nil {
		return nil, wrapRPCError("wallet: eth_getBalance", err)
	}
	return (*big.Int)(&result), nil
}

// SuggestGasPrice returns the endpoint's gas price estimate.
func (p *RPCProvider) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	price, err := p.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, wrapRPCError("wallet: gas price", err)
	}
	return price, nil
}

// EstimateGas estimates gas for the given call.
func (p *RPCProvider) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	gas, err := p.eth.EstimateGas(ctx, msg)
	if err != nil {
		return 0, wrapRPCError("wallet: estimate gas", err)
	}
	return gas, nil
}

// SendTransaction submits an eth_sendTransaction call. The wallet signs with
// the key of req.From; a declined signature prompt surfaces as a
// ProviderError with CodeUserRejected.
func (p *RPCProvider) SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error) {
	arg := map[string]any{
		"from":  req.From,
		"to":    req.To,
		"value": (*hexutil.Big)(req.Value),
		"data":  hexutil.Bytes(req.Data),
	}
	if req.Gas > 0 {
		arg["gas"] = hexutil.Uint64(req.Gas)
	}
	if req.GasPrice != nil {
		arg["gasPrice"] = (*hexutil.Big)(req.GasPrice)
	}

	var hash common.Hash
	if err := p.rpc.CallContext(ctx, &hash, "eth_sendTransaction", arg); err != nil {
		return common.Hash{}, wrapRPCError("wallet: eth_sendTransaction", err)
	}
	return hash, nil
}

// TransactionReceipt returns the receipt for a mined transaction. A pending
// transaction maps onto domain.ErrNotFound.
func (p *RPCProvider) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	receipt, err := p.eth.TransactionReceipt(ctx, hash)
	if err != nil {
		if err == ethereum.NotFound {
			return nil, domain.ErrNotFound
		}
		return nil, wrapRPCError("wallet: transaction receipt", err)
	}
	return receipt, nil
}

// OnAccountsChanged registers a callback fired when the exposed account set
// changes. The first subscription starts the polling watcher; the returned
// function unsubscribes.
func (p *RPCProvider) OnAccountsChanged(cb func(accounts []common.Address)) (off func()) {
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = cb
	if !p.watching {
		p.watching = true
		go p.watchAccounts()
	}
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

// watchAccounts polls eth_accounts and notifies subscribers whenever the
// account set differs from the previous poll.
func (p *RPCProvider) watchAccounts() {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), p.pollInterval)
		accounts, err := p.Accounts(ctx)
		cancel()
		if err != nil {
			p.logger.Debug("account poll failed", slog.String("error", err.Error()))
			continue
		}

		p.mu.Lock()
		changed := !sameAccounts(p.last, accounts)
		if changed {
			p.last = accounts
		}
		cbs := make([]func([]common.Address), 0, len(p.subs))
		for _, cb := range p.subs {
			cbs = append(cbs, cb)
		}
		p.mu.Unlock()

		if changed {
			p.logger.Info("accounts changed", slog.Int("count", len(accounts)))
			for _, cb := range cbs {
				cb(accounts)
			}
		}
	}
}

// Close stops the account watcher and releases the RPC connection.
func (p *RPCProvider) Close() {
	p.mu.Lock()
	if p.watching {
		close(p.stopCh)
		p.watching = false
	}
	p.mu.Unlock()
	p.rpc.Close()
}

func sameAccounts(a, b []common.Address) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// wrapRPCError preserves the provider's JSON-RPC error code when one exists,
// so user rejections (code 4001) survive the trip through the error chain.
func wrapRPCError(prefix string, err error) error {
	var rpcErr rpc.Error
	if ok := asRPCError(err, &rpcErr); ok {
		return fmt.Errorf("%s: %w", prefix, &ProviderError{
			Code:    rpcErr.ErrorCode(),
			Message: rpcErr.Error(),
		})
	}
	return fmt.Errorf("%s: %w", prefix, err)
}

func asRPCError(err error, target *rpc.Error) bool {
	for err != nil {
		if re, ok := err.(rpc.Error); ok {
			*target = re
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Compile-time interface check.
var _ Provider = (*RPCProvider)(nil)
