// Package chain manages the farming agent's EVM connectivity: a
// per-chain RPC fallback pool with liveness caching, EIP-1559/legacy
// gas estimation, a low-gas waiter, and the gas-budget guard
// transactions are checked against before every mainnet submission.
package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/atlas-desktop/trading-backend/pkg/types"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// defaultPriorityFeeGwei is used when the node does not expose
// eth_maxPriorityFeePerGas.
var defaultPriorityFeeGwei = decimal.NewFromInt(1)

var weiPerEth = decimal.New(1, 18)
var gweiPerEth = decimal.New(1, 9)

// Client is the narrow JSON-RPC surface the manager needs per chain.
// *ethclient.Client satisfies it directly; declared as an interface so
// the fallback-pool and gas logic can be exercised against a fake
// without a live node.
type Client interface {
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*gethtypes.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Dialer opens an RPC connection for a given URL. Production wiring
// is ethclient.DialContext; an interface here keeps the pool logic
// dial-implementation-agnostic.
type Dialer func(ctx context.Context, url string) (Client, error)

// Manager owns the RPC fallback pool, gas estimation, and budget
// guard for every configured chain.
type Manager struct {
	mu      sync.Mutex
	logger  *zap.Logger
	configs map[string]types.ChainConfig
	clients map[string]cachedClient
	dial    Dialer
	budget  *types.BudgetTracker

	// OnSpend, if set, is invoked with a snapshot of the budget tracker
	// after every recorded spend, so the caller can persist it
	// atomically to disk.
	OnSpend func(types.BudgetTracker)
}

type cachedClient struct {
	client Client
	rpcURL string
}

// NewManager constructs a Manager for the given chain list, sharing
// the persisted budget tracker.
func NewManager(logger *zap.Logger, dial Dialer, configs []types.ChainConfig, budget *types.BudgetTracker) *Manager {
	m := &Manager{
		logger:  logger,
		configs: make(map[string]types.ChainConfig, len(configs)),
		clients: make(map[string]cachedClient, len(configs)),
		dial:    dial,
		budget:  budget,
	}
	for _, c := range configs {
		m.configs[c.Name] = c
	}
	return m
}

// Config returns the chain's static configuration.
func (m *Manager) Config(chain string) (types.ChainConfig, bool) {
	cfg, ok := m.configs[chain]
	return cfg, ok
}

// Budget returns the shared budget tracker.
func (m *Manager) Budget() *types.BudgetTracker { return m.budget }

// CanAfford reports whether the remaining budget covers one average
// transaction on the given chain.
func (m *Manager) CanAfford(chain string) bool {
	cfg, ok := m.configs[chain]
	if !ok {
		return false
	}
	return m.budget.CanAfford(cfg)
}

// Warm probes every configured chain's RPC pool concurrently at
// startup so the first real call doesn't pay the full fallback-chain
// latency. Failures are logged, not returned — an unreachable chain at
// boot may recover by the time it's actually needed.
func (m *Manager) Warm(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for name := range m.configs {
		name := name
		g.Go(func() error {
			if _, err := m.client(gctx, name); err != nil {
				m.logger.Warn("chain warm-up failed", zap.String("chain", name), zap.Error(err))
			}
			return nil
		})
	}
	return g.Wait()
}

// client returns the first RPC that answers a liveness check
// (eth_blockNumber), caching it until it fails, at which point it is
// purged and the pool is retried from the top.
func (m *Manager) client(ctx context.Context, chain string) (Client, error) {
	m.mu.Lock()
	cached, ok := m.clients[chain]
	m.mu.Unlock()
	if ok {
		if _, err := cached.client.BlockNumber(ctx); err == nil {
			return cached.client, nil
		}
		m.mu.Lock()
		delete(m.clients, chain)
		m.mu.Unlock()
	}

	cfg, ok := m.configs[chain]
	if !ok {
		return nil, fmt.Errorf("chain: unknown chain %q", chain)
	}

	var lastErr error
	for _, url := range cfg.RPCs {
		c, err := m.dial(ctx, url)
		if err != nil {
			lastErr = err
			continue
		}
		if _, err := c.BlockNumber(ctx); err != nil {
			lastErr = err
			continue
		}
		m.mu.Lock()
		m.clients[chain] = cachedClient{client: c, rpcURL: url}
		m.mu.Unlock()
		m.logger.Info("chain rpc connected", zap.String("chain", chain), zap.String("rpc", url))
		return c, nil
	}
	return nil, fmt.Errorf("chain: all RPCs exhausted for %q: %w", chain, lastErr)
}

// GasPriceGwei returns the current gas price for chain, honoring
// EIP-1559 (baseFee + priority fee) or legacy gasPrice.
func (m *Manager) GasPriceGwei(ctx context.Context, chain string) (decimal.Decimal, error) {
	cfg, ok := m.configs[chain]
	if !ok {
		return decimal.Zero, fmt.Errorf("chain: unknown chain %q", chain)
	}
	c, err := m.client(ctx, chain)
	if err != nil {
		return decimal.Zero, err
	}

	totalWei, err := m.gasFeeWei(ctx, c, cfg)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromBigInt(totalWei, 0).Div(gweiPerEth), nil
}

// gasFeeWei returns the fee-per-gas the manager would currently use
// for a transaction on cfg: baseFee+priority for EIP-1559 chains, the
// legacy gasPrice otherwise.
func (m *Manager) gasFeeWei(ctx context.Context, c Client, cfg types.ChainConfig) (*big.Int, error) {
	if !cfg.EIP1559 {
		price, err := c.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("chain: fetching gas price: %w", err)
		}
		return price, nil
	}
	header, err := c.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: fetching latest header: %w", err)
	}
	baseFee := header.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(0)
	}
	priority, err := c.SuggestGasTipCap(ctx)
	if err != nil {
		priority = defaultPriorityFeeGwei.Mul(gweiPerEth).BigInt()
	}
	return new(big.Int).Add(baseFee, priority), nil
}

// WaitForLowGas polls the estimate at poll until gas <= maxGwei or the
// context/timeout elapses, returning whether gas came in under budget.
func (m *Manager) WaitForLowGas(ctx context.Context, chain string, maxGwei decimal.Decimal, poll, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		gas, err := m.GasPriceGwei(ctx, chain)
		if err == nil && gas.LessThanOrEqual(maxGwei) {
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
		}
	}
}

// BalanceEth returns the native balance of address on chain, in ETH.
func (m *Manager) BalanceEth(ctx context.Context, chain, address string) (decimal.Decimal, error) {
	c, err := m.client(ctx, chain)
	if err != nil {
		return decimal.Zero, err
	}
	wei, err := c.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("chain: fetching balance: %w", err)
	}
	return decimal.NewFromBigInt(wei, 0).Div(weiPerEth), nil
}

// Call performs a read-only contract call (eth_call) against to on
// chain, returning the raw ABI-encoded result.
func (m *Manager) Call(ctx context.Context, chain string, to common.Address, data []byte) ([]byte, error) {
	c, err := m.client(ctx, chain)
	if err != nil {
		return nil, err
	}
	out, err := c.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: eth_call to %s: %w", to.Hex(), err)
	}
	return out, nil
}

// SendTransaction fills in chainId/gas price/nonce, signs with key,
// broadcasts, and records the chain's flat average gas cost against
// the budget. Returns the transaction hash.
func (m *Manager) SendTransaction(ctx context.Context, chain string, key *ecdsa.PrivateKey, to common.Address, value *big.Int, data []byte, gasLimit uint64) (string, error) {
	cfg, ok := m.configs[chain]
	if !ok {
		return "", fmt.Errorf("chain: unknown chain %q", chain)
	}
	c, err := m.client(ctx, chain)
	if err != nil {
		return "", err
	}

	from := crypto.PubkeyToAddress(key.PublicKey)
	nonce, err := c.PendingNonceAt(ctx, from)
	if err != nil {
		return "", fmt.Errorf("chain: fetching nonce: %w", err)
	}

	var tx *gethtypes.Transaction
	chainID := big.NewInt(cfg.ChainID)
	if cfg.EIP1559 {
		header, err := c.HeaderByNumber(ctx, nil)
		if err != nil {
			return "", fmt.Errorf("chain: fetching latest header: %w", err)
		}
		baseFee := header.BaseFee
		if baseFee == nil {
			baseFee = big.NewInt(0)
		}
		priority, err := c.SuggestGasTipCap(ctx)
		if err != nil {
			priority = defaultPriorityFeeGwei.Mul(gweiPerEth).BigInt()
		}
		feeCap := new(big.Int).Add(new(big.Int).Mul(baseFee, big.NewInt(2)), priority)
		tx = gethtypes.NewTx(&gethtypes.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     nonce,
			GasTipCap: priority,
			GasFeeCap: feeCap,
			Gas:       gasLimit,
			To:        &to,
			Value:     value,
			Data:      data,
		})
	} else {
		gasPrice, err := c.SuggestGasPrice(ctx)
		if err != nil {
			return "", fmt.Errorf("chain: fetching gas price: %w", err)
		}
		tx = gethtypes.NewTx(&gethtypes.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      gasLimit,
			To:       &to,
			Value:    value,
			Data:     data,
		})
	}

	signer := gethtypes.LatestSignerForChainID(chainID)
	signed, err := gethtypes.SignTx(tx, signer, key)
	if err != nil {
		return "", fmt.Errorf("chain: signing transaction: %w", err)
	}

	if err := c.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("chain: broadcasting transaction: %w", err)
	}

	m.budget.RecordSpend(chain, cfg.AvgGasCostUsd)
	if m.budget.Remaining().LessThan(m.budget.BudgetUsd.Mul(decimal.NewFromFloat(0.2))) {
		m.logger.Warn("farming budget running low", zap.String("chain", chain), zap.String("remaining", m.budget.Remaining().String()))
	}
	if m.OnSpend != nil {
		m.OnSpend(*m.budget)
	}

	return signed.Hash().Hex(), nil
}
