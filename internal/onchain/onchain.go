// Package onchain translates a farming agent plan entry into a signed
// EVM transaction: native self-transfers, Uniswap-V3-style single-hop
// swaps, ERC20 approvals (idempotent against current allowance), and
// liquidity-add calls, each going through internal/chain for RPC
// access, gas, and budget tracking.
package onchain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/atlas-desktop/trading-backend/internal/chain"
	"github.com/atlas-desktop/trading-backend/pkg/types"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Wallet is the signing key the executor transacts on behalf of.
type Wallet struct {
	Address common.Address
	Key     *ecdsa.PrivateKey
}

// swapFeeTier is the fixed Uniswap-V3-style pool fee (0.3%) used for
// every single-hop swap: acceptable for the micro notionals this
// executor moves.
const swapFeeTier = 3000

const deadlineWindow = 5 * time.Minute
const selfTransferGas = 21000
const erc20TransferGas = 80000
const swapGas = 220000
const addLiquidityGas = 280000

var erc20ABI = mustABI(`[
	{"name":"approve","type":"function","stateMutability":"nonpayable",
	 "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]},
	{"name":"balanceOf","type":"function","stateMutability":"view",
	 "inputs":[{"name":"account","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"name":"allowance","type":"function","stateMutability":"view",
	 "inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]}
]`)

var routerABI = mustABI(`[
	{"name":"exactInputSingle","type":"function","stateMutability":"payable",
	 "inputs":[{"name":"params","type":"tuple","components":[
		{"name":"tokenIn","type":"address"},
		{"name":"tokenOut","type":"address"},
		{"name":"fee","type":"uint24"},
		{"name":"recipient","type":"address"},
		{"name":"deadline","type":"uint256"},
		{"name":"amountIn","type":"uint256"},
		{"name":"amountOutMinimum","type":"uint256"},
		{"name":"sqrtPriceLimitX96","type":"uint160"}]}],
	 "outputs":[{"name":"amountOut","type":"uint256"}]}
]`)

var lpRouterABI = mustABI(`[
	{"name":"addLiquidityETH","type":"function","stateMutability":"payable",
	 "inputs":[
		{"name":"token","type":"address"},
		{"name":"amountTokenDesired","type":"uint256"},
		{"name":"amountTokenMin","type":"uint256"},
		{"name":"amountETHMin","type":"uint256"},
		{"name":"to","type":"address"},
		{"name":"deadline","type":"uint256"}],
	 "outputs":[
		{"name":"amountToken","type":"uint256"},
		{"name":"amountETH","type":"uint256"},
		{"name":"liquidity","type":"uint256"}]}
]`)

func mustABI(json string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(json))
	if err != nil {
		panic(fmt.Sprintf("onchain: invalid embedded ABI: %v", err))
	}
	return parsed
}

// TokenReader is the read-only ERC20 surface the executor needs to
// decide whether a swap/LP action must degrade (zero balance).
type TokenReader interface {
	BalanceOf(ctx context.Context, chainName, token, owner string) (*big.Int, error)
	Allowance(ctx context.Context, chainName, token, owner, spender string) (*big.Int, error)
}

// ChainCaller is the read-only eth_call surface TokenReader needs;
// *chain.Manager satisfies it.
type ChainCaller interface {
	Call(ctx context.Context, chain string, to common.Address, data []byte) ([]byte, error)
}

// ERC20Reader is the production TokenReader: it issues eth_call
// requests for balanceOf/allowance through the chain manager's RPC
// pool and decodes the ABI-encoded uint256 result.
type ERC20Reader struct {
	chains ChainCaller
}

// NewERC20Reader constructs an ERC20Reader.
func NewERC20Reader(chains ChainCaller) *ERC20Reader {
	return &ERC20Reader{chains: chains}
}

// BalanceOf implements TokenReader.
func (r *ERC20Reader) BalanceOf(ctx context.Context, chainName, token, owner string) (*big.Int, error) {
	calldata, err := erc20ABI.Pack("balanceOf", common.HexToAddress(owner))
	if err != nil {
		return nil, fmt.Errorf("onchain: encoding balanceOf: %w", err)
	}
	out, err := r.chains.Call(ctx, chainName, common.HexToAddress(token), calldata)
	if err != nil {
		return nil, err
	}
	var balance *big.Int
	if err := erc20ABI.UnpackIntoInterface(&balance, "balanceOf", out); err != nil {
		return nil, fmt.Errorf("onchain: decoding balanceOf: %w", err)
	}
	return balance, nil
}

// Allowance implements TokenReader.
func (r *ERC20Reader) Allowance(ctx context.Context, chainName, token, owner, spender string) (*big.Int, error) {
	calldata, err := erc20ABI.Pack("allowance", common.HexToAddress(owner), common.HexToAddress(spender))
	if err != nil {
		return nil, fmt.Errorf("onchain: encoding allowance: %w", err)
	}
	out, err := r.chains.Call(ctx, chainName, common.HexToAddress(token), calldata)
	if err != nil {
		return nil, err
	}
	var allowance *big.Int
	if err := erc20ABI.UnpackIntoInterface(&allowance, "allowance", out); err != nil {
		return nil, fmt.Errorf("onchain: decoding allowance: %w", err)
	}
	return allowance, nil
}

// Executor dispatches plan entries to chain transactions.
type Executor struct {
	logger  *zap.Logger
	chains  *chain.Manager
	tokens  TokenReader
	dryRun  bool
}

// NewExecutor constructs an Executor.
func NewExecutor(logger *zap.Logger, chains *chain.Manager, tokens TokenReader, dryRun bool) *Executor {
	return &Executor{logger: logger, chains: chains, tokens: tokens, dryRun: dryRun}
}

// Execute dispatches a single plan entry, returning its transaction
// hash on success.
func (e *Executor) Execute(ctx context.Context, entry types.PlanEntry, wallet Wallet) (string, error) {
	cfg, ok := e.chains.Config(entry.Chain)
	if !ok {
		return "", fmt.Errorf("onchain: unknown chain %q", entry.Chain)
	}
	if cfg.Type == types.ChainTypeMainnet && !e.chains.CanAfford(entry.Chain) {
		return "", fmt.Errorf("onchain: budget exhausted for chain %q", entry.Chain)
	}
	if e.dryRun {
		e.logger.Info("dry run: skipping action", zap.String("type", string(entry.ActionType)), zap.String("chain", entry.Chain))
		return "dry_run_" + entry.ID, nil
	}

	switch entry.ActionType {
	case types.ActionSelfTransfer:
		return e.selfTransfer(ctx, cfg, wallet, entry.Params["amountEth"])
	case types.ActionSwapEthToToken:
		return e.swapEthToToken(ctx, cfg, wallet, entry.Params)
	case types.ActionSwapTokenToEth:
		return e.swapTokenToEth(ctx, cfg, wallet, entry.Params)
	case types.ActionLPAdd:
		return e.lpAdd(ctx, cfg, wallet, entry.Params)
	case types.ActionLPRemove:
		// LP-token holdings are untracked by design (spec §4.12); the
		// removal path always degrades to a self-transfer.
		return e.selfTransfer(ctx, cfg, wallet, "0.00005")
	default:
		return "", fmt.Errorf("onchain: unknown action type %q", entry.ActionType)
	}
}

func (e *Executor) selfTransfer(ctx context.Context, cfg types.ChainConfig, wallet Wallet, amountEthStr string) (string, error) {
	valueWei := ethToWei(amountEthStr)
	return e.chains.SendTransaction(ctx, cfg.Name, wallet.Key, wallet.Address, valueWei, nil, selfTransferGas)
}

func (e *Executor) swapEthToToken(ctx context.Context, cfg types.ChainConfig, wallet Wallet, params map[string]string) (string, error) {
	tokenOut := common.HexToAddress(params["tokenOut"])
	amountWei := ethToWei(params["amountEth"])

	deadline := big.NewInt(time.Now().Add(deadlineWindow).Unix())
	calldata, err := routerABI.Pack("exactInputSingle", struct {
		TokenIn           common.Address
		TokenOut          common.Address
		Fee               *big.Int
		Recipient         common.Address
		Deadline          *big.Int
		AmountIn          *big.Int
		AmountOutMinimum  *big.Int
		SqrtPriceLimitX96 *big.Int
	}{
		TokenIn:           common.HexToAddress(cfg.WrappedNative),
		TokenOut:          tokenOut,
		Fee:               big.NewInt(swapFeeTier),
		Recipient:         wallet.Address,
		Deadline:          deadline,
		AmountIn:          amountWei,
		AmountOutMinimum:  big.NewInt(0), // acceptable for micro notionals
		SqrtPriceLimitX96: big.NewInt(0),
	})
	if err != nil {
		return "", fmt.Errorf("onchain: encoding exactInputSingle: %w", err)
	}

	router := common.HexToAddress(cfg.SwapRouter)
	return e.chains.SendTransaction(ctx, cfg.Name, wallet.Key, router, amountWei, calldata, swapGas)
}

func (e *Executor) swapTokenToEth(ctx context.Context, cfg types.ChainConfig, wallet Wallet, params map[string]string) (string, error) {
	tokenIn := params["tokenIn"]
	balance, err := e.tokens.BalanceOf(ctx, cfg.Name, tokenIn, wallet.Address.Hex())
	if err != nil || balance == nil || balance.Sign() == 0 {
		// No balance to swap back — degrade to a self-transfer so the
		// day's schedule still produces on-chain activity.
		return e.selfTransfer(ctx, cfg, wallet, "0.00005")
	}

	if err := e.ensureApproval(ctx, cfg, wallet, tokenIn, cfg.SwapRouter, balance); err != nil {
		return "", err
	}

	deadline := big.NewInt(time.Now().Add(deadlineWindow).Unix())
	calldata, err := routerABI.Pack("exactInputSingle", struct {
		TokenIn           common.Address
		TokenOut          common.Address
		Fee               *big.Int
		Recipient         common.Address
		Deadline          *big.Int
		AmountIn          *big.Int
		AmountOutMinimum  *big.Int
		SqrtPriceLimitX96 *big.Int
	}{
		TokenIn:           common.HexToAddress(tokenIn),
		TokenOut:          common.HexToAddress(cfg.WrappedNative),
		Fee:               big.NewInt(swapFeeTier),
		Recipient:         wallet.Address,
		Deadline:          deadline,
		AmountIn:          balance,
		AmountOutMinimum:  big.NewInt(0),
		SqrtPriceLimitX96: big.NewInt(0),
	})
	if err != nil {
		return "", fmt.Errorf("onchain: encoding exactInputSingle: %w", err)
	}

	router := common.HexToAddress(cfg.SwapRouter)
	return e.chains.SendTransaction(ctx, cfg.Name, wallet.Key, router, big.NewInt(0), calldata, swapGas)
}

func (e *Executor) lpAdd(ctx context.Context, cfg types.ChainConfig, wallet Wallet, params map[string]string) (string, error) {
	token := params["token"]
	balance, err := e.tokens.BalanceOf(ctx, cfg.Name, token, wallet.Address.Hex())
	if err != nil || balance == nil || balance.Sign() == 0 {
		// No token to pair — degrade to the swap that would have
		// acquired it, matching the original farmer's fallback.
		return e.swapEthToToken(ctx, cfg, wallet, map[string]string{
			"tokenOut": token,
			"amountEth": params["amountEth"],
		})
	}

	if err := e.ensureApproval(ctx, cfg, wallet, token, cfg.LPRouter, balance); err != nil {
		return "", err
	}

	amountEthWei := ethToWei(params["amountEth"])
	deadline := big.NewInt(time.Now().Add(deadlineWindow).Unix())
	// 5% slippage floors on both legs of the pair.
	minToken := new(big.Int).Div(new(big.Int).Mul(balance, big.NewInt(95)), big.NewInt(100))
	minEth := new(big.Int).Div(new(big.Int).Mul(amountEthWei, big.NewInt(95)), big.NewInt(100))

	calldata, err := lpRouterABI.Pack("addLiquidityETH",
		common.HexToAddress(token), balance, minToken, minEth, wallet.Address, deadline,
	)
	if err != nil {
		return "", fmt.Errorf("onchain: encoding addLiquidityETH: %w", err)
	}

	router := common.HexToAddress(cfg.LPRouter)
	return e.chains.SendTransaction(ctx, cfg.Name, wallet.Key, router, amountEthWei, calldata, addLiquidityGas)
}

// ensureApproval approves spender for amount on token if the current
// allowance is insufficient; a sufficient allowance makes this a no-op
// (idempotent across repeated runs).
func (e *Executor) ensureApproval(ctx context.Context, cfg types.ChainConfig, wallet Wallet, token, spender string, amount *big.Int) error {
	current, err := e.tokens.Allowance(ctx, cfg.Name, token, wallet.Address.Hex(), spender)
	if err == nil && current != nil && current.Cmp(amount) >= 0 {
		return nil
	}

	calldata, err := erc20ABI.Pack("approve", common.HexToAddress(spender), amount)
	if err != nil {
		return fmt.Errorf("onchain: encoding approve: %w", err)
	}
	if _, err := e.chains.SendTransaction(ctx, cfg.Name, wallet.Key, common.HexToAddress(token), big.NewInt(0), calldata, erc20TransferGas); err != nil {
		return fmt.Errorf("onchain: approval transaction: %w", err)
	}
	return nil
}

func ethToWei(amountEth string) *big.Int {
	d, err := decimal.NewFromString(amountEth)
	if err != nil {
		return big.NewInt(0)
	}
	return d.Mul(decimal.New(1, 18)).BigInt()
}

