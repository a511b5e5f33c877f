package testnet_test

import (
	"context"
	"math/big"
	"testing"

	"github.com/atlas-desktop/trading-backend/internal/chain"
	"github.com/atlas-desktop/trading-backend/internal/testnet"
	"github.com/atlas-desktop/trading-backend/pkg/types"
	"github.com/ethereum/go-ethereum"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type fakeClient struct {
	balance *big.Int
	sendErr error
	sent    int
}

func (f *fakeClient) BlockNumber(ctx context.Context) (uint64, error) { return 1, nil }
func (f *fakeClient) HeaderByNumber(ctx context.Context, number *big.Int) (*gethtypes.Header, error) {
	return &gethtypes.Header{BaseFee: big.NewInt(0)}, nil
}
func (f *fakeClient) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}
func (f *fakeClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}
func (f *fakeClient) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return f.balance, nil
}
func (f *fakeClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return 0, nil
}
func (f *fakeClient) SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error {
	f.sent++
	return f.sendErr
}
func (f *fakeClient) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return nil, nil
}

func testTestnetChain(name string) types.ChainConfig {
	return types.ChainConfig{Name: name, RPCs: []string{"rpc"}, Type: types.ChainTypeTestnet, ChainID: 1}
}

func testMainnetChain(name string) types.ChainConfig {
	return types.ChainConfig{Name: name, RPCs: []string{"rpc"}, Type: types.ChainTypeMainnet, ChainID: 1}
}

func TestRunCycleSkipsUnfundedChains(t *testing.T) {
	fc := &fakeClient{balance: big.NewInt(0)}
	dial := func(ctx context.Context, url string) (chain.Client, error) { return fc, nil }
	chains := chain.NewManager(zap.NewNop(), dial, []types.ChainConfig{testTestnetChain("monad_testnet")}, &types.BudgetTracker{BudgetUsd: decimal.NewFromInt(10)})

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	f := testnet.New(zap.NewNop(), chains, []types.ChainConfig{testTestnetChain("monad_testnet")}, key)

	if err := f.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if fc.sent != 0 {
		t.Errorf("got %d sends on an unfunded chain, want 0", fc.sent)
	}
}

func TestRunCycleSendsDustOnFundedChains(t *testing.T) {
	fc := &fakeClient{balance: big.NewInt(1_000_000_000_000_000_000)}
	dial := func(ctx context.Context, url string) (chain.Client, error) { return fc, nil }
	chains := chain.NewManager(zap.NewNop(), dial, []types.ChainConfig{testTestnetChain("monad_testnet")}, &types.BudgetTracker{BudgetUsd: decimal.NewFromInt(10)})

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	f := testnet.New(zap.NewNop(), chains, []types.ChainConfig{testTestnetChain("monad_testnet")}, key)

	if err := f.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if fc.sent != 1 {
		t.Errorf("got %d sends on a funded chain, want 1", fc.sent)
	}
}

func TestRunCycleIgnoresMainnetChains(t *testing.T) {
	fc := &fakeClient{balance: big.NewInt(1_000_000_000_000_000_000)}
	dial := func(ctx context.Context, url string) (chain.Client, error) { return fc, nil }
	configs := []types.ChainConfig{testMainnetChain("base"), testTestnetChain("monad_testnet")}
	chains := chain.NewManager(zap.NewNop(), dial, configs, &types.BudgetTracker{BudgetUsd: decimal.NewFromInt(10)})

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	f := testnet.New(zap.NewNop(), chains, configs, key)

	if err := f.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if fc.sent != 1 {
		t.Errorf("got %d sends across mainnet+testnet configs, want 1 (testnet only)", fc.sent)
	}
}

func TestRunCycleReturnsErrorWhenSendFails(t *testing.T) {
	fc := &fakeClient{balance: big.NewInt(1_000_000_000_000_000_000), sendErr: context.DeadlineExceeded}
	dial := func(ctx context.Context, url string) (chain.Client, error) { return fc, nil }
	chains := chain.NewManager(zap.NewNop(), dial, []types.ChainConfig{testTestnetChain("monad_testnet")}, &types.BudgetTracker{BudgetUsd: decimal.NewFromInt(10)})

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	f := testnet.New(zap.NewNop(), chains, []types.ChainConfig{testTestnetChain("monad_testnet")}, key)

	if err := f.RunCycle(context.Background()); err == nil {
		t.Fatal("expected RunCycle to return an error when SendTransaction fails")
	}
	if fc.sent != 1 {
		t.Errorf("got %d send attempts, want 1", fc.sent)
	}
}

func TestRunCycleContinuesPastAFailingChain(t *testing.T) {
	failing := &fakeClient{balance: big.NewInt(1_000_000_000_000_000_000), sendErr: context.DeadlineExceeded}
	ok := &fakeClient{balance: big.NewInt(1_000_000_000_000_000_000)}
	dial := func(ctx context.Context, url string) (chain.Client, error) {
		if url == "rpc-fail" {
			return failing, nil
		}
		return ok, nil
	}
	configs := []types.ChainConfig{
		{Name: "bad_testnet", RPCs: []string{"rpc-fail"}, Type: types.ChainTypeTestnet, ChainID: 1},
		{Name: "good_testnet", RPCs: []string{"rpc-ok"}, Type: types.ChainTypeTestnet, ChainID: 2},
	}
	chains := chain.NewManager(zap.NewNop(), dial, configs, &types.BudgetTracker{BudgetUsd: decimal.NewFromInt(10)})

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	f := testnet.New(zap.NewNop(), chains, configs, key)

	if err := f.RunCycle(context.Background()); err == nil {
		t.Fatal("expected an aggregated error from the failing chain")
	}
	if failing.sent != 1 {
		t.Errorf("got %d sends on the failing chain, want 1", failing.sent)
	}
	if ok.sent != 1 {
		t.Errorf("got %d sends on the healthy chain, want 1 (a failure on one chain must not skip the rest)", ok.sent)
	}
}

func TestRunCycleWithNoTestnetsIsANoOp(t *testing.T) {
	dial := func(ctx context.Context, url string) (chain.Client, error) { return nil, nil }
	configs := []types.ChainConfig{testMainnetChain("base")}
	chains := chain.NewManager(zap.NewNop(), dial, configs, &types.BudgetTracker{BudgetUsd: decimal.NewFromInt(10)})

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	f := testnet.New(zap.NewNop(), chains, configs, key)

	if err := f.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
}
