package chain_test

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"

	"github.com/atlas-desktop/trading-backend/internal/chain"
	"github.com/atlas-desktop/trading-backend/pkg/types"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type fakeClient struct {
	blockNumberErr error
	gasPrice       *big.Int
	tipCap         *big.Int
	header         *gethtypes.Header
	balance        *big.Int
	sendErr        error
}

func (f *fakeClient) BlockNumber(ctx context.Context) (uint64, error) {
	if f.blockNumberErr != nil {
		return 0, f.blockNumberErr
	}
	return 1, nil
}

func (f *fakeClient) HeaderByNumber(ctx context.Context, number *big.Int) (*gethtypes.Header, error) {
	if f.header != nil {
		return f.header, nil
	}
	return &gethtypes.Header{BaseFee: big.NewInt(0)}, nil
}

func (f *fakeClient) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	if f.tipCap != nil {
		return f.tipCap, nil
	}
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	if f.gasPrice != nil {
		return f.gasPrice, nil
	}
	return big.NewInt(20_000_000_000), nil
}

func (f *fakeClient) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	if f.balance != nil {
		return f.balance, nil
	}
	return big.NewInt(0), nil
}

func (f *fakeClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return 0, nil
}

func (f *fakeClient) SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error {
	return f.sendErr
}

func (f *fakeClient) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return nil, nil
}

func testChainConfig(eip1559 bool, rpcs ...string) types.ChainConfig {
	return types.ChainConfig{
		Name:          "testchain",
		RPCs:          rpcs,
		ChainID:       1,
		AvgGasCostUsd: decimal.NewFromFloat(0.5),
		EIP1559:       eip1559,
		Type:          types.ChainTypeMainnet,
	}
}

func testBudget() *types.BudgetTracker {
	return &types.BudgetTracker{BudgetUsd: decimal.NewFromInt(10), ReservePct: decimal.Zero}
}

func TestGasPriceGweiLegacy(t *testing.T) {
	dial := func(ctx context.Context, url string) (chain.Client, error) {
		return &fakeClient{gasPrice: big.NewInt(15_000_000_000)}, nil
	}
	m := chain.NewManager(zap.NewNop(), dial, []types.ChainConfig{testChainConfig(false, "rpc1")}, testBudget())

	gwei, err := m.GasPriceGwei(context.Background(), "testchain")
	if err != nil {
		t.Fatalf("GasPriceGwei: %v", err)
	}
	if !gwei.Equal(decimal.NewFromInt(15)) {
		t.Errorf("got %s gwei, want 15", gwei)
	}
}

func TestGasPriceGweiEIP1559(t *testing.T) {
	dial := func(ctx context.Context, url string) (chain.Client, error) {
		return &fakeClient{
			header: &gethtypes.Header{BaseFee: big.NewInt(10_000_000_000)},
			tipCap: big.NewInt(2_000_000_000),
		}, nil
	}
	m := chain.NewManager(zap.NewNop(), dial, []types.ChainConfig{testChainConfig(true, "rpc1")}, testBudget())

	gwei, err := m.GasPriceGwei(context.Background(), "testchain")
	if err != nil {
		t.Fatalf("GasPriceGwei: %v", err)
	}
	if !gwei.Equal(decimal.NewFromInt(12)) {
		t.Errorf("got %s gwei, want 12 (base+priority)", gwei)
	}
}

func TestClientFallsBackToNextRPCOnFailure(t *testing.T) {
	var dialed []string
	dial := func(ctx context.Context, url string) (chain.Client, error) {
		dialed = append(dialed, url)
		if url == "bad-rpc" {
			return nil, errors.New("dial refused")
		}
		return &fakeClient{}, nil
	}
	m := chain.NewManager(zap.NewNop(), dial, []types.ChainConfig{testChainConfig(false, "bad-rpc", "good-rpc")}, testBudget())

	if _, err := m.GasPriceGwei(context.Background(), "testchain"); err != nil {
		t.Fatalf("GasPriceGwei: %v", err)
	}
	if len(dialed) != 2 || dialed[0] != "bad-rpc" || dialed[1] != "good-rpc" {
		t.Errorf("got dial order %v, want [bad-rpc good-rpc]", dialed)
	}
}

func TestClientUnknownChainReturnsError(t *testing.T) {
	m := chain.NewManager(zap.NewNop(), nil, nil, testBudget())
	if _, err := m.GasPriceGwei(context.Background(), "nonexistent"); err == nil {
		t.Error("expected an error for an unconfigured chain")
	}
}

func TestCanAffordReflectsBudget(t *testing.T) {
	budget := &types.BudgetTracker{BudgetUsd: decimal.NewFromFloat(1), ReservePct: decimal.Zero}
	m := chain.NewManager(zap.NewNop(), nil, []types.ChainConfig{testChainConfig(false, "rpc1")}, budget)

	if !m.CanAfford("testchain") {
		t.Error("expected to afford a 0.5 usd tx against a 1 usd budget")
	}
	budget.RecordSpend("testchain", decimal.NewFromFloat(0.9))
	if m.CanAfford("testchain") {
		t.Error("expected not to afford after spending most of the budget")
	}
}

func TestSendTransactionRecordsSpendAndInvokesOnSpend(t *testing.T) {
	dial := func(ctx context.Context, url string) (chain.Client, error) {
		return &fakeClient{}, nil
	}
	budget := testBudget()
	m := chain.NewManager(zap.NewNop(), dial, []types.ChainConfig{testChainConfig(false, "rpc1")}, budget)

	var snapshot types.BudgetTracker
	calls := 0
	m.OnSpend = func(b types.BudgetTracker) {
		calls++
		snapshot = b
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	var ecdsaKey *ecdsa.PrivateKey = key

	to := common.HexToAddress("0x000000000000000000000000000000000000dead")
	if _, err := m.SendTransaction(context.Background(), "testchain", ecdsaKey, to, big.NewInt(0), nil, 21000); err != nil {
		t.Fatalf("SendTransaction: %v", err)
	}

	if calls != 1 {
		t.Fatalf("got %d OnSpend calls, want 1", calls)
	}
	if !snapshot.TotalSpent.Equal(decimal.NewFromFloat(0.5)) {
		t.Errorf("got TotalSpent %s, want 0.5", snapshot.TotalSpent)
	}
}

func TestSendTransactionPropagatesBroadcastError(t *testing.T) {
	dial := func(ctx context.Context, url string) (chain.Client, error) {
		return &fakeClient{sendErr: errors.New("broadcast rejected")}, nil
	}
	m := chain.NewManager(zap.NewNop(), dial, []types.ChainConfig{testChainConfig(false, "rpc1")}, testBudget())

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	to := common.HexToAddress("0x000000000000000000000000000000000000dead")
	if _, err := m.SendTransaction(context.Background(), "testchain", key, to, big.NewInt(0), nil, 21000); err == nil {
		t.Error("expected an error when broadcast fails")
	}
}
