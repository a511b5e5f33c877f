package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/atlas-desktop/trading-backend/internal/adapter"
	"github.com/atlas-desktop/trading-backend/internal/chain"
	"github.com/atlas-desktop/trading-backend/internal/execution"
	"github.com/atlas-desktop/trading-backend/internal/farming"
	"github.com/atlas-desktop/trading-backend/internal/notify"
	"github.com/atlas-desktop/trading-backend/internal/onchain"
	"github.com/atlas-desktop/trading-backend/internal/optimizer"
	"github.com/atlas-desktop/trading-backend/internal/planner"
	"github.com/atlas-desktop/trading-backend/internal/sentiment"
	"github.com/atlas-desktop/trading-backend/internal/tracker"
	"github.com/atlas-desktop/trading-backend/internal/trading"
	"github.com/atlas-desktop/trading-backend/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type stubVenue struct{}

func (stubVenue) AccountState(ctx context.Context, namespace string) (types.AccountState, error) {
	return types.AccountState{AccountValue: decimal.NewFromInt(1000), Positions: map[string]*types.VenuePosition{}}, nil
}
func (stubVenue) MarketOrder(ctx context.Context, asset string, dir types.Direction, size decimal.Decimal, leverage int) (types.Fill, error) {
	return types.Fill{}, nil
}
func (stubVenue) PlaceStopLoss(ctx context.Context, asset string, dir types.Direction, triggerPx, size decimal.Decimal) error {
	return nil
}
func (stubVenue) PlaceTakeProfit(ctx context.Context, asset string, dir types.Direction, triggerPx, size decimal.Decimal) error {
	return nil
}
func (stubVenue) ReduceOnlyClose(ctx context.Context, asset string, dir types.Direction, size decimal.Decimal) error {
	return nil
}
func (stubVenue) RecentFills(ctx context.Context, asset string, since time.Time) ([]types.Fill, error) {
	return nil, nil
}
func (stubVenue) TransferToNamespace(ctx context.Context, namespace string, amountUsd decimal.Decimal) error {
	return nil
}
func (stubVenue) TransferFromNamespace(ctx context.Context, namespace string, amountUsd decimal.Decimal) error {
	return nil
}

type stubMarketData struct{}

func (stubMarketData) Candles(ctx context.Context, asset, interval string, limit int) ([]types.OHLCV, error) {
	return nil, nil
}
func (stubMarketData) OrderBook(ctx context.Context, asset string) (types.OrderBookSnapshot, error) {
	return types.OrderBookSnapshot{}, nil
}

type stubOracle struct{}

func (stubOracle) Query(ctx context.Context, prompt string) (string, error) { return "", nil }

func newTestTradingAgent(t *testing.T) (*trading.Agent, *tracker.Tracker) {
	t.Helper()
	dir := t.TempDir()
	logger := zap.NewNop()
	cfg := types.DefaultTradingConfig()

	tr, err := tracker.New(logger, filepath.Join(dir, "tracker.json"))
	if err != nil {
		t.Fatalf("tracker.New: %v", err)
	}
	ad, err := adapter.New(logger, filepath.Join(dir, "adapter.json"), adapter.ParamsFromConfig(cfg))
	if err != nil {
		t.Fatalf("adapter.New: %v", err)
	}
	opt, err := optimizer.New(logger, filepath.Join(dir, "optimizer.json"), stubOracle{}, optimizer.ParamsFromConfig(cfg))
	if err != nil {
		t.Fatalf("optimizer.New: %v", err)
	}
	posMgr, err := execution.NewManager(logger, filepath.Join(dir, "posmgr.json"), stubVenue{}, tr, execution.ParamsFromConfig(cfg))
	if err != nil {
		t.Fatalf("execution.NewManager: %v", err)
	}
	sent := sentiment.NewAnalyzer(logger, stubOracle{}, time.Hour)

	agent := trading.New(logger, trading.Config{
		Trading:  cfg,
		Venue:    stubVenue{},
		Market:   stubMarketData{},
		Tracker:  tr,
		Adapter:  ad,
		Optimize: opt,
		PosMgr:   posMgr,
		Sent:     sent,
		Notifier: notify.NoOp{},
	})
	return agent, tr
}

func newTestFarmingAgent(t *testing.T) *farming.Agent {
	t.Helper()
	dir := t.TempDir()
	logger := zap.NewNop()
	dial := func(ctx context.Context, url string) (chain.Client, error) { return nil, nil }
	fcfg := types.DefaultFarmingConfig()
	budget := &types.BudgetTracker{BudgetUsd: decimal.NewFromInt(10), ReservePct: decimal.Zero}
	chains := chain.NewManager(logger, dial, fcfg.Chains, budget)

	p, err := planner.New(logger, filepath.Join(dir, "plan.json"), fcfg)
	if err != nil {
		t.Fatalf("planner.New: %v", err)
	}

	a, err := farming.New(logger, filepath.Join(dir, "farming.json"), farming.Config{
		Planner:  p,
		Chains:   chains,
		Executor: noopExecutor{},
		Notifier: notify.NoOp{},
		Wallet:   onchain.Wallet{},
		DryRun:   true,
	})
	if err != nil {
		t.Fatalf("farming.New: %v", err)
	}
	return a
}

type noopExecutor struct{}

func (noopExecutor) Execute(ctx context.Context, entry types.PlanEntry, wallet onchain.Wallet) (string, error) {
	return "", nil
}

func testServer(t *testing.T, withFarming bool) *Server {
	t.Helper()
	agent, tr := newTestTradingAgent(t)
	var farmingAgent *farming.Agent
	if withFarming {
		farmingAgent = newTestFarmingAgent(t)
	}
	cfg := types.ServerConfig{Host: "127.0.0.1", Port: 0}
	return NewServer(zap.NewNop(), cfg, agent, farmingAgent, tr)
}

func TestHandleHealth(t *testing.T) {
	s := testServer(t, true)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("got status field %v, want ok", body["status"])
	}
}

func TestHandleTradingStatus(t *testing.T) {
	s := testServer(t, true)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/trading/status", nil)
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
	var status trading.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !status.Equity.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("got Equity %s, want 1000", status.Equity)
	}
}

func TestHandleFarmingStatusWithNoFarmingAgentReturns404(t *testing.T) {
	s := testServer(t, false)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/farming/status", nil)
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("got status %d, want 404", rec.Code)
	}
}

func TestHandleFarmingStatusWithAgentConfigured(t *testing.T) {
	s := testServer(t, true)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/farming/status", nil)
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
}

func TestHandleTradesDefaultsLimitOnInvalidQuery(t *testing.T) {
	s := testServer(t, true)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/trades?limit=not-a-number", nil)
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if _, ok := body["open"]; !ok {
		t.Error("expected an \"open\" field in the trades response")
	}
	if _, ok := body["closed"]; !ok {
		t.Error("expected a \"closed\" field in the trades response")
	}
}
