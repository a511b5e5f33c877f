package execution_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/atlas-desktop/trading-backend/internal/execution"
	"github.com/atlas-desktop/trading-backend/internal/tracker"
	"github.com/atlas-desktop/trading-backend/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type managerFakeVenue struct {
	account           types.AccountState
	nsAccounts        map[string]types.AccountState
	reduceCalls       int
	reduceSize        decimal.Decimal
	recentFills       []types.Fill
	recentFillsErr    error
	transferFromCalls []string
	transferFromAmt   decimal.Decimal
}

func (v *managerFakeVenue) AccountState(ctx context.Context, namespace string) (types.AccountState, error) {
	if namespace == "" {
		return v.account, nil
	}
	if acc, ok := v.nsAccounts[namespace]; ok {
		return acc, nil
	}
	return types.AccountState{Positions: map[string]*types.VenuePosition{}}, nil
}
func (v *managerFakeVenue) MarketOrder(ctx context.Context, asset string, dir types.Direction, size decimal.Decimal, leverage int) (types.Fill, error) {
	return types.Fill{}, nil
}
func (v *managerFakeVenue) PlaceStopLoss(ctx context.Context, asset string, dir types.Direction, triggerPx, size decimal.Decimal) error {
	return nil
}
func (v *managerFakeVenue) PlaceTakeProfit(ctx context.Context, asset string, dir types.Direction, triggerPx, size decimal.Decimal) error {
	return nil
}
func (v *managerFakeVenue) ReduceOnlyClose(ctx context.Context, asset string, dir types.Direction, size decimal.Decimal) error {
	v.reduceCalls++
	v.reduceSize = size
	return nil
}
func (v *managerFakeVenue) RecentFills(ctx context.Context, asset string, since time.Time) ([]types.Fill, error) {
	return v.recentFills, v.recentFillsErr
}
func (v *managerFakeVenue) TransferToNamespace(ctx context.Context, namespace string, amountUsd decimal.Decimal) error {
	return nil
}
func (v *managerFakeVenue) TransferFromNamespace(ctx context.Context, namespace string, amountUsd decimal.Decimal) error {
	v.transferFromCalls = append(v.transferFromCalls, namespace)
	v.transferFromAmt = amountUsd
	return nil
}

func testParams() execution.ManagerParams {
	return execution.ManagerParams{
		PartialTPThreshold: decimal.NewFromFloat(0.05),
		PartialTPFraction:  decimal.NewFromFloat(0.5),
		TrailActivation:    decimal.NewFromFloat(0.08),
		TrailDistance:      decimal.NewFromFloat(0.03),
		MaxDrawdownPct:     decimal.NewFromFloat(0.2),
	}
}

func TestTickTripsDrawdownCircuitBreaker(t *testing.T) {
	venue := &managerFakeVenue{account: types.AccountState{AccountValue: decimal.NewFromInt(1000), Positions: map[string]*types.VenuePosition{}}}
	tr, err := tracker.New(zap.NewNop(), filepath.Join(t.TempDir(), "tracker.json"))
	if err != nil {
		t.Fatalf("tracker.New: %v", err)
	}
	m, err := execution.NewManager(zap.NewNop(), filepath.Join(t.TempDir(), "posmgr.json"), venue, tr, testParams())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	if err := m.Tick(context.Background(), ""); err != nil {
		t.Fatalf("first Tick: %v", err)
	}
	if m.IsPaused() {
		t.Fatal("expected not paused after the peak-setting tick")
	}

	venue.account.AccountValue = decimal.NewFromInt(750) // 25% drawdown > 20% threshold
	if err := m.Tick(context.Background(), ""); err != nil {
		t.Fatalf("second Tick: %v", err)
	}
	if !m.IsPaused() {
		t.Error("expected the circuit breaker to trip on a 25% drawdown")
	}
}

func TestTickResetsDrawdownCircuitBreakerOnRecovery(t *testing.T) {
	venue := &managerFakeVenue{account: types.AccountState{AccountValue: decimal.NewFromInt(1000), Positions: map[string]*types.VenuePosition{}}}
	tr, err := tracker.New(zap.NewNop(), filepath.Join(t.TempDir(), "tracker.json"))
	if err != nil {
		t.Fatalf("tracker.New: %v", err)
	}
	m, err := execution.NewManager(zap.NewNop(), filepath.Join(t.TempDir(), "posmgr.json"), venue, tr, testParams())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	if err := m.Tick(context.Background(), ""); err != nil {
		t.Fatalf("tick 1: %v", err)
	}
	venue.account.AccountValue = decimal.NewFromInt(750)
	if err := m.Tick(context.Background(), ""); err != nil {
		t.Fatalf("tick 2: %v", err)
	}
	if !m.IsPaused() {
		t.Fatal("expected the circuit breaker to trip first")
	}

	venue.account.AccountValue = decimal.NewFromInt(950) // 5% drawdown, under half the threshold
	if err := m.Tick(context.Background(), ""); err != nil {
		t.Fatalf("tick 3: %v", err)
	}
	if m.IsPaused() {
		t.Error("expected the circuit breaker to reset on recovery")
	}
}

func TestTickExecutesPartialTakeProfitOnce(t *testing.T) {
	pos := &types.VenuePosition{
		Asset: "BTC", Direction: types.DirectionLong,
		Size: decimal.NewFromInt(1), EntryPx: decimal.NewFromInt(100),
		UnrealizedPnL: decimal.NewFromInt(10), // 10% pnl, threshold is 5%
	}
	venue := &managerFakeVenue{account: types.AccountState{
		AccountValue: decimal.NewFromInt(1000),
		Positions:    map[string]*types.VenuePosition{"BTC": pos},
	}}
	tr, err := tracker.New(zap.NewNop(), filepath.Join(t.TempDir(), "tracker.json"))
	if err != nil {
		t.Fatalf("tracker.New: %v", err)
	}
	m, err := execution.NewManager(zap.NewNop(), filepath.Join(t.TempDir(), "posmgr.json"), venue, tr, testParams())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	if err := m.Tick(context.Background(), ""); err != nil {
		t.Fatalf("first Tick: %v", err)
	}
	if venue.reduceCalls != 1 {
		t.Fatalf("got %d ReduceOnlyClose calls, want 1", venue.reduceCalls)
	}
	if !venue.reduceSize.Equal(decimal.NewFromFloat(0.5)) {
		t.Errorf("got reduce size %s, want 0.5 (50%% of a 1-unit position)", venue.reduceSize)
	}

	if err := m.Tick(context.Background(), ""); err != nil {
		t.Fatalf("second Tick: %v", err)
	}
	if venue.reduceCalls != 1 {
		t.Errorf("got %d ReduceOnlyClose calls after a second tick, want 1 (partial-TP is once-per-position)", venue.reduceCalls)
	}
}

func TestTickReconcilesCloseWhenPositionDisappears(t *testing.T) {
	pos := &types.VenuePosition{
		Asset: "BTC", Direction: types.DirectionLong,
		Size: decimal.NewFromInt(1), EntryPx: decimal.NewFromInt(100),
	}
	venue := &managerFakeVenue{account: types.AccountState{
		AccountValue: decimal.NewFromInt(1000),
		Positions:    map[string]*types.VenuePosition{"BTC": pos},
	}}
	tr, err := tracker.New(zap.NewNop(), filepath.Join(t.TempDir(), "tracker.json"))
	if err != nil {
		t.Fatalf("tracker.New: %v", err)
	}
	if _, err := tr.JournalEntry(types.TradeRecord{
		ID: "t1", Asset: "BTC", Direction: types.DirectionLong,
		Size: decimal.NewFromInt(1), EntryPx: decimal.NewFromInt(100),
		EntryTime: time.Now().UTC(), SLPct: decimal.NewFromFloat(0.02), TPPct: decimal.NewFromFloat(0.05),
	}); err != nil {
		t.Fatalf("JournalEntry: %v", err)
	}

	m, err := execution.NewManager(zap.NewNop(), filepath.Join(t.TempDir(), "posmgr.json"), venue, tr, testParams())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if err := m.Tick(context.Background(), ""); err != nil {
		t.Fatalf("first Tick: %v", err)
	}

	venue.account.Positions = map[string]*types.VenuePosition{}
	venue.recentFills = []types.Fill{{Asset: "BTC", Price: decimal.NewFromInt(105), Time: time.Now().UTC()}}
	if err := m.Tick(context.Background(), ""); err != nil {
		t.Fatalf("second Tick: %v", err)
	}

	if len(tr.OpenTrades()) != 0 {
		t.Error("expected the open trade to be journaled closed after disappearing from the venue")
	}
	closed := tr.ClosedTrades(10)
	if len(closed) != 1 {
		t.Fatalf("got %d closed trades, want 1", len(closed))
	}
}

func TestTickDoesNotCrossReconcileBetweenNamespaces(t *testing.T) {
	pos := &types.VenuePosition{
		Asset: "BTC", Direction: types.DirectionLong,
		Size: decimal.NewFromInt(1), EntryPx: decimal.NewFromInt(100),
	}
	venue := &managerFakeVenue{
		account: types.AccountState{AccountValue: decimal.NewFromInt(1000), Positions: map[string]*types.VenuePosition{"BTC": pos}},
		nsAccounts: map[string]types.AccountState{
			"xyz": {AccountValue: decimal.NewFromInt(100), Positions: map[string]*types.VenuePosition{}},
		},
	}
	tr, err := tracker.New(zap.NewNop(), filepath.Join(t.TempDir(), "tracker.json"))
	if err != nil {
		t.Fatalf("tracker.New: %v", err)
	}
	if _, err := tr.JournalEntry(types.TradeRecord{
		ID: "t1", Asset: "BTC", Direction: types.DirectionLong,
		Size: decimal.NewFromInt(1), EntryPx: decimal.NewFromInt(100),
		EntryTime: time.Now().UTC(), SLPct: decimal.NewFromFloat(0.02), TPPct: decimal.NewFromFloat(0.05),
	}); err != nil {
		t.Fatalf("JournalEntry: %v", err)
	}

	m, err := execution.NewManager(zap.NewNop(), filepath.Join(t.TempDir(), "posmgr.json"), venue, tr, testParams())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	if err := m.Tick(context.Background(), ""); err != nil {
		t.Fatalf("default tick: %v", err)
	}

	// Ticking an unrelated, empty namespace must not be read as BTC
	// having disappeared — before namespaces had their own
	// OpenAtLastTick snapshot, this tick would have overwritten the
	// single shared snapshot and triggered a spurious close.
	venue.recentFills = []types.Fill{{Asset: "BTC", Price: decimal.NewFromInt(105), Time: time.Now().UTC()}}
	if err := m.Tick(context.Background(), "xyz"); err != nil {
		t.Fatalf("xyz tick: %v", err)
	}

	if len(tr.OpenTrades()) != 1 {
		t.Error("expected BTC's open trade in the default namespace to survive a tick of an unrelated namespace")
	}
	if len(venue.transferFromCalls) != 0 {
		t.Errorf("did not expect a namespace transfer-back from an empty namespace with no prior tracked position, got %v", venue.transferFromCalls)
	}
}

func TestTickTransfersBalanceBackWhenNamespaceEmpties(t *testing.T) {
	pos := &types.VenuePosition{
		Asset: "XYZ:GOLD", Direction: types.DirectionLong,
		Size: decimal.NewFromInt(1), EntryPx: decimal.NewFromInt(100),
	}
	venue := &managerFakeVenue{
		account: types.AccountState{AccountValue: decimal.NewFromInt(1000), Positions: map[string]*types.VenuePosition{}},
		nsAccounts: map[string]types.AccountState{
			"xyz": {AccountValue: decimal.NewFromInt(100), Positions: map[string]*types.VenuePosition{"XYZ:GOLD": pos}},
		},
	}
	tr, err := tracker.New(zap.NewNop(), filepath.Join(t.TempDir(), "tracker.json"))
	if err != nil {
		t.Fatalf("tracker.New: %v", err)
	}
	if _, err := tr.JournalEntry(types.TradeRecord{
		ID: "g1", Asset: "XYZ:GOLD", Direction: types.DirectionLong,
		Size: decimal.NewFromInt(1), EntryPx: decimal.NewFromInt(100),
		EntryTime: time.Now().UTC(), SLPct: decimal.NewFromFloat(0.02), TPPct: decimal.NewFromFloat(0.05),
	}); err != nil {
		t.Fatalf("JournalEntry: %v", err)
	}

	m, err := execution.NewManager(zap.NewNop(), filepath.Join(t.TempDir(), "posmgr.json"), venue, tr, testParams())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	if err := m.Tick(context.Background(), "xyz"); err != nil {
		t.Fatalf("first xyz tick: %v", err)
	}
	if len(venue.transferFromCalls) != 0 {
		t.Fatal("did not expect a transfer-back while the namespace still has an open position")
	}

	venue.nsAccounts["xyz"] = types.AccountState{AccountValue: decimal.Zero, Positions: map[string]*types.VenuePosition{}}
	venue.recentFills = []types.Fill{{Asset: "XYZ:GOLD", Price: decimal.NewFromInt(105), Time: time.Now().UTC()}}
	if err := m.Tick(context.Background(), "xyz"); err != nil {
		t.Fatalf("second xyz tick: %v", err)
	}

	if len(venue.transferFromCalls) != 1 || venue.transferFromCalls[0] != "xyz" {
		t.Fatalf("got transferFromCalls=%v, want exactly one call for namespace \"xyz\"", venue.transferFromCalls)
	}
	if !venue.transferFromAmt.Equal(decimal.NewFromInt(1 << 32)) {
		t.Errorf("got transfer amount %s, want the full-withdrawable sentinel", venue.transferFromAmt)
	}
}
