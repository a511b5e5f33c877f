package types_test

import (
	"testing"

	"github.com/atlas-desktop/trading-backend/pkg/types"
	"github.com/shopspring/decimal"
)

func TestDirectionSign(t *testing.T) {
	cases := []struct {
		dir  types.Direction
		want int
	}{
		{types.DirectionLong, 1},
		{types.DirectionShort, -1},
		{types.DirectionNeutral, 0},
		{types.Direction("garbage"), 0},
	}
	for _, c := range cases {
		if got := c.dir.Sign(); got != c.want {
			t.Errorf("Direction(%q).Sign() = %d, want %d", c.dir, got, c.want)
		}
	}
}

func TestAssetConfigIsNamespaced(t *testing.T) {
	if (types.AssetConfig{}).IsNamespaced() {
		t.Error("expected an empty namespace to report unnamespaced")
	}
	if !(types.AssetConfig{Namespace: "commodities"}).IsNamespaced() {
		t.Error("expected a nonempty namespace to report namespaced")
	}
}

func TestBudgetTrackerRemainingNeverGoesNegative(t *testing.T) {
	b := &types.BudgetTracker{
		BudgetUsd:  decimal.NewFromInt(10),
		ReservePct: decimal.NewFromFloat(0.1),
		TotalSpent: decimal.NewFromInt(100),
	}
	if !b.Remaining().IsZero() {
		t.Errorf("got Remaining() = %s, want 0 when spend exceeds the usable budget", b.Remaining())
	}
}

func TestBudgetTrackerRemainingAccountsForReserve(t *testing.T) {
	b := &types.BudgetTracker{
		BudgetUsd:  decimal.NewFromInt(10),
		ReservePct: decimal.NewFromFloat(0.2),
	}
	want := decimal.NewFromInt(8)
	if !b.Remaining().Equal(want) {
		t.Errorf("got Remaining() = %s, want %s", b.Remaining(), want)
	}
}

func TestBudgetTrackerCanAfford(t *testing.T) {
	b := &types.BudgetTracker{BudgetUsd: decimal.NewFromFloat(0.3)}
	affordable := types.ChainConfig{AvgGasCostUsd: decimal.NewFromFloat(0.15)}
	tooExpensive := types.ChainConfig{AvgGasCostUsd: decimal.NewFromFloat(0.31)}

	if !b.CanAfford(affordable) {
		t.Error("expected the budget to afford a 0.15 transaction out of 0.3")
	}
	if b.CanAfford(tooExpensive) {
		t.Error("expected the budget to not afford a 0.31 transaction out of 0.3")
	}
}

func TestBudgetTrackerRecordSpendAccumulatesPerChainAndTotal(t *testing.T) {
	b := &types.BudgetTracker{BudgetUsd: decimal.NewFromInt(10)}
	b.RecordSpend("base", decimal.NewFromFloat(0.1))
	b.RecordSpend("base", decimal.NewFromFloat(0.2))
	b.RecordSpend("monad", decimal.NewFromFloat(0.05))

	if !b.SpentByChain["base"].Equal(decimal.NewFromFloat(0.3)) {
		t.Errorf("got SpentByChain[base] = %s, want 0.3", b.SpentByChain["base"])
	}
	if !b.TotalSpent.Equal(decimal.NewFromFloat(0.35)) {
		t.Errorf("got TotalSpent = %s, want 0.35", b.TotalSpent)
	}
}
