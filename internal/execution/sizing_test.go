package execution_test

import (
	"testing"

	"github.com/atlas-desktop/trading-backend/internal/execution"
	"github.com/atlas-desktop/trading-backend/pkg/types"
	"github.com/shopspring/decimal"
)

func TestSelectTierPicksBandContainingEquity(t *testing.T) {
	tiers := types.DefaultTradingConfig().Tiers
	tier := execution.SelectTier(tiers, decimal.NewFromInt(500))
	if tier.MinEquity.GreaterThan(decimal.NewFromInt(500)) || tier.MaxEquity.LessThanOrEqual(decimal.NewFromInt(500)) {
		t.Fatalf("selected tier does not contain equity 500: %+v", tier)
	}
}

func TestSizeCapsAtMaxNotionalFraction(t *testing.T) {
	tier := types.Tier{MinEquity: decimal.Zero, MaxEquity: decimal.NewFromInt(1_000_000), Leverage: 10, RiskPct: decimal.NewFromFloat(0.5), TPPct: decimal.NewFromFloat(0.03), SLPct: decimal.NewFromFloat(0.015)}
	asset := types.AssetConfig{Symbol: "BTC", SizeDecimals: 4, MaxLeverage: 20, MinNotionalUsd: decimal.NewFromInt(10)}

	order, err := execution.Size(tier, asset, decimal.NewFromInt(1000), decimal.NewFromInt(50000), decimal.NewFromFloat(0.6))
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	cap := decimal.NewFromInt(1000).Mul(decimal.NewFromFloat(0.6)).Mul(decimal.NewFromInt(10))
	if order.Notional.GreaterThan(cap) {
		t.Errorf("notional %s exceeds cap %s", order.Notional, cap)
	}
}

func TestSizeRejectsBelowMinNotional(t *testing.T) {
	tier := types.Tier{MinEquity: decimal.Zero, MaxEquity: decimal.NewFromInt(1_000_000), Leverage: 1, RiskPct: decimal.NewFromFloat(0.001)}
	asset := types.AssetConfig{Symbol: "BTC", SizeDecimals: 4, MaxLeverage: 1, MinNotionalUsd: decimal.NewFromInt(100)}

	_, err := execution.Size(tier, asset, decimal.NewFromInt(10), decimal.NewFromInt(50000), decimal.NewFromFloat(0.6))
	if err != execution.ErrNotionalTooSmall {
		t.Fatalf("expected ErrNotionalTooSmall, got %v", err)
	}
}

func TestRoundPriceMagnitudeLadder(t *testing.T) {
	cases := []struct {
		price decimal.Decimal
		want  decimal.Decimal
	}{
		{decimal.NewFromFloat(50123.456), decimal.NewFromInt(50123)},
		{decimal.NewFromFloat(123.456), decimal.NewFromFloat(123.46)},
		{decimal.NewFromFloat(1.23456), decimal.NewFromFloat(1.235)},
		{decimal.NewFromFloat(0.123456), decimal.NewFromFloat(0.1235)},
	}
	for _, c := range cases {
		got := execution.RoundPrice(c.price)
		if !got.Equal(c.want) {
			t.Errorf("RoundPrice(%s) = %s, want %s", c.price, got, c.want)
		}
	}
}
