package liquidity_test

import (
	"testing"
	"time"

	"github.com/atlas-desktop/trading-backend/internal/liquidity"
	"github.com/atlas-desktop/trading-backend/pkg/types"
	"github.com/shopspring/decimal"
)

func candleSeries(n int) []types.OHLCV {
	out := make([]types.OHLCV, n)
	now := time.Now()
	price := 100.0
	for i := 0; i < n; i++ {
		price += float64((i%7)-3) * 0.7
		p := decimal.NewFromFloat(price)
		out[i] = types.OHLCV{
			Timestamp: now.Add(time.Duration(i) * time.Hour),
			Open:      p,
			High:      p.Add(decimal.NewFromFloat(1.5)),
			Low:       p.Sub(decimal.NewFromFloat(1.5)),
			Close:     p,
			Volume:    decimal.NewFromFloat(1000 + float64(i%5)*500),
		}
	}
	return out
}

func TestAnalyzeReturnsNilBelowMinBars(t *testing.T) {
	candles := candleSeries(10)
	if m := liquidity.Analyze("BTC", candles, decimal.NewFromInt(100)); m != nil {
		t.Error("expected nil map for fewer than 30 bars")
	}
}

func TestAnalyzeSupportsBelowResistancesAbove(t *testing.T) {
	candles := candleSeries(100)
	price := decimal.NewFromFloat(101)
	m := liquidity.Analyze("BTC", candles, price)
	if m == nil {
		t.Fatal("expected a non-nil liquidity map")
	}
	for _, s := range m.KeySupports {
		if !s.Price.LessThan(price) {
			t.Errorf("support %s is not below current price %s", s.Price, price)
		}
	}
	for _, r := range m.KeyResistances {
		if !r.Price.GreaterThan(price) {
			t.Errorf("resistance %s is not above current price %s", r.Price, price)
		}
	}
	if len(m.KeySupports) > 5 || len(m.KeyResistances) > 5 {
		t.Error("expected at most 5 levels per side")
	}
}

func TestLiquidationClustersSpanLeverageRange(t *testing.T) {
	candles := candleSeries(100)
	m := liquidity.Analyze("BTC", candles, decimal.NewFromInt(100))
	if len(m.LiquidationClusters) != 9 {
		t.Errorf("expected 9 clusters (leverage 3..20 step 2), got %d", len(m.LiquidationClusters))
	}
	for _, c := range m.LiquidationClusters {
		if c.Long.GreaterThanOrEqual(decimal.NewFromInt(100)) {
			t.Errorf("long liquidation price should be below entry, got %s", c.Long)
		}
		if c.Short.LessThanOrEqual(decimal.NewFromInt(100)) {
			t.Errorf("short liquidation price should be above entry, got %s", c.Short)
		}
	}
}
