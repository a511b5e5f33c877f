// Package execution turns a scored trading signal into a sized,
// bracketed order: tier-based notional and size rounding, the venue
// contract, bracketed SL/TP placement with secondary-namespace
// transfer/rollback, and the tick-by-tick position manager (partial
// take-profit, trailing stop, drawdown circuit breaker,
// close-detection).
package execution

import (
	"fmt"

	"github.com/atlas-desktop/trading-backend/pkg/types"
	"github.com/shopspring/decimal"
)

// ErrNotionalTooSmall is returned when the sized order would fall
// below an asset's minimum tradable notional.
var ErrNotionalTooSmall = fmt.Errorf("execution: notional below minimum")

// SelectTier returns the tier row whose [MinEquity, MaxEquity) band
// contains equity, or the last tier if equity exceeds every band.
func SelectTier(tiers []types.Tier, equity decimal.Decimal) types.Tier {
	for _, t := range tiers {
		if equity.GreaterThanOrEqual(t.MinEquity) && equity.LessThan(t.MaxEquity) {
			return t
		}
	}
	return tiers[len(tiers)-1]
}

// SizedOrder is the fully-resolved size/notional/leverage for one
// candidate entry.
type SizedOrder struct {
	Notional decimal.Decimal
	Size     decimal.Decimal
	Leverage int
	Price    decimal.Decimal
}

const maxNotionalFractionDefault = 0.6

// Size computes notional and quantity for an entry per the tier's
// riskPct/leverage, capped at maxNotionalFraction*equity*leverage, and
// rounded to the asset's size precision. Returns ErrNotionalTooSmall
// if the result falls under the asset's minimum notional.
func Size(tier types.Tier, asset types.AssetConfig, equity, price decimal.Decimal, maxNotionalFraction decimal.Decimal) (SizedOrder, error) {
	leverage := tier.Leverage
	if asset.MaxLeverage > 0 && asset.MaxLeverage < leverage {
		leverage = asset.MaxLeverage
	}

	notional := equity.Mul(tier.RiskPct).Mul(decimal.NewFromInt(int64(leverage)))

	cap := equity.Mul(maxNotionalFraction).Mul(decimal.NewFromInt(int64(leverage)))
	if notional.GreaterThan(cap) {
		notional = cap
	}

	if notional.LessThan(asset.MinNotionalUsd) {
		return SizedOrder{}, ErrNotionalTooSmall
	}

	size := decimal.Zero
	if !price.IsZero() {
		size = notional.Div(price).Round(asset.SizeDecimals)
	}

	return SizedOrder{Notional: notional, Size: size, Leverage: leverage, Price: RoundPrice(price)}, nil
}

// RoundPrice applies the magnitude-scaled execution precision ladder:
// whole units above 1000, 0.01 above 10, 0.001 above 1, else 0.0001.
// This is distinct from the liquidity engine's psychological
// round-number spacing (see internal/liquidity.roundStep).
func RoundPrice(price decimal.Decimal) decimal.Decimal {
	abs := price.Abs()
	switch {
	case abs.GreaterThan(decimal.NewFromInt(1000)):
		return price.Round(0)
	case abs.GreaterThan(decimal.NewFromInt(10)):
		return price.Round(2)
	case abs.GreaterThan(decimal.NewFromInt(1)):
		return price.Round(3)
	default:
		return price.Round(4)
	}
}
