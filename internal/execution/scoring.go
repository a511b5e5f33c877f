package execution

import (
	"github.com/atlas-desktop/trading-backend/pkg/types"
	"github.com/shopspring/decimal"
)

// ExtremeOversoldRSI is the hard RSI threshold below which the
// "extreme oversold bounce" short-circuit fires, bypassing the score
// sum entirely with an immediate LONG verdict.
const ExtremeOversoldRSI = 25

// OrderbookImbalanceLongRatio and OrderbookImbalanceShortRatio are the
// top-5-level bid/ask size ratio thresholds.
const (
	OrderbookImbalanceLongRatio  = 1.5
	OrderbookImbalanceShortRatio = 0.67
)

// ScoreInputs bundles every signal source consulted on one tick for
// one symbol.
type ScoreInputs struct {
	Primary  *types.IndicatorBundle
	OneHour  *types.IndicatorBundle
	FourHour *types.IndicatorBundle
	AIBias   types.Direction
	Liquidity *types.LiquidityMap
	OrderbookBidSize decimal.Decimal
	OrderbookAskSize decimal.Decimal
}

// Score computes the longScore/shortScore integer ladder and resolves
// the winning direction against the given per-side thresholds. The
// extreme-oversold-bounce rule short-circuits straight to LONG.
func Score(in ScoreInputs, longThreshold, shortThreshold int) types.SignalSnapshot {
	snap := types.SignalSnapshot{}

	if in.Primary == nil {
		return snap
	}

	if oneHourOversold(in.OneHour) || in.Primary.RSI.LessThan(decimal.NewFromInt(ExtremeOversoldRSI)) {
		snap.ExtremeOversold = true
		snap.Direction = types.DirectionLong
		snap.LongScore = longThreshold
		return snap
	}

	var longScore, shortScore int

	// 1. Bollinger, gated by volume confirmation.
	if in.Primary.VolumeConfirmed {
		if in.Primary.BelowLowerBB {
			longScore++
			snap.BB = true
		} else if in.Primary.AboveUpperBB {
			shortScore++
			snap.BB = true
		}
	}

	// 2. RSI, gated by volume confirmation.
	if in.Primary.VolumeConfirmed {
		if in.Primary.RSIOversold {
			longScore++
			snap.RSI = true
		} else if in.Primary.RSIOverbought {
			shortScore++
			snap.RSI = true
		}
	}

	// 3. ADX/DI, gated by trending.
	if in.Primary.Trending {
		snap.ADX = true
		if in.Primary.TrendBullish {
			longScore++
		} else {
			shortScore++
		}
	}

	// 4. Macro bias from the text-search oracle.
	switch in.AIBias {
	case types.DirectionLong:
		longScore++
		snap.AIBias = true
	case types.DirectionShort:
		shortScore++
		snap.AIBias = true
	}

	// 5. Momentum: price vs SMA-5.
	if in.Primary.MomentumBullish {
		longScore++
		snap.Momentum = true
	} else if !in.Primary.SMA5.IsZero() {
		shortScore++
		snap.Momentum = true
	}

	// 6. Liquidity bias.
	if in.Liquidity != nil {
		switch in.Liquidity.Bias {
		case types.DirectionLong:
			longScore++
			snap.Liquidity = true
		case types.DirectionShort:
			shortScore++
			snap.Liquidity = true
		}
	}

	// 7. Order-book imbalance.
	if !in.OrderbookAskSize.IsZero() {
		ratio := in.OrderbookBidSize.Div(in.OrderbookAskSize)
		if ratio.GreaterThan(decimal.NewFromFloat(OrderbookImbalanceLongRatio)) {
			longScore++
			snap.Orderbook = true
		} else if ratio.LessThan(decimal.NewFromFloat(OrderbookImbalanceShortRatio)) {
			shortScore++
			snap.Orderbook = true
		}
	}

	// 8. Multi-timeframe RSI, contributed separately per timeframe.
	mid := decimal.NewFromInt(50)
	if in.OneHour != nil {
		snap.MTFRSI = true
		if in.OneHour.RSI.GreaterThan(mid) {
			longScore++
		} else {
			shortScore++
		}
	}
	if in.FourHour != nil {
		snap.MTFRSI = true
		if in.FourHour.RSI.GreaterThan(mid) {
			longScore++
		} else {
			shortScore++
		}
	}

	snap.LongScore = longScore
	snap.ShortScore = shortScore

	switch {
	case longScore >= longThreshold && longScore > shortScore:
		snap.Direction = types.DirectionLong
	case shortScore >= shortThreshold && shortScore > longScore:
		snap.Direction = types.DirectionShort
	default:
		snap.Direction = types.DirectionNeutral
	}

	if snap.AIBias && ((snap.Direction == types.DirectionLong && in.AIBias == types.DirectionLong) ||
		(snap.Direction == types.DirectionShort && in.AIBias == types.DirectionShort)) {
		snap.AIBiasAligned = true
	}

	return snap
}

func oneHourOversold(b *types.IndicatorBundle) bool {
	if b == nil {
		return false
	}
	return b.RSI.LessThan(decimal.NewFromInt(ExtremeOversoldRSI))
}
