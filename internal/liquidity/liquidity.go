// Package liquidity derives a ranked support/resistance map from a
// longer candle window: swing highs/lows, a volume-profile histogram,
// and psychological round numbers are merged, deduplicated, and
// truncated to the five closest levels per side. Bias is a pure
// function of relative distance and never consults an indicator.
package liquidity

import (
	"sort"

	"github.com/atlas-desktop/trading-backend/pkg/types"
	"github.com/shopspring/decimal"
)

const (
	minBars        = 30
	swingNeighbors = 3
	histogramBins  = 20
	topVolumeBins  = 3
	maxLevelsPerSide = 5
	biasRatio      = 0.5
)

// Analyze builds the liquidity map for a symbol at currentPrice from
// candles (oldest-first). Returns nil if fewer than minBars candles
// are supplied.
func Analyze(symbol string, candles []types.OHLCV, currentPrice decimal.Decimal) *types.LiquidityMap {
	if len(candles) < minBars {
		return nil
	}

	var levels []types.LiquidityLevel
	levels = append(levels, swingLevels(candles)...)
	levels = append(levels, volumeLevels(candles)...)
	levels = append(levels, roundNumberLevels(currentPrice)...)

	supports, resistances := splitAndDedupe(levels, currentPrice)
	supports = closestN(supports, currentPrice, maxLevelsPerSide, true)
	resistances = closestN(resistances, currentPrice, maxLevelsPerSide, false)

	lm := &types.LiquidityMap{
		Symbol:              symbol,
		CurrentPrice:        currentPrice,
		KeySupports:         supports,
		KeyResistances:      resistances,
		LiquidationClusters: liquidationClusters(currentPrice),
	}

	if len(supports) > 0 {
		lm.NearestSupport = supports[0].Price
		lm.DistToSupportPct = pctDistance(currentPrice, lm.NearestSupport)
	}
	if len(resistances) > 0 {
		lm.NearestResistance = resistances[0].Price
		lm.DistToResistancePct = pctDistance(currentPrice, lm.NearestResistance)
	}
	lm.Bias = bias(lm.DistToSupportPct, lm.DistToResistancePct, len(supports) > 0, len(resistances) > 0)

	return lm
}

func pctDistance(from, to decimal.Decimal) decimal.Decimal {
	if from.IsZero() {
		return decimal.Zero
	}
	return to.Sub(from).Abs().Div(from)
}

// bias is LONG if the price sits closer to support by at least 2x
// (i.e. dist_to_support < dist_to_resistance * 0.5), symmetric for
// SHORT, else NEUTRAL.
func bias(distSupport, distResistance decimal.Decimal, haveSupport, haveResistance bool) types.Direction {
	if !haveSupport || !haveResistance {
		return types.DirectionNeutral
	}
	half := decimal.NewFromFloat(biasRatio)
	if distSupport.LessThan(distResistance.Mul(half)) {
		return types.DirectionLong
	}
	if distResistance.LessThan(distSupport.Mul(half)) {
		return types.DirectionShort
	}
	return types.DirectionNeutral
}

func swingLevels(candles []types.OHLCV) []types.LiquidityLevel {
	var out []types.LiquidityLevel
	n := len(candles)
	for i := swingNeighbors; i < n-swingNeighbors; i++ {
		if isSwingHigh(candles, i) {
			out = append(out, types.LiquidityLevel{Price: candles[i].High, Source: "swing"})
		}
		if isSwingLow(candles, i) {
			out = append(out, types.LiquidityLevel{Price: candles[i].Low, Source: "swing"})
		}
	}
	return out
}

func isSwingHigh(candles []types.OHLCV, i int) bool {
	for j := i - swingNeighbors; j <= i+swingNeighbors; j++ {
		if j == i {
			continue
		}
		if candles[j].High.GreaterThanOrEqual(candles[i].High) {
			return false
		}
	}
	return true
}

func isSwingLow(candles []types.OHLCV, i int) bool {
	for j := i - swingNeighbors; j <= i+swingNeighbors; j++ {
		if j == i {
			continue
		}
		if candles[j].Low.LessThanOrEqual(candles[i].Low) {
			return false
		}
	}
	return true
}

// volumeLevels bins the candle window's price range into a 20-bin
// histogram weighted by volume (synthesized from (h-l)*c when the raw
// volume field is zero/absent) and returns the top-3 bins by weight.
func volumeLevels(candles []types.OHLCV) []types.LiquidityLevel {
	lo, hi := candles[0].Low, candles[0].High
	for _, c := range candles {
		if c.Low.LessThan(lo) {
			lo = c.Low
		}
		if c.High.GreaterThan(hi) {
			hi = c.High
		}
	}
	span := hi.Sub(lo)
	if span.LessThanOrEqual(decimal.Zero) {
		return nil
	}
	binWidth := span.Div(decimal.NewFromInt(histogramBins))

	weights := make([]decimal.Decimal, histogramBins)
	for _, c := range candles {
		vol := c.Volume
		if vol.IsZero() {
			vol = c.High.Sub(c.Low).Mul(c.Close)
		}
		mid := c.High.Add(c.Low).Div(decimal.NewFromInt(2))
		idx := int(mid.Sub(lo).Div(binWidth).IntPart())
		if idx < 0 {
			idx = 0
		}
		if idx >= histogramBins {
			idx = histogramBins - 1
		}
		weights[idx] = weights[idx].Add(vol)
	}

	type bin struct {
		idx    int
		weight decimal.Decimal
	}
	bins := make([]bin, histogramBins)
	for i, w := range weights {
		bins[i] = bin{idx: i, weight: w}
	}
	sort.Slice(bins, func(i, j int) bool { return bins[i].weight.GreaterThan(bins[j].weight) })

	n := topVolumeBins
	if n > len(bins) {
		n = len(bins)
	}
	out := make([]types.LiquidityLevel, 0, n)
	for _, b := range bins[:n] {
		if b.weight.IsZero() {
			continue
		}
		center := lo.Add(binWidth.Mul(decimal.NewFromInt(int64(b.idx)))).Add(binWidth.Div(decimal.NewFromInt(2)))
		out = append(out, types.LiquidityLevel{Price: center, Source: "volume"})
	}
	return out
}

// roundStep scales to the price magnitude, per the original
// liquidity engine's psychological-level spacing (distinct from the
// order-price rounding ladder used for execution precision).
func roundStep(price decimal.Decimal) decimal.Decimal {
	switch {
	case price.GreaterThan(decimal.NewFromInt(10000)):
		return decimal.NewFromInt(1000)
	case price.GreaterThan(decimal.NewFromInt(1000)):
		return decimal.NewFromInt(100)
	case price.GreaterThan(decimal.NewFromInt(100)):
		return decimal.NewFromInt(10)
	case price.GreaterThan(decimal.NewFromInt(10)):
		return decimal.NewFromInt(5)
	case price.GreaterThan(decimal.NewFromInt(1)):
		return decimal.NewFromFloat(0.5)
	default:
		return decimal.NewFromFloat(0.05)
	}
}

func roundNumberLevels(price decimal.Decimal) []types.LiquidityLevel {
	step := roundStep(price)
	if step.IsZero() {
		return nil
	}
	base := price.Div(step).Floor().Mul(step)
	var out []types.LiquidityLevel
	for _, mult := range []int64{-2, -1, 0, 1, 2} {
		level := base.Add(step.Mul(decimal.NewFromInt(mult)))
		if level.GreaterThan(decimal.Zero) {
			out = append(out, types.LiquidityLevel{Price: level, Source: "round"})
		}
	}
	return out
}

func liquidationClusters(entry decimal.Decimal) []types.LiquidationCluster {
	var out []types.LiquidationCluster
	for lev := 3; lev <= 20; lev += 2 {
		inv := decimal.NewFromInt(1).Div(decimal.NewFromInt(int64(lev)))
		out = append(out, types.LiquidationCluster{
			Leverage: lev,
			Long:     entry.Mul(decimal.NewFromInt(1).Sub(inv)),
			Short:    entry.Mul(decimal.NewFromInt(1).Add(inv)),
		})
	}
	return out
}

func splitAndDedupe(levels []types.LiquidityLevel, price decimal.Decimal) (supports, resistances []types.LiquidityLevel) {
	seenSupport := map[string]bool{}
	seenResistance := map[string]bool{}
	for _, lvl := range levels {
		key := lvl.Price.StringFixed(8)
		if lvl.Price.LessThan(price) {
			if !seenSupport[key] {
				seenSupport[key] = true
				supports = append(supports, lvl)
			}
		} else if lvl.Price.GreaterThan(price) {
			if !seenResistance[key] {
				seenResistance[key] = true
				resistances = append(resistances, lvl)
			}
		}
	}
	return
}

func closestN(levels []types.LiquidityLevel, price decimal.Decimal, n int, descending bool) []types.LiquidityLevel {
	sort.Slice(levels, func(i, j int) bool {
		di := levels[i].Price.Sub(price).Abs()
		dj := levels[j].Price.Sub(price).Abs()
		return di.LessThan(dj)
	})
	if n > len(levels) {
		n = len(levels)
	}
	out := append([]types.LiquidityLevel(nil), levels[:n]...)
	sort.Slice(out, func(i, j int) bool {
		if descending {
			return out[i].Price.GreaterThan(out[j].Price)
		}
		return out[i].Price.LessThan(out[j].Price)
	})
	return out
}
