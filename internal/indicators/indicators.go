// Package indicators computes the technical-analysis bundle (RSI,
// Bollinger Bands, ADX/+DI/-DI, SMA, volume confirmation) from a
// candle window. Numeric semantics follow the Wilder-smoothing
// conventions of the original bot's indicator module: RSI seeds on
// the first `period` deltas then smooths, Bollinger uses a simple
// moving average and population standard deviation, and ADX derives
// directional movement from adjacent highs/lows before Wilder
// smoothing to +DI/-DI.
package indicators

import (
	"errors"
	"math"

	"github.com/atlas-desktop/trading-backend/pkg/types"
	"github.com/shopspring/decimal"
)

// ErrInsufficientData is returned when the candle window is too short
// to produce a full bundle.
var ErrInsufficientData = errors.New("indicators: insufficient candle history")

// Params bundles the periods and thresholds driving the bundle.
type Params struct {
	RSIPeriod      int
	BBPeriod       int
	ADXPeriod      int
	RSIOversold    decimal.Decimal
	RSIOverbought  decimal.Decimal
	ADXTrendingMin decimal.Decimal
	VolumeRatioMin decimal.Decimal
}

// ParamsFromConfig adapts a types.TradingConfig into Params.
func ParamsFromConfig(cfg types.TradingConfig) Params {
	return Params{
		RSIPeriod:      cfg.RSIPeriod,
		BBPeriod:       cfg.BBPeriod,
		ADXPeriod:      cfg.ADXPeriod,
		RSIOversold:    cfg.RSIOversold,
		RSIOverbought:  cfg.RSIOverbought,
		ADXTrendingMin: cfg.ADXTrendingMin,
		VolumeRatioMin: cfg.VolumeRatioMin,
	}
}

func maxPeriod(p Params) int {
	m := p.RSIPeriod
	if p.BBPeriod > m {
		m = p.BBPeriod
	}
	if p.ADXPeriod*2 > m {
		m = p.ADXPeriod * 2
	}
	return m
}

// Build computes the full indicator bundle for a candle window.
// candles must be ordered oldest-first; the bundle reflects the last
// candle's close as "price".
func Build(candles []types.OHLCV, p Params) (*types.IndicatorBundle, error) {
	if len(candles) < maxPeriod(p)+5 {
		return nil, ErrInsufficientData
	}

	closes := closesOf(candles)
	price := closes[len(closes)-1]

	rsi := RSI(closes, p.RSIPeriod)
	bbUpper, bbMiddle, bbLower, bbWidth := BollingerBands(closes, p.BBPeriod)
	adx, plusDI, minusDI := ADX(candles, p.ADXPeriod)
	sma5 := SMA(closes, 5)
	volAvg, volRatio, volConfirmed := VolumeConfirmation(candles, 20, p.VolumeRatioMin)

	b := &types.IndicatorBundle{
		Price:     price,
		RSI:       rsi,
		BBUpper:   bbUpper,
		BBMiddle:  bbMiddle,
		BBLower:   bbLower,
		BBWidth:   bbWidth,
		ADX:       adx,
		PlusDI:    plusDI,
		MinusDI:   minusDI,
		SMA5:      sma5,
		VolumeAvg: volAvg,
		VolumeRatio: volRatio,

		AboveUpperBB:    price.GreaterThan(bbUpper),
		BelowLowerBB:    price.LessThan(bbLower),
		RSIOversold:     rsi.LessThan(p.RSIOversold),
		RSIOverbought:   rsi.GreaterThan(p.RSIOverbought),
		Trending:        adx.GreaterThan(p.ADXTrendingMin),
		TrendBullish:    plusDI.GreaterThan(minusDI),
		MomentumBullish: price.GreaterThan(sma5),
		VolumeConfirmed: volConfirmed,
	}
	return b, nil
}

func closesOf(candles []types.OHLCV) []decimal.Decimal {
	out := make([]decimal.Decimal, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// SMA is the simple moving average of the last `period` values. If
// fewer values are available the mean of everything available is
// returned.
func SMA(values []decimal.Decimal, period int) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	if period > len(values) {
		period = len(values)
	}
	window := values[len(values)-period:]
	sum := decimal.Zero
	for _, v := range window {
		sum = sum.Add(v)
	}
	return sum.DivRound(decimal.NewFromInt(int64(period)), 10)
}

// RSI computes the Wilder-smoothed relative strength index. A flat
// series with no losses returns 100 (never divides by zero); a
// series too short to seed the smoothing window returns 50 (neutral).
func RSI(closes []decimal.Decimal, period int) decimal.Decimal {
	if len(closes) < period+1 {
		return decimal.NewFromInt(50)
	}

	gains := make([]float64, 0, len(closes)-1)
	losses := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		delta, _ := closes[i].Sub(closes[i-1]).Float64()
		if delta > 0 {
			gains = append(gains, delta)
			losses = append(losses, 0)
		} else {
			gains = append(gains, 0)
			losses = append(losses, -delta)
		}
	}

	avgGain := mean(gains[:period])
	avgLoss := mean(losses[:period])
	for i := period; i < len(gains); i++ {
		avgGain = (avgGain*float64(period-1) + gains[i]) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + losses[i]) / float64(period)
	}

	if avgLoss == 0 {
		return decimal.NewFromInt(100)
	}
	rs := avgGain / avgLoss
	rsi := 100 - 100/(1+rs)
	return decimal.NewFromFloat(rsi)
}

// BollingerBands returns (upper, middle, lower, width) using a simple
// moving average and population standard deviation.
func BollingerBands(closes []decimal.Decimal, period int) (upper, middle, lower, width decimal.Decimal) {
	middle = SMA(closes, period)
	if period > len(closes) {
		period = len(closes)
	}
	window := closes[len(closes)-period:]

	mid, _ := middle.Float64()
	var variance float64
	for _, v := range window {
		f, _ := v.Float64()
		variance += (f - mid) * (f - mid)
	}
	if period > 0 {
		variance /= float64(period)
	}
	std := math.Sqrt(variance)

	upper = middle.Add(decimal.NewFromFloat(2 * std))
	lower = middle.Sub(decimal.NewFromFloat(2 * std))
	if middle.IsZero() {
		width = decimal.Zero
	} else {
		width = upper.Sub(lower).Div(middle)
	}
	return
}

// ADX computes the average directional index along with the smoothed
// +DI/-DI lines. Any zero-denominator division yields a neutral
// (zero) result rather than panicking.
func ADX(candles []types.OHLCV, period int) (adx, plusDI, minusDI decimal.Decimal) {
	n := len(candles)
	if n < period*2+1 {
		return decimal.Zero, decimal.Zero, decimal.Zero
	}

	trueRanges := make([]float64, 0, n-1)
	plusDMs := make([]float64, 0, n-1)
	minusDMs := make([]float64, 0, n-1)

	for i := 1; i < n; i++ {
		high, _ := candles[i].High.Float64()
		low, _ := candles[i].Low.Float64()
		prevHigh, _ := candles[i-1].High.Float64()
		prevLow, _ := candles[i-1].Low.Float64()
		prevClose, _ := candles[i-1].Close.Float64()

		tr := math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
		trueRanges = append(trueRanges, tr)

		upMove := high - prevHigh
		downMove := prevLow - low

		plusDM := 0.0
		minusDM := 0.0
		if upMove > downMove && upMove > 0 {
			plusDM = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM = downMove
		}
		plusDMs = append(plusDMs, plusDM)
		minusDMs = append(minusDMs, minusDM)
	}

	smoothedTR := wilderSmoothSeries(trueRanges, period)
	smoothedPlusDM := wilderSmoothSeries(plusDMs, period)
	smoothedMinusDM := wilderSmoothSeries(minusDMs, period)

	dxValues := make([]float64, 0, len(smoothedTR))
	var lastPlusDI, lastMinusDI float64
	for i := range smoothedTR {
		var pdi, mdi float64
		if smoothedTR[i] != 0 {
			pdi = 100 * smoothedPlusDM[i] / smoothedTR[i]
			mdi = 100 * smoothedMinusDM[i] / smoothedTR[i]
		}
		lastPlusDI, lastMinusDI = pdi, mdi

		var dx float64
		if pdi+mdi != 0 {
			dx = 100 * math.Abs(pdi-mdi) / (pdi + mdi)
		}
		dxValues = append(dxValues, dx)
	}

	adxVal := mean(lastN(dxValues, period))
	return decimal.NewFromFloat(adxVal), decimal.NewFromFloat(lastPlusDI), decimal.NewFromFloat(lastMinusDI)
}

// wilderSmoothSeries returns, for each index i >= period-1 of the
// input series, the Wilder-smoothed value (seeded by the simple mean
// of the first `period` entries, then exponentially rolled forward).
func wilderSmoothSeries(series []float64, period int) []float64 {
	if len(series) < period {
		return nil
	}
	out := make([]float64, 0, len(series)-period+1)
	avg := mean(series[:period])
	out = append(out, avg)
	for i := period; i < len(series); i++ {
		avg = (avg*float64(period-1) + series[i]) / float64(period)
		out = append(out, avg)
	}
	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func lastN(values []float64, n int) []float64 {
	if n > len(values) {
		n = len(values)
	}
	return values[len(values)-n:]
}

// VolumeConfirmation compares the latest bar's volume against the
// mean of the last `period` bars (the latest bar included); confirmed iff the
// ratio is >= minRatio. A zero-mean baseline never confirms.
func VolumeConfirmation(candles []types.OHLCV, period int, minRatio decimal.Decimal) (avg, ratio decimal.Decimal, confirmed bool) {
	n := len(candles)
	if n == 0 {
		return decimal.Zero, decimal.Zero, false
	}
	if period > n {
		period = n
	}
	window := candles[n-period:]
	sum := decimal.Zero
	for _, c := range window {
		sum = sum.Add(c.Volume)
	}
	avg = sum.DivRound(decimal.NewFromInt(int64(period)), 10)
	if avg.IsZero() {
		return avg, decimal.Zero, false
	}
	ratio = candles[n-1].Volume.Div(avg)
	return avg, ratio, ratio.GreaterThanOrEqual(minRatio)
}
