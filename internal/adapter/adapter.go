// Package adapter implements the fast "micro" self-tuning loop: score
// threshold, per-signal weights, and per-asset blocking, driven purely
// by recent trade-tracker statistics. Per SPEC_FULL.md §9 Open
// Question #3, signal weights are advisory: logged for later analysis
// but never applied to the integer score ladder in internal/execution.
package adapter

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/atlas-desktop/trading-backend/internal/data"
	"github.com/atlas-desktop/trading-backend/internal/tracker"
	"github.com/atlas-desktop/trading-backend/pkg/types"
	"github.com/atlas-desktop/trading-backend/pkg/utils"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Params configures the adaptation gates and bounds.
type Params struct {
	MinTradesForAdapt int
	AdaptInterval     time.Duration
	MinWeight         decimal.Decimal
	MaxWeight         decimal.Decimal
	MinTradesForBlock int
	BlockWinRateThreshold decimal.Decimal
	BlockCooldown     time.Duration
}

// ParamsFromConfig adapts a types.TradingConfig into Params.
func ParamsFromConfig(cfg types.TradingConfig) Params {
	return Params{
		MinTradesForAdapt:     cfg.AdaptMinTrades,
		AdaptInterval:         cfg.AdaptInterval,
		MinWeight:             cfg.AdaptMinWeight,
		MaxWeight:             cfg.AdaptMaxWeight,
		MinTradesForBlock:     cfg.BlockMinTrades,
		BlockWinRateThreshold: cfg.BlockWinRateThreshold,
		BlockCooldown:         cfg.BlockCooldown,
	}
}

var signalKeys = []string{"bb", "rsi", "adx", "ai_bias", "momentum", "liquidity", "orderbook", "mtf_rsi"}

const defaultWeight = 1.0
const minThreshold = 2
const maxThreshold = 4
const globalLowWinRate = 40.0
const globalHighWinRate = 65.0
const signalLowWinRate = 35.0
const signalHighWinRate = 65.0
const signalMinActivations = 3
const adaptationLogCap = 10

// Adapter owns the persisted AdapterState and the adaptation logic.
type Adapter struct {
	mu     sync.Mutex
	logger *zap.Logger
	store  *data.Store
	params Params
	state  types.AdapterState
}

// New constructs an Adapter, loading any existing state and seeding
// defaults (threshold 2, weight 1.0 for every known signal) when
// absent.
func New(logger *zap.Logger, path string, params Params) (*Adapter, error) {
	store, err := data.New(logger, path, 0o644)
	if err != nil {
		return nil, err
	}
	a := &Adapter{logger: logger, store: store, params: params}
	found, err := store.Load(&a.state)
	if err != nil {
		return nil, fmt.Errorf("adapter: loading state: %w", err)
	}
	if !found || a.state.SignalWeights == nil {
		a.state = defaultState()
		if err := store.Save(&a.state); err != nil {
			return nil, fmt.Errorf("adapter: persisting default state: %w", err)
		}
	}
	return a, nil
}

func defaultState() types.AdapterState {
	weights := map[string]decimal.Decimal{}
	for _, k := range signalKeys {
		weights[k] = decimal.NewFromFloat(defaultWeight)
	}
	return types.AdapterState{SignalWeights: weights, ScoreThreshold: minThreshold}
}

// ScoreThreshold returns the current integer score threshold.
func (a *Adapter) ScoreThreshold() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.ScoreThreshold
}

// Weight returns the advisory weight for a signal key (default 1.0).
func (a *Adapter) Weight(signal string) decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	if w, ok := a.state.SignalWeights[signal]; ok {
		return w
	}
	return decimal.NewFromFloat(defaultWeight)
}

// IsAssetBlocked reports whether an asset is currently under a
// cooldown block.
func (a *Adapter) IsAssetBlocked(asset string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := time.Now()
	for _, b := range a.state.BlockedAssets {
		if b.Asset == asset && now.Sub(b.BlockedAt) < a.params.BlockCooldown {
			return true
		}
	}
	return false
}

// ShouldAdapt reports whether the adaptation gate is open: either
// MinTradesForAdapt new closed trades since last adaptation, or
// AdaptInterval elapsed with at least one new trade.
func (a *Adapter) ShouldAdapt(totalClosedTrades int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	newTrades := totalClosedTrades - a.state.TradesAtLastAdapt
	if newTrades <= 0 {
		return false
	}
	if newTrades >= a.params.MinTradesForAdapt {
		return true
	}
	return time.Since(a.state.LastAdaptation) >= a.params.AdaptInterval
}

// MaybeAdapt runs one adaptation pass over the last MinTradesForAdapt
// closed trades and persists the result. Intended to be called only
// when ShouldAdapt reports true.
func (a *Adapter) MaybeAdapt(t *tracker.Tracker) error {
	recent := t.ClosedTrades(a.params.MinTradesForAdapt)
	stats := tracker.Stats{}
	if len(recent) > 0 {
		stats = tracker.ComputeStats(recent)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	var summary []string

	oldThreshold := a.state.ScoreThreshold
	if stats.TotalTrades > 0 {
		if stats.WinRatePct.LessThan(decimal.NewFromFloat(globalLowWinRate)) && a.state.ScoreThreshold < maxThreshold {
			a.state.ScoreThreshold++
		} else if stats.WinRatePct.GreaterThan(decimal.NewFromFloat(globalHighWinRate)) && a.state.ScoreThreshold > minThreshold {
			a.state.ScoreThreshold--
		}
	}
	if a.state.ScoreThreshold != oldThreshold {
		summary = append(summary, fmt.Sprintf("threshold %d -> %d (winRate %.1f%%)", oldThreshold, a.state.ScoreThreshold, f64(stats.WinRatePct)))
	}

	for key, sigStats := range stats.BySignal {
		if sigStats.Activations < signalMinActivations {
			continue
		}
		old := a.weightOrDefault(key)
		next := old
		switch {
		case sigStats.WinRatePct.LessThan(decimal.NewFromFloat(signalLowWinRate)):
			next = utils.ClampDecimal(old.Mul(decimal.NewFromFloat(0.7)), a.params.MinWeight, a.params.MaxWeight)
		case sigStats.WinRatePct.GreaterThan(decimal.NewFromFloat(signalHighWinRate)):
			next = utils.ClampDecimal(old.Mul(decimal.NewFromFloat(1.3)), a.params.MinWeight, a.params.MaxWeight)
		}
		if !next.Equal(old) {
			a.state.SignalWeights[key] = next
			summary = append(summary, fmt.Sprintf("weight[%s] %.2f -> %.2f", key, f64(old), f64(next)))
		}
	}

	for asset, assetStats := range stats.ByAsset {
		if assetStats.Trades >= a.params.MinTradesForBlock && assetStats.WinRatePct.LessThan(a.params.BlockWinRateThreshold) {
			if !a.hasActiveBlock(asset) {
				a.state.BlockedAssets = append(a.state.BlockedAssets, types.BlockedAsset{
					Asset: asset, BlockedAt: time.Now(),
					Reason: fmt.Sprintf("win rate %.1f%% over %d trades", f64(assetStats.WinRatePct), assetStats.Trades),
				})
				summary = append(summary, fmt.Sprintf("blocked %s", asset))
			}
		}
	}
	a.pruneExpiredBlocks()

	a.state.TradesAtLastAdapt += len(recent)
	a.state.LastAdaptation = time.Now()
	a.state.AdaptationCount++

	if len(summary) > 0 {
		a.state.AdaptationLog = append(a.state.AdaptationLog, types.AdaptationLogEntry{
			Timestamp: time.Now(),
			Summary:   joinSummary(summary),
		})
		if len(a.state.AdaptationLog) > adaptationLogCap {
			a.state.AdaptationLog = a.state.AdaptationLog[len(a.state.AdaptationLog)-adaptationLogCap:]
		}
	}

	return a.store.Save(&a.state)
}

func (a *Adapter) weightOrDefault(key string) decimal.Decimal {
	if w, ok := a.state.SignalWeights[key]; ok {
		return w
	}
	return decimal.NewFromFloat(defaultWeight)
}

func (a *Adapter) hasActiveBlock(asset string) bool {
	now := time.Now()
	for _, b := range a.state.BlockedAssets {
		if b.Asset == asset && now.Sub(b.BlockedAt) < a.params.BlockCooldown {
			return true
		}
	}
	return false
}

func (a *Adapter) pruneExpiredBlocks() {
	now := time.Now()
	kept := a.state.BlockedAssets[:0]
	for _, b := range a.state.BlockedAssets {
		if now.Sub(b.BlockedAt) < a.params.BlockCooldown {
			kept = append(kept, b)
		}
	}
	a.state.BlockedAssets = kept
}

// Report returns a human-readable summary of the current adapter
// state, mirroring the original's get_report() format.
func (a *Adapter) Report() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	keys := make([]string, 0, len(a.state.SignalWeights))
	for k := range a.state.SignalWeights {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := fmt.Sprintf("threshold=%d adaptations=%d blocked=%d", a.state.ScoreThreshold, a.state.AdaptationCount, len(a.state.BlockedAssets))
	for _, k := range keys {
		out += fmt.Sprintf(" %s=%.2f", k, f64(a.state.SignalWeights[k]))
	}
	return out
}

func f64(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func joinSummary(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "; "
		}
		out += p
	}
	return out
}
