// Package optimizer implements the slow "macro" self-tuning loop: a
// market-regime read from the text oracle, translated into a
// per-regime SL/TP/threshold skew, plus an asset-pruning rule driven
// by recent trade statistics. Runs on a multi-hour cadence, far slower
// than internal/adapter's trade-count-driven cycle.
package optimizer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/atlas-desktop/trading-backend/internal/data"
	"github.com/atlas-desktop/trading-backend/internal/sentiment"
	"github.com/atlas-desktop/trading-backend/internal/tracker"
	"github.com/atlas-desktop/trading-backend/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Params configures the optimization cadence and asset-pruning gate.
type Params struct {
	OptimizeInterval  time.Duration
	PruneMinTrades    int
	PruneMinLossUsd   decimal.Decimal
	SnapshotCap       int
}

// ParamsFromConfig adapts a types.TradingConfig into Params.
func ParamsFromConfig(cfg types.TradingConfig) Params {
	return Params{
		OptimizeInterval: cfg.OptimizeInterval,
		PruneMinTrades:   5,
		PruneMinLossUsd:  decimal.NewFromFloat(-1.0),
		SnapshotCap:      50,
	}
}

// Oracle is the text-completion backend consulted for a market-regime
// verdict. Shared shape with internal/sentiment.Oracle so a single
// client implementation serves both learners.
type Oracle interface {
	Query(ctx context.Context, prompt string) (string, error)
}

const regimePrompt = "Analyze the current crypto market regime (trending bull/bear, ranging, or volatile/choppy). " +
	"Score the market from -1.0 (extreme bear) to +1.0 (extreme bull). Format the last line as: REGIME_SCORE: [number]"

// Optimizer owns the persisted OptimizerState and the regime/prune logic.
type Optimizer struct {
	mu     sync.Mutex
	logger *zap.Logger
	store  *data.Store
	oracle Oracle
	params Params
	state  types.OptimizerState
}

// New constructs an Optimizer, loading any existing state.
func New(logger *zap.Logger, path string, oracle Oracle, params Params) (*Optimizer, error) {
	store, err := data.New(logger, path, 0o644)
	if err != nil {
		return nil, err
	}
	o := &Optimizer{logger: logger, store: store, oracle: oracle, params: params}
	if _, err := store.Load(&o.state); err != nil {
		return nil, fmt.Errorf("optimizer: loading state: %w", err)
	}
	if o.state.CurrentRegime == "" {
		o.state.CurrentRegime = types.RegimeRanging
	}
	return o, nil
}

// ShouldOptimize reports whether OptimizeInterval has elapsed since the
// last optimization pass.
func (o *Optimizer) ShouldOptimize() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return time.Since(o.state.LastOptimization) >= o.params.OptimizeInterval
}

// SnapshotCount returns the number of retained performance snapshots.
func (o *Optimizer) SnapshotCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.state.PerformanceSnapshots)
}

// CurrentRegime returns the last-classified market regime.
func (o *Optimizer) CurrentRegime() types.Regime {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.CurrentRegime
}

// Optimize queries the oracle for a regime verdict, derives an
// Adjustments overlay from the regime table, evaluates the
// asset-pruning rule over recent closed trades, appends a bounded
// performance snapshot, and persists the result.
func (o *Optimizer) Optimize(ctx context.Context, t *tracker.Tracker) (types.Adjustments, error) {
	stats := t.GetStats(0)

	verdict, err := o.queryRegime(ctx)
	if err != nil {
		o.logger.Warn("regime query failed, keeping prior regime", zap.Error(err))
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	oldRegime := o.state.CurrentRegime
	if err == nil {
		o.state.CurrentRegime = verdict.Regime
		if oldRegime != o.state.CurrentRegime {
			o.logger.Info("regime change", zap.String("from", string(oldRegime)), zap.String("to", string(o.state.CurrentRegime)))
		}
	}

	adj := regimeAdjustments(o.state.CurrentRegime)

	if stats.TotalTrades >= o.params.PruneMinTrades {
		if worst, ok := worstAsset(stats.ByAsset); ok {
			if stats.ByAsset[worst].TotalPnL.LessThan(o.params.PruneMinLossUsd) {
				adj.RemoveAsset = worst
			}
		}
	}

	o.state.PerformanceSnapshots = append(o.state.PerformanceSnapshots, types.PerformanceSnapshot{
		Timestamp:   time.Now(),
		Regime:      o.state.CurrentRegime,
		RegimeScore: verdict.Score,
		WinRate:     stats.WinRatePct,
		TotalPnL:    stats.TotalPnL,
	})
	if len(o.state.PerformanceSnapshots) > o.params.SnapshotCap {
		o.state.PerformanceSnapshots = o.state.PerformanceSnapshots[len(o.state.PerformanceSnapshots)-o.params.SnapshotCap:]
	}

	o.state.LastOptimization = time.Now()
	o.state.OptimizationCount++

	if saveErr := o.store.Save(&o.state); saveErr != nil {
		return adj, fmt.Errorf("optimizer: persisting state: %w", saveErr)
	}
	return adj, nil
}

func (o *Optimizer) queryRegime(ctx context.Context) (types.RegimeVerdict, error) {
	resp, err := o.oracle.Query(ctx, regimePrompt)
	if err != nil {
		return types.RegimeVerdict{}, err
	}
	if sentiment.IsUselessResponse(resp) {
		return types.RegimeVerdict{}, fmt.Errorf("optimizer: useless oracle response")
	}
	score := sentiment.ExtractScore(resp)
	return types.RegimeVerdict{Regime: sentiment.ClassifyRegime(score), Score: score, Commentary: resp}, nil
}

// regimeAdjustments maps a classified regime to its fixed overlay,
// mirroring the original strategy optimizer's table exactly.
func regimeAdjustments(regime types.Regime) types.Adjustments {
	switch regime {
	case types.RegimeStrongBear:
		return types.Adjustments{
			Bias: "Favor shorts, tighten long SL",
			SLAdjust: decimal.NewFromFloat(0.8), TPAdjust: decimal.NewFromFloat(1.2),
			LongThreshold: 3, ShortThreshold: 2,
		}
	case types.RegimeStrongBull:
		return types.Adjustments{
			Bias: "Favor longs, tighten short SL",
			SLAdjust: decimal.NewFromFloat(1.2), TPAdjust: decimal.NewFromFloat(0.8),
			LongThreshold: 2, ShortThreshold: 3,
		}
	case types.RegimeRanging:
		return types.Adjustments{
			Bias: "Mean-reversion, tighter SL/TP",
			SLAdjust: decimal.NewFromFloat(0.8), TPAdjust: decimal.NewFromFloat(0.8),
			LongThreshold: 2, ShortThreshold: 2,
		}
	case types.RegimeMildBear:
		return types.Adjustments{
			Bias: "Slight bear bias",
			SLAdjust: decimal.NewFromFloat(1.0), TPAdjust: decimal.NewFromFloat(1.0),
			LongThreshold: 2, ShortThreshold: 2,
		}
	case types.RegimeMildBull:
		return types.Adjustments{
			Bias: "Slight bull bias",
			SLAdjust: decimal.NewFromFloat(1.0), TPAdjust: decimal.NewFromFloat(1.0),
			LongThreshold: 2, ShortThreshold: 2,
		}
	default:
		return types.Adjustments{
			Bias: "Slight bias unknown",
			SLAdjust: decimal.NewFromFloat(1.0), TPAdjust: decimal.NewFromFloat(1.0),
			LongThreshold: 2, ShortThreshold: 2,
		}
	}
}

func worstAsset(byAsset map[string]tracker.AssetStats) (string, bool) {
	worst := ""
	var worstPnL decimal.Decimal
	found := false
	for asset, s := range byAsset {
		if !found || s.TotalPnL.LessThan(worstPnL) {
			worst = asset
			worstPnL = s.TotalPnL
			found = true
		}
	}
	return worst, found
}
