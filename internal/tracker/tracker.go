// Package tracker is the append-only, persistent trade journal: entry
// and exit logging, PnL computation, and statistics (win rate, profit
// factor, per-asset and per-signal win rates). Statistics are always
// recomputed from the journal, so a crash-then-reload reproduces the
// same numbers deterministically.
package tracker

import (
	"fmt"
	"sync"
	"time"

	"github.com/atlas-desktop/trading-backend/internal/data"
	"github.com/atlas-desktop/trading-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// exitTolerance is the fraction-of-entry-price band used to classify
// an inferred close as tp/sl/unknown.
const exitTolerance = 0.005

type state struct {
	Trades []types.TradeRecord `json:"trades"`
}

// Tracker owns the trade journal for the trading agent.
type Tracker struct {
	mu     sync.RWMutex
	logger *zap.Logger
	store  *data.Store
	state  state
}

// New constructs a Tracker, loading any existing journal at path.
func New(logger *zap.Logger, path string) (*Tracker, error) {
	store, err := data.New(logger, path, 0o644)
	if err != nil {
		return nil, err
	}
	t := &Tracker{logger: logger, store: store}
	if _, err := store.Load(&t.state); err != nil {
		return nil, fmt.Errorf("tracker: loading journal: %w", err)
	}
	return t, nil
}

// JournalEntry appends a new open trade and persists the journal.
func (t *Tracker) JournalEntry(rec types.TradeRecord) (types.TradeRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.Status = types.TradeStatusOpen
	t.state.Trades = append(t.state.Trades, rec)
	if err := t.store.Save(&t.state); err != nil {
		return rec, fmt.Errorf("tracker: persisting entry: %w", err)
	}
	return rec, nil
}

// JournalExit closes an open trade by asset, computing pnl/pnlPct from
// the exit price, and persists the journal. Returns an error if no
// matching open trade exists.
func (t *Tracker) JournalExit(asset string, exitPx decimal.Decimal, exitTime time.Time, reason types.ExitReason) (types.TradeRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.state.Trades {
		tr := &t.state.Trades[i]
		if tr.Asset != asset || tr.Status != types.TradeStatusOpen {
			continue
		}
		tr.Status = types.TradeStatusClosed
		tr.ExitPx = exitPx
		et := exitTime
		tr.ExitTime = &et
		tr.ExitReason = reason
		tr.PnL, tr.PnLPct = ComputePnL(*tr)

		if err := t.store.Save(&t.state); err != nil {
			return *tr, fmt.Errorf("tracker: persisting exit: %w", err)
		}
		return *tr, nil
	}
	return types.TradeRecord{}, fmt.Errorf("tracker: no open trade found for asset %q", asset)
}

// ComputePnL returns (pnl, pnlPct) per the invariant
// pnl = (exitPx - entryPx) * size * dirSign, pnlPct = pnl / (entryPx * size / leverage).
func ComputePnL(tr types.TradeRecord) (decimal.Decimal, decimal.Decimal) {
	sign := decimal.NewFromInt(int64(tr.Direction.Sign()))
	pnl := tr.ExitPx.Sub(tr.EntryPx).Mul(tr.Size).Mul(sign)

	notional := tr.EntryPx.Mul(tr.Size)
	if tr.Leverage > 0 {
		notional = notional.Div(decimal.NewFromInt(int64(tr.Leverage)))
	}
	if notional.IsZero() {
		return pnl, decimal.Zero
	}
	return pnl, pnl.Div(notional)
}

// ClassifyExit compares the observed exit price to the expected SL/TP
// bands (entry*(1-slPct)/(1+slPct) etc., mirrored by direction) within
// a 0.5%-of-entry tolerance.
func ClassifyExit(direction types.Direction, entry, exit, slPct, tpPct decimal.Decimal) types.ExitReason {
	tol := entry.Mul(decimal.NewFromFloat(exitTolerance))
	sign := decimal.NewFromInt(int64(direction.Sign()))

	slPrice := entry.Mul(decimal.NewFromInt(1).Sub(slPct.Mul(sign)))
	tpPrice := entry.Mul(decimal.NewFromInt(1).Add(tpPct.Mul(sign)))

	if exit.Sub(slPrice).Abs().LessThanOrEqual(tol) {
		return types.ExitReasonSL
	}
	if exit.Sub(tpPrice).Abs().LessThanOrEqual(tol) {
		return types.ExitReasonTP
	}
	return types.ExitReasonUnknown
}

// OpenTrades returns all currently-open journal entries.
func (t *Tracker) OpenTrades() []types.TradeRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []types.TradeRecord
	for _, tr := range t.state.Trades {
		if tr.Status == types.TradeStatusOpen {
			out = append(out, tr)
		}
	}
	return out
}

// Stats is the aggregate statistics returned by GetStats.
type Stats struct {
	TotalTrades  int                        `json:"totalTrades"`
	Wins         int                        `json:"wins"`
	Losses       int                        `json:"losses"`
	WinRatePct   decimal.Decimal            `json:"winRatePct"`
	TotalPnL     decimal.Decimal            `json:"totalPnl"`
	AvgWin       decimal.Decimal            `json:"avgWin"`
	AvgLoss      decimal.Decimal            `json:"avgLoss"`
	ProfitFactor decimal.Decimal            `json:"profitFactor"`
	BestTrade    decimal.Decimal            `json:"bestTrade"`
	WorstTrade   decimal.Decimal            `json:"worstTrade"`
	ByAsset      map[string]AssetStats      `json:"byAsset"`
	BySignal     map[string]SignalStats     `json:"bySignal"`
}

// AssetStats is the per-asset aggregate.
type AssetStats struct {
	Trades   int             `json:"trades"`
	WinRatePct decimal.Decimal `json:"winRatePct"`
	TotalPnL decimal.Decimal `json:"totalPnl"`
}

// SignalStats is the per-signal win-rate aggregate: how often a given
// signal was active on a trade that won.
type SignalStats struct {
	Activations int             `json:"activations"`
	Wins        int             `json:"wins"`
	WinRatePct  decimal.Decimal `json:"winRatePct"`
}

// GetStats recomputes statistics over the last N closed trades (0 or
// negative means "all").
func (t *Tracker) GetStats(lastN int) Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	closed := closedTrades(t.state.Trades)
	if lastN > 0 && lastN < len(closed) {
		closed = closed[len(closed)-lastN:]
	}
	return ComputeStats(closed)
}

// ComputeStats recomputes statistics over an arbitrary slice of closed
// trades, exported so other learners (adapter, optimizer) can
// aggregate a specific trade window without round-tripping through a
// Tracker instance.
func ComputeStats(closed []types.TradeRecord) Stats {
	return computeStats(closed)
}

// ClosedTrades returns the last N closed trades (0 or negative means
// all), oldest-first.
func (t *Tracker) ClosedTrades(lastN int) []types.TradeRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	closed := closedTrades(t.state.Trades)
	if lastN > 0 && lastN < len(closed) {
		closed = closed[len(closed)-lastN:]
	}
	return append([]types.TradeRecord(nil), closed...)
}

func closedTrades(all []types.TradeRecord) []types.TradeRecord {
	var out []types.TradeRecord
	for _, tr := range all {
		if tr.Status == types.TradeStatusClosed {
			out = append(out, tr)
		}
	}
	return out
}

func computeStats(closed []types.TradeRecord) Stats {
	s := Stats{ByAsset: map[string]AssetStats{}, BySignal: map[string]SignalStats{}}
	if len(closed) == 0 {
		return s
	}

	var winSum, lossSum decimal.Decimal
	assetTrades := map[string][]types.TradeRecord{}
	signalAct := map[string]int{}
	signalWins := map[string]int{}

	for i, tr := range closed {
		s.TotalTrades++
		s.TotalPnL = s.TotalPnL.Add(tr.PnL)
		win := tr.PnL.GreaterThan(decimal.Zero)
		if win {
			s.Wins++
			winSum = winSum.Add(tr.PnL)
		} else if tr.PnL.LessThan(decimal.Zero) {
			s.Losses++
			lossSum = lossSum.Add(tr.PnL)
		}
		if i == 0 || tr.PnL.GreaterThan(s.BestTrade) {
			s.BestTrade = tr.PnL
		}
		if i == 0 || tr.PnL.LessThan(s.WorstTrade) {
			s.WorstTrade = tr.PnL
		}
		assetTrades[tr.Asset] = append(assetTrades[tr.Asset], tr)

		for key, active := range signalFlags(tr.Signals) {
			if !active {
				continue
			}
			signalAct[key]++
			if win {
				signalWins[key]++
			}
		}
	}

	if s.TotalTrades > 0 {
		s.WinRatePct = decimal.NewFromInt(int64(s.Wins)).Mul(decimal.NewFromInt(100)).Div(decimal.NewFromInt(int64(s.TotalTrades)))
	}
	if s.Wins > 0 {
		s.AvgWin = winSum.Div(decimal.NewFromInt(int64(s.Wins)))
	}
	if s.Losses > 0 {
		s.AvgLoss = lossSum.Div(decimal.NewFromInt(int64(s.Losses)))
	}
	if !lossSum.IsZero() {
		s.ProfitFactor = winSum.Div(lossSum.Abs())
	}

	for asset, trades := range assetTrades {
		wins := 0
		var pnl decimal.Decimal
		for _, tr := range trades {
			pnl = pnl.Add(tr.PnL)
			if tr.PnL.GreaterThan(decimal.Zero) {
				wins++
			}
		}
		wr := decimal.Zero
		if len(trades) > 0 {
			wr = decimal.NewFromInt(int64(wins)).Mul(decimal.NewFromInt(100)).Div(decimal.NewFromInt(int64(len(trades))))
		}
		s.ByAsset[asset] = AssetStats{Trades: len(trades), WinRatePct: wr, TotalPnL: pnl}
	}

	for key, act := range signalAct {
		wr := decimal.Zero
		if act > 0 {
			wr = decimal.NewFromInt(int64(signalWins[key])).Mul(decimal.NewFromInt(100)).Div(decimal.NewFromInt(int64(act)))
		}
		s.BySignal[key] = SignalStats{Activations: act, Wins: signalWins[key], WinRatePct: wr}
	}

	return s
}

// signalFlags enumerates the boolean signal keys used in per-signal
// analysis. "ai_bias_aligned" receives special handling: it is only
// counted active when the AI bias actually agreed with the trade's
// direction, not merely when a bias was present.
func signalFlags(sig types.SignalSnapshot) map[string]bool {
	return map[string]bool{
		"bb":              sig.BB,
		"rsi":             sig.RSI,
		"adx":             sig.ADX,
		"ai_bias":         sig.AIBias,
		"ai_bias_aligned": sig.AIBiasAligned,
		"momentum":        sig.Momentum,
		"liquidity":       sig.Liquidity,
		"orderbook":       sig.Orderbook,
		"mtf_rsi":         sig.MTFRSI,
	}
}
