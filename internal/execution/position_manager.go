package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/atlas-desktop/trading-backend/internal/data"
	"github.com/atlas-desktop/trading-backend/internal/tracker"
	"github.com/atlas-desktop/trading-backend/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ManagerParams configures partial-TP, trailing-stop and drawdown
// circuit-breaker behaviour.
type ManagerParams struct {
	PartialTPThreshold decimal.Decimal
	PartialTPFraction  decimal.Decimal
	TrailActivation    decimal.Decimal
	TrailDistance      decimal.Decimal
	MaxDrawdownPct     decimal.Decimal
}

// ParamsFromConfig adapts a types.TradingConfig into ManagerParams.
func ParamsFromConfig(cfg types.TradingConfig) ManagerParams {
	return ManagerParams{
		PartialTPThreshold: cfg.PartialTPThreshold,
		PartialTPFraction:  cfg.PartialTPFraction,
		TrailActivation:    cfg.TrailingStopActivation,
		TrailDistance:      cfg.TrailingStopDistance,
		MaxDrawdownPct:     cfg.MaxDrawdownPct,
	}
}

type managerState struct {
	PeakEquity    decimal.Decimal            `json:"peakEquity"`
	Paused        bool                       `json:"paused"`
	PeakPnlPct    map[string]decimal.Decimal `json:"peakPnlPct"`
	PartialClosed map[string]bool            `json:"partialClosed"`
	// OpenAtLastTick is keyed by namespace so a secondary sub-account's
	// prior-tick snapshot isn't clobbered by the default namespace's
	// Tick call (or vice versa).
	OpenAtLastTick map[string]map[string]bool `json:"openAtLastTick"`
}

// namespaceTransferAll is a sentinel "everything withdrawable" amount,
// mirroring the rollback transfer in OpenPosition.
var namespaceTransferAll = decimal.NewFromInt(1 << 32)

// Manager runs the per-tick position management pass: partial
// take-profit, trailing stop, drawdown circuit breaker and
// close-detection/reconciliation.
type Manager struct {
	mu      sync.Mutex
	logger  *zap.Logger
	store   *data.Store
	venue   Venue
	tracker *tracker.Tracker
	params  ManagerParams
	state   managerState
}

// NewManager constructs a Manager, loading any persisted tick-to-tick
// state (peak equity, armed trails, partial-close flags).
func NewManager(logger *zap.Logger, path string, venue Venue, tr *tracker.Tracker, params ManagerParams) (*Manager, error) {
	store, err := data.New(logger, path, 0o644)
	if err != nil {
		return nil, err
	}
	m := &Manager{logger: logger, store: store, venue: venue, tracker: tr, params: params}
	if _, err := store.Load(&m.state); err != nil {
		return nil, fmt.Errorf("execution: loading position-manager state: %w", err)
	}
	if m.state.PeakPnlPct == nil {
		m.state.PeakPnlPct = map[string]decimal.Decimal{}
	}
	if m.state.PartialClosed == nil {
		m.state.PartialClosed = map[string]bool{}
	}
	if m.state.OpenAtLastTick == nil {
		m.state.OpenAtLastTick = map[string]map[string]bool{}
	}
	return m, nil
}

// IsPaused reports whether the drawdown circuit breaker is tripped.
func (m *Manager) IsPaused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Paused
}

// Tick runs one full management pass against namespace: drawdown check
// (primary/default namespace only — that is where the bulk of capital
// and risk lives), then for every currently-open venue position in
// this namespace, partial-TP and trailing-stop evaluation; finally
// close-detection for any symbol that disappeared since the previous
// tick on this namespace. When a secondary namespace's last occupant
// closes, the now-idle sub-account balance is transferred back to the
// primary namespace.
func (m *Manager) Tick(ctx context.Context, namespace string) error {
	account, err := m.venue.AccountState(ctx, namespace)
	if err != nil {
		return fmt.Errorf("execution: fetching account state: %w", err)
	}

	if namespace == "" {
		m.mu.Lock()
		m.updateDrawdown(account.AccountValue)
		m.mu.Unlock()
	}

	currentlyOpen := map[string]bool{}
	for asset, pos := range account.Positions {
		currentlyOpen[asset] = true
		if err := m.manageOne(ctx, asset, pos); err != nil {
			m.logger.Error("position management failed", zap.String("asset", asset), zap.Error(err))
		}
	}

	m.mu.Lock()
	previouslyOpen := m.state.OpenAtLastTick[namespace]
	m.state.OpenAtLastTick[namespace] = currentlyOpen
	err = m.store.Save(&m.state)
	m.mu.Unlock()
	if err != nil {
		return fmt.Errorf("execution: persisting manager state: %w", err)
	}

	anyClosed := false
	for asset := range previouslyOpen {
		if !currentlyOpen[asset] {
			if err := m.reconcileClose(ctx, asset); err != nil {
				m.logger.Error("close reconciliation failed", zap.String("asset", asset), zap.Error(err))
			}
			anyClosed = true
		}
	}

	if namespace != "" && anyClosed && len(currentlyOpen) == 0 {
		if err := m.venue.TransferFromNamespace(ctx, namespace, namespaceTransferAll); err != nil {
			m.logger.Error("namespace reconciliation transfer-back failed", zap.String("namespace", namespace), zap.Error(err))
		} else {
			m.logger.Info("namespace emptied, balance transferred back to primary", zap.String("namespace", namespace))
		}
	}
	return nil
}

func (m *Manager) updateDrawdown(equity decimal.Decimal) {
	if equity.GreaterThan(m.state.PeakEquity) {
		m.state.PeakEquity = equity
	}
	if m.state.PeakEquity.IsZero() {
		return
	}
	drawdown := m.state.PeakEquity.Sub(equity).Div(m.state.PeakEquity)
	if !m.state.Paused && drawdown.GreaterThan(m.params.MaxDrawdownPct) {
		m.state.Paused = true
		m.logger.Warn("drawdown circuit breaker tripped", zap.String("drawdown", drawdown.String()))
	} else if m.state.Paused && drawdown.LessThan(m.params.MaxDrawdownPct.Div(decimal.NewFromInt(2))) {
		m.state.Paused = false
		m.logger.Info("drawdown circuit breaker reset")
	}
}

func (m *Manager) manageOne(ctx context.Context, asset string, pos *types.VenuePosition) error {
	notional := pos.Size.Abs().Mul(pos.EntryPx)
	if notional.IsZero() {
		return nil
	}
	pnlPct := pos.UnrealizedPnL.Div(notional)

	m.mu.Lock()
	peak := m.state.PeakPnlPct[asset]
	if pnlPct.GreaterThan(peak) {
		peak = pnlPct
		m.state.PeakPnlPct[asset] = peak
	}
	alreadyPartial := m.state.PartialClosed[asset]
	m.mu.Unlock()

	if !alreadyPartial && pnlPct.GreaterThanOrEqual(m.params.PartialTPThreshold) {
		reduceSize := pos.Size.Abs().Mul(m.params.PartialTPFraction)
		if err := m.venue.ReduceOnlyClose(ctx, asset, pos.Direction, reduceSize); err != nil {
			return fmt.Errorf("partial take-profit: %w", err)
		}
		m.mu.Lock()
		m.state.PartialClosed[asset] = true
		m.mu.Unlock()
		m.logger.Info("partial take-profit executed", zap.String("asset", asset), zap.String("pnlPct", pnlPct.String()))
		return nil
	}

	if peak.GreaterThanOrEqual(m.params.TrailActivation) {
		retrace := peak.Sub(pnlPct)
		if retrace.GreaterThanOrEqual(m.params.TrailDistance) {
			if err := m.venue.ReduceOnlyClose(ctx, asset, pos.Direction, pos.Size.Abs()); err != nil {
				return fmt.Errorf("trailing stop close: %w", err)
			}
			m.mu.Lock()
			delete(m.state.PeakPnlPct, asset)
			delete(m.state.PartialClosed, asset)
			m.mu.Unlock()
			m.logger.Info("trailing stop closed remainder", zap.String("asset", asset), zap.String("peak", peak.String()), zap.String("current", pnlPct.String()))
		}
	}
	return nil
}

// reconcileClose journals an inferred close for a symbol that vanished
// from the venue's open-position set between ticks, classifying the
// exit reason from the most recent fill.
func (m *Manager) reconcileClose(ctx context.Context, asset string) error {
	fills, err := m.venue.RecentFills(ctx, asset, time.Now().Add(-time.Hour))
	if err != nil || len(fills) == 0 {
		return fmt.Errorf("no recent fill available to classify close for %s", asset)
	}
	last := fills[len(fills)-1]

	open := m.tracker.OpenTrades()
	var entry types.TradeRecord
	for _, tr := range open {
		if tr.Asset == asset {
			entry = tr
			break
		}
	}
	if entry.ID == "" {
		return fmt.Errorf("no open journal entry for %s", asset)
	}

	reason := tracker.ClassifyExit(entry.Direction, entry.EntryPx, last.Price, entry.SLPct, entry.TPPct)
	_, err = m.tracker.JournalExit(asset, last.Price, last.Time, reason)
	if err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.state.PeakPnlPct, asset)
	delete(m.state.PartialClosed, asset)
	m.mu.Unlock()
	return nil
}
