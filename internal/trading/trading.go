// Package trading is the trading agent's orchestrator: on each tick it
// runs the drawdown/position-management pass, the slow macro-optimizer
// and micro-adapter cycles when due, and then evaluates every
// configured asset for a new entry, subject to the open-position cap
// and one-trade-per-asset-per-tick rule.
package trading

import (
	"context"
	"fmt"
	"time"

	"github.com/atlas-desktop/trading-backend/internal/adapter"
	"github.com/atlas-desktop/trading-backend/internal/execution"
	"github.com/atlas-desktop/trading-backend/internal/indicators"
	"github.com/atlas-desktop/trading-backend/internal/liquidity"
	"github.com/atlas-desktop/trading-backend/internal/notify"
	"github.com/atlas-desktop/trading-backend/internal/optimizer"
	"github.com/atlas-desktop/trading-backend/internal/sentiment"
	"github.com/atlas-desktop/trading-backend/internal/tracker"
	"github.com/atlas-desktop/trading-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MarketData is the candle/orderbook collaborator the trading agent
// reads signals from. A separate interface from execution.Venue: venue
// is the order/account gateway, MarketData is the read side, and a
// production client typically implements both against the same
// underlying REST/WS connection.
type MarketData interface {
	Candles(ctx context.Context, asset, interval string, limit int) ([]types.OHLCV, error)
	OrderBook(ctx context.Context, asset string) (types.OrderBookSnapshot, error)
}

const (
	oneHourInterval  = "1h"
	fourHourInterval = "4h"
	orderbookDepth   = 5

	defaultNamespace = ""
)

// Agent is the trading orchestrator.
type Agent struct {
	logger   *zap.Logger
	cfg      types.TradingConfig
	venue    execution.Venue
	market   MarketData
	tracker  *tracker.Tracker
	adapter  *adapter.Adapter
	optimize *optimizer.Optimizer
	posMgr   *execution.Manager
	sent     *sentiment.Analyzer
	notifier notify.Notifier

	adjustments types.Adjustments
	stopCh      chan struct{}
}

// Config bundles Agent's collaborators.
type Config struct {
	Trading  types.TradingConfig
	Venue    execution.Venue
	Market   MarketData
	Tracker  *tracker.Tracker
	Adapter  *adapter.Adapter
	Optimize *optimizer.Optimizer
	PosMgr   *execution.Manager
	Sent     *sentiment.Analyzer
	Notifier notify.Notifier
}

// New constructs a trading Agent. The adjustments overlay starts as
// the identity multiplier with thresholds mirroring the adapter, so
// entries before the first macro-optimizer pass are unaffected.
func New(logger *zap.Logger, cfg Config) *Agent {
	a := &Agent{
		logger:   logger,
		cfg:      cfg.Trading,
		venue:    cfg.Venue,
		market:   cfg.Market,
		tracker:  cfg.Tracker,
		adapter:  cfg.Adapter,
		optimize: cfg.Optimize,
		posMgr:   cfg.PosMgr,
		sent:     cfg.Sent,
		notifier: cfg.Notifier,
		stopCh:   make(chan struct{}),
	}
	threshold := a.adapter.ScoreThreshold()
	a.adjustments = types.Adjustments{
		SLAdjust:       decimal.NewFromInt(1),
		TPAdjust:       decimal.NewFromInt(1),
		LongThreshold:  threshold,
		ShortThreshold: threshold,
	}
	return a
}

// Run drives the tick loop until ctx is cancelled or Stop is called.
func (a *Agent) Run(ctx context.Context) error {
	notify.Status(ctx, a.logger, a.notifier, "trading agent started")

	ticker := time.NewTicker(a.cfg.CheckInterval)
	defer ticker.Stop()

	tick := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("trading: tick panicked: %v", r)
			}
		}()
		return a.Tick(ctx)
	}

	if err := tick(); err != nil {
		a.logger.Error("initial trading tick failed", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			notify.Status(ctx, a.logger, a.notifier, "trading agent stopped")
			return ctx.Err()
		case <-a.stopCh:
			notify.Status(ctx, a.logger, a.notifier, "trading agent stopped")
			return nil
		case <-ticker.C:
			if err := tick(); err != nil {
				a.logger.Error("trading tick failed", zap.Error(err))
			}
		}
	}
}

// Stop signals Run to return.
func (a *Agent) Stop() {
	close(a.stopCh)
}

// Status is a read-only snapshot for the API/CLI status surface.
type Status struct {
	Equity         decimal.Decimal `json:"equity"`
	OpenPositions  int             `json:"openPositions"`
	Paused         bool            `json:"paused"`
	Regime         types.Regime    `json:"regime"`
	ScoreThreshold int             `json:"scoreThreshold"`
	Stats          tracker.Stats   `json:"stats"`
}

// Status returns the agent's current account/regime/performance
// snapshot. Equity and the tier selector track the default namespace
// (the primary margin pool); OpenPositions sums every namespace.
func (a *Agent) Status(ctx context.Context) (Status, error) {
	account, err := a.venue.AccountState(ctx, defaultNamespace)
	if err != nil {
		return Status{}, fmt.Errorf("trading: fetching account state: %w", err)
	}
	openPositions := len(account.Positions)
	for _, ns := range a.namespaces() {
		if ns == defaultNamespace {
			continue
		}
		nsAccount, err := a.venue.AccountState(ctx, ns)
		if err != nil {
			return Status{}, fmt.Errorf("trading: fetching account state for namespace %q: %w", ns, err)
		}
		openPositions += len(nsAccount.Positions)
	}
	return Status{
		Equity:         account.AccountValue,
		OpenPositions:  openPositions,
		Paused:         a.posMgr.IsPaused(),
		Regime:         a.optimize.CurrentRegime(),
		ScoreThreshold: a.adapter.ScoreThreshold(),
		Stats:          a.tracker.GetStats(20),
	}, nil
}

// namespaces returns the default namespace plus every distinct
// secondary namespace named by a configured asset.
func (a *Agent) namespaces() []string {
	namespaces := []string{defaultNamespace}
	seen := map[string]bool{defaultNamespace: true}
	for _, asset := range a.cfg.Assets {
		if !seen[asset.Namespace] {
			seen[asset.Namespace] = true
			namespaces = append(namespaces, asset.Namespace)
		}
	}
	return namespaces
}

// Tick runs one full evaluation pass over every configured asset,
// managing and entering positions in every occupied namespace (the
// default margin pool plus any secondary sub-accounts).
func (a *Agent) Tick(ctx context.Context) error {
	namespaces := a.namespaces()
	for _, ns := range namespaces {
		if err := a.posMgr.Tick(ctx, ns); err != nil {
			return fmt.Errorf("trading: position management for namespace %q: %w", ns, err)
		}
	}
	if a.posMgr.IsPaused() {
		a.logger.Warn("drawdown circuit breaker tripped, skipping new entries")
		return nil
	}

	a.runOptimizer(ctx)
	a.runAdapter()

	accounts := make(map[string]types.AccountState, len(namespaces))
	totalOpen := 0
	for _, ns := range namespaces {
		account, err := a.venue.AccountState(ctx, ns)
		if err != nil {
			return fmt.Errorf("trading: fetching account state for namespace %q: %w", ns, err)
		}
		accounts[ns] = account
		totalOpen += len(account.Positions)
	}
	if totalOpen >= a.cfg.MaxOpenPositions {
		return nil
	}

	tier := execution.SelectTier(a.cfg.Tiers, accounts[defaultNamespace].AccountValue)

	for _, asset := range a.cfg.Assets {
		if totalOpen >= a.cfg.MaxOpenPositions {
			break
		}
		account := accounts[asset.Namespace]
		if _, open := account.Positions[asset.Symbol]; open {
			continue
		}
		if a.adapter.IsAssetBlocked(asset.Symbol) {
			continue
		}
		if asset.Symbol == a.adjustments.RemoveAsset {
			continue
		}

		fill, err := a.evaluateAsset(ctx, asset, tier)
		if err != nil {
			a.logger.Error("asset evaluation failed", zap.String("asset", asset.Symbol), zap.Error(err))
			notify.Alert(ctx, a.logger, a.notifier, fmt.Sprintf("%s entry failed: %v", asset.Symbol, err))
			continue
		}
		if fill == nil {
			continue
		}
		account.Positions[asset.Symbol] = &types.VenuePosition{
			Asset: asset.Symbol, Direction: fill.Direction, Size: fill.Size, EntryPx: fill.Price, Leverage: tier.Leverage,
		}
		totalOpen++
	}
	return nil
}

// evaluateAsset builds the signal set for one symbol and, if it
// clears the adapter's score threshold, opens a position. A nil
// fill/nil error means no entry condition was met.
func (a *Agent) evaluateAsset(ctx context.Context, asset types.AssetConfig, tier types.Tier) (*types.Fill, error) {
	candles, err := a.market.Candles(ctx, asset.Symbol, a.cfg.CandleInterval, a.cfg.LookbackCandles)
	if err != nil {
		return nil, fmt.Errorf("fetching candles: %w", err)
	}
	if len(candles) == 0 {
		return nil, nil
	}
	primary, err := indicators.Build(candles, indicators.ParamsFromConfig(a.cfg))
	if err != nil {
		return nil, fmt.Errorf("building indicators: %w", err)
	}

	oneHourCandles, err := a.market.Candles(ctx, asset.Symbol, oneHourInterval, a.cfg.LookbackCandles)
	if err != nil {
		return nil, fmt.Errorf("fetching 1h candles: %w", err)
	}
	oneHour, err := indicators.Build(oneHourCandles, indicators.ParamsFromConfig(a.cfg))
	if err != nil {
		return nil, fmt.Errorf("building 1h indicators: %w", err)
	}

	fourHourCandles, err := a.market.Candles(ctx, asset.Symbol, fourHourInterval, a.cfg.LookbackCandles)
	if err != nil {
		return nil, fmt.Errorf("fetching 4h candles: %w", err)
	}
	fourHour, err := indicators.Build(fourHourCandles, indicators.ParamsFromConfig(a.cfg))
	if err != nil {
		return nil, fmt.Errorf("building 4h indicators: %w", err)
	}

	liq := liquidity.Analyze(asset.Symbol, candles, primary.Price)

	book, err := a.market.OrderBook(ctx, asset.Symbol)
	if err != nil {
		a.logger.Warn("orderbook fetch failed, continuing without it", zap.String("asset", asset.Symbol), zap.Error(err))
	}
	bidSize, askSize := topLevelsSize(book, orderbookDepth)

	bias := a.sent.MacroBias(ctx, asset.Symbol, macroPrompt(asset.Symbol))

	// The optimizer's per-side thresholds override the adapter's, they
	// don't add to it; Adjustments starts seeded with the adapter value
	// at construction so this holds before the first optimize pass too.
	longThreshold := a.adjustments.LongThreshold
	shortThreshold := a.adjustments.ShortThreshold

	snap := execution.Score(execution.ScoreInputs{
		Primary:          primary,
		OneHour:          oneHour,
		FourHour:         fourHour,
		AIBias:           bias.Direction,
		Liquidity:        liq,
		OrderbookBidSize: bidSize,
		OrderbookAskSize: askSize,
	}, longThreshold, shortThreshold)

	if snap.Direction == types.DirectionNeutral || snap.Direction == "" {
		return nil, nil
	}

	order, err := execution.Size(tier, asset, a.currentEquity(ctx), primary.Price, a.cfg.MaxNotionalFraction)
	if err != nil {
		return nil, nil // notional below minimum, not a real failure
	}

	slPct := tier.SLPct.Mul(a.adjustments.SLAdjust)
	tpPct := tier.TPPct.Mul(a.adjustments.TPAdjust)

	fill, err := execution.OpenPosition(ctx, a.logger, a.venue, asset, snap.Direction, order, slPct, tpPct)
	if err != nil {
		return nil, err
	}

	rec := types.TradeRecord{
		ID:        uuid.NewString(),
		Asset:     asset.Symbol,
		Direction: snap.Direction,
		Size:      fill.Size,
		Leverage:  order.Leverage,
		EntryPx:   fill.Price,
		EntryTime: fill.Time,
		SLPct:     slPct,
		TPPct:     tpPct,
		Signals:   snap,
	}
	if _, err := a.tracker.JournalEntry(rec); err != nil {
		a.logger.Error("journaling entry failed", zap.String("asset", asset.Symbol), zap.Error(err))
	}
	notify.TradeOpened(ctx, a.logger, a.notifier, rec)

	return &fill, nil
}

func (a *Agent) currentEquity(ctx context.Context) decimal.Decimal {
	account, err := a.venue.AccountState(ctx, defaultNamespace)
	if err != nil {
		return decimal.Zero
	}
	return account.AccountValue
}

func (a *Agent) runOptimizer(ctx context.Context) {
	if !a.optimize.ShouldOptimize() {
		return
	}
	adj, err := a.optimize.Optimize(ctx, a.tracker)
	if err != nil {
		a.logger.Error("macro optimization failed", zap.Error(err))
		return
	}
	a.adjustments = adj
	notify.Alert(ctx, a.logger, a.notifier, fmt.Sprintf("regime now %s (bias=%s)", a.optimize.CurrentRegime(), adj.Bias))
}

func (a *Agent) runAdapter() {
	stats := a.tracker.GetStats(0)
	if !a.adapter.ShouldAdapt(stats.TotalTrades) {
		return
	}
	if err := a.adapter.MaybeAdapt(a.tracker); err != nil {
		a.logger.Error("micro adaptation failed", zap.Error(err))
	}
}

func macroPrompt(symbol string) string {
	return fmt.Sprintf(
		"Analyze short-term market sentiment for %s. Score it from -1.0 (extremely bearish) to "+
			"+1.0 (extremely bullish). Format the last line as: SCORE: [number]", symbol,
	)
}

// topLevelsSize sums the top n bid/ask level sizes from an orderbook
// snapshot.
func topLevelsSize(book types.OrderBookSnapshot, n int) (bidSize, askSize decimal.Decimal) {
	for i := 0; i < n && i < len(book.Bids); i++ {
		bidSize = bidSize.Add(book.Bids[i].Size)
	}
	for i := 0; i < n && i < len(book.Asks); i++ {
		askSize = askSize.Add(book.Asks[i].Size)
	}
	return bidSize, askSize
}
