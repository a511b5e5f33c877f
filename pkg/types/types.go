// Package types provides shared type definitions for the trading and
// farming agents.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction is a trade or signal direction.
type Direction string

const (
	DirectionLong    Direction = "LONG"
	DirectionShort   Direction = "SHORT"
	DirectionNeutral Direction = "NEUTRAL"
)

// Sign returns +1 for LONG, -1 for SHORT, 0 otherwise.
func (d Direction) Sign() int {
	switch d {
	case DirectionLong:
		return 1
	case DirectionShort:
		return -1
	default:
		return 0
	}
}

// TradeStatus is the lifecycle state of a TradeRecord.
type TradeStatus string

const (
	TradeStatusOpen   TradeStatus = "open"
	TradeStatusClosed TradeStatus = "closed"
)

// ExitReason classifies how a position was closed.
type ExitReason string

const (
	ExitReasonTP      ExitReason = "tp"
	ExitReasonSL      ExitReason = "sl"
	ExitReasonPartial ExitReason = "partial"
	ExitReasonTrail   ExitReason = "trail"
	ExitReasonUnknown ExitReason = "unknown"
)

// Regime is a coarse market-state classification driving asymmetric
// entry thresholds.
type Regime string

const (
	RegimeStrongBull Regime = "STRONG_BULL"
	RegimeMildBull   Regime = "MILD_BULL"
	RegimeRanging    Regime = "RANGING"
	RegimeMildBear   Regime = "MILD_BEAR"
	RegimeStrongBear Regime = "STRONG_BEAR"
)

// OHLCV is a single candlestick.
type OHLCV struct {
	Timestamp time.Time       `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
}

// IndicatorBundle is the derived indicator record for one candle window.
type IndicatorBundle struct {
	Price     decimal.Decimal `json:"price"`
	RSI       decimal.Decimal `json:"rsi"`
	BBUpper   decimal.Decimal `json:"bbUpper"`
	BBMiddle  decimal.Decimal `json:"bbMiddle"`
	BBLower   decimal.Decimal `json:"bbLower"`
	BBWidth   decimal.Decimal `json:"bbWidth"`
	ADX       decimal.Decimal `json:"adx"`
	PlusDI    decimal.Decimal `json:"plusDI"`
	MinusDI   decimal.Decimal `json:"minusDI"`
	SMA5      decimal.Decimal `json:"sma5"`
	VolumeAvg decimal.Decimal `json:"volumeAvg"`
	VolumeRatio decimal.Decimal `json:"volumeRatio"`

	AboveUpperBB    bool `json:"aboveUpperBB"`
	BelowLowerBB    bool `json:"belowLowerBB"`
	RSIOversold     bool `json:"rsiOversold"`
	RSIOverbought   bool `json:"rsiOverbought"`
	Trending        bool `json:"trending"`
	TrendBullish    bool `json:"trendBullish"`
	MomentumBullish bool `json:"momentumBullish"`
	VolumeConfirmed bool `json:"volumeConfirmed"`
}

// LiquidityLevel is a single support/resistance level.
type LiquidityLevel struct {
	Price  decimal.Decimal `json:"price"`
	Source string          `json:"source"` // swing, volume, round
}

// LiquidationCluster is an estimated liquidation price band for a given
// leverage multiple.
type LiquidationCluster struct {
	Leverage int             `json:"leverage"`
	Long     decimal.Decimal `json:"long"`
	Short    decimal.Decimal `json:"short"`
}

// LiquidityMap is the ranked support/resistance map for a symbol.
type LiquidityMap struct {
	Symbol             string               `json:"symbol"`
	CurrentPrice       decimal.Decimal      `json:"currentPrice"`
	KeySupports        []LiquidityLevel     `json:"keySupports"`
	KeyResistances     []LiquidityLevel     `json:"keyResistances"`
	NearestSupport     decimal.Decimal      `json:"nearestSupport"`
	NearestResistance  decimal.Decimal      `json:"nearestResistance"`
	DistToSupportPct   decimal.Decimal      `json:"distToSupportPct"`
	DistToResistancePct decimal.Decimal     `json:"distToResistancePct"`
	Bias               Direction            `json:"bias"`
	LiquidationClusters []LiquidationCluster `json:"liquidationClusters"`
}

// SignalSnapshot is the set of boolean/directional contributions that
// fed a trade's entry score, journaled for post-hoc attribution.
type SignalSnapshot struct {
	BB             bool      `json:"bb"`
	RSI            bool      `json:"rsi"`
	ADX            bool      `json:"adx"`
	AIBias         bool      `json:"aiBias"`
	AIBiasAligned  bool      `json:"aiBiasAligned"`
	Momentum       bool      `json:"momentum"`
	Liquidity      bool      `json:"liquidity"`
	Orderbook      bool      `json:"orderbook"`
	MTFRSI         bool      `json:"mtfRsi"`
	ExtremeOversold bool     `json:"extremeOversold"`
	LongScore      int       `json:"longScore"`
	ShortScore     int       `json:"shortScore"`
	Direction      Direction `json:"direction"`
}

// TradeRecord is one journaled trade.
type TradeRecord struct {
	ID        string          `json:"id"`
	Asset     string          `json:"asset"`
	Direction Direction       `json:"direction"`
	Size      decimal.Decimal `json:"size"`
	Leverage  int             `json:"leverage"`
	EntryPx   decimal.Decimal `json:"entryPx"`
	EntryTime time.Time       `json:"entryTime"`
	SLPct     decimal.Decimal `json:"slPct,omitempty"`
	TPPct     decimal.Decimal `json:"tpPct,omitempty"`
	Signals   SignalSnapshot  `json:"signalsSnapshot"`
	Status    TradeStatus     `json:"status"`

	ExitPx     decimal.Decimal `json:"exitPx,omitempty"`
	ExitTime   *time.Time      `json:"exitTime,omitempty"`
	ExitReason ExitReason      `json:"exitReason,omitempty"`
	PnL        decimal.Decimal `json:"pnl,omitempty"`
	PnLPct     decimal.Decimal `json:"pnlPct,omitempty"`
}

// BlockedAsset records a temporary asset-level trading ban.
type BlockedAsset struct {
	Asset     string    `json:"asset"`
	BlockedAt time.Time `json:"blockedAt"`
	Reason    string    `json:"reason"`
}

// AdaptationLogEntry describes one micro-adapter adjustment.
type AdaptationLogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Summary   string    `json:"summary"`
}

// AdapterState is the persisted state of the micro adapter.
type AdapterState struct {
	SignalWeights     map[string]decimal.Decimal `json:"signalWeights"`
	ScoreThreshold    int                        `json:"scoreThreshold"`
	BlockedAssets     []BlockedAsset             `json:"blockedAssets"`
	LastAdaptation    time.Time                  `json:"lastAdaptation"`
	AdaptationCount   int                        `json:"adaptationCount"`
	TradesAtLastAdapt int                        `json:"tradesAtLastAdapt"`
	AdaptationLog     []AdaptationLogEntry       `json:"adaptationLog"`
}

// PerformanceSnapshot is one entry in the macro optimizer's rolling
// history.
type PerformanceSnapshot struct {
	Timestamp   time.Time       `json:"timestamp"`
	Regime      Regime          `json:"regime"`
	RegimeScore decimal.Decimal `json:"regimeScore"`
	WinRate     decimal.Decimal `json:"winRate"`
	TotalPnL    decimal.Decimal `json:"totalPnL"`
}

// OptimizerState is the persisted state of the macro optimizer.
type OptimizerState struct {
	LastOptimization     time.Time             `json:"lastOptimization"`
	OptimizationCount    int                   `json:"optimizationCount"`
	CurrentRegime        Regime                `json:"currentRegime"`
	PerformanceSnapshots []PerformanceSnapshot `json:"performanceSnapshots"`
}

// Adjustments is the macro optimizer's output overlay.
type Adjustments struct {
	SLAdjust       decimal.Decimal `json:"slAdjust"`
	TPAdjust       decimal.Decimal `json:"tpAdjust"`
	LongThreshold  int             `json:"longThreshold"`
	ShortThreshold int             `json:"shortThreshold"`
	Bias           string          `json:"bias"`
	RemoveAsset    string          `json:"removeAsset,omitempty"`
}

// Tier is an equity-bucket parameter row.
type Tier struct {
	MinEquity decimal.Decimal `json:"minEquity"`
	MaxEquity decimal.Decimal `json:"maxEquity"` // exclusive upper bound; use a very large number for the top tier
	Leverage  int             `json:"leverage"`
	RiskPct   decimal.Decimal `json:"riskPct"`
	TPPct     decimal.Decimal `json:"tpPct"`
	SLPct     decimal.Decimal `json:"slPct"`
}

// AssetConfig describes one tradable symbol.
type AssetConfig struct {
	Symbol        string `json:"symbol"`
	Namespace     string `json:"namespace"` // "" for the default venue namespace, else e.g. "xyz"
	SizeDecimals  int32  `json:"sizeDecimals"`
	MaxLeverage   int    `json:"maxLeverage"`
	MinNotionalUsd decimal.Decimal `json:"minNotionalUsd"`
}

// IsNamespaced reports whether the asset lives in a secondary
// sub-account namespace requiring explicit fund transfer.
func (a AssetConfig) IsNamespaced() bool { return a.Namespace != "" }

// ActionType is an airdrop-farming on-chain action kind.
type ActionType string

const (
	ActionSwapEthToToken ActionType = "swapEthToToken"
	ActionSwapTokenToEth ActionType = "swapTokenToEth"
	ActionSelfTransfer   ActionType = "selfTransfer"
	ActionLPAdd          ActionType = "lpAdd"
	ActionLPRemove       ActionType = "lpRemove"
)

// PlanStatus is the execution state of a PlanEntry.
type PlanStatus string

const (
	PlanStatusPending PlanStatus = "pending"
	PlanStatusDone    PlanStatus = "done"
	PlanStatusFailed  PlanStatus = "failed"
)

// PlanEntry is one scheduled on-chain action.
type PlanEntry struct {
	ID         string                 `json:"id"`
	TimeUTC    time.Time              `json:"timeUTC"`
	ActionType ActionType             `json:"actionType"`
	Chain      string                 `json:"chain"`
	Params     map[string]string      `json:"params"`
	Status     PlanStatus             `json:"status"`
	TxHash     string                 `json:"txHash,omitempty"`
	Error      string                 `json:"error,omitempty"`
	ExecutedAt *time.Time             `json:"executedAt,omitempty"`
}

// DailyPlan is the persisted plan for a single calendar date.
type DailyPlan struct {
	Date    string      `json:"date"` // YYYY-MM-DD, UTC
	Entries []PlanEntry `json:"entries"`
}

// ChainType distinguishes mainnet from testnet chains.
type ChainType string

const (
	ChainTypeMainnet ChainType = "mainnet"
	ChainTypeTestnet ChainType = "testnet"
)

// ChainConfig describes one EVM chain the farmer operates on.
type ChainConfig struct {
	Name         string    `json:"name"`
	RPCs         []string  `json:"rpcs"`
	ChainID      int64     `json:"chainId"`
	AvgGasCostUsd decimal.Decimal `json:"avgGasCostUsd"`
	EIP1559      bool      `json:"eip1559"`
	Type         ChainType `json:"type"`
	WrappedNative string   `json:"wrappedNative"`
	SwapRouter   string    `json:"swapRouter"`
	LPRouter     string    `json:"lpRouter"`
	Tokens       []string  `json:"tokens"`
}

// BudgetTracker is the persisted gas-budget ledger.
type BudgetTracker struct {
	BudgetUsd    decimal.Decimal            `json:"budgetUsd"`
	ReservePct   decimal.Decimal            `json:"reservePct"`
	SpentByChain map[string]decimal.Decimal `json:"spentByChain"`
	TotalSpent   decimal.Decimal            `json:"totalSpent"`
}

// Remaining returns max(0, budgetUsd*(1-reservePct) - totalSpent).
func (b *BudgetTracker) Remaining() decimal.Decimal {
	usable := b.BudgetUsd.Mul(decimal.NewFromInt(1).Sub(b.ReservePct))
	remaining := usable.Sub(b.TotalSpent)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// CanAfford reports whether the remaining budget covers one average
// transaction on the given chain.
func (b *BudgetTracker) CanAfford(chain ChainConfig) bool {
	return b.Remaining().GreaterThanOrEqual(chain.AvgGasCostUsd)
}

// RecordSpend debits the flat average gas cost for chain against the
// budget. This is a soft guard against the configured average, not an
// accounting of the executed transaction's actual receipt cost.
func (b *BudgetTracker) RecordSpend(chain string, amountUsd decimal.Decimal) {
	if b.SpentByChain == nil {
		b.SpentByChain = map[string]decimal.Decimal{}
	}
	b.SpentByChain[chain] = b.SpentByChain[chain].Add(amountUsd)
	b.TotalSpent = b.TotalSpent.Add(amountUsd)
}

// MacroBias is the sentiment oracle's per-symbol verdict.
type MacroBias struct {
	Direction Direction       `json:"direction"`
	Score     decimal.Decimal `json:"score"`
}

// RegimeVerdict is the sentiment oracle's market-regime verdict.
type RegimeVerdict struct {
	Regime     Regime          `json:"regime"`
	Score      decimal.Decimal `json:"score"`
	Commentary string          `json:"commentary"`
}

// AccountState is the venue's reported account snapshot.
type AccountState struct {
	AccountValue    decimal.Decimal           `json:"accountValue"`
	TotalMarginUsed decimal.Decimal           `json:"totalMarginUsed"`
	Withdrawable    decimal.Decimal           `json:"withdrawable"`
	Positions       map[string]*VenuePosition `json:"positions"`
}

// VenuePosition is one open position as reported by the venue.
type VenuePosition struct {
	Asset         string          `json:"asset"`
	Direction     Direction       `json:"direction"`
	Size          decimal.Decimal `json:"size"`
	EntryPx       decimal.Decimal `json:"entryPx"`
	UnrealizedPnL decimal.Decimal `json:"unrealizedPnl"`
	Leverage      int             `json:"leverage"`
}

// OrderBookSnapshot is a top-of-book depth snapshot.
type OrderBookSnapshot struct {
	Symbol string           `json:"symbol"`
	Bids   []OrderBookLevel `json:"bids"`
	Asks   []OrderBookLevel `json:"asks"`
}

// OrderBookLevel is one price level.
type OrderBookLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// Fill is one historical execution as reported by the venue.
type Fill struct {
	Asset     string          `json:"asset"`
	Price     decimal.Decimal `json:"price"`
	Size      decimal.Decimal `json:"size"`
	Time      time.Time       `json:"time"`
	Direction Direction       `json:"direction"`
}
