package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/atlas-desktop/trading-backend/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Venue is the narrow capability interface the trading orchestrator
// consumes: account/position state, market orders, protective triggers
// and the secondary-namespace (HIP-3 style) sub-account transfer used
// by assets that live outside the default margin pool.
type Venue interface {
	AccountState(ctx context.Context, namespace string) (types.AccountState, error)
	MarketOrder(ctx context.Context, asset string, dir types.Direction, size decimal.Decimal, leverage int) (types.Fill, error)
	PlaceStopLoss(ctx context.Context, asset string, dir types.Direction, triggerPx, size decimal.Decimal) error
	PlaceTakeProfit(ctx context.Context, asset string, dir types.Direction, triggerPx, size decimal.Decimal) error
	ReduceOnlyClose(ctx context.Context, asset string, dir types.Direction, size decimal.Decimal) error
	RecentFills(ctx context.Context, asset string, since time.Time) ([]types.Fill, error)
	TransferToNamespace(ctx context.Context, namespace string, amountUsd decimal.Decimal) error
	TransferFromNamespace(ctx context.Context, namespace string, amountUsd decimal.Decimal) error
}

// transferBuffer is added on top of the computed margin need before
// pre-funding a secondary namespace, to absorb price drift between the
// balance check and the market order.
var transferBuffer = decimal.NewFromFloat(1.05)

// OpenPosition runs the transactional-at-the-design-level entry
// protocol of a namespaced or default-venue asset: ensure funding (with
// rollback on order failure), submit the market order, and on fill
// bracket it with reduce-only SL/TP triggers.
//
// A rejected or unfilled market order rolls back any pre-emptive
// namespace transfer and returns before any SL/TP is placed. An SL/TP
// placement failure after a successful fill is logged and surfaced as
// an error, but the position itself is not unwound — a later
// reconciliation pass is responsible for reattaching protective orders.
func OpenPosition(ctx context.Context, logger *zap.Logger, venue Venue, asset types.AssetConfig, dir types.Direction, order SizedOrder, slPct, tpPct decimal.Decimal) (types.Fill, error) {
	transferred := decimal.Zero
	if asset.IsNamespaced() {
		amt, err := ensureNamespaceFunding(ctx, venue, asset.Namespace, order.Notional.Div(decimal.NewFromInt(int64(order.Leverage))))
		if err != nil {
			return types.Fill{}, fmt.Errorf("execution: namespace funding: %w", err)
		}
		transferred = amt
	}

	fill, err := venue.MarketOrder(ctx, asset.Symbol, dir, order.Size, order.Leverage)
	if err != nil || fill.Size.IsZero() {
		if !transferred.IsZero() {
			if rbErr := venue.TransferFromNamespace(ctx, asset.Namespace, decimal.NewFromInt(1<<32)); rbErr != nil {
				logger.Error("namespace transfer rollback failed", zap.String("asset", asset.Symbol), zap.Error(rbErr))
			}
		}
		if err != nil {
			return types.Fill{}, fmt.Errorf("execution: market order rejected: %w", err)
		}
		return types.Fill{}, fmt.Errorf("execution: market order did not fill")
	}

	slPrice := bracketPrice(fill.Price, slPct, dir, -1)
	tpPrice := bracketPrice(fill.Price, tpPct, dir, 1)

	if err := venue.PlaceStopLoss(ctx, asset.Symbol, dir, slPrice, order.Size); err != nil {
		logger.Error("stop-loss placement failed, no re-entry until reconciliation", zap.String("asset", asset.Symbol), zap.Error(err))
		return fill, fmt.Errorf("execution: stop-loss placement failed: %w", err)
	}
	if err := venue.PlaceTakeProfit(ctx, asset.Symbol, dir, tpPrice, order.Size); err != nil {
		logger.Error("take-profit placement failed, no re-entry until reconciliation", zap.String("asset", asset.Symbol), zap.Error(err))
		return fill, fmt.Errorf("execution: take-profit placement failed: %w", err)
	}

	return fill, nil
}

// ensureNamespaceFunding checks the namespace's withdrawable balance
// and transfers the shortfall (plus a settlement buffer) from the
// default namespace, returning the amount actually transferred (0 if
// none was needed).
func ensureNamespaceFunding(ctx context.Context, venue Venue, namespace string, marginNeeded decimal.Decimal) (decimal.Decimal, error) {
	state, err := venue.AccountState(ctx, namespace)
	if err != nil {
		return decimal.Zero, err
	}
	needed := marginNeeded.Mul(transferBuffer)
	if state.Withdrawable.GreaterThanOrEqual(needed) {
		return decimal.Zero, nil
	}
	delta := needed.Sub(state.Withdrawable)
	if err := venue.TransferToNamespace(ctx, namespace, delta); err != nil {
		return decimal.Zero, err
	}
	return delta, nil
}

// bracketPrice computes entry*(1 + sign*side*pct), where sign mirrors
// direction (LONG=+1, SHORT=-1) and side distinguishes SL (-1) from TP
// (+1).
func bracketPrice(entry, pct decimal.Decimal, dir types.Direction, side int) decimal.Decimal {
	sign := decimal.NewFromInt(int64(dir.Sign() * side))
	return RoundPrice(entry.Mul(decimal.NewFromInt(1).Add(pct.Mul(sign))))
}
