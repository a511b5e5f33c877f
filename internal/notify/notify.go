// Package notify provides the cross-agent notification sink: a single
// fire-and-forget sendMessage primitive plus convenience wrappers for
// the event kinds both agents surface (trade open/close, alerts,
// status, daily summaries). The notifier is never on the critical
// path — a failed or slow delivery never blocks the caller's tick.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/atlas-desktop/trading-backend/pkg/types"
	"github.com/atlas-desktop/trading-backend/pkg/utils"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const sendTimeout = 5 * time.Second

var decimalHundred = decimal.NewFromInt(100)

// Notifier is the single primitive every richer helper is built on.
type Notifier interface {
	SendMessage(ctx context.Context, text string) error
}

// NoOp discards every message. Used when no webhook is configured.
type NoOp struct{}

// SendMessage implements Notifier.
func (NoOp) SendMessage(context.Context, string) error { return nil }

// Webhook posts each message as a JSON body to a configured URL (e.g.
// a Telegram-bot-API-compatible or Slack-incoming-webhook endpoint).
type Webhook struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

// NewWebhook constructs a Webhook notifier. An empty url yields an
// always-succeeding no-op sender. A non-empty url that doesn't look
// like an HTTP(S) endpoint is logged but not rejected — SendMessage
// will simply fail at delivery time.
func NewWebhook(logger *zap.Logger, url string) *Webhook {
	if url != "" && !utils.ValidateWebhookURL(url) {
		logger.Warn("notify webhook url does not look like a valid http(s) endpoint", zap.String("url", url))
	}
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: sendTimeout},
		logger: logger,
	}
}

// SendMessage posts text to the webhook URL. Errors are returned to
// the caller but are never fatal — callers of the convenience helpers
// below swallow them after logging.
func (w *Webhook) SendMessage(ctx context.Context, text string) error {
	if w.url == "" {
		return nil
	}
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("notify: encoding message: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: delivering message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// send fires text through n on its own goroutine and logs (but never
// propagates) a failure.
func send(ctx context.Context, logger *zap.Logger, n Notifier, text string) {
	if n == nil {
		return
	}
	go func() {
		if err := n.SendMessage(ctx, text); err != nil && logger != nil {
			logger.Warn("notification delivery failed", zap.Error(err))
		}
	}()
}

// TradeOpened announces a new position.
func TradeOpened(ctx context.Context, logger *zap.Logger, n Notifier, trade types.TradeRecord) {
	send(ctx, logger, n, fmt.Sprintf(
		"trade opened: %s %s size=%s entry=%s leverage=%dx",
		trade.Asset, trade.Direction, trade.Size.String(), trade.EntryPx.String(), trade.Leverage,
	))
}

// TradeClosed announces a closed position.
func TradeClosed(ctx context.Context, logger *zap.Logger, n Notifier, trade types.TradeRecord) {
	send(ctx, logger, n, fmt.Sprintf(
		"trade closed: %s %s exit=%s reason=%s pnl=%s (%s%%)",
		trade.Asset, trade.Direction, trade.ExitPx.String(), trade.ExitReason,
		utils.FormatMoney(trade.PnL, "USD"), trade.PnLPct.Mul(decimalHundred).String(),
	))
}

// Alert surfaces a non-fatal operational problem (rejected order,
// failed SL/TP placement, budget exhaustion) for operator awareness.
func Alert(ctx context.Context, logger *zap.Logger, n Notifier, text string) {
	send(ctx, logger, n, "alert: "+text)
}

// Status surfaces a lifecycle transition (agent started/stopped/paused).
func Status(ctx context.Context, logger *zap.Logger, n Notifier, text string) {
	send(ctx, logger, n, "status: "+text)
}

// FarmAction announces one completed on-chain farming action.
func FarmAction(ctx context.Context, logger *zap.Logger, n Notifier, entry types.PlanEntry, remainingBudget decimal.Decimal) {
	send(ctx, logger, n, fmt.Sprintf(
		"farm action: %s on %s tx=%s budget_remaining=%s",
		entry.ActionType, entry.Chain, entry.TxHash, utils.FormatMoney(remainingBudget, "USD"),
	))
}

// DailySummary sends the farming agent's once-a-day report.
func DailySummary(ctx context.Context, logger *zap.Logger, n Notifier, text string) {
	send(ctx, logger, n, "daily summary:\n"+text)
}
