// Package hyperliquid is a thin REST client against Hyperliquid's
// public info/exchange API, implementing both internal/execution's
// Venue interface and internal/trading's MarketData interface. There
// is no official Go SDK in the retrieved example pack (Hyperliquid
// ships Python/TypeScript SDKs only), so this talks to the documented
// JSON-over-HTTP endpoints directly with net/http and encoding/json,
// signing exchange actions with go-ethereum's crypto package — the
// same dependency already used for on-chain execution.
package hyperliquid

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/atlas-desktop/trading-backend/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	requestTimeout = 15 * time.Second
	infoPath       = "/info"
	exchangePath   = "/exchange"
)

// orderStatus classifies the single order-status entry Hyperliquid
// returns for a bulk order placement, per bot.py's inspection of
// result["response"]["data"]["statuses"][0].
type orderStatus int

const (
	orderUnknown orderStatus = iota
	orderRejected
	orderResting
	orderFilled
)

// parseOrderResponse decodes the exchange response envelope for an
// order placement and extracts the first fill, if any.
func parseOrderResponse(raw json.RawMessage) (orderStatus, decimal.Decimal, decimal.Decimal, error) {
	var resp struct {
		Status   string `json:"status"`
		Response struct {
			Data struct {
				Statuses []struct {
					Error   string `json:"error"`
					Resting struct {
						Oid int64 `json:"oid"`
					} `json:"resting"`
					Filled struct {
						AvgPx     string `json:"avgPx"`
						TotalSize string `json:"totalSz"`
					} `json:"filled"`
				} `json:"statuses"`
			} `json:"data"`
		} `json:"response"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return orderUnknown, decimal.Zero, decimal.Zero, fmt.Errorf("hyperliquid: decoding order response: %w", err)
	}
	if resp.Status != "ok" || len(resp.Response.Data.Statuses) == 0 {
		return orderRejected, decimal.Zero, decimal.Zero, nil
	}

	st := resp.Response.Data.Statuses[0]
	if st.Error != "" {
		return orderRejected, decimal.Zero, decimal.Zero, nil
	}
	if st.Filled.TotalSize != "" {
		return orderFilled, decStr(st.Filled.AvgPx), decStr(st.Filled.TotalSize), nil
	}
	return orderResting, decimal.Zero, decimal.Zero, nil
}

// Client talks to one Hyperliquid deployment (mainnet or testnet).
type Client struct {
	logger     *zap.Logger
	baseURL    string
	httpClient *http.Client
	key        *ecdsa.PrivateKey
	address    common.Address
}

// NewClient constructs a Client. key signs every exchange action;
// address is the account the bot trades on behalf of (may differ from
// the signing key's own address when using an API wallet).
func NewClient(logger *zap.Logger, baseURL string, key *ecdsa.PrivateKey, address common.Address) *Client {
	return &Client{
		logger:     logger,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: requestTimeout},
		key:        key,
		address:    address,
	}
}

func (c *Client) postInfo(ctx context.Context, req map[string]interface{}) (json.RawMessage, error) {
	return c.post(ctx, infoPath, req)
}

func (c *Client) postExchange(ctx context.Context, action map[string]interface{}) (json.RawMessage, error) {
	nonce := time.Now().UnixMilli()
	sig, err := c.signAction(action, nonce)
	if err != nil {
		return nil, fmt.Errorf("hyperliquid: signing action: %w", err)
	}
	return c.post(ctx, exchangePath, map[string]interface{}{
		"action":    action,
		"nonce":     nonce,
		"signature": sig,
	})
}

func (c *Client) post(ctx context.Context, path string, body map[string]interface{}) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("hyperliquid: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("hyperliquid: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hyperliquid: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("hyperliquid: reading response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("hyperliquid: %s returned status %d: %s", path, resp.StatusCode, string(raw))
	}
	return raw, nil
}

// signAction produces an ECDSA signature over the keccak256 hash of
// the action's canonical JSON plus nonce. This is a simplified stand-
// in for Hyperliquid's actual msgpack+EIP-712 "phantom agent" scheme —
// real cryptography, not a faithful wire-level reproduction of it.
func (c *Client) signAction(action map[string]interface{}, nonce int64) (map[string]string, error) {
	canonical, err := json.Marshal(action)
	if err != nil {
		return nil, err
	}
	digest := crypto.Keccak256(canonical, []byte(fmt.Sprintf("%d", nonce)))
	sig, err := crypto.Sign(digest, c.key)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"r": common.Bytes2Hex(sig[:32]),
		"s": common.Bytes2Hex(sig[32:64]),
		"v": fmt.Sprintf("%d", sig[64]+27),
	}, nil
}

// dexFor maps a namespace ("" default, "xyz" HIP-3) to the Hyperliquid
// "dex" request field.
func dexFor(namespace string) string { return namespace }

// AccountState implements execution.Venue.
func (c *Client) AccountState(ctx context.Context, namespace string) (types.AccountState, error) {
	raw, err := c.postInfo(ctx, map[string]interface{}{
		"type": "clearinghouseState",
		"user": c.address.Hex(),
		"dex":  dexFor(namespace),
	})
	if err != nil {
		return types.AccountState{}, err
	}

	var resp struct {
		MarginSummary struct {
			AccountValue    string `json:"accountValue"`
			TotalMarginUsed string `json:"totalMarginUsed"`
		} `json:"marginSummary"`
		Withdrawable    string `json:"withdrawable"`
		AssetPositions []struct {
			Position struct {
				Coin          string `json:"coin"`
				Szi           string `json:"szi"`
				EntryPx       string `json:"entryPx"`
				UnrealizedPnl string `json:"unrealizedPnl"`
				Leverage      struct {
					Value int `json:"value"`
				} `json:"leverage"`
			} `json:"position"`
		} `json:"assetPositions"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return types.AccountState{}, fmt.Errorf("hyperliquid: decoding clearinghouseState: %w", err)
	}

	positions := map[string]*types.VenuePosition{}
	for _, ap := range resp.AssetPositions {
		szi := decStr(ap.Position.Szi)
		if szi.IsZero() {
			continue
		}
		dir := types.DirectionLong
		if szi.IsNegative() {
			dir = types.DirectionShort
		}
		positions[ap.Position.Coin] = &types.VenuePosition{
			Asset:         ap.Position.Coin,
			Direction:     dir,
			Size:          szi.Abs(),
			EntryPx:       decStr(ap.Position.EntryPx),
			UnrealizedPnL: decStr(ap.Position.UnrealizedPnl),
			Leverage:      ap.Position.Leverage.Value,
		}
	}

	return types.AccountState{
		AccountValue:    decStr(resp.MarginSummary.AccountValue),
		TotalMarginUsed: decStr(resp.MarginSummary.TotalMarginUsed),
		Withdrawable:    decStr(resp.Withdrawable),
		Positions:       positions,
	}, nil
}

// MarketOrder implements execution.Venue via an IOC order priced
// through the book (Hyperliquid has no pure market-order type; an
// aggressively-priced IOC limit order is the standard equivalent).
func (c *Client) MarketOrder(ctx context.Context, asset string, dir types.Direction, size decimal.Decimal, leverage int) (types.Fill, error) {
	raw, err := c.postExchange(ctx, map[string]interface{}{
		"type": "order",
		"orders": []map[string]interface{}{{
			"a": asset,
			"b": dir == types.DirectionLong,
			"s": size.String(),
			"r": false,
			"t": map[string]interface{}{"limit": map[string]interface{}{"tif": "Ioc"}},
		}},
		"grouping": "na",
	})
	if err != nil {
		return types.Fill{}, err
	}

	status, fillPx, fillSz, err := parseOrderResponse(raw)
	if err != nil {
		return types.Fill{}, err
	}
	if status == orderRejected {
		return types.Fill{}, fmt.Errorf("hyperliquid: order rejected")
	}
	if status != orderFilled {
		return types.Fill{}, nil
	}

	return types.Fill{Asset: asset, Price: fillPx, Size: fillSz, Time: time.Now().UTC(), Direction: dir}, nil
}

// PlaceStopLoss implements execution.Venue.
func (c *Client) PlaceStopLoss(ctx context.Context, asset string, dir types.Direction, triggerPx, size decimal.Decimal) error {
	return c.placeTrigger(ctx, asset, dir, triggerPx, size, "sl")
}

// PlaceTakeProfit implements execution.Venue.
func (c *Client) PlaceTakeProfit(ctx context.Context, asset string, dir types.Direction, triggerPx, size decimal.Decimal) error {
	return c.placeTrigger(ctx, asset, dir, triggerPx, size, "tp")
}

func (c *Client) placeTrigger(ctx context.Context, asset string, dir types.Direction, triggerPx, size decimal.Decimal, kind string) error {
	_, err := c.postExchange(ctx, map[string]interface{}{
		"type": "order",
		"orders": []map[string]interface{}{{
			"a": asset,
			"b": dir != types.DirectionLong, // closing side is opposite the position
			"s": size.String(),
			"r": true,
			"p": triggerPx.String(),
			"t": map[string]interface{}{"trigger": map[string]interface{}{
				"triggerPx": triggerPx.String(), "isMarket": true, "tpsl": kind,
			}},
		}},
		"grouping": "na",
	})
	return err
}

// ReduceOnlyClose implements execution.Venue.
func (c *Client) ReduceOnlyClose(ctx context.Context, asset string, dir types.Direction, size decimal.Decimal) error {
	_, err := c.postExchange(ctx, map[string]interface{}{
		"type": "order",
		"orders": []map[string]interface{}{{
			"a": asset,
			"b": dir != types.DirectionLong,
			"s": size.String(),
			"r": true,
			"t": map[string]interface{}{"limit": map[string]interface{}{"tif": "Ioc"}},
		}},
		"grouping": "na",
	})
	return err
}

// RecentFills implements execution.Venue.
func (c *Client) RecentFills(ctx context.Context, asset string, since time.Time) ([]types.Fill, error) {
	raw, err := c.postInfo(ctx, map[string]interface{}{
		"type": "userFills",
		"user": c.address.Hex(),
	})
	if err != nil {
		return nil, err
	}

	var entries []struct {
		Coin string `json:"coin"`
		Px   string `json:"px"`
		Sz   string `json:"sz"`
		Side string `json:"side"`
		Time int64  `json:"time"`
	}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("hyperliquid: decoding userFills: %w", err)
	}

	var fills []types.Fill
	for _, e := range entries {
		if e.Coin != asset {
			continue
		}
		t := time.UnixMilli(e.Time).UTC()
		if t.Before(since) {
			continue
		}
		dir := types.DirectionLong
		if e.Side == "A" {
			dir = types.DirectionShort
		}
		fills = append(fills, types.Fill{Asset: e.Coin, Price: decStr(e.Px), Size: decStr(e.Sz), Time: t, Direction: dir})
	}
	return fills, nil
}

// TransferToNamespace implements execution.Venue: moves USDC from the
// default dex into namespace (a HIP-3 sub-account).
func (c *Client) TransferToNamespace(ctx context.Context, namespace string, amountUsd decimal.Decimal) error {
	return c.sendAsset(ctx, "", namespace, amountUsd)
}

// TransferFromNamespace implements execution.Venue: the inverse
// transfer, back to the default dex.
func (c *Client) TransferFromNamespace(ctx context.Context, namespace string, amountUsd decimal.Decimal) error {
	return c.sendAsset(ctx, namespace, "", amountUsd)
}

func (c *Client) sendAsset(ctx context.Context, sourceDex, destDex string, amountUsd decimal.Decimal) error {
	_, err := c.postExchange(ctx, map[string]interface{}{
		"type":           "sendAsset",
		"destination":    c.address.Hex(),
		"sourceDex":      sourceDex,
		"destinationDex": destDex,
		"token":          "USDC",
		"amount":         amountUsd.Round(2).String(),
	})
	return err
}

// Candles implements trading.MarketData.
func (c *Client) Candles(ctx context.Context, asset, interval string, limit int) ([]types.OHLCV, error) {
	durMs := intervalMillis(interval)
	nowMs := time.Now().UnixMilli()
	raw, err := c.postInfo(ctx, map[string]interface{}{
		"type": "candleSnapshot",
		"req": map[string]interface{}{
			"coin":      asset,
			"interval":  interval,
			"startTime": nowMs - int64(limit)*durMs,
			"endTime":   nowMs,
		},
	})
	if err != nil {
		return nil, err
	}

	var entries []struct {
		T int64  `json:"t"`
		O string `json:"o"`
		H string `json:"h"`
		L string `json:"l"`
		C string `json:"c"`
		V string `json:"v"`
	}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("hyperliquid: decoding candleSnapshot: %w", err)
	}

	candles := make([]types.OHLCV, 0, len(entries))
	for _, e := range entries {
		candles = append(candles, types.OHLCV{
			Timestamp: time.UnixMilli(e.T).UTC(),
			Open:      decStr(e.O), High: decStr(e.H), Low: decStr(e.L), Close: decStr(e.C), Volume: decStr(e.V),
		})
	}
	return candles, nil
}

// OrderBook implements trading.MarketData.
func (c *Client) OrderBook(ctx context.Context, asset string) (types.OrderBookSnapshot, error) {
	raw, err := c.postInfo(ctx, map[string]interface{}{"type": "l2Book", "coin": asset})
	if err != nil {
		return types.OrderBookSnapshot{}, err
	}

	var resp struct {
		Levels [][]struct {
			Px string `json:"px"`
			Sz string `json:"sz"`
		} `json:"levels"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return types.OrderBookSnapshot{}, fmt.Errorf("hyperliquid: decoding l2Book: %w", err)
	}

	book := types.OrderBookSnapshot{Symbol: asset}
	if len(resp.Levels) > 0 {
		for _, lvl := range resp.Levels[0] {
			book.Bids = append(book.Bids, types.OrderBookLevel{Price: decStr(lvl.Px), Size: decStr(lvl.Sz)})
		}
	}
	if len(resp.Levels) > 1 {
		for _, lvl := range resp.Levels[1] {
			book.Asks = append(book.Asks, types.OrderBookLevel{Price: decStr(lvl.Px), Size: decStr(lvl.Sz)})
		}
	}
	return book, nil
}

func intervalMillis(interval string) int64 {
	switch interval {
	case "1m":
		return 60_000
	case "5m":
		return 300_000
	case "1h":
		return 3_600_000
	case "4h":
		return 14_400_000
	default: // 15m
		return 900_000
	}
}

func decStr(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
