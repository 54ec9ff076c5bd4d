package exchange

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/alanyoungcy/marketclient/internal/domain"
)

// Feed paths relative to the API root.
const (
	OrderBookStreamPath    = "/order-book/stream"
	PriceHistoryStreamPath = "/order-book/price-history"
)

// VerifyUserResponse is the body of GET /user-verify/{userId}.
type VerifyUserResponse struct {
	Exists bool `json:"exists"`
}

// RegisterResponse is the body of GET /register.
type RegisterResponse struct {
	UserID string `json:"userId"`
}

// apiOrderBook mirrors the order-book event payload. The sides are raw so a
// missing key can be told apart from an empty array.
type apiOrderBook struct {
	BidOrders json.RawMessage `json:"bidOrders"`
	AskOrders json.RawMessage `json:"askOrders"`
}

// DecodeOrderBook parses one order-book event payload. A payload that is not
// an object, or whose bidOrders or askOrders array is missing or null, is
// rejected with domain.ErrDecode.
func DecodeOrderBook(data []byte) (*domain.OrderBook, error) {
	var raw apiOrderBook
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("exchange: order book: %w: %v", domain.ErrDecode, err)
	}

	bids, err := decodeLevels("bidOrders", raw.BidOrders)
	if err != nil {
		return nil, err
	}
	asks, err := decodeLevels("askOrders", raw.AskOrders)
	if err != nil {
		return nil, err
	}
	return &domain.OrderBook{BidOrders: bids, AskOrders: asks}, nil
}

func decodeLevels(side string, raw json.RawMessage) ([]domain.PriceLevel, error) {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, fmt.Errorf("exchange: order book: %w: missing %s", domain.ErrDecode, side)
	}
	levels := []domain.PriceLevel{}
	if err := json.Unmarshal(raw, &levels); err != nil {
		return nil, fmt.Errorf("exchange: order book: %w: %s: %v", domain.ErrDecode, side, err)
	}
	for i, lvl := range levels {
		if !finite(lvl.Limit) || !finite(lvl.Volume) {
			return nil, fmt.Errorf("exchange: order book: %w: %s[%d] not finite", domain.ErrDecode, side, i)
		}
	}
	return levels, nil
}

// Price-bar field names. The canonical schema is lowercase; the capitalized
// schema was sent by older feed versions and is still accepted.
const (
	fieldTimestamp       = "timestamp"
	fieldClose           = "close"
	legacyFieldTimestamp = "Timestamp"
	legacyFieldClose     = "Close"
)

// PriceBarBatch is a decoded price-history event.
type PriceBarBatch struct {
	Bars []domain.PriceBar
	// Legacy is set when at least one bar used the capitalized schema.
	Legacy bool
}

// DecodePriceBars parses one price-history event payload: a JSON array of
// bars in either field casing. Any bar without a timestamp, or without a
// finite close above zero, is rejected with domain.ErrDecode.
func DecodePriceBars(data []byte) (PriceBarBatch, error) {
	var items []map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&items); err != nil {
		return PriceBarBatch{}, fmt.Errorf("exchange: price history: %w: %v", domain.ErrDecode, err)
	}
	if items == nil {
		return PriceBarBatch{}, fmt.Errorf("exchange: price history: %w: not an array", domain.ErrDecode)
	}

	batch := PriceBarBatch{Bars: make([]domain.PriceBar, 0, len(items))}
	for i, item := range items {
		tsRaw, tsLegacy, ok := lookup(item, fieldTimestamp, legacyFieldTimestamp)
		if !ok {
			return PriceBarBatch{}, fmt.Errorf("exchange: price history: %w: bar %d has no timestamp", domain.ErrDecode, i)
		}
		closeRaw, closeLegacy, ok := lookup(item, fieldClose, legacyFieldClose)
		if !ok {
			return PriceBarBatch{}, fmt.Errorf("exchange: price history: %w: bar %d has no close", domain.ErrDecode, i)
		}

		ts, err := parseTimestamp(tsRaw)
		if err != nil {
			return PriceBarBatch{}, fmt.Errorf("exchange: price history: %w: bar %d timestamp: %v", domain.ErrDecode, i, err)
		}
		var closePx float64
		if err := json.Unmarshal(closeRaw, &closePx); err != nil || !finite(closePx) || closePx <= 0 {
			return PriceBarBatch{}, fmt.Errorf("exchange: price history: %w: bar %d close", domain.ErrDecode, i)
		}

		batch.Legacy = batch.Legacy || tsLegacy || closeLegacy
		batch.Bars = append(batch.Bars, domain.PriceBar{Timestamp: ts, Close: closePx})
	}
	return batch, nil
}

// lookup returns the canonical field when present, else the legacy one.
func lookup(item map[string]json.RawMessage, canonical, legacy string) (json.RawMessage, bool, bool) {
	if v, ok := item[canonical]; ok && !isNull(v) {
		return v, false, true
	}
	if v, ok := item[legacy]; ok && !isNull(v) {
		return v, true, true
	}
	return nil, false, false
}

func parseTimestamp(raw json.RawMessage) (int64, error) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, err
	}
	if ts, err := n.Int64(); err == nil {
		return ts, nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, err
	}
	// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold.
	if !finite(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("out of range")
	}
	return int64(f), nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
