package domain

import "time"

// MarketSnapshot is the published, read-only view of both feeds. A new value
// is produced on every update; subscribers must not modify its slices.
type MarketSnapshot struct {
	// OrderBook is nil while the order-book feed is uninitialized or failed.
	OrderBook    *OrderBook
	PriceHistory []PriceBar

	// OrderBookErr and PriceHistoryErr hold the failure that cleared the
	// corresponding portion, if any.
	OrderBookErr    error
	PriceHistoryErr error

	Seq uint64
	At  time.Time
}

// HasOrderBook reports whether an order book is present.
func (s MarketSnapshot) HasOrderBook() bool {
	return s.OrderBook != nil
}

// SnapshotPayload is the wire form of a MarketSnapshot pushed to the relay
// and the Redis mirror. Errors are reduced to their user-facing messages.
type SnapshotPayload struct {
	OrderBook         *OrderBook `json:"orderBook"`
	PriceHistory      []PriceBar `json:"priceHistory"`
	BestBid           PriceLevel `json:"bestBid"`
	BestAsk           PriceLevel `json:"bestAsk"`
	OrderBookError    string     `json:"orderBookError,omitempty"`
	PriceHistoryError string     `json:"priceHistoryError,omitempty"`
	Seq               uint64     `json:"seq"`
	At                time.Time  `json:"at"`
}

// Payload converts the snapshot to its wire form.
func (s MarketSnapshot) Payload() SnapshotPayload {
	p := SnapshotPayload{
		OrderBook:         s.OrderBook,
		PriceHistory:      s.PriceHistory,
		OrderBookError:    UserMessage(s.OrderBookErr),
		PriceHistoryError: UserMessage(s.PriceHistoryErr),
		Seq:               s.Seq,
		At:                s.At,
	}
	if p.PriceHistory == nil {
		p.PriceHistory = []PriceBar{}
	}
	if b := s.OrderBook; b != nil {
		if len(b.BidOrders) > 0 {
			p.BestBid = b.BidOrders[0]
		}
		if len(b.AskOrders) > 0 {
			p.BestAsk = b.AskOrders[0]
		}
	}
	return p
}
