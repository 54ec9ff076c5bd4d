package domain

// PriceLevel is the aggregated resting quantity at one price.
type PriceLevel struct {
	Limit  float64 `json:"limit"`
	Volume float64 `json:"volume"`
}

// OrderBook is a full order-book snapshot as pushed by the feed. Bids and asks
// are kept in the order they were received; the venue sends them in priority
// order. Books are replaced wholesale and never patched in place.
type OrderBook struct {
	BidOrders []PriceLevel `json:"bidOrders"`
	AskOrders []PriceLevel `json:"askOrders"`
}

// Clone returns a deep copy of the book.
func (b *OrderBook) Clone() *OrderBook {
	if b == nil {
		return nil
	}
	return &OrderBook{
		BidOrders: cloneLevels(b.BidOrders),
		AskOrders: cloneLevels(b.AskOrders),
	}
}

// cloneLevels copies levels, keeping nil and empty distinct.
func cloneLevels(levels []PriceLevel) []PriceLevel {
	if levels == nil {
		return nil
	}
	out := make([]PriceLevel, len(levels))
	copy(out, levels)
	return out
}

// PriceBar is one historical price sample.
type PriceBar struct {
	Timestamp int64   `json:"timestamp"` // unix seconds
	Close     float64 `json:"close"`
}
