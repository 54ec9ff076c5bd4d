// Package market holds the in-memory market view: the order-book and
// price-history stores and the client that keeps them in sync with the feed.
package market

import (
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/alanyoungcy/marketclient/internal/domain"
)

// OrderBookStore holds the most recent order-book snapshot. It exposes
// either nothing or a complete book, never a partially applied one.
type OrderBookStore struct {
	mu   sync.RWMutex
	book *domain.OrderBook
}

// NewOrderBookStore creates an empty store.
func NewOrderBookStore() *OrderBookStore {
	return &OrderBookStore{}
}

// Apply replaces the stored book. A nil book or a book with a nil side is
// rejected with domain.ErrDecode and the previous value is kept.
func (s *OrderBookStore) Apply(book *domain.OrderBook) error {
	if book == nil {
		return fmt.Errorf("market: apply order book: %w: nil book", domain.ErrDecode)
	}
	if book.BidOrders == nil || book.AskOrders == nil {
		return fmt.Errorf("market: apply order book: %w: missing side", domain.ErrDecode)
	}

	next := book.Clone()
	s.mu.Lock()
	s.book = next
	s.mu.Unlock()
	return nil
}

// Current returns the stored book, or nil when absent. The returned book is
// shared; callers must not modify it.
func (s *OrderBookStore) Current() *domain.OrderBook {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.book
}

// Clear drops the stored book.
func (s *OrderBookStore) Clear() {
	s.mu.Lock()
	s.book = nil
	s.mu.Unlock()
}

// BestBid returns the first bid level as received, or the zero level.
func (s *OrderBookStore) BestBid() domain.PriceLevel {
	return BestBid(s.Current())
}

// BestAsk returns the first ask level as received, or the zero level.
func (s *OrderBookStore) BestAsk() domain.PriceLevel {
	return BestAsk(s.Current())
}

// BestBid returns element 0 of the book's bids. The venue sends sides in
// priority order, so no sorting is applied.
func BestBid(book *domain.OrderBook) domain.PriceLevel {
	if book == nil || len(book.BidOrders) == 0 {
		return domain.PriceLevel{}
	}
	return book.BidOrders[0]
}

// BestAsk returns element 0 of the book's asks.
func BestAsk(book *domain.OrderBook) domain.PriceLevel {
	if book == nil || len(book.AskOrders) == 0 {
		return domain.PriceLevel{}
	}
	return book.AskOrders[0]
}

// SortedLevels returns a copy of levels sorted by limit ascending.
func SortedLevels(levels []domain.PriceLevel) []domain.PriceLevel {
	out := make([]domain.PriceLevel, len(levels))
	copy(out, levels)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Limit < out[j].Limit })
	return out
}

// DepthSeries is the depth chart of one book: a shared price axis with the
// bid volumes first and the ask volumes after them. Points that belong to
// the other side are nil.
type DepthSeries struct {
	Labels []string   `json:"labels"`
	Bids   []*float64 `json:"bids"`
	Asks   []*float64 `json:"asks"`
}

// Depth builds the depth chart series for book. A nil book yields empty
// series.
func Depth(book *domain.OrderBook) DepthSeries {
	if book == nil {
		return DepthSeries{Labels: []string{}, Bids: []*float64{}, Asks: []*float64{}}
	}
	bids := SortedLevels(book.BidOrders)
	asks := SortedLevels(book.AskOrders)
	n := len(bids) + len(asks)

	ds := DepthSeries{
		Labels: make([]string, 0, n),
		Bids:   make([]*float64, n),
		Asks:   make([]*float64, n),
	}
	for i, lvl := range bids {
		ds.Labels = append(ds.Labels, strconv.FormatFloat(lvl.Limit, 'f', 2, 64))
		v := lvl.Volume
		ds.Bids[i] = &v
	}
	for i, lvl := range asks {
		ds.Labels = append(ds.Labels, strconv.FormatFloat(lvl.Limit, 'f', 2, 64))
		v := lvl.Volume
		ds.Asks[len(bids)+i] = &v
	}
	return ds
}
