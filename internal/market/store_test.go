package market

import (
	"errors"
	"reflect"
	"testing"

	"github.com/alanyoungcy/marketclient/internal/domain"
)

func sampleBook() *domain.OrderBook {
	return &domain.OrderBook{
		BidOrders: []domain.PriceLevel{{Limit: 100, Volume: 5}, {Limit: 99, Volume: 2}},
		AskOrders: []domain.PriceLevel{{Limit: 101, Volume: 3}},
	}
}

func TestOrderBookStore_BestLevels(t *testing.T) {
	s := NewOrderBookStore()
	if got := s.BestBid(); got != (domain.PriceLevel{}) {
		t.Errorf("BestBid on empty store = %+v, want zero level", got)
	}

	if err := s.Apply(sampleBook()); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if got, want := s.BestBid(), (domain.PriceLevel{Limit: 100, Volume: 5}); got != want {
		t.Errorf("BestBid = %+v, want %+v", got, want)
	}
	if got, want := s.BestAsk(), (domain.PriceLevel{Limit: 101, Volume: 3}); got != want {
		t.Errorf("BestAsk = %+v, want %+v", got, want)
	}
}

func TestOrderBookStore_BestIsFirstAsReceived(t *testing.T) {
	book := &domain.OrderBook{
		BidOrders: []domain.PriceLevel{{Limit: 98, Volume: 1}, {Limit: 100, Volume: 5}},
		AskOrders: []domain.PriceLevel{},
	}
	if got := BestBid(book); got.Limit != 98 {
		t.Errorf("BestBid limit = %v, want 98 (first level, unsorted)", got.Limit)
	}
	if got := BestAsk(book); got != (domain.PriceLevel{}) {
		t.Errorf("BestAsk on empty side = %+v, want zero level", got)
	}
}

func TestOrderBookStore_RejectsMalformed(t *testing.T) {
	s := NewOrderBookStore()
	if err := s.Apply(sampleBook()); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	tests := []struct {
		name string
		book *domain.OrderBook
	}{
		{"nil book", nil},
		{"nil bids", &domain.OrderBook{AskOrders: []domain.PriceLevel{}}},
		{"nil asks", &domain.OrderBook{BidOrders: []domain.PriceLevel{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.Apply(tt.book); !errors.Is(err, domain.ErrDecode) {
				t.Errorf("Apply = %v, want ErrDecode", err)
			}
			if got := s.BestBid().Limit; got != 100 {
				t.Errorf("previous book not kept: best bid %v", got)
			}
		})
	}
}

func TestOrderBookStore_ApplyCopiesInput(t *testing.T) {
	s := NewOrderBookStore()
	book := sampleBook()
	if err := s.Apply(book); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	book.BidOrders[0].Limit = 1
	if got := s.BestBid().Limit; got != 100 {
		t.Errorf("store shares caller memory: best bid %v", got)
	}

	s.Clear()
	if s.Current() != nil {
		t.Error("Clear should drop the book")
	}
}

func TestSortedLevels(t *testing.T) {
	in := []domain.PriceLevel{{Limit: 3}, {Limit: 1}, {Limit: 2}}
	got := SortedLevels(in)
	want := []domain.PriceLevel{{Limit: 1}, {Limit: 2}, {Limit: 3}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SortedLevels = %+v, want %+v", got, want)
	}
	if in[0].Limit != 3 {
		t.Error("SortedLevels must not modify its input")
	}
}

func TestDepth(t *testing.T) {
	ds := Depth(sampleBook())

	wantLabels := []string{"99.00", "100.00", "101.00"}
	if !reflect.DeepEqual(ds.Labels, wantLabels) {
		t.Fatalf("Labels = %v, want %v", ds.Labels, wantLabels)
	}
	if len(ds.Bids) != 3 || len(ds.Asks) != 3 {
		t.Fatalf("series lengths = %d/%d, want 3/3", len(ds.Bids), len(ds.Asks))
	}
	if ds.Bids[0] == nil || *ds.Bids[0] != 2 || ds.Bids[1] == nil || *ds.Bids[1] != 5 || ds.Bids[2] != nil {
		t.Errorf("unexpected bid series")
	}
	if ds.Asks[0] != nil || ds.Asks[1] != nil || ds.Asks[2] == nil || *ds.Asks[2] != 3 {
		t.Errorf("unexpected ask series")
	}

	empty := Depth(nil)
	if len(empty.Labels) != 0 || empty.Bids == nil {
		t.Errorf("Depth(nil) = %+v, want empty non-nil series", empty)
	}
}

func TestPriceHistoryStore_SortsAndDedupes(t *testing.T) {
	s := NewPriceHistoryStore()
	if _, ok := s.Latest(); ok {
		t.Error("Latest on empty store should report false")
	}

	s.Apply([]domain.PriceBar{
		{Timestamp: 120, Close: 3},
		{Timestamp: 60, Close: 1},
		{Timestamp: 120, Close: 4},
		{Timestamp: 90, Close: 2},
	})

	want := []domain.PriceBar{{Timestamp: 60, Close: 1}, {Timestamp: 90, Close: 2}, {Timestamp: 120, Close: 4}}
	if got := s.Current(); !reflect.DeepEqual(got, want) {
		t.Errorf("Current = %+v, want %+v", got, want)
	}
	if got, _ := s.Latest(); got != want[2] {
		t.Errorf("Latest = %+v, want %+v", got, want[2])
	}

	s.Apply(nil)
	if got := s.Current(); len(got) != 0 {
		t.Errorf("Current after empty apply = %+v", got)
	}
}

func TestRoundToMinute(t *testing.T) {
	tests := []struct {
		in, want int64
	}{
		{0, 0},
		{29, 0},
		{30, 60},
		{89, 60},
		{90, 120},
		{120, 120},
		{1700000029, 1700000040},
		{-31, -60},
		{-30, 0},
	}
	for _, tt := range tests {
		if got := RoundToMinute(tt.in); got != tt.want {
			t.Errorf("RoundToMinute(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestAxisLabels(t *testing.T) {
	bars := []domain.PriceBar{{Timestamp: 59}, {Timestamp: 61}}
	if got, want := AxisLabels(bars), []int64{60, 60}; !reflect.DeepEqual(got, want) {
		t.Errorf("AxisLabels = %v, want %v", got, want)
	}
}
