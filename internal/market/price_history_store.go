package market

import (
	"sort"
	"sync"

	"github.com/alanyoungcy/marketclient/internal/domain"
)

// PriceHistoryStore holds the price series pushed by the history feed,
// sorted ascending by timestamp.
type PriceHistoryStore struct {
	mu   sync.RWMutex
	bars []domain.PriceBar
}

// NewPriceHistoryStore creates an empty store.
func NewPriceHistoryStore() *PriceHistoryStore {
	return &PriceHistoryStore{}
}

// Apply replaces the series with bars. The stored copy is sorted by
// timestamp; when a timestamp repeats, the bar that came last wins.
func (s *PriceHistoryStore) Apply(bars []domain.PriceBar) {
	next := normalizeBars(bars)
	s.mu.Lock()
	s.bars = next
	s.mu.Unlock()
}

// Current returns a copy of the series, possibly empty.
func (s *PriceHistoryStore) Current() []domain.PriceBar {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.PriceBar, len(s.bars))
	copy(out, s.bars)
	return out
}

// Latest returns the most recent bar.
func (s *PriceHistoryStore) Latest() (domain.PriceBar, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.bars) == 0 {
		return domain.PriceBar{}, false
	}
	return s.bars[len(s.bars)-1], true
}

// Clear empties the series.
func (s *PriceHistoryStore) Clear() {
	s.mu.Lock()
	s.bars = nil
	s.mu.Unlock()
}

func normalizeBars(bars []domain.PriceBar) []domain.PriceBar {
	out := make([]domain.PriceBar, len(bars))
	copy(out, bars)
	// Stable keeps arrival order within a timestamp, so the last one wins.
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })

	n := 0
	for i := range out {
		if n > 0 && out[n-1].Timestamp == out[i].Timestamp {
			out[n-1] = out[i]
			continue
		}
		out[n] = out[i]
		n++
	}
	return out[:n]
}

// RoundToMinute rounds a unix-second timestamp to the nearest minute.
// Exactly half a minute rounds up.
func RoundToMinute(ts int64) int64 {
	r := ts % 60
	if r < 0 {
		r += 60
	}
	base := ts - r
	if r >= 30 {
		return base + 60
	}
	return base
}

// AxisLabels returns the minute-rounded timestamps used to label a price
// chart. The series itself keeps its exact timestamps.
func AxisLabels(bars []domain.PriceBar) []int64 {
	out := make([]int64, len(bars))
	for i, b := range bars {
		out[i] = RoundToMinute(b.Timestamp)
	}
	return out
}
