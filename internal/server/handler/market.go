package handler

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/marketclient/internal/domain"
	"github.com/alanyoungcy/marketclient/internal/market"
	"github.com/alanyoungcy/marketclient/internal/service"
)

// SnapshotSource returns the latest published market snapshot.
type SnapshotSource interface {
	Snapshot() domain.MarketSnapshot
}

// CachedSnapshot returns the last snapshot payload stored by a previous run
// or another instance.
type CachedSnapshot interface {
	Latest(ctx context.Context) ([]byte, error)
}

// SnapshotSourceHeader is set to "cache" when GetSnapshot serves the cached
// payload.
const SnapshotSourceHeader = "X-Snapshot-Source"

// cacheTimeout bounds a read of the snapshot cache.
const cacheTimeout = 2 * time.Second

// MarketHandler serves the read-only market views.
type MarketHandler struct {
	market SnapshotSource
	cache  CachedSnapshot
	logger *slog.Logger
}

// NewMarketHandler creates a MarketHandler over market.
func NewMarketHandler(market SnapshotSource, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{market: market, logger: logHandler(logger, "market")}
}

// WithCache serves the cached payload until the first snapshot is published.
func (h *MarketHandler) WithCache(cache CachedSnapshot) *MarketHandler {
	h.cache = cache
	return h
}

// GetSnapshot returns the latest snapshot. Before the first publish it falls
// back to the cached payload, when one is configured and stored.
// GET /api/snapshot
func (h *MarketHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := h.market.Snapshot()
	if snap.Seq == 0 && h.cache != nil {
		ctx, cancel := context.WithTimeout(r.Context(), cacheTimeout)
		data, err := h.cache.Latest(ctx)
		cancel()
		if err == nil {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.Header().Set(SnapshotSourceHeader, "cache")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(data)
			return
		}
		h.logger.Debug("no cached snapshot", slog.String("error", err.Error()))
	}
	writeJSON(w, http.StatusOK, snap.Payload())
}

// GetDepth returns the depth chart series of the current book.
// GET /api/depth
func (h *MarketHandler) GetDepth(w http.ResponseWriter, r *http.Request) {
	snap := h.market.Snapshot()
	if !snap.HasOrderBook() {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{
			Error: orLoading(domain.UserMessage(snap.OrderBookErr)),
			Kind:  domain.KindOf(snap.OrderBookErr),
		})
		return
	}
	writeJSON(w, http.StatusOK, market.Depth(snap.OrderBook))
}

type historyLabelsResponse struct {
	Labels []int64          `json:"labels"`
	Closes []float64        `json:"closes"`
	Bars   int              `json:"bars"`
	Latest *domain.PriceBar `json:"latest,omitempty"`
}

// GetHistoryLabels returns the price series with minute-rounded axis labels.
// GET /api/history/labels
func (h *MarketHandler) GetHistoryLabels(w http.ResponseWriter, r *http.Request) {
	bars := h.market.Snapshot().PriceHistory
	resp := historyLabelsResponse{
		Labels: market.AxisLabels(bars),
		Closes: make([]float64, len(bars)),
		Bars:   len(bars),
	}
	for i, b := range bars {
		resp.Closes[i] = b.Close
	}
	if len(bars) > 0 {
		last := bars[len(bars)-1]
		resp.Latest = &last
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetMarketPrice quotes an order ticket against the current book. Without a
// limit the ticket is in market mode and its limit is the expected fill
// price; with one, the notional is computed from the entered limit text.
// GET /api/ticket/market-price?side=buy|sell[&unit=N][&limit=X]
func (h *MarketHandler) GetMarketPrice(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	side := domain.OrderSide(q.Get("side"))
	if side == "" {
		side = domain.OrderSideBuy
	}
	if side != domain.OrderSideBuy && side != domain.OrderSideSell {
		writeError(w, http.StatusBadRequest, "side must be buy or sell")
		return
	}
	unit := 0.0
	if raw := q.Get("unit"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			writeError(w, http.StatusBadRequest, "unit must be a non-negative number")
			return
		}
		unit = v
	}

	snap := h.market.Snapshot()
	ticket := service.NewTicket()
	ticket.Unit = unit
	ticket.SetBuy(side == domain.OrderSideBuy, snap.OrderBook)

	notional := 0.0
	if limitText, ok := q["limit"]; ok {
		// Limit mode: the limit is whatever the user typed.
		notional = service.NotionalText(limitText[0], unit)
		if v, err := strconv.ParseFloat(strings.TrimSpace(limitText[0]), 64); err == nil {
			ticket.Limit = v
		}
	} else {
		ticket.SetMarketOrder(true, snap.OrderBook)
		notional = ticket.Notional()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"side":        side,
		"limit":       ticket.Limit,
		"limitText":   ticket.LimitText(),
		"marketOrder": ticket.MarketOrder,
		"unit":        ticket.Unit,
		"notional":    notional,
		"available":   snap.HasOrderBook(),
	})
}

func orLoading(msg string) string {
	if msg == "" {
		return "Loading..."
	}
	return msg
}
