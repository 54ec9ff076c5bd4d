package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/marketclient/internal/domain"
)

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	market    SnapshotSource
	startedAt time.Time
	logger    *slog.Logger
}

// NewHealthHandler creates a HealthHandler. market may be nil.
func NewHealthHandler(market SnapshotSource, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{market: market, startedAt: time.Now().UTC(), logger: logHandler(logger, "health")}
}

type feedHealth struct {
	Live  bool   `json:"live"`
	Error string `json:"error,omitempty"`
}

// HealthCheck reports that the relay is alive together with the state of
// both feeds. Feed failures do not make the relay unhealthy.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":         "ok",
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	}
	if h.market != nil {
		snap := h.market.Snapshot()
		resp["feeds"] = map[string]feedHealth{
			"order_book":    {Live: snap.HasOrderBook(), Error: domain.UserMessage(snap.OrderBookErr)},
			"price_history": {Live: snap.PriceHistoryErr == nil && snap.Seq > 0, Error: domain.UserMessage(snap.PriceHistoryErr)},
		}
		resp["seq"] = snap.Seq
	}
	writeJSON(w, http.StatusOK, resp)
}
