package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/marketclient/internal/domain"
	"github.com/alanyoungcy/marketclient/internal/server/ws"
)

// OrderSubmitter validates and submits orders.
type OrderSubmitter interface {
	Submit(ctx context.Context, req domain.OrderRequest) error
}

// Broadcaster pushes a frame to relay clients on a channel.
type Broadcaster interface {
	Broadcast(channel string, data []byte)
}

// OrderHandler serves order entry.
type OrderHandler struct {
	orders OrderSubmitter
	hub    Broadcaster
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler. hub may be nil.
func NewOrderHandler(orders OrderSubmitter, hub Broadcaster, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, hub: hub, logger: logHandler(logger, "order")}
}

type orderResponse struct {
	Status string              `json:"status"`
	Order  domain.OrderRequest `json:"order"`
	Kind   domain.OrderKind    `json:"kind"`
}

type orderFrame struct {
	Order    domain.OrderRequest `json:"order"`
	Accepted bool                `json:"accepted"`
	Error    string              `json:"error,omitempty"`
}

// PlaceOrder submits the order in the request body.
// POST /api/orders
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.OrderRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	err := h.orders.Submit(r.Context(), req)
	h.notify(req, err)
	if err != nil {
		if domain.KindOf(err) != domain.KindValidation {
			h.logger.ErrorContext(r.Context(), "handler: place order failed",
				slog.String("kind", string(req.Kind())),
				slog.String("error", err.Error()),
			)
		}
		writeClientError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, orderResponse{Status: "submitted", Order: req, Kind: req.Kind()})
}

func (h *OrderHandler) notify(req domain.OrderRequest, err error) {
	if h.hub == nil || domain.KindOf(err) == domain.KindValidation {
		return
	}
	frame, mErr := ws.Encode("order", orderFrame{Order: req, Accepted: err == nil, Error: domain.UserMessage(err)})
	if mErr != nil {
		return
	}
	h.hub.Broadcast(ws.ChannelOrder, frame)
}
