package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/marketclient/internal/domain"
	"github.com/alanyoungcy/marketclient/internal/metrics"
)

// OrdersChannel is the bus channel order outcomes are published on.
const OrdersChannel = "orders"

// OrderPoster sends a validated order to the venue.
type OrderPoster interface {
	PostOrder(ctx context.Context, requestID string, req domain.OrderRequest) error
}

// OrderEvent describes the outcome of one submission.
type OrderEvent struct {
	RequestID string              `json:"requestId"`
	Order     domain.OrderRequest `json:"order"`
	Kind      domain.OrderKind    `json:"kind"`
	Side      domain.OrderSide    `json:"side"`
	Accepted  bool                `json:"accepted"`
	Error     string              `json:"error,omitempty"`
	At        time.Time           `json:"at"`
}

// OrderService validates and submits orders.
type OrderService struct {
	poster OrderPoster
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewOrderService creates an OrderService that posts through poster.
func NewOrderService(poster OrderPoster, logger *slog.Logger) *OrderService {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderService{
		poster: poster,
		logger: logger,
	}
}

// WithBus attaches a signal bus that receives an OrderEvent after every
// submission that reached the venue. Without one, outcomes are only logged.
func (s *OrderService) WithBus(bus domain.SignalBus) *OrderService {
	s.bus = bus
	return s
}

// Submit validates req and posts it to the market-order or limit-order
// endpoint. Invalid input is rejected with a *domain.ValidationError before
// any network call; a non-2xx response yields a *domain.RequestError.
func (s *OrderService) Submit(ctx context.Context, req domain.OrderRequest) error {
	kind := string(req.Kind())
	if err := ValidateOrder(req); err != nil {
		metrics.OrdersSubmittedTotal.WithLabelValues(kind, "invalid").Inc()
		s.logger.DebugContext(ctx, "order_service: order rejected",
			slog.String("kind", kind),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("order_service: submit: %w", err)
	}

	requestID := uuid.NewString()
	start := time.Now()
	err := s.poster.PostOrder(ctx, requestID, req)
	metrics.OrderSubmitLatencyMs.Observe(float64(time.Since(start).Milliseconds()))
	metrics.OrdersSubmittedTotal.WithLabelValues(kind, metrics.Outcome(err)).Inc()

	attrs := []any{
		slog.String("request_id", requestID),
		slog.String("user_id", req.UserID),
		slog.String("kind", kind),
		slog.String("side", string(req.Side())),
		slog.Float64("unit", req.Unit),
		slog.Float64("limit", req.Limit),
	}
	if err != nil {
		s.logger.WarnContext(ctx, "order_service: submit failed", append(attrs, slog.String("error", err.Error()))...)
	} else {
		s.logger.InfoContext(ctx, "order_service: order submitted", attrs...)
	}

	s.publish(ctx, OrderEvent{
		RequestID: requestID,
		Order:     req,
		Kind:      req.Kind(),
		Side:      req.Side(),
		Accepted:  err == nil,
		Error:     domain.UserMessage(err),
		At:        time.Now().UTC(),
	})

	if err != nil {
		return fmt.Errorf("order_service: submit %s order: %w", kind, err)
	}
	return nil
}

func (s *OrderService) publish(ctx context.Context, evt OrderEvent) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return
	}
	if pubErr := s.bus.Publish(ctx, OrdersChannel, payload); pubErr != nil {
		metrics.MirrorPublishErrorsTotal.Inc()
		s.logger.WarnContext(ctx, "order_service: publish order event failed",
			slog.String("request_id", evt.RequestID),
			slog.String("error", pubErr.Error()),
		)
	}
}

// ValidateOrder checks req without touching the network. A market order's
// limit is the price discovered at execution and is not validated.
func ValidateOrder(req domain.OrderRequest) error {
	if strings.TrimSpace(req.UserID) == "" {
		return &domain.ValidationError{Field: "userId", Reason: "Log in to place an order"}
	}
	if !positive(req.Unit) {
		return &domain.ValidationError{Field: "unit", Reason: "Unit must be greater than 0"}
	}
	if !req.MarketOrder && !positive(req.Limit) {
		return &domain.ValidationError{Field: "limit", Reason: "Limit must be greater than 0"}
	}
	return nil
}

func positive(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}
