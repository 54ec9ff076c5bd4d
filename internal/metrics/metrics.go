// Package metrics holds the Prometheus collectors shared across the client.
package metrics

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Streams
	StreamMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "stream_messages_total", Help: "Payloads received by feed"},
		[]string{"feed"},
	)
	DecodeErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "stream_decode_errors_total", Help: "Malformed payloads rejected by feed"},
		[]string{"feed"},
	)
	StreamFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "stream_failures_total", Help: "Dial or transport failures by feed"},
		[]string{"feed"},
	)
	StreamReconnectsTotal   = prometheus.NewCounter(prometheus.CounterOpts{Name: "stream_reconnects_total", Help: "Successful stream redials"})
	SnapshotsPublishedTotal = prometheus.NewCounter(prometheus.CounterOpts{Name: "snapshots_published_total", Help: "Market snapshots delivered to subscribers"})
	Subscribers             = prometheus.NewGauge(prometheus.GaugeOpts{Name: "snapshot_subscribers", Help: "Registered snapshot subscribers"})

	// Requests
	OrdersSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_submitted_total", Help: "Order submissions by kind and outcome"},
		[]string{"kind", "outcome"},
	)
	OrderSubmitLatencyMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "order_submit_latency_ms",
		Help:    "Order submit round-trip latency",
		Buckets: prometheus.ExponentialBuckets(5, 2, 12),
	})
	AccountRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "account_requests_total", Help: "Account requests by operation and outcome"},
		[]string{"op", "outcome"},
	)

	// Relay
	WSClients                = prometheus.NewGauge(prometheus.GaugeOpts{Name: "ws_clients", Help: "Connected relay WebSocket clients"})
	MirrorPublishErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{Name: "mirror_publish_errors_total", Help: "Failed Redis mirror publishes"})
)

// Init registers every collector on a fresh registry.
func Init(logger *slog.Logger) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	toRegister := []prometheus.Collector{
		StreamMessagesTotal, DecodeErrorsTotal, StreamFailuresTotal, StreamReconnectsTotal,
		SnapshotsPublishedTotal, Subscribers,
		OrdersSubmittedTotal, OrderSubmitLatencyMs, AccountRequestsTotal,
		WSClients, MirrorPublishErrorsTotal,
		collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}
	n := register(reg, logger, toRegister...)
	if logger != nil {
		logger.Info("prometheus metrics initialized", slog.Int("collectors", n))
	}
	return reg
}

// register adds cs to reg, logging each collector that fails, and returns
// how many were registered.
func register(reg prometheus.Registerer, logger *slog.Logger, cs ...prometheus.Collector) int {
	n := 0
	for i, c := range cs {
		if err := reg.Register(c); err != nil {
			if logger != nil {
				logger.Warn("register collector failed",
					slog.Int("index", i),
					slog.String("error", err.Error()),
				)
			}
			continue
		}
		n++
	}
	return n
}

// Handler serves reg in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Outcome maps an error to the "outcome" label value.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
