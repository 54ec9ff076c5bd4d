package redis

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/marketclient/internal/domain"
	"github.com/alanyoungcy/marketclient/internal/metrics"
)

// SnapshotChannel is the bus channel snapshots are published on.
const SnapshotChannel = "snapshot"

const publishTimeout = 2 * time.Second

// LatestStore keeps the most recent snapshot payload.
type LatestStore interface {
	StoreLatest(ctx context.Context, payload []byte, bestBid, bestAsk float64, seq uint64) error
}

// Mirror forwards market snapshots to a SignalBus and optionally a
// LatestStore. Offer never blocks: when the queue is full the oldest pending
// snapshot is dropped, since only the newest one matters.
type Mirror struct {
	bus    domain.SignalBus
	latest LatestStore
	queue  chan domain.MarketSnapshot
	logger *slog.Logger
}

// NewMirror creates a Mirror. latest may be nil.
func NewMirror(bus domain.SignalBus, latest LatestStore, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{
		bus:    bus,
		latest: latest,
		queue:  make(chan domain.MarketSnapshot, 16),
		logger: logger.With(slog.String("component", "redis_mirror")),
	}
}

// Offer queues snap for publishing. It is meant to be registered as a
// market client subscriber.
func (m *Mirror) Offer(snap domain.MarketSnapshot) {
	for {
		select {
		case m.queue <- snap:
			return
		default:
		}
		select {
		case <-m.queue:
		default:
		}
	}
}

// Run publishes queued snapshots until ctx is cancelled.
func (m *Mirror) Run(ctx context.Context) error {
	m.logger.Info("snapshot mirror started")
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("snapshot mirror stopped")
			return nil
		case snap := <-m.queue:
			m.publish(ctx, snap)
		}
	}
}

func (m *Mirror) publish(ctx context.Context, snap domain.MarketSnapshot) {
	p := snap.Payload()
	data, err := json.Marshal(p)
	if err != nil {
		m.logger.Error("marshal snapshot failed", slog.String("error", err.Error()))
		return
	}

	pctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := m.bus.Publish(pctx, SnapshotChannel, data); err != nil {
		metrics.MirrorPublishErrorsTotal.Inc()
		m.logger.Warn("publish snapshot failed",
			slog.Uint64("seq", p.Seq),
			slog.String("error", err.Error()),
		)
	}
	if m.latest == nil {
		return
	}
	if err := m.latest.StoreLatest(pctx, data, p.BestBid.Limit, p.BestAsk.Limit, p.Seq); err != nil {
		metrics.MirrorPublishErrorsTotal.Inc()
		m.logger.Warn("store snapshot failed",
			slog.Uint64("seq", p.Seq),
			slog.String("error", err.Error()),
		)
	}
}
