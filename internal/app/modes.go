package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/marketclient/internal/domain"
	"github.com/alanyoungcy/marketclient/internal/metrics"
	"github.com/alanyoungcy/marketclient/internal/server"
	"github.com/alanyoungcy/marketclient/internal/server/handler"
	"github.com/alanyoungcy/marketclient/internal/server/ws"
)

const (
	// shutdownTimeout bounds the graceful HTTP shutdown.
	shutdownTimeout = 10 * time.Second

	// cacheReadTimeout bounds a read of the Redis snapshot cache.
	cacheReadTimeout = 2 * time.Second
)

// ServerMode runs the market-data feeds behind the local relay: snapshots are
// pushed to WebSocket clients and, when enabled, mirrored to Redis, while the
// HTTP API accepts orders and account requests.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode", slog.String("component", "app"))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	hub := ws.NewHub(a.logger, ws.Config{
		Initial: func() []byte {
			snap := deps.Market.Snapshot()
			if snap.Seq == 0 {
				return a.cachedSnapshot(deps)
			}
			return a.encodeSnapshot(snap)
		},
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	unsubscribe := deps.Market.Subscribe(func(snap domain.MarketSnapshot) {
		if data := a.encodeSnapshot(snap); data != nil {
			hub.Broadcast(ws.ChannelSnapshot, data)
		}
	})
	defer unsubscribe()

	a.startMirror(ctx, g, deps)

	marketHandler := handler.NewMarketHandler(deps.Market, a.logger)
	if deps.Snapshots != nil {
		marketHandler.WithCache(deps.Snapshots)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, server.Handlers{
		Health:   handler.NewHealthHandler(deps.Market, a.logger),
		Market:   marketHandler,
		Orders:   handler.NewOrderHandler(deps.Orders, hub, a.logger),
		Accounts: handler.NewAccountHandler(deps.Accounts, a.logger),
		Metrics:  metrics.Handler(deps.Registry),
	}, hub, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := deps.Market.Start(ctx); err != nil {
		cancel()
		_ = g.Wait()
		return err
	}

	err := g.Wait()
	a.stopMarket(deps)
	return err
}

// StreamMode runs the market-data feeds without the relay and logs every
// snapshot. Snapshots are still mirrored to Redis when it is enabled.
func (a *App) StreamMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting stream mode", slog.String("component", "app"))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	sink := a.logger.With(slog.String("component", "snapshot_log"))
	unsubscribe := deps.Market.Subscribe(func(snap domain.MarketSnapshot) {
		logSnapshot(sink, snap)
	})
	defer unsubscribe()

	a.startMirror(ctx, g, deps)

	if err := deps.Market.Start(ctx); err != nil {
		cancel()
		_ = g.Wait()
		return err
	}

	g.Go(func() error {
		<-ctx.Done()
		a.stopMarket(deps)
		return nil
	})
	return g.Wait()
}

// stopMarket stops the feeds; once it returns no snapshot is published.
func (a *App) stopMarket(deps *Dependencies) {
	if err := deps.Market.Stop(); err != nil {
		a.logger.Warn("stop market client",
			slog.String("component", "app"),
			slog.String("error", err.Error()),
		)
	}
}

// startMirror subscribes the Redis mirror, if any, and runs it in g.
func (a *App) startMirror(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Mirror == nil {
		return
	}
	unsubscribe := deps.Market.Subscribe(deps.Mirror.Offer)
	g.Go(func() error {
		defer unsubscribe()
		return deps.Mirror.Run(ctx)
	})
}

func (a *App) encodeSnapshot(snap domain.MarketSnapshot) []byte {
	data, err := ws.Encode(ws.ChannelSnapshot, snap.Payload())
	if err != nil {
		a.logger.Error("encode snapshot failed",
			slog.Uint64("seq", snap.Seq),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return data
}

// cachedSnapshot encodes the payload stored in Redis by a previous run, or
// returns nil when there is none.
func (a *App) cachedSnapshot(deps *Dependencies) []byte {
	if deps.Snapshots == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), cacheReadTimeout)
	defer cancel()
	payload, err := deps.Snapshots.Latest(ctx)
	if err != nil {
		return nil
	}
	data, err := ws.Encode(ws.ChannelSnapshot, json.RawMessage(payload))
	if err != nil {
		return nil
	}
	return data
}

// logSnapshot writes a one-line summary of snap.
func logSnapshot(logger *slog.Logger, snap domain.MarketSnapshot) {
	p := snap.Payload()
	attrs := []slog.Attr{
		slog.Uint64("seq", p.Seq),
		slog.Int("price_bars", len(p.PriceHistory)),
	}
	if p.OrderBook != nil {
		attrs = append(attrs,
			slog.Float64("best_bid", p.BestBid.Limit),
			slog.Float64("best_ask", p.BestAsk.Limit),
			slog.Int("bid_levels", len(p.OrderBook.BidOrders)),
			slog.Int("ask_levels", len(p.OrderBook.AskOrders)),
		)
	}
	if p.OrderBookError != "" {
		attrs = append(attrs, slog.String("order_book_error", p.OrderBookError))
	}
	if p.PriceHistoryError != "" {
		attrs = append(attrs, slog.String("price_history_error", p.PriceHistoryError))
	}
	logger.LogAttrs(context.Background(), slog.LevelInfo, "market snapshot", attrs...)
}
