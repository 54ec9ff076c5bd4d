package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/alanyoungcy/marketclient/internal/cache/redis"
	"github.com/alanyoungcy/marketclient/internal/config"
	"github.com/alanyoungcy/marketclient/internal/domain"
	"github.com/alanyoungcy/marketclient/internal/feed"
	"github.com/alanyoungcy/marketclient/internal/market"
	"github.com/alanyoungcy/marketclient/internal/metrics"
	"github.com/alanyoungcy/marketclient/internal/platform/exchange"
	"github.com/alanyoungcy/marketclient/internal/service"
)

// Dependencies bundles everything the operating modes need. It is constructed
// by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Exchange *exchange.Client
	Market   *market.Client
	Orders   *service.OrderService
	Accounts *service.AccountService

	// Mirror and Snapshots are nil unless Redis is enabled.
	Mirror    *redis.Mirror
	Snapshots *redis.SnapshotCache

	Registry *prometheus.Registry
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Registry: metrics.Init(logger),
	}

	// --- Venue REST client ---
	deps.Exchange = exchange.NewClient(cfg.API.URL, exchange.WithTimeout(cfg.API.Timeout.Duration))

	// --- Market-data feeds ---
	transport := newTransport(cfg, logger)
	deps.Market = market.New(market.Config{
		OrderBookURL:    cfg.OrderBookURL(),
		PriceHistoryURL: cfg.PriceHistoryURL(),
	}, transport, logger)
	closers = append(closers, func() {
		if err := deps.Market.Stop(); err != nil {
			logger.Warn("stop market client", slog.String("error", err.Error()))
		}
	})

	// --- Services ---
	deps.Orders = service.NewOrderService(deps.Exchange, logger)
	deps.Accounts = service.NewAccountService(deps.Exchange, logger)

	// --- Redis (optional) ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:          cfg.Redis.Addr,
			Password:      cfg.Redis.Password,
			DB:            cfg.Redis.DB,
			PoolSize:      cfg.Redis.PoolSize,
			MaxRetries:    cfg.Redis.MaxRetries,
			TLSEnabled:    cfg.Redis.TLSEnabled,
			ChannelPrefix: cfg.Redis.ChannelPrefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		bus := redis.NewSignalBus(redisClient)
		deps.Orders.WithBus(bus)
		deps.Snapshots = redis.NewSnapshotCache(redisClient, cfg.Redis.SnapshotTTL.Duration)
		deps.Mirror = redis.NewMirror(bus, deps.Snapshots, logger)
	}

	return deps, cleanup, nil
}

// newTransport builds the stream transport named in the config, wrapped in
// the reconnect decorator when reconnects are enabled.
func newTransport(cfg *config.Config, logger *slog.Logger) domain.StreamTransport {
	name := strings.ToLower(cfg.Stream.Transport)
	transport := exchange.NewTransport(name, nil)
	if !cfg.Stream.Reconnect {
		return transport
	}

	policy := feed.ReconnectPolicy{
		Base:        cfg.Stream.ReconnectBase.Duration,
		Max:         cfg.Stream.ReconnectMax.Duration,
		MaxAttempts: cfg.Stream.MaxAttempts,
	}
	if policy.Base <= 0 || policy.MaxAttempts <= 0 {
		policy = feed.DefaultReconnectPolicy
	}
	logger.Info("stream reconnects enabled",
		slog.String("component", "app"),
		slog.String("transport", name),
		slog.Duration("base", policy.Base),
		slog.Duration("max", policy.Max),
		slog.Int("max_attempts", policy.MaxAttempts),
	)
	return feed.Reconnecting(transport, policy, logger)
}
