package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/marketclient/internal/domain"
	"github.com/alanyoungcy/marketclient/internal/feed"
	"github.com/alanyoungcy/marketclient/internal/metrics"
	"github.com/alanyoungcy/marketclient/internal/platform/exchange"
)

// Feed names used in logs and metrics.
const (
	FeedOrderBook    = "order_book"
	FeedPriceHistory = "price_history"
)

// Config holds the stream endpoints of a Client.
type Config struct {
	OrderBookURL    string
	PriceHistoryURL string
}

// Option configures a Client.
type Option func(*Client)

// WithClock overrides the clock used to stamp snapshots.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// Client keeps the order-book and price-history stores in sync with their
// feeds and publishes a MarketSnapshot to subscribers after every change.
//
// Updates from both feeds are applied and published one at a time, so
// subscribers never run concurrently with each other. A subscriber may call
// Snapshot, Subscribe or its own unsubscribe function, but must not call
// Stop.
type Client struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	books   *OrderBookStore
	history *PriceHistoryStore

	bookFeed    *feed.Supervisor[*domain.OrderBook]
	historyFeed *feed.Supervisor[exchange.PriceBarBatch]

	// deliverMu serializes apply+publish and guards the fields below.
	deliverMu    sync.Mutex
	started      bool
	stopped      bool
	seq          uint64
	bookErr      error
	historyErr   error
	legacyLogged bool

	subMu   sync.Mutex
	subs    map[uint64]*subscription
	nextSub uint64

	snapMu sync.RWMutex
	latest domain.MarketSnapshot
}

// New creates a client that dials both feeds through transport.
func New(cfg Config, transport domain.StreamTransport, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "market_client")),
		now:     time.Now,
		books:   NewOrderBookStore(),
		history: NewPriceHistoryStore(),
		subs:    make(map[uint64]*subscription),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.bookFeed = feed.NewSupervisor[*domain.OrderBook](FeedOrderBook, cfg.OrderBookURL, transport, exchange.DecodeOrderBook, logger)
	c.bookFeed.OnMessage(c.onOrderBook)
	c.bookFeed.OnError(c.onOrderBookError)

	c.historyFeed = feed.NewSupervisor[exchange.PriceBarBatch](FeedPriceHistory, cfg.PriceHistoryURL, transport, exchange.DecodePriceBars, logger)
	c.historyFeed.OnMessage(c.onPriceHistory)
	c.historyFeed.OnError(c.onPriceHistoryError)
	return c
}

// subscription is one registered subscriber. active is checked and cleared
// under mu, so no call starts once the subscriber has been removed.
type subscription struct {
	fn     func(domain.MarketSnapshot)
	mu     sync.Mutex
	active bool
}

func (s *subscription) deliver(snap domain.MarketSnapshot) {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if active {
		s.fn(snap)
	}
}

// Subscribe registers fn for every published snapshot and returns a function
// that removes it. Once the unsubscribe function returns, fn is not called
// again; a call already running when it is invoked from another goroutine may
// finish. The unsubscribe function is idempotent and may be called from any
// subscriber, fn included.
func (c *Client) Subscribe(fn func(domain.MarketSnapshot)) func() {
	sub := &subscription{fn: fn, active: true}

	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = sub
	c.subMu.Unlock()
	metrics.Subscribers.Inc()

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.mu.Lock()
			sub.active = false
			sub.mu.Unlock()

			c.subMu.Lock()
			delete(c.subs, id)
			c.subMu.Unlock()
			metrics.Subscribers.Dec()
		})
	}
}

// Start opens both feeds. A feed that cannot be dialed is reported in the
// snapshot as unavailable; Start only fails when the client was already
// started or stopped.
func (c *Client) Start(ctx context.Context) error {
	c.deliverMu.Lock()
	if c.stopped {
		c.deliverMu.Unlock()
		return fmt.Errorf("market: start: %w", domain.ErrClientStopped)
	}
	if c.started {
		c.deliverMu.Unlock()
		return errors.New("market: start: already started")
	}
	c.started = true
	c.deliverMu.Unlock()

	c.logger.Info("starting market data feeds",
		slog.String("order_book_url", c.cfg.OrderBookURL),
		slog.String("price_history_url", c.cfg.PriceHistoryURL),
	)

	if err := c.bookFeed.Open(ctx); err != nil {
		c.onOrderBookError(err)
	}
	if err := c.historyFeed.Open(ctx); err != nil {
		c.onPriceHistoryError(err)
	}
	return nil
}

// Stop closes both feeds. Once Stop returns no subscriber is invoked again.
// It is idempotent.
func (c *Client) Stop() error {
	c.deliverMu.Lock()
	if c.stopped {
		c.deliverMu.Unlock()
		return nil
	}
	c.stopped = true
	c.deliverMu.Unlock()

	err := errors.Join(c.bookFeed.Close(), c.historyFeed.Close())
	c.logger.Info("market data feeds stopped")
	if err != nil {
		return fmt.Errorf("market: stop: %w", err)
	}
	return nil
}

// Snapshot returns the most recently published snapshot.
func (c *Client) Snapshot() domain.MarketSnapshot {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.latest
}

func (c *Client) onOrderBook(book *domain.OrderBook) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()
	if c.stopped {
		return
	}
	if err := c.books.Apply(book); err != nil {
		c.logger.Warn("order book update rejected", slog.String("error", err.Error()))
		return
	}
	c.bookErr = nil
	c.publishLocked()
}

func (c *Client) onOrderBookError(err error) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()
	if c.stopped {
		return
	}
	if errors.Is(err, domain.ErrDecode) {
		// Already logged by the supervisor; the previous book stays.
		return
	}
	c.logger.Warn("order book feed unavailable", slog.String("error", err.Error()))
	c.books.Clear()
	c.bookErr = err
	c.publishLocked()
}

func (c *Client) onPriceHistory(batch exchange.PriceBarBatch) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()
	if c.stopped {
		return
	}
	if batch.Legacy && !c.legacyLogged {
		c.legacyLogged = true
		c.logger.Debug("price history uses legacy field casing",
			slog.String("url", c.cfg.PriceHistoryURL),
		)
	}
	c.history.Apply(batch.Bars)
	c.historyErr = nil
	c.publishLocked()
}

func (c *Client) onPriceHistoryError(err error) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()
	if c.stopped {
		return
	}
	if errors.Is(err, domain.ErrDecode) {
		return
	}
	c.logger.Warn("price history feed unavailable", slog.String("error", err.Error()))
	c.history.Clear()
	c.historyErr = err
	c.publishLocked()
}

// publishLocked builds a new snapshot and hands it to every subscriber.
// Callers hold deliverMu.
func (c *Client) publishLocked() {
	c.seq++
	snap := domain.MarketSnapshot{
		OrderBook:       c.books.Current(),
		PriceHistory:    c.history.Current(),
		OrderBookErr:    c.bookErr,
		PriceHistoryErr: c.historyErr,
		Seq:             c.seq,
		At:              c.now(),
	}

	c.snapMu.Lock()
	c.latest = snap
	c.snapMu.Unlock()

	c.subMu.Lock()
	subs := make([]*subscription, 0, len(c.subs))
	for _, sub := range c.subs {
		subs = append(subs, sub)
	}
	c.subMu.Unlock()

	for _, sub := range subs {
		sub.deliver(snap)
	}
	metrics.SnapshotsPublishedTotal.Inc()
}
