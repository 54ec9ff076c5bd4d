package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/marketclient/internal/domain"
	"github.com/alanyoungcy/marketclient/internal/metrics"
)

// ReconnectPolicy bounds the redial behaviour of Reconnecting.
type ReconnectPolicy struct {
	Base        time.Duration
	Max         time.Duration
	MaxAttempts int
}

// DefaultReconnectPolicy applies when reconnects are enabled without
// explicit settings.
var DefaultReconnectPolicy = ReconnectPolicy{
	Base:        2 * time.Second,
	Max:         60 * time.Second,
	MaxAttempts: 5,
}

// Backoff returns the delay before the given retry: Base * 2^attempt,
// capped at Max. A negative attempt returns Base.
func (p ReconnectPolicy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		return p.Base
	}
	if attempt > 30 {
		return p.Max
	}
	d := p.Base * time.Duration(1<<attempt)
	if d > p.Max || d <= 0 {
		return p.Max
	}
	return d
}

// reconnectingTransport wraps a transport so that its connections redial
// after a read failure instead of surfacing it.
type reconnectingTransport struct {
	inner  domain.StreamTransport
	policy ReconnectPolicy
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// Reconnecting returns a transport whose connections transparently redial
// inner on failure, following policy. Only when MaxAttempts consecutive
// redials fail does Next return an error. Wrapping is opt-in; a bare
// transport keeps fail-closed semantics.
func Reconnecting(inner domain.StreamTransport, policy ReconnectPolicy, logger *slog.Logger) domain.StreamTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &reconnectingTransport{
		inner:  inner,
		policy: policy,
		logger: logger.With(slog.String("component", "feed_reconnect")),
		sleep:  sleepCtx,
	}
}

// Dial opens the first connection, retrying like a reconnect would.
func (t *reconnectingTransport) Dial(ctx context.Context, url string) (domain.StreamConn, error) {
	conn, err := t.redial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &reconnectingConn{transport: t, url: url, cur: conn, done: make(chan struct{})}, nil
}

// redial dials with backoff. The first attempt is immediate.
func (t *reconnectingTransport) redial(ctx context.Context, url string, done <-chan struct{}) (domain.StreamConn, error) {
	var lastErr error
	for attempt := 0; attempt <= t.policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := t.sleep(ctx, t.policy.Backoff(attempt-1)); err != nil {
				return nil, err
			}
		}
		select {
		case <-done:
			return nil, domain.ErrClientStopped
		default:
		}

		conn, err := t.inner.Dial(ctx, url)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		t.logger.Warn("redial failed",
			slog.String("url", url),
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)
	}
	return nil, fmt.Errorf("feed: reconnect attempts exhausted: %w", lastErr)
}

type reconnectingConn struct {
	transport *reconnectingTransport
	url       string

	mu        sync.Mutex
	cur       domain.StreamConn
	closeOnce sync.Once
	done      chan struct{}
}

// Next returns the next payload, redialing after a read failure.
func (c *reconnectingConn) Next(ctx context.Context) ([]byte, error) {
	for {
		c.mu.Lock()
		cur := c.cur
		c.mu.Unlock()

		data, err := cur.Next(ctx)
		if err == nil {
			return data, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		select {
		case <-c.done:
			return nil, err
		default:
		}

		_ = cur.Close()
		c.transport.logger.Warn("stream dropped, reconnecting",
			slog.String("url", c.url),
			slog.String("error", err.Error()),
		)

		next, derr := c.transport.redial(ctx, c.url, c.done)
		if derr != nil {
			return nil, fmt.Errorf("%w (last read error: %v)", derr, err)
		}
		metrics.StreamReconnectsTotal.Inc()

		c.mu.Lock()
		select {
		case <-c.done:
			c.mu.Unlock()
			_ = next.Close()
			return nil, domain.ErrClientStopped
		default:
		}
		c.cur = next
		c.mu.Unlock()
	}
}

// Close closes the current connection and stops further redials.
func (c *reconnectingConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		close(c.done)
		cur := c.cur
		c.mu.Unlock()
		err = cur.Close()
	})
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
