// Package feed supervises the streaming connections that carry market data.
// A Supervisor owns one connection, decodes each payload, and reports
// failures to its owner; it never reconnects on its own. Reconnection is a
// transport concern layered on with Reconnecting.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/marketclient/internal/domain"
	"github.com/alanyoungcy/marketclient/internal/metrics"
)

// Decoder turns one raw payload into a typed message.
type Decoder[T any] func(data []byte) (T, error)

// Supervisor owns one streaming connection and delivers decoded messages to
// the registered callbacks in arrival order, from a single goroutine.
//
// A decode failure is reported through OnError as domain.ErrDecode and the
// stream continues. A transport failure is reported as
// domain.ErrStreamUnavailable, after which the supervisor closes itself.
type Supervisor[T any] struct {
	name      string
	url       string
	transport domain.StreamTransport
	decode    Decoder[T]
	logger    *slog.Logger

	mu          sync.Mutex
	conn        domain.StreamConn
	cancel      context.CancelFunc
	opened      bool
	closed      bool
	loopStarted bool

	onMessage func(T)
	onError   func(error)

	// done is closed when the read loop has exited, or on Close when the
	// loop never started.
	done chan struct{}
}

// NewSupervisor creates a supervisor for the stream at url. name labels logs
// and metrics (e.g. "order_book").
func NewSupervisor[T any](name, url string, transport domain.StreamTransport, decode Decoder[T], logger *slog.Logger) *Supervisor[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor[T]{
		name:      name,
		url:       url,
		transport: transport,
		decode:    decode,
		logger:    logger.With(slog.String("component", "feed"), slog.String("feed", name)),
		done:      make(chan struct{}),
	}
}

// Name returns the feed label.
func (s *Supervisor[T]) Name() string {
	return s.name
}

// OnMessage registers the message callback. Call before Open.
func (s *Supervisor[T]) OnMessage(fn func(T)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMessage = fn
}

// OnError registers the error callback. Call before Open.
func (s *Supervisor[T]) OnError(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = fn
}

// Open dials the stream and starts the read loop. A dial failure is returned
// wrapped in domain.ErrStreamUnavailable and does not invoke OnError.
func (s *Supervisor[T]) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("feed: %s: %w", s.name, domain.ErrClientStopped)
	}
	if s.opened {
		s.mu.Unlock()
		return fmt.Errorf("feed: %s: already open", s.name)
	}
	s.opened = true
	s.mu.Unlock()

	conn, err := s.transport.Dial(ctx, s.url)
	if err != nil {
		metrics.StreamFailuresTotal.WithLabelValues(s.name).Inc()
		return fmt.Errorf("feed: %s: %w: %v", s.name, domain.ErrStreamUnavailable, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		_ = conn.Close()
		return fmt.Errorf("feed: %s: %w", s.name, domain.ErrClientStopped)
	}
	s.conn = conn
	s.cancel = cancel
	s.loopStarted = true
	s.mu.Unlock()

	s.logger.Info("stream opened", slog.String("url", s.url))
	go s.readLoop(loopCtx, conn)
	return nil
}

// Close terminates the connection. It is idempotent and safe to call from a
// callback. Once Close returns no new delivery starts; a delivery already in
// progress may finish.
func (s *Supervisor[T]) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	cancel := s.cancel
	loopStarted := s.loopStarted
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if !loopStarted {
		close(s.done)
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			return fmt.Errorf("feed: %s: close: %w", s.name, err)
		}
	}
	return nil
}

// Done is closed once the supervisor has stopped reading.
func (s *Supervisor[T]) Done() <-chan struct{} {
	return s.done
}

func (s *Supervisor[T]) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// readLoop reads payloads until the connection fails or the supervisor is
// closed. It runs in its own goroutine.
func (s *Supervisor[T]) readLoop(ctx context.Context, conn domain.StreamConn) {
	defer close(s.done)

	for {
		data, err := conn.Next(ctx)
		if err != nil {
			if s.isClosed() {
				return
			}
			s.fail(err)
			return
		}
		metrics.StreamMessagesTotal.WithLabelValues(s.name).Inc()

		msg, err := s.decode(data)
		if err != nil {
			if !errors.Is(err, domain.ErrDecode) {
				err = fmt.Errorf("%w: %v", domain.ErrDecode, err)
			}
			metrics.DecodeErrorsTotal.WithLabelValues(s.name).Inc()
			s.logger.Warn("rejected malformed update",
				slog.Int("bytes", len(data)),
				slog.String("error", err.Error()),
			)
			s.emitError(fmt.Errorf("feed: %s: %w", s.name, err))
			continue
		}

		s.emitMessage(msg)
	}
}

// fail reports a transport failure and closes the connection. There is no
// retry here.
func (s *Supervisor[T]) fail(cause error) {
	metrics.StreamFailuresTotal.WithLabelValues(s.name).Inc()
	s.logger.Warn("stream unavailable", slog.String("error", cause.Error()))
	s.emitError(fmt.Errorf("feed: %s: %w: %v", s.name, domain.ErrStreamUnavailable, cause))
	_ = s.Close()
}

func (s *Supervisor[T]) emitMessage(msg T) {
	s.mu.Lock()
	fn := s.onMessage
	closed := s.closed
	s.mu.Unlock()
	if closed || fn == nil {
		return
	}
	fn(msg)
}

func (s *Supervisor[T]) emitError(err error) {
	s.mu.Lock()
	fn := s.onError
	closed := s.closed
	s.mu.Unlock()
	if closed || fn == nil {
		return
	}
	fn(err)
}
