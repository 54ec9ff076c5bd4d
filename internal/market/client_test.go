package market

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alanyoungcy/marketclient/internal/domain"
)

const (
	bookURL    = "http://venue.test/order-book/stream"
	historyURL = "http://venue.test/order-book/price-history"
)

type streamConn struct {
	ch        chan []byte
	errs      chan error
	closed    chan struct{}
	closeOnce sync.Once
}

func newStreamConn() *streamConn {
	return &streamConn{ch: make(chan []byte, 16), errs: make(chan error, 1), closed: make(chan struct{})}
}

func (c *streamConn) Next(ctx context.Context) ([]byte, error) {
	select {
	case data := <-c.ch:
		return data, nil
	case err := <-c.errs:
		return nil, err
	case <-c.closed:
		return nil, io.ErrClosedPipe
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *streamConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// streamTransport serves one in-memory connection per URL.
type streamTransport struct {
	conns    map[string]*streamConn
	dialErrs map[string]error
}

func newStreamTransport() *streamTransport {
	return &streamTransport{
		conns:    map[string]*streamConn{bookURL: newStreamConn(), historyURL: newStreamConn()},
		dialErrs: map[string]error{},
	}
}

func (t *streamTransport) Dial(ctx context.Context, url string) (domain.StreamConn, error) {
	if err := t.dialErrs[url]; err != nil {
		return nil, err
	}
	return t.conns[url], nil
}

func (t *streamTransport) send(url, payload string) {
	t.conns[url].ch <- []byte(payload)
}

type harness struct {
	t         *testing.T
	client    *Client
	transport *streamTransport
	snaps     chan domain.MarketSnapshot
}

func newHarness(t *testing.T, transport *streamTransport) *harness {
	t.Helper()
	h := &harness{
		t:         t,
		transport: transport,
		snaps:     make(chan domain.MarketSnapshot, 16),
	}
	h.client = New(Config{OrderBookURL: bookURL, PriceHistoryURL: historyURL}, transport, nil)
	h.client.Subscribe(func(s domain.MarketSnapshot) { h.snaps <- s })
	if err := h.client.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { _ = h.client.Stop() })
	return h
}

func (h *harness) next() domain.MarketSnapshot {
	h.t.Helper()
	select {
	case s := <-h.snaps:
		return s
	case <-time.After(2 * time.Second):
		h.t.Fatal("timed out waiting for snapshot")
		return domain.MarketSnapshot{}
	}
}

func (h *harness) expectNone(d time.Duration) {
	h.t.Helper()
	select {
	case s := <-h.snaps:
		h.t.Fatalf("unexpected snapshot: %+v", s)
	case <-time.After(d):
	}
}

const validBook = `{"bidOrders":[{"limit":100,"volume":5}],"askOrders":[{"limit":101,"volume":3}]}`

func TestClient_PublishesOrderBook(t *testing.T) {
	h := newHarness(t, newStreamTransport())

	h.transport.send(bookURL, validBook)
	snap := h.next()

	if !snap.HasOrderBook() {
		t.Fatal("snapshot has no order book")
	}
	if got := BestBid(snap.OrderBook); got != (domain.PriceLevel{Limit: 100, Volume: 5}) {
		t.Errorf("best bid = %+v", got)
	}
	if got := BestAsk(snap.OrderBook); got != (domain.PriceLevel{Limit: 101, Volume: 3}) {
		t.Errorf("best ask = %+v", got)
	}
	if snap.Seq != 1 {
		t.Errorf("Seq = %d, want 1", snap.Seq)
	}
	if got := h.client.Snapshot(); got.Seq != snap.Seq {
		t.Errorf("Snapshot().Seq = %d, want %d", got.Seq, snap.Seq)
	}
}

func TestClient_PriceHistorySorted(t *testing.T) {
	h := newHarness(t, newStreamTransport())

	h.transport.send(historyURL, `[{"timestamp":120,"close":2},{"timestamp":60,"close":1}]`)
	snap := h.next()

	if len(snap.PriceHistory) != 2 || snap.PriceHistory[0].Timestamp != 60 || snap.PriceHistory[1].Timestamp != 120 {
		t.Errorf("PriceHistory = %+v, want ascending timestamps", snap.PriceHistory)
	}
	if snap.HasOrderBook() {
		t.Error("order book should still be absent")
	}
}

func TestClient_MalformedUpdateKeepsState(t *testing.T) {
	h := newHarness(t, newStreamTransport())

	h.transport.send(bookURL, validBook)
	first := h.next()

	h.transport.send(bookURL, `{"bidOrders":[{"limit":1,"volume":1}]}`)
	h.transport.send(bookURL, `not json`)
	h.expectNone(100 * time.Millisecond)

	if got := h.client.Snapshot(); got.Seq != first.Seq || BestBid(got.OrderBook).Limit != 100 {
		t.Errorf("state changed after malformed update: %+v", got)
	}

	// The stream is still alive.
	h.transport.send(bookURL, `{"bidOrders":[{"limit":102,"volume":1}],"askOrders":[]}`)
	if got := h.next(); BestBid(got.OrderBook).Limit != 102 {
		t.Errorf("best bid = %v, want 102", BestBid(got.OrderBook).Limit)
	}
}

func TestClient_TransportErrorClearsOnlyThatFeed(t *testing.T) {
	h := newHarness(t, newStreamTransport())

	h.transport.send(historyURL, `[{"timestamp":60,"close":1}]`)
	h.next()
	h.transport.send(bookURL, validBook)
	h.next()

	h.transport.conns[bookURL].errs <- errors.New("connection reset")
	snap := h.next()

	if snap.HasOrderBook() {
		t.Error("order book should be cleared after a stream failure")
	}
	if !errors.Is(snap.OrderBookErr, domain.ErrStreamUnavailable) {
		t.Errorf("OrderBookErr = %v, want ErrStreamUnavailable", snap.OrderBookErr)
	}
	if got := domain.UserMessage(snap.OrderBookErr); got != "Stream unavailable" {
		t.Errorf("UserMessage = %q", got)
	}
	if len(snap.PriceHistory) != 1 || snap.PriceHistoryErr != nil {
		t.Errorf("price history should be untouched: %+v / %v", snap.PriceHistory, snap.PriceHistoryErr)
	}
}

func TestClient_DialFailureReportedAsUnavailable(t *testing.T) {
	tr := newStreamTransport()
	tr.dialErrs[bookURL] = errors.New("connection refused")
	h := newHarness(t, tr)

	snap := h.next()
	if !errors.Is(snap.OrderBookErr, domain.ErrStreamUnavailable) {
		t.Errorf("OrderBookErr = %v, want ErrStreamUnavailable", snap.OrderBookErr)
	}

	h.transport.send(historyURL, `[{"Timestamp":60,"Close":1}]`)
	if got := h.next(); len(got.PriceHistory) != 1 || got.PriceHistory[0].Close != 1 {
		t.Errorf("legacy price history not applied: %+v", got.PriceHistory)
	}
}

func TestClient_NoCallbacksAfterStop(t *testing.T) {
	tr := newStreamTransport()
	c := New(Config{OrderBookURL: bookURL, PriceHistoryURL: historyURL}, tr, nil)

	var calls atomic.Int32
	c.Subscribe(func(domain.MarketSnapshot) { calls.Add(1) })
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	before := calls.Load()

	select {
	case tr.conns[bookURL].ch <- []byte(validBook):
	default:
	}
	tr.conns[historyURL].errs <- errors.New("late failure")
	time.Sleep(100 * time.Millisecond)

	if got := calls.Load(); got != before {
		t.Errorf("subscriber called %d times after Stop", got-before)
	}
	if err := c.Stop(); err != nil {
		t.Errorf("second Stop failed: %v", err)
	}
	if err := c.Start(context.Background()); !errors.Is(err, domain.ErrClientStopped) {
		t.Errorf("Start after Stop = %v, want ErrClientStopped", err)
	}
}

func TestClient_StartTwice(t *testing.T) {
	h := newHarness(t, newStreamTransport())
	if err := h.client.Start(context.Background()); err == nil {
		t.Error("second Start should fail")
	}
}

func TestClient_UnsubscribeFromCallback(t *testing.T) {
	tr := newStreamTransport()
	c := New(Config{OrderBookURL: bookURL, PriceHistoryURL: historyURL}, tr, nil)
	t.Cleanup(func() { _ = c.Stop() })

	var calls atomic.Int32
	var unsubscribe func()
	unsubscribe = c.Subscribe(func(domain.MarketSnapshot) {
		calls.Add(1)
		unsubscribe()
	})
	done := make(chan domain.MarketSnapshot, 4)
	c.Subscribe(func(s domain.MarketSnapshot) { done <- s })

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		tr.send(bookURL, validBook)
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for snapshot")
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("unsubscribed callback ran %d times, want 1", got)
	}
}

func TestClient_UnsubscribeDuringDelivery(t *testing.T) {
	tr := newStreamTransport()
	c := New(Config{OrderBookURL: bookURL, PriceHistoryURL: historyURL}, tr, nil)
	t.Cleanup(func() { _ = c.Stop() })

	entered := make(chan struct{})
	release := make(chan struct{})
	var first atomic.Bool
	first.Store(true)
	seen := make(chan struct{}, 4)
	c.Subscribe(func(domain.MarketSnapshot) {
		if first.CompareAndSwap(true, false) {
			close(entered)
			<-release
		}
		seen <- struct{}{}
	})

	var removed atomic.Bool
	var lateCalls atomic.Int32
	unsubscribe := c.Subscribe(func(domain.MarketSnapshot) {
		if removed.Load() {
			lateCalls.Add(1)
		}
	})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	tr.send(bookURL, validBook)
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	unsubscribe()
	removed.Store(true)
	close(release)

	// The second snapshot is only delivered once the first publish is done.
	tr.send(bookURL, validBook)
	for i := 0; i < 2; i++ {
		select {
		case <-seen:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for snapshot")
		}
	}
	if got := lateCalls.Load(); got != 0 {
		t.Errorf("subscriber called %d times after unsubscribe returned", got)
	}
}
