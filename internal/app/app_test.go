package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/marketclient/internal/config"
	"github.com/alanyoungcy/marketclient/internal/domain"
	"github.com/alanyoungcy/marketclient/internal/platform/exchange"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// venueServer streams one event per feed and then holds the streams open.
func venueServer(t *testing.T) *httptest.Server {
	t.Helper()
	events := map[string]string{
		"/order-book/stream":        `{"bidOrders":[{"limit":0.47,"volume":3},{"limit":0.45,"volume":10}],"askOrders":[{"limit":0.52,"volume":4}]}`,
		"/order-book/price-history": `[{"timestamp":120,"close":0.5},{"timestamp":60,"close":0.4}]`,
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ev, ok := events[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "data: %s\n\n", ev)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
}

func TestStreamMode(t *testing.T) {
	srv := venueServer(t)
	defer srv.Close()

	cfg := config.Defaults()
	cfg.Mode = "stream"
	cfg.API.URL = srv.URL
	cfg.Stream.Transport = "sse"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := New(&cfg, discardLogger())
	deps, cleanup, err := Wire(ctx, &cfg, discardLogger())
	if err != nil {
		t.Fatalf("Wire failed: %v", err)
	}
	defer cleanup()
	if deps.Mirror != nil {
		t.Error("mirror must be nil when redis is disabled")
	}

	full := make(chan domain.MarketSnapshot, 1)
	deps.Market.Subscribe(func(s domain.MarketSnapshot) {
		if s.OrderBook != nil && len(s.PriceHistory) == 2 {
			select {
			case full <- s:
			default:
			}
		}
	})

	done := make(chan error, 1)
	go func() { done <- a.StreamMode(ctx, deps) }()

	select {
	case s := <-full:
		p := s.Payload()
		if p.BestBid.Limit != 0.47 || p.BestAsk.Limit != 0.52 {
			t.Errorf("best bid/ask = %v/%v", p.BestBid, p.BestAsk)
		}
		if p.PriceHistory[0].Timestamp != 60 {
			t.Errorf("history not sorted: %+v", p.PriceHistory)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a complete snapshot")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("StreamMode returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("StreamMode did not return after cancel")
	}
}

func TestNewTransport(t *testing.T) {
	cfg := config.Defaults()
	if _, ok := newTransport(&cfg, discardLogger()).(*exchange.AutoTransport); !ok {
		t.Error("expected the plain auto transport without reconnects")
	}

	cfg.Stream.Reconnect = true
	if _, ok := newTransport(&cfg, discardLogger()).(*exchange.AutoTransport); ok {
		t.Error("expected the reconnect decorator when reconnects are enabled")
	}
}

func TestLogSnapshot(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	logSnapshot(logger, domain.MarketSnapshot{
		OrderBook: &domain.OrderBook{
			BidOrders: []domain.PriceLevel{{Limit: 0.4, Volume: 1}},
			AskOrders: []domain.PriceLevel{},
		},
		PriceHistoryErr: domain.ErrStreamUnavailable,
		Seq:             3,
	})

	out := buf.String()
	for _, want := range []string{"seq=3", "best_bid=0.4", "ask_levels=0", "price_history_error="} {
		if !strings.Contains(out, want) {
			t.Errorf("log line missing %q: %s", want, out)
		}
	}
}

func TestRunRejectsUnknownMode(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = "backtest"
	a := New(&cfg, discardLogger())
	defer a.Close()
	if err := a.Run(context.Background()); err == nil {
		t.Error("expected an error for an unsupported mode")
	}
}
