package exchange

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/alanyoungcy/marketclient/internal/domain"
)

// maxEventSize bounds a single SSE line.
const maxEventSize = 4 << 20

// SSETransport opens server-sent event streams over HTTP.
type SSETransport struct {
	httpClient *http.Client
}

// NewSSETransport creates an SSE transport. The HTTP client must not carry an
// overall Timeout, which would cut long-lived streams; a nil client gets a
// default with a response-header timeout only.
func NewSSETransport(hc *http.Client) *SSETransport {
	if hc == nil {
		hc = &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: 15 * time.Second,
			},
		}
	}
	return &SSETransport{httpClient: hc}
}

// Dial issues the streaming GET. ctx bounds only the handshake; the returned
// connection lives until Close.
func (t *SSETransport) Dial(ctx context.Context, url string) (domain.StreamConn, error) {
	streamCtx, cancel := context.WithCancel(context.Background())
	stop := context.AfterFunc(ctx, cancel)

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, url, nil)
	if err != nil {
		stop()
		cancel()
		return nil, fmt.Errorf("exchange/sse: create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := t.httpClient.Do(req)
	if !stop() {
		// The handshake context ended first.
		if err == nil {
			resp.Body.Close()
		}
		cancel()
		return nil, fmt.Errorf("exchange/sse: connect %s: %w", url, ctx.Err())
	}
	if err != nil {
		cancel()
		return nil, fmt.Errorf("exchange/sse: connect %s: %w", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("exchange/sse: connect %s: HTTP %d", url, resp.StatusCode)
	}

	return &sseConn{
		body:   resp.Body,
		events: newEventReader(resp.Body),
		cancel: cancel,
	}, nil
}

// sseConn is one open event stream.
type sseConn struct {
	body      io.ReadCloser
	events    *eventReader
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// Next returns the data of the next event. Cancelling ctx tears the stream
// down.
func (c *sseConn) Next(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, c.cancel)
	defer stop()

	data, err := c.events.next()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return data, nil
}

// Close terminates the stream. It is safe to call more than once.
func (c *sseConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.body.Close()
	})
	return err
}

// eventReader splits an SSE byte stream into event data payloads.
type eventReader struct {
	scanner *bufio.Scanner
}

func newEventReader(r io.Reader) *eventReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxEventSize)
	return &eventReader{scanner: sc}
}

// next blocks until an event with data is complete. Fields other than data
// are ignored, as are comment lines. Multiple data lines are joined with a
// newline. An end of stream is reported as io.EOF.
func (r *eventReader) next() ([]byte, error) {
	var data bytes.Buffer
	hasData := false

	for r.scanner.Scan() {
		line := bytes.TrimSuffix(r.scanner.Bytes(), []byte("\r"))

		if len(line) == 0 {
			if hasData {
				return data.Bytes(), nil
			}
			continue
		}
		if line[0] == ':' {
			continue
		}

		field, value, found := bytes.Cut(line, []byte(":"))
		if found && len(value) > 0 && value[0] == ' ' {
			value = value[1:]
		}
		if string(field) != "data" {
			continue
		}
		if hasData {
			data.WriteByte('\n')
		}
		data.Write(value)
		hasData = true
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	if hasData {
		return nil, fmt.Errorf("exchange/sse: %w", io.ErrUnexpectedEOF)
	}
	return nil, io.EOF
}
