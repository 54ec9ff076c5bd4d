package feed

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/alanyoungcy/marketclient/internal/domain"
)

var errConnClosed = errors.New("connection closed")

type fakeMsg struct {
	data []byte
	err  error
}

// fakeConn is an in-memory StreamConn fed through its channel.
type fakeConn struct {
	ch        chan fakeMsg
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{ch: make(chan fakeMsg, 16), closed: make(chan struct{})}
}

func (c *fakeConn) send(data string) { c.ch <- fakeMsg{data: []byte(data)} }

func (c *fakeConn) fail(err error) { c.ch <- fakeMsg{err: err} }

func (c *fakeConn) Next(ctx context.Context) ([]byte, error) {
	select {
	case m, ok := <-c.ch:
		if !ok {
			return nil, io.EOF
		}
		return m.data, m.err
	case <-c.closed:
		return nil, errConnClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// fakeTransport hands out queued connections, or queued dial errors first.
type fakeTransport struct {
	mu       sync.Mutex
	conns    []*fakeConn
	dialErrs []error
	dials    int
}

func (t *fakeTransport) Dial(ctx context.Context, url string) (domain.StreamConn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dials++
	if len(t.dialErrs) > 0 {
		err := t.dialErrs[0]
		t.dialErrs = t.dialErrs[1:]
		return nil, err
	}
	if len(t.conns) == 0 {
		return nil, errors.New("no connection available")
	}
	c := t.conns[0]
	t.conns = t.conns[1:]
	return c, nil
}

func (t *fakeTransport) dialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}
