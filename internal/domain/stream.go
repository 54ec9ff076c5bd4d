package domain

import "context"

// StreamConn is one open streaming connection. Next blocks until the next
// payload arrives, the context is cancelled, or the connection fails.
type StreamConn interface {
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// StreamTransport opens streaming connections.
type StreamTransport interface {
	Dial(ctx context.Context, url string) (StreamConn, error)
}
