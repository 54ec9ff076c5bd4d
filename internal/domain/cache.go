package domain

import "context"

// SignalBus fans published payloads out to other processes.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}
