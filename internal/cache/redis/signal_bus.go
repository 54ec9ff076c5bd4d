package redis

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/marketclient/internal/domain"
)

// SignalBus implements domain.SignalBus over Redis Pub/Sub. Channel names
// are namespaced with the client's prefix.
type SignalBus struct {
	c *Client
}

// NewSignalBus creates a SignalBus backed by the given Client.
func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{c: c}
}

// Publish sends a raw payload to a Pub/Sub channel.
func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	name := sb.c.Key(channel)
	if err := sb.c.rdb.Publish(ctx, name, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", name, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.SignalBus = (*SignalBus)(nil)
