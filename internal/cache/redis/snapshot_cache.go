package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNoSnapshot is returned by Latest when nothing has been stored yet.
var ErrNoSnapshot = errors.New("redis: no snapshot stored")

// SnapshotCache keeps the latest published snapshot so a late subscriber can
// start from it.
//
// Key schema:
//
//	{prefix}snapshot:latest - JSON SnapshotPayload, expires after ttl
//	{prefix}snapshot:bbo    - hash with "bid", "ask" and "seq"
type SnapshotCache struct {
	c   *Client
	ttl time.Duration
}

// NewSnapshotCache creates a SnapshotCache. A zero ttl keeps entries forever.
func NewSnapshotCache(c *Client, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{c: c, ttl: ttl}
}

// StoreLatest replaces the stored snapshot and its best bid/ask in one
// transaction.
func (sc *SnapshotCache) StoreLatest(ctx context.Context, payload []byte, bestBid, bestAsk float64, seq uint64) error {
	pipe := sc.c.rdb.TxPipeline()
	pipe.Set(ctx, sc.c.Key("snapshot:latest"), payload, sc.ttl)
	pipe.HSet(ctx, sc.c.Key("snapshot:bbo"),
		"bid", strconv.FormatFloat(bestBid, 'f', -1, 64),
		"ask", strconv.FormatFloat(bestAsk, 'f', -1, 64),
		"seq", strconv.FormatUint(seq, 10),
	)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: store snapshot: %w", err)
	}
	return nil
}

// Latest returns the stored snapshot payload.
func (sc *SnapshotCache) Latest(ctx context.Context) ([]byte, error) {
	b, err := sc.c.rdb.Get(ctx, sc.c.Key("snapshot:latest")).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("redis: latest snapshot: %w", err)
	}
	return b, nil
}
