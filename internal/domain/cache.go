package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// MarketCache provides fast market lookups in front of the ledger store.
type MarketCache interface {
	Set(ctx context.Context, market Market) error
	Get(ctx context.Context, id common.Hash) (Market, error)
	Invalidate(ctx context.Context, id common.Hash) error
}

// LockManager provides per-market mutual exclusion across processes. The
// store transaction is the correctness backstop; the lock keeps concurrent
// writers from burning transactions against each other.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// RateLimiter provides distributed rate limiting for the API surface.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// StreamMessage is a single entry read back from a durable event stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus carries ledger events: ephemeral pub/sub for live consumers
// (the websocket hub, the off-chain resolver) and durable streams for
// indexers that need replay.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// MarketLockKey is the lock-manager key serializing writers of one market.
func MarketLockKey(id common.Hash) string {
	return "market:" + id.Hex()
}
