package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TallyCache caches per-option staked aggregates so the read path does not
// hit the stake store on every feed render.
type TallyCache interface {
	SetTally(ctx context.Context, tally Tally) error
	// GetTally returns ErrNotFound on a cache miss.
	GetTally(ctx context.Context, pollID uuid.UUID) (Tally, error)
	Invalidate(ctx context.Context, pollID uuid.UUID) error
}

// LockManager provides distributed per-poll locks so mutating operations on a
// poll can be serialized across replicas.
type LockManager interface {
	// Acquire obtains the lock for a poll with the given TTL and returns an
	// unlock function. It returns ErrLockHeld if another replica holds the
	// lock.
	Acquire(ctx context.Context, pollID uuid.UUID, ttl time.Duration) (func(), error)
}

// RateLimiter provides sliding-window request limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// SignalBus is a lightweight pub/sub channel for poll lifecycle events
// (staked, resolved, claimed, closed). Consumers include the WebSocket hub.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
