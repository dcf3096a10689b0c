package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/stark3693/stakepoll/internal/domain"
)

// pollLockKeyspace namespaces the per-poll lock keys. One key per poll; the
// value is the holder's token.
const pollLockKeyspace = "stakepoll:lock:poll:"

// releaseTimeout bounds the release round-trip when the caller's context is
// already gone.
const releaseTimeout = 5 * time.Second

// releaseLua deletes the poll's lock key only when its value still matches
// the holder's token, so a replica whose lock expired cannot release the lock
// a different replica now holds.
const releaseLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// LockManager implements domain.LockManager with one Redis SETNX key per
// poll. The engine takes this lock around every mutating poll operation
// (stake, resolve, claim) so replicas never interleave transitions on the
// same poll; the TTL bounds how long a crashed holder can block a poll.
type LockManager struct {
	rdb     *redis.Client
	release *redis.Script
}

// NewLockManager creates a LockManager backed by the given Client.
func NewLockManager(c *Client) *LockManager {
	return &LockManager{
		rdb:     c.Redis(),
		release: redis.NewScript(releaseLua),
	}
}

// Acquire takes the distributed lock for pollID with the given TTL. On
// success it returns a release function that is safe to call more than once.
// It returns domain.ErrLockHeld when another replica is mid-transition on the
// same poll.
func (lm *LockManager) Acquire(ctx context.Context, pollID uuid.UUID, ttl time.Duration) (func(), error) {
	key := pollLockKeyspace + pollID.String()
	token := uuid.NewString()

	ok, err := lm.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: lock poll %s: %w", pollID, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true

		// The caller's context may already be cancelled by the time the
		// operation unwinds; release on a fresh one.
		rctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		_ = lm.release.Run(rctx, lm.rdb, []string{key}, token).Err()
	}, nil
}

// Compile-time interface check.
var _ domain.LockManager = (*LockManager)(nil)
