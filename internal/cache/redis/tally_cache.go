package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/stark3693/stakepoll/internal/domain"
)

// defaultTallyTTL bounds staleness when an invalidation is lost; the engine
// invalidates on every stake, so entries normally turn over much faster.
const defaultTallyTTL = 5 * time.Minute

// TallyCache implements domain.TallyCache by storing the JSON-encoded tally
// per poll.
type TallyCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewTallyCache creates a TallyCache backed by the given Client. A zero ttl
// uses the default.
func NewTallyCache(c *Client, ttl time.Duration) *TallyCache {
	if ttl <= 0 {
		ttl = defaultTallyTTL
	}
	return &TallyCache{rdb: c.Redis(), ttl: ttl}
}

func tallyKey(pollID uuid.UUID) string {
	return "tally:" + pollID.String()
}

// SetTally stores the tally for its poll.
func (tc *TallyCache) SetTally(ctx context.Context, tally domain.Tally) error {
	data, err := json.Marshal(tally)
	if err != nil {
		return fmt.Errorf("redis: marshal tally: %w", err)
	}
	if err := tc.rdb.Set(ctx, tallyKey(tally.PollID), data, tc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set tally %s: %w", tally.PollID, err)
	}
	return nil
}

// GetTally returns the cached tally or domain.ErrNotFound on a miss.
func (tc *TallyCache) GetTally(ctx context.Context, pollID uuid.UUID) (domain.Tally, error) {
	data, err := tc.rdb.Get(ctx, tallyKey(pollID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Tally{}, domain.ErrNotFound
		}
		return domain.Tally{}, fmt.Errorf("redis: get tally %s: %w", pollID, err)
	}

	var tally domain.Tally
	if err := json.Unmarshal(data, &tally); err != nil {
		return domain.Tally{}, fmt.Errorf("redis: unmarshal tally %s: %w", pollID, err)
	}
	return tally, nil
}

// Invalidate drops the cached tally for a poll.
func (tc *TallyCache) Invalidate(ctx context.Context, pollID uuid.UUID) error {
	if err := tc.rdb.Del(ctx, tallyKey(pollID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate tally %s: %w", pollID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.TallyCache = (*TallyCache)(nil)
