package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/stark3693/stakepoll/internal/domain"
)

// Resolve declares the correct option for a poll. Only the creator may call
// it, only after the deadline, and only once: resolution is irrevocable, and
// any attempt on a poll that is no longer open fails with ErrAlreadyResolved
// regardless of the grace period. The total staked pool is snapshotted here
// so the payout base can never change afterwards.
func (e *Engine) Resolve(ctx context.Context, pollID uuid.UUID, correctOption int, caller common.Address) (domain.Poll, error) {
	unlock, err := e.lockPoll(ctx, pollID)
	if err != nil {
		return domain.Poll{}, err
	}
	defer unlock()

	poll, err := e.polls.Get(ctx, pollID)
	if err != nil {
		return domain.Poll{}, err
	}

	now := e.clock.Now()
	switch {
	case caller != poll.Creator:
		return domain.Poll{}, domain.ErrNotCreator
	case poll.Status != domain.PollStatusOpen:
		return domain.Poll{}, domain.ErrAlreadyResolved
	case now.Before(poll.Deadline):
		return domain.Poll{}, domain.ErrPollStillActive
	case correctOption < 0 || correctOption >= poll.OptionCount:
		return domain.Poll{}, domain.ErrInvalidOption
	}

	pool, err := e.stakes.TotalStaked(ctx, pollID)
	if err != nil {
		return domain.Poll{}, fmt.Errorf("engine: resolve pool snapshot: %w", err)
	}
	winning, err := e.stakes.StakedOnOption(ctx, pollID, correctOption)
	if err != nil {
		return domain.Poll{}, fmt.Errorf("engine: resolve winning pool: %w", err)
	}

	if err := e.polls.MarkResolved(ctx, pollID, correctOption, now, pool); err != nil {
		return domain.Poll{}, fmt.Errorf("engine: mark resolved: %w", err)
	}

	poll.Status = domain.PollStatusResolved
	poll.CorrectOption = &correctOption
	resolvedAt := now
	poll.ResolvedAt = &resolvedAt
	poll.PoolAtResolution = pool

	e.auditLog(ctx, "poll.resolved", map[string]any{
		"poll_id":        pollID.String(),
		"correct_option": correctOption,
		"pool":           pool,
		"winning_pool":   winning,
		"resolved_at":    now.Format(time.RFC3339),
	})

	// Nobody staked the winning option: the distributable pool has no
	// claimants and stays locked. Surface it for operators.
	if winning == 0 && pool > 0 {
		e.logger.WarnContext(ctx, "resolved poll has no winning stake, pool stays locked",
			slog.String("poll_id", pollID.String()),
			slog.Uint64("pool", pool),
		)
		e.auditLog(ctx, "poll.unclaimed_pool", map[string]any{
			"poll_id": pollID.String(),
			"pool":    pool,
		})
	}

	e.publish(ctx, "ch:poll", "poll_resolved", map[string]any{
		"poll_id":        pollID.String(),
		"correct_option": correctOption,
		"pool":           pool,
	})

	return poll, nil
}
