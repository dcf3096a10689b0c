package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/stark3693/stakepoll/internal/domain"
)

// ClaimCreatorFee pays the creator's fee out of the resolved pool. It is the
// only path through which a creator receives funds. A second call fails with
// ErrAlreadyClaimed rather than silently paying nothing, and a poll created
// with a zero fee always rejects the call so callers can tell "already paid"
// apart from "nothing was ever owed".
func (e *Engine) ClaimCreatorFee(ctx context.Context, pollID uuid.UUID, caller common.Address) (uint64, error) {
	unlock, err := e.lockPoll(ctx, pollID)
	if err != nil {
		return 0, err
	}
	defer unlock()

	poll, err := e.polls.Get(ctx, pollID)
	if err != nil {
		return 0, err
	}

	if caller != poll.Creator {
		return 0, domain.ErrNotCreator
	}
	if err := e.claimablePoll(poll); err != nil {
		return 0, err
	}
	if poll.CreatorFeeBps == 0 {
		return 0, domain.ErrZeroFeePoll
	}
	if poll.CreatorFeeClaimed {
		return 0, domain.ErrAlreadyClaimed
	}

	fee := CreatorFee(poll.PoolAtResolution, poll.CreatorFeeBps)

	// Credit before flagging: the claimed flag must never be set for funds
	// that were not moved.
	if fee > 0 {
		if err := e.ledger.Credit(ctx, poll.Creator, fee); err != nil {
			return 0, fmt.Errorf("engine: credit creator fee: %w", err)
		}
	}
	if err := e.polls.MarkFeeClaimed(ctx, pollID); err != nil {
		// The credit has already happened; this poll needs operator
		// attention before the flag discrepancy is exploited.
		e.logger.ErrorContext(ctx, "fee claimed flag write failed after credit",
			slog.String("poll_id", pollID.String()),
			slog.Uint64("fee", fee),
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("engine: mark fee claimed: %w", err)
	}

	e.auditLog(ctx, "poll.fee_claimed", map[string]any{
		"poll_id": pollID.String(),
		"creator": poll.Creator.Hex(),
		"fee":     fee,
	})
	e.publish(ctx, "ch:claim", "fee_claimed", map[string]any{
		"poll_id": pollID.String(),
		"fee":     fee,
	})

	return fee, nil
}

// ClaimReward pays out a winning position to its owner. Claims are self-only:
// the caller must own the position. The creator is rejected outright and
// directed to the fee path; creators cannot stake, so this is defense in
// depth. Each position pays exactly once.
func (e *Engine) ClaimReward(ctx context.Context, pollID, positionID uuid.UUID, caller common.Address) (uint64, error) {
	unlock, err := e.lockPoll(ctx, pollID)
	if err != nil {
		return 0, err
	}
	defer unlock()

	poll, err := e.polls.Get(ctx, pollID)
	if err != nil {
		return 0, err
	}

	if caller == poll.Creator {
		return 0, domain.ErrUseCreatorClaim
	}
	if err := e.claimablePoll(poll); err != nil {
		return 0, err
	}

	pos, err := e.stakes.Position(ctx, positionID)
	if err != nil {
		return 0, err
	}
	if pos.PollID != pollID {
		return 0, domain.ErrNotFound
	}
	if pos.Account != caller {
		return 0, domain.ErrNotPositionOwner
	}
	if pos.Option != *poll.CorrectOption {
		return 0, domain.ErrWrongOption
	}
	if pos.Claimed {
		return 0, domain.ErrAlreadyClaimed
	}

	winning, err := e.stakes.StakedOnOption(ctx, pollID, *poll.CorrectOption)
	if err != nil {
		return 0, fmt.Errorf("engine: winning pool: %w", err)
	}
	reward := Reward(poll.PoolAtResolution, poll.CreatorFeeBps, winning, pos.Amount)

	// Credit before flagging, same invariant as the fee path.
	if reward > 0 {
		if err := e.ledger.Credit(ctx, pos.Account, reward); err != nil {
			return 0, fmt.Errorf("engine: credit reward: %w", err)
		}
	}
	if err := e.stakes.MarkClaimed(ctx, positionID, e.clock.Now()); err != nil {
		e.logger.ErrorContext(ctx, "claimed flag write failed after credit",
			slog.String("poll_id", pollID.String()),
			slog.String("position_id", positionID.String()),
			slog.Uint64("reward", reward),
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("engine: mark claimed: %w", err)
	}

	e.auditLog(ctx, "poll.reward_claimed", map[string]any{
		"poll_id":     pollID.String(),
		"position_id": positionID.String(),
		"account":     pos.Account.Hex(),
		"amount":      pos.Amount,
		"reward":      reward,
	})
	e.publish(ctx, "ch:claim", "reward_claimed", map[string]any{
		"poll_id": pollID.String(),
		"reward":  reward,
	})

	return reward, nil
}

// claimablePoll checks the poll-level claim gates shared by both claim paths:
// the poll must be resolved (closed polls are permanently past their claim
// window), staking must have been enabled, and the claim delay must have
// elapsed.
func (e *Engine) claimablePoll(poll domain.Poll) error {
	switch poll.Status {
	case domain.PollStatusOpen:
		return domain.ErrPollNotResolved
	case domain.PollStatusClosed:
		return domain.ErrPollClosed
	}
	if !poll.StakingEnabled {
		return domain.ErrStakingDisabled
	}
	if e.clock.Now().Before(poll.ResolvedAt.Add(e.cfg.ClaimDelay)) {
		return domain.ErrClaimTooEarly
	}
	return nil
}
