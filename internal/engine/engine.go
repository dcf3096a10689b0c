// Package engine implements the prediction-poll staking and reward
// distribution state machine: poll lifecycle, stake accounting, resolution,
// fee/reward arithmetic, and claim gating.
//
// Every mutating operation on a poll is serialized behind a per-poll mutex
// (and, when a LockManager is configured, a distributed per-poll lock), so no
// operation ever observes a partially updated poll or position. Interaction
// with the external account ledger follows a strict ordering: debit before a
// stake is recorded, credit before a claim is flagged.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/stark3693/stakepoll/internal/domain"
)

// distLockTTL bounds how long a replica may hold the distributed per-poll
// lock before it expires on its own.
const distLockTTL = 10 * time.Second

// Config holds the engine's timing windows.
type Config struct {
	// GracePeriod is the window after the deadline during which resolution
	// is expected; the settlement sweeper closes the poll once it passes.
	GracePeriod time.Duration

	// ClaimDelay is the mandatory wait after resolution before any fee or
	// reward claim is accepted.
	ClaimDelay time.Duration
}

// DefaultConfig returns the engine's standard timing windows.
func DefaultConfig() Config {
	return Config{
		GracePeriod: domain.DefaultGracePeriod,
		ClaimDelay:  domain.DefaultClaimDelay,
	}
}

// Deps bundles the collaborators the engine operates against. Polls, Stakes,
// and Ledger are required; the rest are optional and skipped when nil.
type Deps struct {
	Polls  domain.PollStore
	Stakes domain.StakeStore
	Ledger domain.Ledger

	Audit domain.AuditStore
	Tally domain.TallyCache
	Bus   domain.SignalBus
	Locks domain.LockManager
	Clock domain.Clock
}

// Engine owns the poll state machine and all monetary transitions.
type Engine struct {
	polls  domain.PollStore
	stakes domain.StakeStore
	ledger domain.Ledger
	audit  domain.AuditStore
	tally  domain.TallyCache
	bus    domain.SignalBus
	dlocks domain.LockManager
	clock  domain.Clock
	local  *pollLocks
	cfg    Config
	logger *slog.Logger
}

// New creates an Engine from the given dependencies. A nil Clock defaults to
// the system clock; zero timing windows default to the standard ones.
func New(deps Deps, cfg Config, logger *slog.Logger) *Engine {
	clock := deps.Clock
	if clock == nil {
		clock = domain.SystemClock
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = domain.DefaultGracePeriod
	}
	if cfg.ClaimDelay <= 0 {
		cfg.ClaimDelay = domain.DefaultClaimDelay
	}

	return &Engine{
		polls:  deps.Polls,
		stakes: deps.Stakes,
		ledger: deps.Ledger,
		audit:  deps.Audit,
		tally:  deps.Tally,
		bus:    deps.Bus,
		dlocks: deps.Locks,
		clock:  clock,
		local:  newPollLocks(),
		cfg:    cfg,
		logger: logger.With(slog.String("component", "engine")),
	}
}

// Config returns the engine's timing windows.
func (e *Engine) Config() Config {
	return e.cfg
}

// CreatePollParams carries the caller-supplied fields of a new poll.
type CreatePollParams struct {
	Creator        common.Address
	OptionCount    int
	Deadline       time.Time
	StakingEnabled bool
	CreatorFeeBps  int
}

// CreatePoll validates the parameters and registers a new open poll.
func (e *Engine) CreatePoll(ctx context.Context, params CreatePollParams) (domain.Poll, error) {
	now := e.clock.Now()

	if params.OptionCount < domain.MinOptionCount || params.OptionCount > domain.MaxOptionCount {
		return domain.Poll{}, domain.ErrInvalidOptionCount
	}
	if !params.Deadline.After(now) {
		return domain.Poll{}, domain.ErrDeadlineInPast
	}
	if params.CreatorFeeBps < 0 || params.CreatorFeeBps > domain.MaxCreatorFeeBps {
		return domain.Poll{}, domain.ErrFeeAboveCap
	}

	poll := domain.Poll{
		ID:             uuid.New(),
		Creator:        params.Creator,
		OptionCount:    params.OptionCount,
		Deadline:       params.Deadline.UTC(),
		CreatorFeeBps:  params.CreatorFeeBps,
		StakingEnabled: params.StakingEnabled,
		Status:         domain.PollStatusOpen,
		CreatedAt:      now,
	}

	if err := e.polls.Create(ctx, poll); err != nil {
		return domain.Poll{}, fmt.Errorf("engine: create poll: %w", err)
	}

	e.auditLog(ctx, "poll.created", map[string]any{
		"poll_id":         poll.ID.String(),
		"creator":         poll.Creator.Hex(),
		"option_count":    poll.OptionCount,
		"deadline":        poll.Deadline.Format(time.RFC3339),
		"creator_fee_bps": poll.CreatorFeeBps,
		"staking_enabled": poll.StakingEnabled,
	})
	e.publish(ctx, "ch:poll", "poll_created", map[string]any{
		"poll_id":  poll.ID.String(),
		"deadline": poll.Deadline.Format(time.RFC3339),
	})

	return poll, nil
}

// Stake commits amount behind the given option on behalf of account. For
// staking-enabled polls the account ledger is debited before any position is
// recorded; a failed debit leaves no trace. For vote-only polls the ledger is
// never touched and amount acts as plain vote weight.
func (e *Engine) Stake(ctx context.Context, pollID uuid.UUID, account common.Address, option int, amount uint64) (domain.StakePosition, error) {
	unlock, err := e.lockPoll(ctx, pollID)
	if err != nil {
		return domain.StakePosition{}, err
	}
	defer unlock()

	poll, err := e.polls.Get(ctx, pollID)
	if err != nil {
		return domain.StakePosition{}, err
	}

	now := e.clock.Now()
	switch {
	case poll.Status != domain.PollStatusOpen:
		return domain.StakePosition{}, domain.ErrPollNotOpen
	case !now.Before(poll.Deadline):
		return domain.StakePosition{}, domain.ErrPastDeadline
	case option < 0 || option >= poll.OptionCount:
		return domain.StakePosition{}, domain.ErrInvalidOption
	case amount == 0:
		return domain.StakePosition{}, domain.ErrZeroAmount
	case amount > domain.MaxStakeAmount:
		return domain.StakePosition{}, domain.ErrAmountTooLarge
	case account == poll.Creator:
		return domain.StakePosition{}, domain.ErrCreatorCannotStake
	}

	// Debit first. No position may exist without a successful debit.
	if poll.StakingEnabled {
		if err := e.ledger.Debit(ctx, account, amount); err != nil {
			return domain.StakePosition{}, fmt.Errorf("engine: stake debit: %w", err)
		}
	}

	pos, err := e.stakes.Record(ctx, domain.StakePosition{
		ID:        uuid.New(),
		PollID:    pollID,
		Account:   account,
		Option:    option,
		Amount:    amount,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		// Unwind the debit so funds are not held against a position that was
		// never recorded.
		if poll.StakingEnabled {
			if cerr := e.ledger.Credit(ctx, account, amount); cerr != nil {
				e.logger.ErrorContext(ctx, "stake refund failed after record error",
					slog.String("poll_id", pollID.String()),
					slog.String("account", account.Hex()),
					slog.Uint64("amount", amount),
					slog.String("error", cerr.Error()),
				)
			}
		}
		return domain.StakePosition{}, fmt.Errorf("engine: record stake: %w", err)
	}

	e.invalidateTally(ctx, pollID)
	e.auditLog(ctx, "poll.staked", map[string]any{
		"poll_id":     pollID.String(),
		"position_id": pos.ID.String(),
		"account":     account.Hex(),
		"option":      option,
		"amount":      amount,
	})
	e.publish(ctx, "ch:stake", "staked", map[string]any{
		"poll_id": pollID.String(),
		"option":  option,
		"amount":  amount,
	})

	return pos, nil
}

// Poll returns a single poll.
func (e *Engine) Poll(ctx context.Context, id uuid.UUID) (domain.Poll, error) {
	return e.polls.Get(ctx, id)
}

// Polls lists polls with pagination.
func (e *Engine) Polls(ctx context.Context, opts domain.ListOpts) ([]domain.Poll, error) {
	return e.polls.List(ctx, opts)
}

// Positions returns the account's positions on a poll.
func (e *Engine) Positions(ctx context.Context, pollID uuid.UUID, account common.Address) ([]domain.StakePosition, error) {
	return e.stakes.PositionsFor(ctx, pollID, account)
}

// Tally returns the per-option staked aggregates for a poll, reading through
// the tally cache when one is configured.
func (e *Engine) Tally(ctx context.Context, pollID uuid.UUID) (domain.Tally, error) {
	if e.tally != nil {
		if t, err := e.tally.GetTally(ctx, pollID); err == nil {
			return t, nil
		}
	}

	poll, err := e.polls.Get(ctx, pollID)
	if err != nil {
		return domain.Tally{}, err
	}
	t, err := e.stakes.Tally(ctx, pollID, poll.OptionCount)
	if err != nil {
		return domain.Tally{}, fmt.Errorf("engine: tally: %w", err)
	}

	if e.tally != nil {
		if err := e.tally.SetTally(ctx, t); err != nil {
			e.logger.WarnContext(ctx, "tally cache write failed",
				slog.String("poll_id", pollID.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	return t, nil
}

// lockPoll serializes mutations on a poll: always the in-process mutex, plus
// the distributed lock when a LockManager is configured.
func (e *Engine) lockPoll(ctx context.Context, pollID uuid.UUID) (func(), error) {
	release := e.local.lock(pollID)

	if e.dlocks == nil {
		return release, nil
	}

	dunlock, err := e.dlocks.Acquire(ctx, pollID, distLockTTL)
	if err != nil {
		release()
		return nil, fmt.Errorf("engine: acquire poll lock: %w", err)
	}
	return func() {
		dunlock()
		release()
	}, nil
}

func (e *Engine) invalidateTally(ctx context.Context, pollID uuid.UUID) {
	if e.tally == nil {
		return
	}
	if err := e.tally.Invalidate(ctx, pollID); err != nil {
		e.logger.WarnContext(ctx, "tally cache invalidate failed",
			slog.String("poll_id", pollID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// auditLog records an audit entry, logging failures instead of failing the
// operation: the monetary transition has already committed by the time the
// audit write happens.
func (e *Engine) auditLog(ctx context.Context, event string, detail map[string]any) {
	if e.audit == nil {
		return
	}
	if err := e.audit.Log(ctx, event, detail); err != nil {
		e.logger.ErrorContext(ctx, "audit log write failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// publish emits a poll lifecycle event on the signal bus, best effort.
func (e *Engine) publish(ctx context.Context, channel, eventType string, payload map[string]any) {
	if e.bus == nil {
		return
	}
	msg, err := json.Marshal(map[string]any{
		"type":    eventType,
		"payload": payload,
	})
	if err != nil {
		return
	}
	if err := e.bus.Publish(ctx, channel, msg); err != nil {
		e.logger.WarnContext(ctx, "event publish failed",
			slog.String("channel", channel),
			slog.String("type", eventType),
			slog.String("error", err.Error()),
		)
	}
}
