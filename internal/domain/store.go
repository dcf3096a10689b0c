package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// PollStore persists polls and their resolution records. Mutations are
// restricted to the exact transitions the engine performs: a poll is created
// once, resolved once, fee-claimed once, and closed once.
type PollStore interface {
	Create(ctx context.Context, poll Poll) error
	Get(ctx context.Context, id uuid.UUID) (Poll, error)
	List(ctx context.Context, opts ListOpts) ([]Poll, error)

	// ListResolvedBefore returns resolved (not closed) polls whose ResolvedAt
	// is strictly before the cutoff. Used by the settlement sweeper.
	ListResolvedBefore(ctx context.Context, cutoff time.Time) ([]Poll, error)

	// MarkResolved records the resolution facts and moves the poll to
	// PollStatusResolved. It fails with ErrAlreadyResolved if the poll is no
	// longer open.
	MarkResolved(ctx context.Context, id uuid.UUID, correctOption int, resolvedAt time.Time, pool uint64) error

	// MarkFeeClaimed sets the creator-fee-claimed flag exactly once. It fails
	// with ErrAlreadyClaimed if the flag is already set.
	MarkFeeClaimed(ctx context.Context, id uuid.UUID) error

	// MarkClosed moves a resolved poll to PollStatusClosed.
	MarkClosed(ctx context.Context, id uuid.UUID) error
}

// StakeStore persists stake positions and per-poll aggregates.
type StakeStore interface {
	// Record creates a position for (poll, account, option) or increments an
	// existing one, and returns the stored position.
	Record(ctx context.Context, pos StakePosition) (StakePosition, error)

	Position(ctx context.Context, id uuid.UUID) (StakePosition, error)
	PositionsFor(ctx context.Context, pollID uuid.UUID, account common.Address) ([]StakePosition, error)
	PositionsForPoll(ctx context.Context, pollID uuid.UUID) ([]StakePosition, error)

	TotalStaked(ctx context.Context, pollID uuid.UUID) (uint64, error)
	StakedOnOption(ctx context.Context, pollID uuid.UUID, option int) (uint64, error)
	Tally(ctx context.Context, pollID uuid.UUID, optionCount int) (Tally, error)

	// MarkClaimed sets a position's claimed flag exactly once. It fails with
	// ErrAlreadyClaimed if the flag is already set.
	MarkClaimed(ctx context.Context, id uuid.UUID, at time.Time) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log. Every monetary transition
// (stake, resolve, claim, close) is recorded here.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
