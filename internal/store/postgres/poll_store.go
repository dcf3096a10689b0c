package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stark3693/stakepoll/internal/domain"
)

// PollStore implements domain.PollStore using PostgreSQL.
type PollStore struct {
	pool *pgxpool.Pool
}

// NewPollStore creates a new PollStore backed by the given connection pool.
func NewPollStore(pool *pgxpool.Pool) *PollStore {
	return &PollStore{pool: pool}
}

const pollSelectCols = `id, creator, option_count, deadline, creator_fee_bps,
	staking_enabled, status, correct_option, resolved_at, pool_at_resolution,
	creator_fee_claimed, created_at`

func scanPoll(row pgx.Row) (domain.Poll, error) {
	var p domain.Poll
	var id, creator, status string
	var poolAtResolution int64

	err := row.Scan(
		&id, &creator, &p.OptionCount, &p.Deadline, &p.CreatorFeeBps,
		&p.StakingEnabled, &status, &p.CorrectOption, &p.ResolvedAt,
		&poolAtResolution, &p.CreatorFeeClaimed, &p.CreatedAt,
	)
	if err != nil {
		return domain.Poll{}, err
	}

	p.ID, err = uuid.Parse(id)
	if err != nil {
		return domain.Poll{}, fmt.Errorf("parse poll id %q: %w", id, err)
	}
	p.Creator = common.HexToAddress(creator)
	p.Status = domain.PollStatus(status)
	p.PoolAtResolution = uint64(poolAtResolution)
	return p, nil
}

func scanPolls(rows pgx.Rows) ([]domain.Poll, error) {
	var polls []domain.Poll
	for rows.Next() {
		p, err := scanPoll(rows)
		if err != nil {
			return nil, err
		}
		polls = append(polls, p)
	}
	return polls, rows.Err()
}

// Create inserts a new poll.
func (s *PollStore) Create(ctx context.Context, p domain.Poll) error {
	const query = `
		INSERT INTO polls (
			id, creator, option_count, deadline, creator_fee_bps,
			staking_enabled, status, correct_option, resolved_at,
			pool_at_resolution, creator_fee_claimed, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		p.ID.String(), p.Creator.Hex(), p.OptionCount, p.Deadline, p.CreatorFeeBps,
		p.StakingEnabled, string(p.Status), p.CorrectOption, p.ResolvedAt,
		int64(p.PoolAtResolution), p.CreatorFeeClaimed, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create poll %s: %w", p.ID, err)
	}
	return nil
}

// Get retrieves a single poll by its ID.
func (s *PollStore) Get(ctx context.Context, id uuid.UUID) (domain.Poll, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pollSelectCols+` FROM polls WHERE id = $1`, id.String())

	p, err := scanPoll(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Poll{}, domain.ErrNotFound
		}
		return domain.Poll{}, fmt.Errorf("postgres: get poll %s: %w", id, err)
	}
	return p, nil
}

// List returns polls newest-first with pagination.
func (s *PollStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Poll, error) {
	query := `SELECT ` + pollSelectCols + ` FROM polls ORDER BY created_at DESC`
	args := []any{}
	argIdx := 1

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list polls: %w", err)
	}
	defer rows.Close()

	polls, err := scanPolls(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan polls: %w", err)
	}
	return polls, nil
}

// ListResolvedBefore returns resolved polls whose resolution is older than
// the cutoff.
func (s *PollStore) ListResolvedBefore(ctx context.Context, cutoff time.Time) ([]domain.Poll, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pollSelectCols+` FROM polls
		 WHERE status = 'resolved' AND resolved_at < $1
		 ORDER BY resolved_at ASC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("postgres: list resolved polls: %w", err)
	}
	defer rows.Close()

	polls, err := scanPolls(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan resolved polls: %w", err)
	}
	return polls, nil
}

// MarkResolved records the resolution facts. The status guard in the WHERE
// clause makes the transition single-shot even across replicas.
func (s *PollStore) MarkResolved(ctx context.Context, id uuid.UUID, correctOption int, resolvedAt time.Time, pool uint64) error {
	const query = `
		UPDATE polls SET
			status             = 'resolved',
			correct_option     = $2,
			resolved_at        = $3,
			pool_at_resolution = $4,
			updated_at         = NOW()
		WHERE id = $1 AND status = 'open'`

	tag, err := s.pool.Exec(ctx, query, id.String(), correctOption, resolvedAt, int64(pool))
	if err != nil {
		return fmt.Errorf("postgres: resolve poll %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return domain.ErrAlreadyResolved
	}
	return nil
}

// MarkFeeClaimed sets the creator-fee-claimed flag exactly once.
func (s *PollStore) MarkFeeClaimed(ctx context.Context, id uuid.UUID) error {
	const query = `
		UPDATE polls SET
			creator_fee_claimed = TRUE,
			updated_at          = NOW()
		WHERE id = $1 AND creator_fee_claimed = FALSE`

	tag, err := s.pool.Exec(ctx, query, id.String())
	if err != nil {
		return fmt.Errorf("postgres: mark fee claimed %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return domain.ErrAlreadyClaimed
	}
	return nil
}

// MarkClosed moves a resolved poll to closed.
func (s *PollStore) MarkClosed(ctx context.Context, id uuid.UUID) error {
	const query = `
		UPDATE polls SET
			status     = 'closed',
			updated_at = NOW()
		WHERE id = $1 AND status = 'resolved'`

	tag, err := s.pool.Exec(ctx, query, id.String())
	if err != nil {
		return fmt.Errorf("postgres: close poll %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return domain.ErrPollNotResolved
	}
	return nil
}

// Compile-time interface check.
var _ domain.PollStore = (*PollStore)(nil)
