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

// StakeStore implements domain.StakeStore using PostgreSQL. The unique
// (poll_id, account, option) constraint backs the increment-on-repeat-stake
// upsert.
type StakeStore struct {
	pool *pgxpool.Pool
}

// NewStakeStore creates a new StakeStore backed by the given connection pool.
func NewStakeStore(pool *pgxpool.Pool) *StakeStore {
	return &StakeStore{pool: pool}
}

const positionSelectCols = `id, poll_id, account, option, amount,
	claimed, claimed_at, created_at, updated_at`

func scanPosition(row pgx.Row) (domain.StakePosition, error) {
	var p domain.StakePosition
	var id, pollID, account string
	var amount int64

	err := row.Scan(
		&id, &pollID, &account, &p.Option, &amount,
		&p.Claimed, &p.ClaimedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return domain.StakePosition{}, err
	}

	p.ID, err = uuid.Parse(id)
	if err != nil {
		return domain.StakePosition{}, fmt.Errorf("parse position id %q: %w", id, err)
	}
	p.PollID, err = uuid.Parse(pollID)
	if err != nil {
		return domain.StakePosition{}, fmt.Errorf("parse poll id %q: %w", pollID, err)
	}
	p.Account = common.HexToAddress(account)
	p.Amount = uint64(amount)
	return p, nil
}

func scanPositions(rows pgx.Rows) ([]domain.StakePosition, error) {
	var positions []domain.StakePosition
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// Record creates a position or increments the existing one for the same
// (poll, account, option), returning the stored row.
func (s *StakeStore) Record(ctx context.Context, pos domain.StakePosition) (domain.StakePosition, error) {
	const query = `
		INSERT INTO stake_positions (
			id, poll_id, account, option, amount, claimed, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, FALSE, $6, $6)
		ON CONFLICT (poll_id, account, option) DO UPDATE SET
			amount     = stake_positions.amount + EXCLUDED.amount,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + positionSelectCols

	row := s.pool.QueryRow(ctx, query,
		pos.ID.String(), pos.PollID.String(), pos.Account.Hex(),
		pos.Option, int64(pos.Amount), pos.UpdatedAt,
	)
	stored, err := scanPosition(row)
	if err != nil {
		return domain.StakePosition{}, fmt.Errorf("postgres: record stake: %w", err)
	}
	return stored, nil
}

// Position retrieves a single position by its ID.
func (s *StakeStore) Position(ctx context.Context, id uuid.UUID) (domain.StakePosition, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM stake_positions WHERE id = $1`, id.String())

	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.StakePosition{}, domain.ErrNotFound
		}
		return domain.StakePosition{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// PositionsFor returns all of an account's positions on a poll.
func (s *StakeStore) PositionsFor(ctx context.Context, pollID uuid.UUID, account common.Address) ([]domain.StakePosition, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM stake_positions
		 WHERE poll_id = $1 AND account = $2
		 ORDER BY option ASC`, pollID.String(), account.Hex())
	if err != nil {
		return nil, fmt.Errorf("postgres: positions for account: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan positions: %w", err)
	}
	return positions, nil
}

// PositionsForPoll returns every position on a poll.
func (s *StakeStore) PositionsForPoll(ctx context.Context, pollID uuid.UUID) ([]domain.StakePosition, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM stake_positions
		 WHERE poll_id = $1
		 ORDER BY created_at ASC`, pollID.String())
	if err != nil {
		return nil, fmt.Errorf("postgres: positions for poll: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan poll positions: %w", err)
	}
	return positions, nil
}

// TotalStaked returns the sum of all positions on a poll.
func (s *StakeStore) TotalStaked(ctx context.Context, pollID uuid.UUID) (uint64, error) {
	var total int64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM stake_positions WHERE poll_id = $1`,
		pollID.String(),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("postgres: total staked: %w", err)
	}
	return uint64(total), nil
}

// StakedOnOption returns the sum staked on one option of a poll.
func (s *StakeStore) StakedOnOption(ctx context.Context, pollID uuid.UUID, option int) (uint64, error) {
	var total int64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM stake_positions
		 WHERE poll_id = $1 AND option = $2`,
		pollID.String(), option,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("postgres: staked on option: %w", err)
	}
	return uint64(total), nil
}

// Tally returns per-option aggregates for a poll.
func (s *StakeStore) Tally(ctx context.Context, pollID uuid.UUID, optionCount int) (domain.Tally, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT option, COALESCE(SUM(amount), 0) FROM stake_positions
		 WHERE poll_id = $1 GROUP BY option`, pollID.String())
	if err != nil {
		return domain.Tally{}, fmt.Errorf("postgres: tally: %w", err)
	}
	defer rows.Close()

	t := domain.Tally{
		PollID:    pollID,
		PerOption: make([]uint64, optionCount),
	}
	for rows.Next() {
		var option int
		var sum int64
		if err := rows.Scan(&option, &sum); err != nil {
			return domain.Tally{}, fmt.Errorf("postgres: scan tally: %w", err)
		}
		if option >= 0 && option < optionCount {
			t.PerOption[option] = uint64(sum)
		}
		t.Total += uint64(sum)
	}
	return t, rows.Err()
}

// MarkClaimed sets a position's claimed flag exactly once. The claimed guard
// in the WHERE clause makes the transition single-shot even across replicas.
func (s *StakeStore) MarkClaimed(ctx context.Context, id uuid.UUID, at time.Time) error {
	const query = `
		UPDATE stake_positions SET
			claimed    = TRUE,
			claimed_at = $2,
			updated_at = NOW()
		WHERE id = $1 AND claimed = FALSE`

	tag, err := s.pool.Exec(ctx, query, id.String(), at)
	if err != nil {
		return fmt.Errorf("postgres: mark claimed %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.Position(ctx, id); err != nil {
			return err
		}
		return domain.ErrAlreadyClaimed
	}
	return nil
}

// Compile-time interface check.
var _ domain.StakeStore = (*StakeStore)(nil)
