package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stark3693/stakepoll/internal/domain"
)

// BalanceStore implements domain.Ledger on the platform's token balance
// table. From the engine's perspective this is the external account ledger;
// the engine never creates accounts or mints.
type BalanceStore struct {
	pool *pgxpool.Pool
}

// NewBalanceStore creates a new BalanceStore backed by the given connection
// pool.
func NewBalanceStore(pool *pgxpool.Pool) *BalanceStore {
	return &BalanceStore{pool: pool}
}

// Debit removes amount from the account's balance. The balance guard in the
// WHERE clause makes the check-and-debit atomic; an unaffected row means the
// account is missing or cannot cover the amount, both reported as
// ErrInsufficientBalance.
func (s *BalanceStore) Debit(ctx context.Context, account common.Address, amount uint64) error {
	const query = `
		UPDATE balances SET
			balance    = balance - $2,
			updated_at = NOW()
		WHERE account = $1 AND balance >= $2`

	tag, err := s.pool.Exec(ctx, query, account.Hex(), int64(amount))
	if err != nil {
		return fmt.Errorf("postgres: debit %s: %w", account.Hex(), err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInsufficientBalance
	}
	return nil
}

// Credit adds amount to the account's balance, creating the row if the
// account has never held a balance before.
func (s *BalanceStore) Credit(ctx context.Context, account common.Address, amount uint64) error {
	const query = `
		INSERT INTO balances (account, balance, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (account) DO UPDATE SET
			balance    = balances.balance + EXCLUDED.balance,
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query, account.Hex(), int64(amount))
	if err != nil {
		return fmt.Errorf("postgres: credit %s: %w", account.Hex(), err)
	}
	return nil
}

// Balance returns the account's current balance. Missing accounts read as
// zero.
func (s *BalanceStore) Balance(ctx context.Context, account common.Address) (uint64, error) {
	var balance int64
	err := s.pool.QueryRow(ctx,
		`SELECT balance FROM balances WHERE account = $1`, account.Hex(),
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("postgres: balance %s: %w", account.Hex(), err)
	}
	return uint64(balance), nil
}

// Compile-time interface check.
var _ domain.Ledger = (*BalanceStore)(nil)
