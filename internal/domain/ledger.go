package domain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Ledger is the external fungible-token account service. The engine never
// mints or burns; it only moves amounts in and out of accounts it is told
// about.
//
// Ordering contract: the engine debits before recording a stake and credits
// before flagging a claim, so a ledger failure can never leave funds recorded
// as moved when they were not.
type Ledger interface {
	// Debit removes amount from the account's balance. It returns
	// ErrInsufficientBalance when the account cannot cover the amount.
	Debit(ctx context.Context, account common.Address, amount uint64) error

	// Credit adds amount to the account's balance.
	Credit(ctx context.Context, account common.Address, amount uint64) error
}
