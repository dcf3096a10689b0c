package engine

import (
	"math/big"

	"github.com/stark3693/stakepoll/internal/domain"
)

// Payout arithmetic over the pool snapshotted at resolution time. All
// divisions floor; rounding dust stays in the pool and is never invented or
// redistributed. Intermediate products go through big.Int so pool * feeBps
// and distributable * amount cannot overflow uint64.

// CreatorFee returns the fee owed to the creator out of a pool of the given
// size, in whole token units.
func CreatorFee(pool uint64, feeBps int) uint64 {
	if feeBps <= 0 || pool == 0 {
		return 0
	}
	fee := new(big.Int).SetUint64(pool)
	fee.Mul(fee, big.NewInt(int64(feeBps)))
	fee.Div(fee, big.NewInt(domain.FeeDenominatorBps))
	return fee.Uint64()
}

// Distributable returns the pool remaining for winners after the creator fee.
func Distributable(pool uint64, feeBps int) uint64 {
	return pool - CreatorFee(pool, feeBps)
}

// Reward returns the payout for a winning position of the given amount.
// winningPool is the total staked on the correct option. A zero winning pool
// yields zero: with no claimants the distributable amount stays locked.
func Reward(pool uint64, feeBps int, winningPool, amount uint64) uint64 {
	if winningPool == 0 || amount == 0 {
		return 0
	}
	r := new(big.Int).SetUint64(Distributable(pool, feeBps))
	r.Mul(r, new(big.Int).SetUint64(amount))
	r.Div(r, new(big.Int).SetUint64(winningPool))
	return r.Uint64()
}
