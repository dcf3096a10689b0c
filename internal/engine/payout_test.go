package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCreatorFee(t *testing.T) {
	tests := []struct {
		name   string
		pool   uint64
		feeBps int
		want   uint64
	}{
		{"zero pool", 0, 500, 0},
		{"zero fee", 1000, 0, 0},
		{"negative fee treated as zero", 1000, -1, 0},
		{"five percent of 150 floors", 150, 500, 7},
		{"ten percent cap", 1000, 1000, 100},
		{"one bp of small pool floors to zero", 100, 1, 0},
		{"max pool does not overflow", math.MaxUint64, 1000, math.MaxUint64 / 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CreatorFee(tt.pool, tt.feeBps))
		})
	}
}

func TestReward(t *testing.T) {
	// Two stakers split a 100-unit pool 60/40 with no fee; payouts mirror the
	// stakes exactly.
	assert.Equal(t, uint64(60), Reward(100, 0, 100, 60))
	assert.Equal(t, uint64(40), Reward(100, 0, 100, 40))

	// 150-unit pool, 5% fee: fee 7, distributable 143. Winners staked 100
	// total, split 60/40.
	assert.Equal(t, uint64(7), CreatorFee(150, 500))
	assert.Equal(t, uint64(143), Distributable(150, 500))
	assert.Equal(t, uint64(85), Reward(150, 500, 100, 60)) // 143*60/100 floors
	assert.Equal(t, uint64(57), Reward(150, 500, 100, 40)) // 143*40/100 floors

	// No winning stake: the distributable amount has no claimants.
	assert.Equal(t, uint64(0), Reward(150, 500, 0, 60))
	assert.Equal(t, uint64(0), Reward(150, 500, 100, 0))

	// Sole winner takes the whole distributable pool, even at max size.
	assert.Equal(t, Distributable(math.MaxUint64, 250),
		Reward(math.MaxUint64, 250, math.MaxUint64, math.MaxUint64))
}

// TestPayoutConservation checks that fee plus all rewards never exceeds the
// pool: floor division may strand dust, but must never invent tokens.
func TestPayoutConservation(t *testing.T) {
	cases := []struct {
		pool    uint64
		feeBps  int
		amounts []uint64
	}{
		{150, 500, []uint64{60, 40}},
		{999, 1000, []uint64{1, 2, 3, 5, 8, 13}},
		{1_000_000_007, 333, []uint64{999_983, 17, 123_456_789}},
		{7, 999, []uint64{3, 3, 1}},
	}

	for _, c := range cases {
		var winning uint64
		for _, a := range c.amounts {
			winning += a
		}

		paid := CreatorFee(c.pool, c.feeBps)
		for _, a := range c.amounts {
			paid += Reward(c.pool, c.feeBps, winning, a)
		}

		assert.LessOrEqual(t, paid, c.pool,
			"pool=%d feeBps=%d paid out more than the pool", c.pool, c.feeBps)
	}
}
