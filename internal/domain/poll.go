// Package domain defines the core types, store interfaces, and error taxonomy
// for the prediction-poll staking engine.
package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// PollStatus represents the lifecycle state of a poll.
type PollStatus string

const (
	PollStatusOpen     PollStatus = "open"
	PollStatusResolved PollStatus = "resolved"
	PollStatusClosed   PollStatus = "closed"
)

// Poll option and fee bounds. The fee cap is a hard limit, not a clamp:
// creating a poll above MaxCreatorFeeBps fails.
const (
	MinOptionCount = 2
	MaxOptionCount = 10

	// MaxCreatorFeeBps caps the creator fee at 10% of the pool.
	MaxCreatorFeeBps = 1000

	// FeeDenominatorBps is the basis-point denominator for fee arithmetic.
	FeeDenominatorBps = 10000
)

// Default timing windows. Resolution must happen within the grace period
// after the deadline; no fee or reward claim is accepted until the claim
// delay after resolution has elapsed.
const (
	DefaultGracePeriod = 7 * 24 * time.Hour
	DefaultClaimDelay  = time.Hour
)

// Poll is a prediction question with N mutually exclusive options, a voting
// deadline, and an optional creator fee taken from the staked pool.
//
// A poll is created once, transitions Open -> Resolved exactly once, and
// Resolved -> Closed once the grace period has passed. Nothing is ever
// deleted; resolution fields are written exactly once.
type Poll struct {
	ID             uuid.UUID
	Creator        common.Address
	OptionCount    int
	Deadline       time.Time
	CreatorFeeBps  int
	StakingEnabled bool
	Status         PollStatus

	// Resolution record. CorrectOption and ResolvedAt are nil while the poll
	// is open. PoolAtResolution snapshots the total staked amount at the
	// moment of resolution so the payout base can never change afterwards.
	CorrectOption    *int
	ResolvedAt       *time.Time
	PoolAtResolution uint64

	CreatorFeeClaimed bool
	CreatedAt         time.Time
}

// Resolved reports whether the poll has a recorded correct option. This is
// true for both resolved and closed polls.
func (p Poll) Resolved() bool {
	return p.Status == PollStatusResolved || p.Status == PollStatusClosed
}

// Tally holds per-option staked aggregates for a single poll. PerOption is
// indexed by option number and always has the poll's OptionCount entries.
type Tally struct {
	PollID    uuid.UUID
	PerOption []uint64
	Total     uint64
}
