package domain

import (
	"math"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// MaxStakeAmount bounds a single stake. Amounts travel through signed 64-bit
// columns in the SQL stores; anything above this flips sign there, turning a
// debit into a credit.
const MaxStakeAmount uint64 = math.MaxInt64

// StakePosition records the amount a single account has committed to a single
// option of a single poll. An account may hold positions on multiple options
// of the same poll; each (poll, account, option) triple is one position.
//
// Amount only ever grows (repeat stakes on the same option increment the
// existing position). Claimed is set exactly once when the position's reward
// is paid. A losing position simply never transitions to claimed; there is no
// forfeit state.
type StakePosition struct {
	ID      uuid.UUID
	PollID  uuid.UUID
	Account common.Address
	Option  int
	Amount  uint64

	Claimed   bool
	ClaimedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}
