package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// Validation errors. Rejected before any state mutation; the caller can
	// retry with corrected input.
	ErrInvalidOptionCount = errors.New("option count out of range")
	ErrDeadlineInPast     = errors.New("deadline must be in the future")
	ErrFeeAboveCap        = errors.New("creator fee above cap")
	ErrInvalidOption      = errors.New("invalid option index")
	ErrZeroAmount         = errors.New("amount must be positive")
	ErrAmountTooLarge     = errors.New("amount exceeds maximum stake")
	ErrStakingDisabled    = errors.New("staking disabled for poll")
	ErrWrongOption        = errors.New("position is not on the winning option")
	ErrZeroFeePoll        = errors.New("poll has no creator fee configured")

	// Access-control errors. The caller must use the correct identity.
	ErrNotCreator         = errors.New("caller is not the poll creator")
	ErrCreatorCannotStake = errors.New("creator cannot stake on own poll")
	ErrNotPositionOwner   = errors.New("caller does not own this position")
	ErrUseCreatorClaim    = errors.New("creator must use the fee claim path")

	// Timing errors. Recoverable by waiting, except where a window has
	// permanently passed.
	ErrPollStillActive = errors.New("poll deadline has not passed")
	ErrPastDeadline    = errors.New("poll deadline has passed")
	ErrClaimTooEarly   = errors.New("claim delay has not elapsed")

	// State errors. Idempotency violations; never silently absorbed.
	ErrPollNotOpen     = errors.New("poll is not open")
	ErrPollNotResolved = errors.New("poll is not resolved")
	ErrPollClosed      = errors.New("poll is closed")
	ErrAlreadyResolved = errors.New("poll already resolved")
	ErrAlreadyClaimed  = errors.New("already claimed")

	// External-ledger errors, propagated verbatim from the account ledger.
	ErrInsufficientBalance = errors.New("insufficient balance")

	ErrLockHeld = errors.New("lock already held")
)

// ErrorKind classifies engine errors into the broad categories the transport
// layer cares about.
type ErrorKind string

const (
	KindValidation     ErrorKind = "validation"
	KindAccessControl  ErrorKind = "access_control"
	KindTiming         ErrorKind = "timing"
	KindState          ErrorKind = "state"
	KindExternalLedger ErrorKind = "external_ledger"
	KindNotFound       ErrorKind = "not_found"
	KindInternal       ErrorKind = "internal"
)

// Kind maps an error to its ErrorKind. Unrecognized errors are KindInternal.
func Kind(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrInvalidOptionCount),
		errors.Is(err, ErrDeadlineInPast),
		errors.Is(err, ErrFeeAboveCap),
		errors.Is(err, ErrInvalidOption),
		errors.Is(err, ErrZeroAmount),
		errors.Is(err, ErrAmountTooLarge),
		errors.Is(err, ErrStakingDisabled),
		errors.Is(err, ErrWrongOption),
		errors.Is(err, ErrZeroFeePoll):
		return KindValidation

	case errors.Is(err, ErrNotCreator),
		errors.Is(err, ErrCreatorCannotStake),
		errors.Is(err, ErrNotPositionOwner),
		errors.Is(err, ErrUseCreatorClaim):
		return KindAccessControl

	case errors.Is(err, ErrPollStillActive),
		errors.Is(err, ErrPastDeadline),
		errors.Is(err, ErrClaimTooEarly):
		return KindTiming

	case errors.Is(err, ErrPollNotOpen),
		errors.Is(err, ErrPollNotResolved),
		errors.Is(err, ErrPollClosed),
		errors.Is(err, ErrAlreadyResolved),
		errors.Is(err, ErrAlreadyClaimed),
		errors.Is(err, ErrAlreadyExists),
		errors.Is(err, ErrLockHeld):
		return KindState

	case errors.Is(err, ErrInsufficientBalance):
		return KindExternalLedger

	case errors.Is(err, ErrNotFound):
		return KindNotFound

	default:
		return KindInternal
	}
}
