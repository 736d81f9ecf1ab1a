package incentive

import (
	"errors"

	"github.com/verilayer/verilayer/commitment"
	"github.com/verilayer/verilayer/deposit"
)

var (
	// ErrInvalidStateTransition is returned for actions that are not legal in the current task state.
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrNotAuthorized is returned when the caller does not hold the role an action requires.
	ErrNotAuthorized = errors.New("not authorized")
	// ErrAlreadyFinalized is returned when finalizing a task that is already settled.
	ErrAlreadyFinalized = errors.New("task already finalized")
	// ErrDeadlineNotReached is returned when a deadline-gated action is attempted early.
	ErrDeadlineNotReached = errors.New("deadline not reached")
	// ErrTaskNotFound is returned for unknown task ids.
	ErrTaskNotFound = errors.New("task not found")
	// ErrInvalidIntent is returned when a verifier reveals an intent other than 0 or 1.
	ErrInvalidIntent = errors.New("invalid intent")
	// ErrInvalidTimeout is returned when creating a task with a zero or overflowing timeout.
	ErrInvalidTimeout = errors.New("invalid timeout")
)

// Errors of the ledger and the commitment scheme surface unchanged from
// incentive operations.
var (
	ErrInsufficientBalance = deposit.ErrInsufficientBalance
	ErrNoBondToRelease     = deposit.ErrNoBondToRelease
	ErrTaskNotTerminal     = deposit.ErrTaskNotTerminal
	ErrInvalidAmount       = deposit.ErrInvalidAmount

	ErrCommitmentMismatch = commitment.ErrCommitmentMismatch
	ErrAlreadyRevealed    = commitment.ErrAlreadyRevealed
	ErrNoSuchCommitment   = commitment.ErrNoSuchCommitment
	ErrAlreadyCommitted   = commitment.ErrAlreadyCommitted
)
