// Package events implements the notification surface of the incentive layer:
// an ordered record of every state transition, deposit movement and
// settlement, delivered to in-process readers and durable sinks.
package events

import (
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/oasisprotocol/oasis-core/go/common/quantity"
)

// Kind identifies what an event reports.
type Kind string

const (
	DepositMade        Kind = "DepositMade"
	DepositWithdrawn   Kind = "DepositWithdrawn"
	DepositBonded      Kind = "DepositBonded"
	DepositUnbonded    Kind = "DepositUnbonded"
	TaskCreated        Kind = "TaskCreated"
	SolverSelected     Kind = "SolverSelected"
	SolutionsCommitted Kind = "SolutionsCommitted"
	ChallengeCommitted Kind = "ChallengeCommitted"
	TaskStateChange    Kind = "TaskStateChange"
	IntentRevealed     Kind = "IntentRevealed"
	SolutionRevealed   Kind = "SolutionRevealed"
	VerdictReached     Kind = "VerdictReached"
	TaskFinalized      Kind = "TaskFinalized"
	BondForfeited      Kind = "BondForfeited"
	RewardPaid         Kind = "RewardPaid"
)

// Event is a single entry of the event log.
type Event struct {
	// Seq is the position in the log. Sequence numbers are assigned at
	// commit time, start at 1 and never repeat.
	Seq    uint64 `json:"seq"`
	Height uint64 `json:"height"`
	Kind   Kind   `json:"kind"`

	// TaskID is meaningless for account-only events (deposits and withdrawals).
	TaskID uint64             `json:"task_id"`
	Actor  ethCommon.Address  `json:"actor"`
	Amount *quantity.Quantity `json:"amount,omitempty"`

	// NewState is the name of the task state entered, for transitions.
	NewState string `json:"new_state,omitempty"`
	// Detail carries kind-specific data, e.g. a commitment hash or revealed value.
	Detail string `json:"detail,omitempty"`
}

// Log receives committed events in sequence order.
type Log interface {
	Append(events []Event)
}
