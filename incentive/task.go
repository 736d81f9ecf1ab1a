package incentive

import (
	"fmt"
	"math"
	"math/bits"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/oasisprotocol/oasis-core/go/common/quantity"

	"github.com/verilayer/verilayer/commitment"
	"github.com/verilayer/verilayer/verification"
)

// State is the phase of a task. The numeric codes are stable.
type State uint8

const (
	Open State = iota
	SolverSelected
	SolutionCommitted
	ChallengeWindowOpen
	IntentRevealOpen
	Disputed
	Finalized
)

var stateNames = [...]string{
	Open:                "Open",
	SolverSelected:      "SolverSelected",
	SolutionCommitted:   "SolutionCommitted",
	ChallengeWindowOpen: "ChallengeWindowOpen",
	IntentRevealOpen:    "IntentRevealOpen",
	Disputed:            "Disputed",
	Finalized:           "Finalized",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// ParseState parses a state name as returned by State.String.
func ParseState(name string) (State, error) {
	for s, n := range stateNames {
		if n == name {
			return State(s), nil
		}
	}
	return 0, fmt.Errorf("unknown task state '%s'", name)
}

// Finality is the settlement status of a task. Once it leaves Unresolved it
// never changes again.
type Finality uint8

const (
	Unresolved Finality = iota
	// ResolvedExplicitly is set by FinalizeTask, after a verification game or on a stalled task.
	ResolvedExplicitly
	// ResolvedNoDispute is set by the fast path when no verifier disputed the result.
	ResolvedNoDispute
)

func (f Finality) String() string {
	switch f {
	case Unresolved:
		return "unresolved"
	case ResolvedExplicitly:
		return "resolved"
	case ResolvedNoDispute:
		return "resolved_no_dispute"
	default:
		return fmt.Sprintf("Finality(%d)", uint8(f))
	}
}

// Solution is the solver's two-part commitment.
type Solution struct {
	Result   commitment.Commitment[commitment.Word]
	Blinding commitment.Commitment[commitment.Word]
}

// Verifier is a party that challenged the solution.
type Verifier struct {
	Address ethCommon.Address
	Intent  commitment.Commitment[uint64]
}

// Disputes reports whether the verifier revealed the intent to dispute.
func (v *Verifier) Disputes() bool {
	return v.Intent.Revealed && v.Intent.Value == commitment.IntentDispute
}

// Payout is the amount released to an account when it unbonds from a settled task.
type Payout struct {
	Account ethCommon.Address
	Amount  quantity.Quantity
}

// Task is one instance of the task state machine.
type Task struct {
	ID         uint64
	Owner      ethCommon.Address
	MinDeposit quantity.Quantity
	Reward     quantity.Quantity
	TaskData   ethCommon.Hash
	// Timeout is the length of each phase in blocks.
	Timeout uint64

	State          State
	LastTransition uint64

	Solver     ethCommon.Address
	HasSolver  bool
	RandomBits commitment.Commitment[commitment.Word]
	Solution   Solution
	// Verifiers in the order they committed.
	Verifiers []Verifier

	Verdict    verification.Verdict
	Finality   Finality
	Settlement []Payout
	// RewardPaidTo is the account the reward was credited to at settlement.
	RewardPaidTo ethCommon.Address
}

// Deadline is the height from which the current phase may be left by anyone.
// A deadline beyond the last representable height is never reached.
func (t *Task) Deadline() uint64 {
	return addSat(t.LastTransition, t.Timeout)
}

// addSat returns a+b, or math.MaxUint64 if the sum overflows.
func addSat(a, b uint64) uint64 {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return sum
}

// sumFits reports whether the sum of vals fits in a uint64.
func sumFits(vals ...uint64) bool {
	var sum, carry uint64
	for _, v := range vals {
		if sum, carry = bits.Add64(sum, v, 0); carry != 0 {
			return false
		}
	}
	return true
}

// IsSolver reports whether addr is the selected solver.
func (t *Task) IsSolver(addr ethCommon.Address) bool {
	return t.HasSolver && t.Solver == addr
}

// Verifier returns the challenge entry of addr, or nil.
func (t *Task) Verifier(addr ethCommon.Address) *Verifier {
	for i := range t.Verifiers {
		if t.Verifiers[i].Address == addr {
			return &t.Verifiers[i]
		}
	}
	return nil
}

// Disputants returns the verifiers that revealed a dispute, in commit order.
func (t *Task) Disputants() []ethCommon.Address {
	var out []ethCommon.Address
	for i := range t.Verifiers {
		if t.Verifiers[i].Disputes() {
			out = append(out, t.Verifiers[i].Address)
		}
	}
	return out
}

// IntentsRevealed reports whether every verifier has revealed its intent.
func (t *Task) IntentsRevealed() bool {
	for i := range t.Verifiers {
		if !t.Verifiers[i].Intent.Revealed {
			return false
		}
	}
	return true
}

// openSolution opens the result, blinding and random-bits commitments with
// the revealed values. Every commitment is checked before any is opened, so
// on error none of them is marked revealed.
func (t *Task) openSolution(result, blinding commitment.Word) error {
	slots := []struct {
		c     *commitment.Commitment[commitment.Word]
		value commitment.Word
	}{
		{&t.Solution.Result, result},
		{&t.Solution.Blinding, blinding},
		{&t.RandomBits, blinding},
	}
	for _, s := range slots {
		if err := s.c.Check(s.value, commitment.HashWord); err != nil {
			return err
		}
	}
	for _, s := range slots {
		if err := s.c.Reveal(s.value, commitment.HashWord); err != nil {
			return err
		}
	}
	return nil
}

// PayoutOf returns the settlement amount of addr, zero if it has none.
func (t *Task) PayoutOf(addr ethCommon.Address) quantity.Quantity {
	for _, p := range t.Settlement {
		if p.Account == addr {
			return *p.Amount.Clone()
		}
	}
	return quantity.Quantity{}
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	c := *t
	c.MinDeposit = *t.MinDeposit.Clone()
	c.Reward = *t.Reward.Clone()
	c.Verifiers = append([]Verifier(nil), t.Verifiers...)
	c.Settlement = make([]Payout, len(t.Settlement))
	for i, p := range t.Settlement {
		c.Settlement[i] = Payout{Account: p.Account, Amount: *p.Amount.Clone()}
	}
	return &c
}
