package incentive

import (
	"context"
	"fmt"
	"strconv"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/oasisprotocol/oasis-core/go/common/quantity"

	"github.com/verilayer/verilayer/common"
	"github.com/verilayer/verilayer/events"
	"github.com/verilayer/verilayer/verification"
)

// FinalizeTask settles a task that cannot make progress on its own:
//   - a disputed task with a verdict, by the owner at once and by anyone
//     once the grace period after the deadline has passed;
//   - an open task nobody registered for, after its deadline;
//   - a task whose solver never committed a solution, after its deadline;
//   - a task whose solver never revealed its solution, one timeout after
//     the reveal window closed.
func (l *Layer) FinalizeTask(ctx context.Context, caller ethCommon.Address, taskID uint64) error {
	return l.update(ctx, "finalize_task", func(tx *txn) error {
		t, err := tx.task(taskID)
		if err != nil {
			return err
		}
		if t.Finality != Unresolved {
			return fmt.Errorf("task %d: %w", taskID, ErrAlreadyFinalized)
		}

		switch t.State {
		case Disputed:
			if t.Verdict == verification.VerdictNone {
				return fmt.Errorf("task %d awaits its verification game: %w", taskID, ErrInvalidStateTransition)
			}
			if open := addSat(t.Deadline(), l.opts.GraceBlocks); caller != t.Owner && tx.height < open {
				return fmt.Errorf("task %d may be finalized by anyone from height %d, now %d: %w", taskID, open, tx.height, ErrDeadlineNotReached)
			}
			if t.Verdict == verification.SolverCorrect {
				return tx.settleSolverCorrect(t, caller)
			}
			return tx.settleSolverIncorrect(t, caller, t.Verdict.String())
		case Open, SolverSelected:
			if tx.height < t.Deadline() {
				return fmt.Errorf("task %d may be finalized from height %d, now %d: %w", taskID, t.Deadline(), tx.height, ErrDeadlineNotReached)
			}
			return tx.settleAbandoned(t, caller)
		case IntentRevealOpen:
			if last := addSat(t.Deadline(), t.Timeout); tx.height < last {
				return fmt.Errorf("solver of task %d may reveal until height %d, now %d: %w", taskID, last, tx.height, ErrDeadlineNotReached)
			}
			return tx.settleSolverIncorrect(t, caller, "solver_defaulted")
		default:
			return fmt.Errorf("finalize task %d in state %s: %w", taskID, t.State, ErrInvalidStateTransition)
		}
	})
}

// settlement accumulates the payout table of a task in a stable order.
type settlement struct {
	t       *Task
	tx      *txn
	order   []ethCommon.Address
	amounts map[ethCommon.Address]quantity.Quantity
}

func newSettlement(tx *txn, t *Task) *settlement {
	return &settlement{
		t:       t,
		tx:      tx,
		amounts: map[ethCommon.Address]quantity.Quantity{},
	}
}

func (s *settlement) add(addr ethCommon.Address, amount quantity.Quantity) {
	if _, ok := s.amounts[addr]; !ok {
		s.order = append(s.order, addr)
	}
	s.amounts[addr] = common.Plus(s.amounts[addr], amount)
}

// returnBond pays a party its own bond back.
func (s *settlement) returnBond(addr ethCommon.Address) {
	s.add(addr, s.t.MinDeposit)
}

// forfeit hands the bond of loser to beneficiary.
func (s *settlement) forfeit(loser, beneficiary ethCommon.Address) {
	s.add(loser, quantity.Quantity{})
	s.add(beneficiary, s.t.MinDeposit)
	s.tx.emit(events.Event{Kind: events.BondForfeited, TaskID: s.t.ID, Actor: loser, Amount: amountRef(s.t.MinDeposit), Detail: beneficiary.Hex()})
}

// payReward credits the escrowed reward to addr.
func (s *settlement) payReward(addr ethCommon.Address) error {
	if err := s.tx.ledger.Credit(addr, s.t.Reward); err != nil {
		return err
	}
	s.t.RewardPaidTo = addr
	s.tx.emit(events.Event{Kind: events.RewardPaid, TaskID: s.t.ID, Actor: addr, Amount: amountRef(s.t.Reward)})
	return nil
}

// finish stores the payout table, seals the task with finality f and emits TaskFinalized.
func (s *settlement) finish(caller ethCommon.Address, f Finality, resolution string) error {
	s.t.Settlement = make([]Payout, 0, len(s.order))
	for _, addr := range s.order {
		s.t.Settlement = append(s.t.Settlement, Payout{Account: addr, Amount: s.amounts[addr]})
	}
	s.t.Finality = f
	s.tx.transition(s.t, Finalized)
	s.tx.finalized = append(s.tx.finalized, resolution)
	s.tx.emit(events.Event{
		Kind:     events.TaskFinalized,
		TaskID:   s.t.ID,
		Actor:    caller,
		NewState: Finalized.String(),
		Detail:   strconv.Itoa(int(f)) + ":" + resolution,
	})
	return nil
}

// settleNoDispute is the fast path taken when every verifier accepted the
// result or nobody challenged it. Verifiers that never revealed their
// intent forfeit their bond to the solver.
func (tx *txn) settleNoDispute(t *Task, caller ethCommon.Address) error {
	s := newSettlement(tx, t)
	if err := s.payReward(t.Solver); err != nil {
		return err
	}
	s.returnBond(t.Owner)
	s.returnBond(t.Solver)
	for _, v := range t.Verifiers {
		if v.Intent.Revealed {
			s.returnBond(v.Address)
		} else {
			s.forfeit(v.Address, t.Solver)
		}
	}
	return s.finish(caller, ResolvedNoDispute, "no_dispute")
}

// settleSolverCorrect pays the solver the reward and the bonds of every
// verifier that disputed the result or never revealed its intent.
func (tx *txn) settleSolverCorrect(t *Task, caller ethCommon.Address) error {
	s := newSettlement(tx, t)
	if err := s.payReward(t.Solver); err != nil {
		return err
	}
	s.returnBond(t.Owner)
	s.returnBond(t.Solver)
	for _, v := range t.Verifiers {
		if v.Intent.Revealed && !v.Disputes() {
			s.returnBond(v.Address)
		} else {
			s.forfeit(v.Address, t.Solver)
		}
	}
	return s.finish(caller, ResolvedExplicitly, verification.SolverCorrect.String())
}

// settleSolverIncorrect refunds the reward to the owner and splits the
// solver's bond evenly among the disputing verifiers, the remainder going
// to the earliest one. Without disputants the owner receives the solver's
// bond. Verifiers that never revealed forfeit their bond to the solver, as
// on every other path.
func (tx *txn) settleSolverIncorrect(t *Task, caller ethCommon.Address, resolution string) error {
	s := newSettlement(tx, t)
	if err := s.payReward(t.Owner); err != nil {
		return err
	}
	s.returnBond(t.Owner)
	s.add(t.Solver, quantity.Quantity{})

	disputants := t.Disputants()
	if len(disputants) == 0 {
		s.forfeit(t.Solver, t.Owner)
	} else {
		shares := common.SplitEvenly(t.MinDeposit, len(disputants))
		for i, d := range disputants {
			s.add(d, shares[i])
		}
		tx.emit(events.Event{Kind: events.BondForfeited, TaskID: t.ID, Actor: t.Solver, Amount: amountRef(t.MinDeposit), Detail: "disputants"})
	}

	for _, v := range t.Verifiers {
		if v.Intent.Revealed {
			s.returnBond(v.Address)
		} else {
			s.forfeit(v.Address, t.Solver)
		}
	}
	return s.finish(caller, ResolvedExplicitly, resolution)
}

// settleAbandoned unwinds a task that never got a solution: the reward is
// refunded and the owner receives its bond back, plus the bond of a solver
// that registered but never committed.
func (tx *txn) settleAbandoned(t *Task, caller ethCommon.Address) error {
	s := newSettlement(tx, t)
	if err := s.payReward(t.Owner); err != nil {
		return err
	}
	s.returnBond(t.Owner)
	resolution := "no_solver"
	if t.HasSolver {
		s.forfeit(t.Solver, t.Owner)
		resolution = "solver_absent"
	}
	return s.finish(caller, ResolvedExplicitly, resolution)
}
