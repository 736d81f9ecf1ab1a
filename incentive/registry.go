package incentive

import (
	"context"
	"fmt"
	"strconv"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/oasisprotocol/oasis-core/go/common/quantity"

	"github.com/verilayer/verilayer/commitment"
	"github.com/verilayer/verilayer/events"
)

func amountRef(q quantity.Quantity) *quantity.Quantity {
	return q.Clone()
}

// Deposit moves amount from the caller's substrate wallet into custody and
// credits it to the caller's free balance.
func (l *Layer) Deposit(ctx context.Context, caller ethCommon.Address, amount quantity.Quantity) error {
	return l.update(ctx, "deposit", func(tx *txn) error {
		if err := tx.ledger.Deposit(caller, amount); err != nil {
			return err
		}
		if err := tx.transferValue(caller, l.opts.Custody, amount); err != nil {
			return fmt.Errorf("deposit: %w", err)
		}
		tx.emit(events.Event{Kind: events.DepositMade, Actor: caller, Amount: amountRef(amount)})
		return nil
	})
}

// Withdraw pays amount of the caller's free balance back to its substrate wallet.
func (l *Layer) Withdraw(ctx context.Context, caller ethCommon.Address, amount quantity.Quantity) error {
	return l.update(ctx, "withdraw", func(tx *txn) error {
		if err := tx.ledger.Withdraw(caller, amount); err != nil {
			return err
		}
		if err := tx.transferValue(l.opts.Custody, caller, amount); err != nil {
			return fmt.Errorf("withdraw: %w", err)
		}
		tx.emit(events.Event{Kind: events.DepositWithdrawn, Actor: caller, Amount: amountRef(amount)})
		return nil
	})
}

// CreateTask opens a new task owned by the caller. The reward is escrowed
// from the caller's substrate wallet and minDeposit is bonded from its free
// balance. Returns the id of the new task.
func (l *Layer) CreateTask(ctx context.Context, caller ethCommon.Address, minDeposit, reward quantity.Quantity, taskData ethCommon.Hash, timeout uint64) (uint64, error) {
	var id uint64
	err := l.update(ctx, "create_task", func(tx *txn) error {
		switch {
		case timeout == 0:
			return fmt.Errorf("%w: timeout must be at least one block", ErrInvalidTimeout)
		case !sumFits(tx.height, timeout, timeout, l.opts.GraceBlocks):
			// Phase gates lie up to two timeouts plus the grace period ahead.
			return fmt.Errorf("%w: timeout %d overflows the block height", ErrInvalidTimeout, timeout)
		}
		var err error
		if id, err = tx.allocTaskID(); err != nil {
			return err
		}
		if err = tx.transferValue(caller, l.opts.Custody, reward); err != nil {
			return fmt.Errorf("escrow reward: %w", err)
		}
		if err = tx.ledger.Bond(caller, id, minDeposit); err != nil {
			return err
		}

		t := &Task{
			ID:         id,
			Owner:      caller,
			MinDeposit: *minDeposit.Clone(),
			Reward:     *reward.Clone(),
			TaskData:   taskData,
			Timeout:    timeout,
		}
		tx.transition(t, Open)
		tx.emit(events.Event{Kind: events.DepositBonded, TaskID: id, Actor: caller, Amount: amountRef(minDeposit)})
		tx.emit(events.Event{Kind: events.TaskCreated, TaskID: id, Actor: caller, Amount: amountRef(reward), NewState: Open.String(), Detail: taskData.Hex()})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// RegisterForTask makes the caller the solver of an open task. The first
// caller wins; the solver bonds minDeposit and commits to its random bits.
func (l *Layer) RegisterForTask(ctx context.Context, caller ethCommon.Address, taskID uint64, randomBitsHash ethCommon.Hash) error {
	return l.update(ctx, "register_for_task", func(tx *txn) error {
		t, err := tx.task(taskID)
		if err != nil {
			return err
		}
		if t.State != Open {
			return fmt.Errorf("register for task %d in state %s: %w", taskID, t.State, ErrInvalidStateTransition)
		}
		if caller == t.Owner {
			return fmt.Errorf("task owner may not solve its own task: %w", ErrNotAuthorized)
		}
		if err = tx.ledger.Bond(caller, taskID, t.MinDeposit); err != nil {
			return err
		}
		if err = t.RandomBits.Commit(randomBitsHash); err != nil {
			return err
		}
		t.Solver = caller
		t.HasSolver = true
		tx.transition(t, SolverSelected)
		tx.emit(events.Event{Kind: events.DepositBonded, TaskID: taskID, Actor: caller, Amount: amountRef(t.MinDeposit)})
		tx.emit(events.Event{Kind: events.SolverSelected, TaskID: taskID, Actor: caller, Amount: amountRef(t.MinDeposit), NewState: SolverSelected.String(), Detail: randomBitsHash.Hex()})
		return nil
	})
}

// CommitSolution stores the selected solver's commitments to its result and blinding value.
func (l *Layer) CommitSolution(ctx context.Context, caller ethCommon.Address, taskID uint64, resultHash, blindingHash ethCommon.Hash) error {
	return l.update(ctx, "commit_solution", func(tx *txn) error {
		t, err := tx.task(taskID)
		if err != nil {
			return err
		}
		if t.State != SolverSelected {
			return fmt.Errorf("commit solution for task %d in state %s: %w", taskID, t.State, ErrInvalidStateTransition)
		}
		if !t.IsSolver(caller) {
			return fmt.Errorf("only the selected solver may commit a solution: %w", ErrNotAuthorized)
		}
		if err = t.Solution.Result.Commit(resultHash); err != nil {
			return err
		}
		if err = t.Solution.Blinding.Commit(blindingHash); err != nil {
			return err
		}
		tx.transition(t, SolutionCommitted)
		tx.emit(events.Event{Kind: events.SolutionsCommitted, TaskID: taskID, Actor: caller, Amount: amountRef(t.MinDeposit), NewState: SolutionCommitted.String(), Detail: resultHash.Hex()})
		return nil
	})
}

// legalTargets lists the transitions ChangeTaskState may perform.
var legalTargets = map[State]State{
	SolutionCommitted:   ChallengeWindowOpen,
	ChallengeWindowOpen: IntentRevealOpen,
}

// ChangeTaskState advances the task into the challenge window or the intent
// reveal window. Anyone may call it once the deadline of the current phase
// is reached.
func (l *Layer) ChangeTaskState(ctx context.Context, caller ethCommon.Address, taskID uint64, target State) error {
	return l.update(ctx, "change_task_state", func(tx *txn) error {
		t, err := tx.task(taskID)
		if err != nil {
			return err
		}
		if next, ok := legalTargets[t.State]; !ok || next != target {
			return fmt.Errorf("change task %d from %s to %s: %w", taskID, t.State, target, ErrInvalidStateTransition)
		}
		if tx.height < t.Deadline() {
			return fmt.Errorf("task %d may leave %s at height %d, now %d: %w", taskID, t.State, t.Deadline(), tx.height, ErrDeadlineNotReached)
		}
		tx.transition(t, target)
		tx.emit(events.Event{Kind: events.TaskStateChange, TaskID: taskID, Actor: caller, NewState: target.String()})
		return nil
	})
}

// CommitChallenge registers the caller as a verifier of the solution. The
// verifier bonds minDeposit and commits to its intent. Challenges are
// accepted from the moment the solution is committed until the intent
// reveal window opens.
func (l *Layer) CommitChallenge(ctx context.Context, caller ethCommon.Address, taskID uint64, intentHash ethCommon.Hash) error {
	return l.update(ctx, "commit_challenge", func(tx *txn) error {
		t, err := tx.task(taskID)
		if err != nil {
			return err
		}
		if t.State != SolutionCommitted && t.State != ChallengeWindowOpen {
			return fmt.Errorf("challenge task %d in state %s: %w", taskID, t.State, ErrInvalidStateTransition)
		}
		switch {
		case t.IsSolver(caller):
			return fmt.Errorf("the solver may not challenge its own solution: %w", ErrNotAuthorized)
		case caller == t.Owner:
			return fmt.Errorf("task owner may not verify its own task: %w", ErrNotAuthorized)
		case t.Verifier(caller) != nil:
			return fmt.Errorf("%s already challenged task %d: %w", caller.Hex(), taskID, ErrInvalidStateTransition)
		}
		if err = tx.ledger.Bond(caller, taskID, t.MinDeposit); err != nil {
			return err
		}
		v := Verifier{Address: caller}
		if err = v.Intent.Commit(intentHash); err != nil {
			return err
		}
		t.Verifiers = append(t.Verifiers, v)
		tx.putTask(t)
		tx.emit(events.Event{Kind: events.DepositBonded, TaskID: taskID, Actor: caller, Amount: amountRef(t.MinDeposit)})
		tx.emit(events.Event{Kind: events.ChallengeCommitted, TaskID: taskID, Actor: caller, Detail: intentHash.Hex()})
		return nil
	})
}

// RevealIntent opens a verifier's intent commitment: 0 accepts the result,
// 1 disputes it. A verifier may reveal once the challenge window is open and
// until the solver reveals its solution.
func (l *Layer) RevealIntent(ctx context.Context, caller ethCommon.Address, taskID uint64, intent uint64) error {
	return l.update(ctx, "reveal_intent", func(tx *txn) error {
		t, err := tx.task(taskID)
		if err != nil {
			return err
		}
		if t.State != ChallengeWindowOpen && t.State != IntentRevealOpen {
			return fmt.Errorf("reveal intent for task %d in state %s: %w", taskID, t.State, ErrInvalidStateTransition)
		}
		v := t.Verifier(caller)
		if v == nil {
			return fmt.Errorf("%s did not challenge task %d: %w", caller.Hex(), taskID, ErrNotAuthorized)
		}
		if intent != commitment.IntentAccept && intent != commitment.IntentDispute {
			return fmt.Errorf("intent %d: %w", intent, ErrInvalidIntent)
		}
		if err = v.Intent.Reveal(intent, commitment.HashIntent); err != nil {
			return fmt.Errorf("reveal intent for task %d: %w", taskID, err)
		}
		tx.putTask(t)
		tx.emit(events.Event{Kind: events.IntentRevealed, TaskID: taskID, Actor: caller, Detail: strconv.FormatUint(intent, 10)})
		return nil
	})
}

// RevealSolution opens the solver's commitments once the intent reveal
// window has closed, or earlier if every verifier has already revealed. The
// blinding value must also open the random-bits commitment made at
// registration. If no verifier disputes the result the task settles
// immediately; otherwise it awaits a verification game.
func (l *Layer) RevealSolution(ctx context.Context, caller ethCommon.Address, taskID uint64, result, blinding commitment.Word) error {
	return l.update(ctx, "reveal_solution", func(tx *txn) error {
		t, err := tx.task(taskID)
		if err != nil {
			return err
		}
		if t.State != IntentRevealOpen {
			return fmt.Errorf("reveal solution for task %d in state %s: %w", taskID, t.State, ErrInvalidStateTransition)
		}
		if !t.IsSolver(caller) {
			return fmt.Errorf("only the selected solver may reveal the solution: %w", ErrNotAuthorized)
		}
		if tx.height < t.Deadline() && !t.IntentsRevealed() {
			return fmt.Errorf("intents of task %d may be revealed until height %d, now %d: %w", taskID, t.Deadline(), tx.height, ErrDeadlineNotReached)
		}
		if err = t.openSolution(result, blinding); err != nil {
			return fmt.Errorf("reveal solution for task %d: %w", taskID, err)
		}
		tx.putTask(t)
		tx.emit(events.Event{Kind: events.SolutionRevealed, TaskID: taskID, Actor: caller, Detail: result.Hex()})

		if len(t.Disputants()) > 0 {
			tx.transition(t, Disputed)
			tx.emit(events.Event{Kind: events.TaskStateChange, TaskID: taskID, Actor: caller, NewState: Disputed.String()})
			return nil
		}
		return tx.settleNoDispute(t, caller)
	})
}

// UnbondDeposit releases the caller's bond on a settled task.
func (l *Layer) UnbondDeposit(ctx context.Context, caller ethCommon.Address, taskID uint64) (quantity.Quantity, error) {
	var released quantity.Quantity
	err := l.update(ctx, "unbond_deposit", func(tx *txn) error {
		if _, err := tx.task(taskID); err != nil {
			return err
		}
		var err error
		if released, err = tx.ledger.Unbond(caller, taskID); err != nil {
			return err
		}
		tx.emit(events.Event{Kind: events.DepositUnbonded, TaskID: taskID, Actor: caller, Amount: amountRef(released)})
		return nil
	})
	if err != nil {
		return quantity.Quantity{}, err
	}
	return released, nil
}
