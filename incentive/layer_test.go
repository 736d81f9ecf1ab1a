package incentive

import (
	"context"
	"errors"
	"math"
	"os"
	"testing"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/oasisprotocol/oasis-core/go/common/quantity"
	"github.com/stretchr/testify/require"

	"github.com/verilayer/verilayer/commitment"
	"github.com/verilayer/verilayer/common"
	"github.com/verilayer/verilayer/events"
	"github.com/verilayer/verilayer/log"
	"github.com/verilayer/verilayer/storage/kvstore"
	"github.com/verilayer/verilayer/substrate/memchain"
	"github.com/verilayer/verilayer/verification"
)

const (
	minDeposit = 500
	reward     = 100
	timeout    = 5
	grace      = 10

	// Sentinel for a verifier that commits but never reveals its intent.
	noReveal = -1
)

var (
	custody  = ethCommon.HexToAddress("0xc0ffee")
	owner    = ethCommon.HexToAddress("0x0e")
	solver   = ethCommon.HexToAddress("0x50")
	verifier = ethCommon.HexToAddress("0x71")
	second   = ethCommon.HexToAddress("0x72")
	third    = ethCommon.HexToAddress("0x73")
	stranger = ethCommon.HexToAddress("0x99")

	result   = commitment.WordFromUint64(42)
	blinding = commitment.WordFromUint64(0x5eed)
	taskData = ethCommon.HexToHash("0x7a5c")
)

type harness struct {
	t     *testing.T
	ctx   context.Context
	store kvstore.KVStore
	chain *memchain.Chain
	log   *events.MemoryLog
	layer *Layer

	verdict verification.Verdict
	gameErr error
	played  []verification.Input
}

func newTestLogger(t *testing.T) *log.Logger {
	logger, err := log.NewLogger("incentive-test", os.Stdout, log.FmtJSON, log.LevelError)
	require.NoError(t, err)
	return logger
}

// newHarnessWithStore keeps both the layer and the substrate in store.
func newHarnessWithStore(t *testing.T, store kvstore.KVStore) *harness {
	chain, err := memchain.Open(store, newTestLogger(t))
	require.NoError(t, err)
	h := &harness{
		t:       t,
		ctx:     context.Background(),
		store:   store,
		chain:   chain,
		log:     events.NewMemoryLog(),
		verdict: verification.SolverCorrect,
	}
	game := verification.Func(func(ctx context.Context, in verification.Input) (verification.Verdict, error) {
		h.played = append(h.played, in)
		return h.verdict, h.gameErr
	})
	h.layer = NewLayer(store, h.chain, game, h.log, Options{Custody: custody, GraceBlocks: grace}, newTestLogger(t))
	return h
}

// newHarness funds every party with 1000 deposited into the layer, and the
// owner with enough wallet balance to pay one reward.
func newHarness(t *testing.T) *harness {
	h := newHarnessWithStore(t, kvstore.NewMemoryKVStore())
	h.fund(owner, reward)
	for _, addr := range []ethCommon.Address{owner, solver, verifier, second, third} {
		h.fund(addr, 1000)
		require.NoError(t, h.layer.Deposit(h.ctx, addr, common.Amount(1000)))
	}
	return h
}

func (h *harness) advance(n uint64) {
	h.t.Helper()
	_, err := h.chain.Advance(n)
	require.NoError(h.t, err)
}

func (h *harness) fund(addr ethCommon.Address, amount uint64) {
	h.t.Helper()
	require.NoError(h.t, h.chain.Fund(addr, common.Amount(amount)))
}

func (h *harness) requireFree(addr ethCommon.Address, want uint64) {
	h.t.Helper()
	free, err := h.layer.Balance(h.ctx, addr)
	require.NoError(h.t, err)
	require.True(h.t, common.Equal(common.Amount(want), free), "free balance of %s: want %d, got %s", addr.Hex(), want, free.String())
}

func (h *harness) requireFinality(taskID uint64, want Finality) {
	h.t.Helper()
	f, err := h.layer.TaskFinality(h.ctx, taskID)
	require.NoError(h.t, err)
	require.Equal(h.t, want, f)
}

func (h *harness) unbond(addr ethCommon.Address, taskID uint64) quantity.Quantity {
	h.t.Helper()
	released, err := h.layer.UnbondDeposit(h.ctx, addr, taskID)
	require.NoError(h.t, err)
	return released
}

func (h *harness) createTask() uint64 {
	h.t.Helper()
	id, err := h.layer.CreateTask(h.ctx, owner, common.Amount(minDeposit), common.Amount(reward), taskData, timeout)
	require.NoError(h.t, err)
	return id
}

// runToRevealWindow drives a new task into IntentRevealOpen. Each verifier
// commits intents[i] and reveals it unless it is noReveal.
func (h *harness) runToRevealWindow(verifiers []ethCommon.Address, intents []int) uint64 {
	h.t.Helper()
	id := h.createTask()
	require.NoError(h.t, h.layer.RegisterForTask(h.ctx, solver, id, commitment.HashWord(blinding)))
	require.NoError(h.t, h.layer.CommitSolution(h.ctx, solver, id, commitment.HashWord(result), commitment.HashWord(blinding)))

	h.advance(timeout)
	require.NoError(h.t, h.layer.ChangeTaskState(h.ctx, owner, id, ChallengeWindowOpen))
	for i, v := range verifiers {
		intent := commitment.IntentAccept
		if intents[i] == int(commitment.IntentDispute) {
			intent = commitment.IntentDispute
		}
		require.NoError(h.t, h.layer.CommitChallenge(h.ctx, v, id, commitment.HashIntent(intent)))
	}

	h.advance(timeout)
	require.NoError(h.t, h.layer.ChangeTaskState(h.ctx, owner, id, IntentRevealOpen))
	for i, v := range verifiers {
		if intents[i] == noReveal {
			continue
		}
		require.NoError(h.t, h.layer.RevealIntent(h.ctx, v, id, uint64(intents[i])))
	}
	return id
}

func (h *harness) revealSolution(taskID uint64) {
	h.t.Helper()
	h.advance(timeout)
	require.NoError(h.t, h.layer.RevealSolution(h.ctx, solver, taskID, result, blinding))
}

// requireConservation checks every account record and that custody holds
// exactly what the accounts can claim plus rewards still in escrow.
func (h *harness) requireConservation(escrowed uint64) {
	h.t.Helper()
	claims := common.Amount(escrowed)
	for _, addr := range []ethCommon.Address{owner, solver, verifier, second, third, stranger} {
		acct, err := h.layer.Account(h.ctx, addr)
		require.NoError(h.t, err)
		require.NoError(h.t, acct.Audit())
		claims = common.Plus(claims, common.Plus(acct.Free, acct.TotalBonded()))
	}
	held := h.chain.Balance(custody)
	require.True(h.t, common.Equal(claims, held), "custody holds %s, accounts claim %s", held.String(), claims.String())
}

func (h *harness) kinds(taskID uint64) []events.Kind {
	var out []events.Kind
	for _, ev := range h.log.ForTask(taskID) {
		out = append(out, ev.Kind)
	}
	return out
}

func TestHappyPathNoDispute(t *testing.T) {
	h := newHarness(t)
	id := h.runToRevealWindow([]ethCommon.Address{verifier}, []int{0})
	require.Equal(t, uint64(0), id, "task ids start at 0")

	h.requireFinality(id, Unresolved)
	h.requireConservation(reward)
	h.revealSolution(id)
	h.requireFinality(id, ResolvedNoDispute)

	task, err := h.layer.Task(h.ctx, id)
	require.NoError(t, err)
	require.Equal(t, Finalized, task.State)
	require.Equal(t, solver, task.RewardPaidTo)

	for _, addr := range []ethCommon.Address{owner, solver, verifier} {
		released := h.unbond(addr, id)
		require.True(t, common.Equal(common.Amount(minDeposit), released))
	}
	h.requireFree(owner, 1000)
	h.requireFree(verifier, 1000)
	h.requireFree(solver, 1000+reward)
	h.requireConservation(0)

	err = h.layer.FinalizeTask(h.ctx, owner, id)
	require.ErrorIs(t, err, ErrAlreadyFinalized)
	h.requireFinality(id, ResolvedNoDispute)

	require.Equal(t, []events.Kind{
		events.DepositBonded, events.TaskCreated,
		events.DepositBonded, events.SolverSelected,
		events.SolutionsCommitted,
		events.TaskStateChange,
		events.DepositBonded, events.ChallengeCommitted,
		events.TaskStateChange,
		events.IntentRevealed,
		events.SolutionRevealed,
		events.RewardPaid, events.TaskFinalized,
		events.DepositUnbonded, events.DepositUnbonded, events.DepositUnbonded,
	}, h.kinds(id))
}

func TestEventSequence(t *testing.T) {
	h := newHarness(t)
	h.createTask()

	all := h.log.Since(0, 0)
	require.NotEmpty(t, all)
	for i, ev := range all {
		require.Equal(t, uint64(i+1), ev.Seq)
	}
	last := all[len(all)-1]
	require.Equal(t, events.TaskCreated, last.Kind)
	require.Equal(t, Open.String(), last.NewState)
	require.Equal(t, owner, last.Actor)
}

func TestDisputedSolverWins(t *testing.T) {
	h := newHarness(t)
	id := h.runToRevealWindow([]ethCommon.Address{verifier}, []int{1})
	h.revealSolution(id)

	task, err := h.layer.Task(h.ctx, id)
	require.NoError(t, err)
	require.Equal(t, Disputed, task.State)
	h.requireFinality(id, Unresolved)

	// No verdict yet.
	require.ErrorIs(t, h.layer.FinalizeTask(h.ctx, owner, id), ErrInvalidStateTransition)
	_, err = h.layer.UnbondDeposit(h.ctx, verifier, id)
	require.ErrorIs(t, err, ErrTaskNotTerminal)

	h.verdict = verification.SolverCorrect
	require.NoError(t, h.layer.RunVerificationGame(h.ctx, stranger, id))
	require.Len(t, h.played, 1)
	require.Equal(t, []ethCommon.Address{verifier}, h.played[0].Disputants)
	require.Equal(t, result, h.played[0].Result)
	require.Equal(t, blinding, h.played[0].Blinding)
	require.Equal(t, taskData, h.played[0].TaskData)

	// The game runs once per task.
	require.NoError(t, h.layer.RunVerificationGame(h.ctx, stranger, id))
	require.Len(t, h.played, 1)

	// Only the owner may finalize before the grace period ends.
	require.ErrorIs(t, h.layer.FinalizeTask(h.ctx, stranger, id), ErrDeadlineNotReached)
	require.NoError(t, h.layer.FinalizeTask(h.ctx, owner, id))
	h.requireFinality(id, ResolvedExplicitly)

	h.unbond(owner, id)
	h.unbond(solver, id)
	released := h.unbond(verifier, id)
	require.True(t, released.IsZero())

	h.requireFree(owner, 1000)
	h.requireFree(solver, 1000+reward+minDeposit)
	h.requireFree(verifier, 1000-minDeposit)
	h.requireConservation(0)
}

func TestDisputedSolverLoses(t *testing.T) {
	h := newHarness(t)
	// Two disputants split the solver's bond; the third verifier never
	// reveals and forfeits to the solver.
	id := h.runToRevealWindow([]ethCommon.Address{verifier, second, third}, []int{1, 1, noReveal})
	h.revealSolution(id)

	h.verdict = verification.SolverIncorrect
	require.NoError(t, h.layer.RunVerificationGame(h.ctx, owner, id))

	// Anyone may finalize once the grace period after the deadline has passed.
	h.advance(timeout + grace)
	require.NoError(t, h.layer.FinalizeTask(h.ctx, stranger, id))
	h.requireFinality(id, ResolvedExplicitly)

	for _, addr := range []ethCommon.Address{owner, solver, verifier, second, third} {
		h.unbond(addr, id)
	}
	h.requireFree(owner, 1000+reward)
	h.requireFree(solver, 1000)
	h.requireFree(verifier, 1000+minDeposit/2)
	h.requireFree(second, 1000+minDeposit/2)
	h.requireFree(third, 1000-minDeposit)
	h.requireConservation(0)

	task, err := h.layer.Task(h.ctx, id)
	require.NoError(t, err)
	require.True(t, common.Equal(common.Amount(minDeposit), task.PayoutOf(solver)))
	thirdPayout := task.PayoutOf(third)
	require.True(t, thirdPayout.IsZero())
}

func TestUnevenSplitGoesToEarliestDisputant(t *testing.T) {
	h := newHarness(t)
	id := h.runToRevealWindow([]ethCommon.Address{verifier, second, third}, []int{1, 1, 1})
	h.revealSolution(id)
	h.verdict = verification.SolverIncorrect
	require.NoError(t, h.layer.RunVerificationGame(h.ctx, owner, id))
	require.NoError(t, h.layer.FinalizeTask(h.ctx, owner, id))

	task, err := h.layer.Task(h.ctx, id)
	require.NoError(t, err)
	first := task.PayoutOf(verifier)
	rest := task.PayoutOf(second)
	require.True(t, common.Equal(common.Amount(minDeposit+168), first))
	require.True(t, common.Equal(common.Amount(minDeposit+166), rest))
}

func TestNonRevealerForfeitsToSolverOnFastPath(t *testing.T) {
	h := newHarness(t)
	id := h.runToRevealWindow([]ethCommon.Address{verifier, second}, []int{0, noReveal})
	h.revealSolution(id)
	h.requireFinality(id, ResolvedNoDispute)

	h.unbond(solver, id)
	h.unbond(verifier, id)
	h.unbond(second, id)
	h.requireFree(solver, 1000+reward+minDeposit)
	h.requireFree(verifier, 1000)
	h.requireFree(second, 1000-minDeposit)

	require.Contains(t, h.kinds(id), events.BondForfeited)
}

func TestNoChallengersFastPath(t *testing.T) {
	h := newHarness(t)
	id := h.runToRevealWindow(nil, nil)
	h.revealSolution(id)
	h.requireFinality(id, ResolvedNoDispute)
	h.unbond(solver, id)
	h.requireFree(solver, 1000+reward)
}

func TestDeadlineForceAdvance(t *testing.T) {
	h := newHarness(t)
	id := h.createTask()
	require.NoError(t, h.layer.RegisterForTask(h.ctx, solver, id, commitment.HashWord(blinding)))
	require.NoError(t, h.layer.CommitSolution(h.ctx, solver, id, commitment.HashWord(result), commitment.HashWord(blinding)))

	// The owner never opens the challenge window; a stranger forces it.
	h.advance(timeout - 1)
	err := h.layer.ChangeTaskState(h.ctx, stranger, id, ChallengeWindowOpen)
	require.ErrorIs(t, err, ErrDeadlineNotReached)
	require.ErrorIs(t, h.layer.ChangeTaskState(h.ctx, owner, id, ChallengeWindowOpen), ErrDeadlineNotReached)

	h.advance(1)
	require.NoError(t, h.layer.ChangeTaskState(h.ctx, stranger, id, ChallengeWindowOpen))

	task, err := h.layer.Task(h.ctx, id)
	require.NoError(t, err)
	require.Equal(t, ChallengeWindowOpen, task.State)
	height, err := h.layer.Height(h.ctx)
	require.NoError(t, err)
	require.Equal(t, height, task.LastTransition)
	require.Equal(t, height+timeout, task.Deadline())
}

func TestIllegalTransitions(t *testing.T) {
	h := newHarness(t)
	id := h.createTask()

	// Only SolutionCommitted -> ChallengeWindowOpen -> IntentRevealOpen may be forced.
	h.advance(timeout)
	require.ErrorIs(t, h.layer.ChangeTaskState(h.ctx, owner, id, ChallengeWindowOpen), ErrInvalidStateTransition)
	require.ErrorIs(t, h.layer.ChangeTaskState(h.ctx, owner, id, Finalized), ErrInvalidStateTransition)

	require.ErrorIs(t, h.layer.CommitSolution(h.ctx, solver, id, ethCommon.Hash{}, ethCommon.Hash{}), ErrInvalidStateTransition)
	require.ErrorIs(t, h.layer.CommitChallenge(h.ctx, verifier, id, ethCommon.Hash{}), ErrInvalidStateTransition)
	require.ErrorIs(t, h.layer.RevealIntent(h.ctx, verifier, id, 0), ErrInvalidStateTransition)
	require.ErrorIs(t, h.layer.RevealSolution(h.ctx, solver, id, result, blinding), ErrInvalidStateTransition)

	require.ErrorIs(t, h.layer.RegisterForTask(h.ctx, solver, 77, ethCommon.Hash{}), ErrTaskNotFound)
	_, err := h.layer.Task(h.ctx, 77)
	require.ErrorIs(t, err, ErrTaskNotFound)
}

func TestRegistrationRules(t *testing.T) {
	h := newHarness(t)
	id := h.createTask()

	require.ErrorIs(t, h.layer.RegisterForTask(h.ctx, owner, id, ethCommon.Hash{}), ErrNotAuthorized)
	require.NoError(t, h.layer.RegisterForTask(h.ctx, solver, id, commitment.HashWord(blinding)))

	// No double bonding for the solver role.
	require.ErrorIs(t, h.layer.RegisterForTask(h.ctx, verifier, id, ethCommon.Hash{}), ErrInvalidStateTransition)
	require.ErrorIs(t, h.layer.RegisterForTask(h.ctx, solver, id, ethCommon.Hash{}), ErrInvalidStateTransition)
	h.requireFree(verifier, 1000)
	h.requireFree(solver, 1000-minDeposit)

	require.ErrorIs(t, h.layer.CommitSolution(h.ctx, verifier, id, ethCommon.Hash{}, ethCommon.Hash{}), ErrNotAuthorized)
}

func TestChallengeRules(t *testing.T) {
	h := newHarness(t)
	id := h.createTask()
	require.NoError(t, h.layer.RegisterForTask(h.ctx, solver, id, commitment.HashWord(blinding)))
	require.NoError(t, h.layer.CommitSolution(h.ctx, solver, id, commitment.HashWord(result), commitment.HashWord(blinding)))
	h.advance(timeout)
	require.NoError(t, h.layer.ChangeTaskState(h.ctx, owner, id, ChallengeWindowOpen))

	require.ErrorIs(t, h.layer.CommitChallenge(h.ctx, solver, id, commitment.HashIntent(1)), ErrNotAuthorized)
	require.ErrorIs(t, h.layer.CommitChallenge(h.ctx, owner, id, commitment.HashIntent(1)), ErrNotAuthorized)
	require.NoError(t, h.layer.CommitChallenge(h.ctx, verifier, id, commitment.HashIntent(1)))
	require.ErrorIs(t, h.layer.CommitChallenge(h.ctx, verifier, id, commitment.HashIntent(0)), ErrInvalidStateTransition)
	h.requireFree(verifier, 1000-minDeposit)

	// A verifier without enough free balance cannot challenge.
	require.NoError(t, h.layer.Withdraw(h.ctx, second, common.Amount(600)))
	require.ErrorIs(t, h.layer.CommitChallenge(h.ctx, second, id, commitment.HashIntent(1)), ErrInsufficientBalance)

	h.advance(timeout)
	require.NoError(t, h.layer.ChangeTaskState(h.ctx, owner, id, IntentRevealOpen))

	require.ErrorIs(t, h.layer.RevealIntent(h.ctx, second, id, 1), ErrNotAuthorized)
	require.ErrorIs(t, h.layer.RevealIntent(h.ctx, verifier, id, 2), ErrInvalidIntent)
	require.ErrorIs(t, h.layer.RevealIntent(h.ctx, verifier, id, 0), ErrCommitmentMismatch)

	// A mismatched reveal changes nothing; the correct one still works.
	require.NoError(t, h.layer.RevealIntent(h.ctx, verifier, id, 1))
	require.ErrorIs(t, h.layer.RevealIntent(h.ctx, verifier, id, 1), ErrAlreadyRevealed)

	// The challenge window is closed.
	require.ErrorIs(t, h.layer.CommitChallenge(h.ctx, third, id, commitment.HashIntent(1)), ErrInvalidStateTransition)
}

// Verifiers may challenge as soon as the solution is committed and reveal
// while the challenge window is still open; the solver then reveals right
// after the reveal window opens.
func TestEarlyChallengeAndReveal(t *testing.T) {
	h := newHarness(t)
	id := h.createTask()
	require.NoError(t, h.layer.RegisterForTask(h.ctx, solver, id, commitment.HashWord(blinding)))
	require.NoError(t, h.layer.CommitSolution(h.ctx, solver, id, commitment.HashWord(result), commitment.HashWord(blinding)))
	require.NoError(t, h.layer.CommitChallenge(h.ctx, verifier, id, commitment.HashIntent(commitment.IntentAccept)))
	h.requireFree(verifier, 1000-minDeposit)

	h.advance(20)
	require.NoError(t, h.layer.ChangeTaskState(h.ctx, owner, id, ChallengeWindowOpen))
	require.NoError(t, h.layer.RevealIntent(h.ctx, verifier, id, commitment.IntentAccept))

	h.advance(10)
	require.NoError(t, h.layer.ChangeTaskState(h.ctx, owner, id, IntentRevealOpen))
	require.NoError(t, h.layer.RevealSolution(h.ctx, solver, id, result, blinding))
	h.requireFinality(id, ResolvedNoDispute)

	require.NoError(t, h.layer.RunVerificationGame(h.ctx, verifier, id))
	require.Empty(t, h.played)
	require.ErrorIs(t, h.layer.FinalizeTask(h.ctx, owner, id), ErrAlreadyFinalized)

	for _, addr := range []ethCommon.Address{owner, solver, verifier} {
		released := h.unbond(addr, id)
		require.True(t, common.Equal(common.Amount(minDeposit), released))
	}
	h.requireFree(owner, 1000)
	h.requireFree(solver, 1000+reward)
	h.requireFree(verifier, 1000)
	h.requireConservation(0)
}

func TestRevealSolutionRules(t *testing.T) {
	h := newHarness(t)
	id := h.runToRevealWindow([]ethCommon.Address{verifier, second}, []int{0, noReveal})

	// With an intent outstanding the reveal window must close first.
	require.ErrorIs(t, h.layer.RevealSolution(h.ctx, solver, id, result, blinding), ErrDeadlineNotReached)
	h.advance(timeout)

	require.ErrorIs(t, h.layer.RevealSolution(h.ctx, verifier, id, result, blinding), ErrNotAuthorized)
	require.ErrorIs(t, h.layer.RevealSolution(h.ctx, solver, id, commitment.WordFromUint64(41), blinding), ErrCommitmentMismatch)
	require.ErrorIs(t, h.layer.RevealSolution(h.ctx, solver, id, result, commitment.WordFromUint64(1)), ErrCommitmentMismatch)

	task, err := h.layer.Task(h.ctx, id)
	require.NoError(t, err)
	require.False(t, task.Solution.Result.Revealed, "a failed reveal must not open any commitment")

	require.NoError(t, h.layer.RevealSolution(h.ctx, solver, id, result, blinding))
	h.requireFinality(id, ResolvedNoDispute)
}

func TestRandomBitsMustMatchBlinding(t *testing.T) {
	h := newHarness(t)
	id := h.createTask()
	require.NoError(t, h.layer.RegisterForTask(h.ctx, solver, id, commitment.HashUint64(1234)))
	require.NoError(t, h.layer.CommitSolution(h.ctx, solver, id, commitment.HashWord(result), commitment.HashWord(blinding)))
	h.advance(timeout)
	require.NoError(t, h.layer.ChangeTaskState(h.ctx, owner, id, ChallengeWindowOpen))
	h.advance(timeout)
	require.NoError(t, h.layer.ChangeTaskState(h.ctx, owner, id, IntentRevealOpen))
	h.advance(timeout)

	err := h.layer.RevealSolution(h.ctx, solver, id, result, blinding)
	require.ErrorIs(t, err, ErrCommitmentMismatch)
}

func TestFinalityIsWriteOnce(t *testing.T) {
	h := newHarness(t)
	id := h.runToRevealWindow([]ethCommon.Address{verifier}, []int{1})
	h.revealSolution(id)
	require.NoError(t, h.layer.RunVerificationGame(h.ctx, owner, id))
	require.NoError(t, h.layer.FinalizeTask(h.ctx, owner, id))
	h.requireFinality(id, ResolvedExplicitly)

	h.verdict = verification.SolverIncorrect
	h.advance(100)
	require.NoError(t, h.layer.RunVerificationGame(h.ctx, owner, id))
	require.ErrorIs(t, h.layer.FinalizeTask(h.ctx, owner, id), ErrAlreadyFinalized)
	require.ErrorIs(t, h.layer.FinalizeTask(h.ctx, stranger, id), ErrAlreadyFinalized)
	require.ErrorIs(t, h.layer.RevealSolution(h.ctx, solver, id, result, blinding), ErrInvalidStateTransition)
	require.ErrorIs(t, h.layer.ChangeTaskState(h.ctx, owner, id, IntentRevealOpen), ErrInvalidStateTransition)
	h.requireFinality(id, ResolvedExplicitly)

	task, err := h.layer.Task(h.ctx, id)
	require.NoError(t, err)
	require.Equal(t, verification.SolverCorrect, task.Verdict)
}

func TestGameFailureChangesNothing(t *testing.T) {
	h := newHarness(t)
	id := h.runToRevealWindow([]ethCommon.Address{verifier}, []int{1})
	h.revealSolution(id)

	h.gameErr = errors.New("adjudicator unavailable")
	require.Error(t, h.layer.RunVerificationGame(h.ctx, owner, id))
	task, err := h.layer.Task(h.ctx, id)
	require.NoError(t, err)
	require.Equal(t, verification.VerdictNone, task.Verdict)

	h.gameErr = nil
	h.verdict = verification.VerdictNone
	require.Error(t, h.layer.RunVerificationGame(h.ctx, owner, id), "a game must return a final verdict")

	h.verdict = verification.SolverIncorrect
	require.NoError(t, h.layer.RunVerificationGame(h.ctx, owner, id))
}

func TestRunVerificationGameIsNoOpUnlessDisputed(t *testing.T) {
	h := newHarness(t)
	id := h.createTask()
	before := h.log.Len()
	require.NoError(t, h.layer.RunVerificationGame(h.ctx, stranger, id))
	require.Empty(t, h.played)
	require.Equal(t, before, h.log.Len())

	require.ErrorIs(t, h.layer.RunVerificationGame(h.ctx, stranger, 99), ErrTaskNotFound)
}

func TestFailedOperationIsAtomic(t *testing.T) {
	h := newHarness(t)
	// The owner spends its free balance, so bonding fails after the reward
	// was already escrowed.
	require.NoError(t, h.layer.Withdraw(h.ctx, owner, common.Amount(1000)))
	walletBefore := h.chain.Balance(owner)

	_, err := h.layer.CreateTask(h.ctx, owner, common.Amount(minDeposit), common.Amount(reward), taskData, timeout)
	require.ErrorIs(t, err, ErrInsufficientBalance)
	require.True(t, common.Equal(walletBefore, h.chain.Balance(owner)), "escrow transfer must be reversed")

	// The failed call did not consume a task id.
	require.NoError(t, h.layer.Deposit(h.ctx, owner, common.Amount(1000)))
	require.Equal(t, uint64(0), h.createTask())
	h.requireConservation(reward)
}

func TestCreateTaskValidation(t *testing.T) {
	h := newHarness(t)
	_, err := h.layer.CreateTask(h.ctx, owner, common.Amount(minDeposit), common.Amount(reward), taskData, 0)
	require.ErrorIs(t, err, ErrInvalidTimeout)

	// The reward must be covered by the owner's wallet.
	_, err = h.layer.CreateTask(h.ctx, owner, common.Amount(minDeposit), common.Amount(10*reward), taskData, timeout)
	require.Error(t, err)
	h.requireFree(owner, 1000)
}

func TestOverflowingTimeoutIsRejected(t *testing.T) {
	h := newHarness(t)
	h.advance(2)
	for _, tm := range []uint64{math.MaxUint64, math.MaxUint64 / 2} {
		_, err := h.layer.CreateTask(h.ctx, owner, common.Amount(minDeposit), common.Amount(reward), taskData, tm)
		require.ErrorIs(t, err, ErrInvalidTimeout)
	}
	h.requireFree(owner, 1000)

	// The largest accepted timeout still gates every phase.
	largest := uint64(math.MaxUint64-grace-2) / 2
	id, err := h.layer.CreateTask(h.ctx, owner, common.Amount(minDeposit), common.Amount(reward), taskData, largest)
	require.NoError(t, err)
	require.ErrorIs(t, h.layer.FinalizeTask(h.ctx, stranger, id), ErrDeadlineNotReached)

	require.NoError(t, h.layer.RegisterForTask(h.ctx, solver, id, commitment.HashWord(blinding)))
	require.NoError(t, h.layer.CommitSolution(h.ctx, solver, id, commitment.HashWord(result), commitment.HashWord(blinding)))
	h.advance(1000)
	require.ErrorIs(t, h.layer.ChangeTaskState(h.ctx, owner, id, ChallengeWindowOpen), ErrDeadlineNotReached)
	require.ErrorIs(t, h.layer.FinalizeTask(h.ctx, owner, id), ErrInvalidStateTransition)
	h.requireFinality(id, Unresolved)
}

func TestDeadlineSaturates(t *testing.T) {
	task := &Task{LastTransition: 10, Timeout: math.MaxUint64 - 5}
	require.Equal(t, uint64(math.MaxUint64), task.Deadline())

	task = &Task{LastTransition: 10, Timeout: 5}
	require.Equal(t, uint64(15), task.Deadline())
}

func TestUnbondRules(t *testing.T) {
	h := newHarness(t)
	id := h.createTask()
	_, err := h.layer.UnbondDeposit(h.ctx, owner, id)
	require.ErrorIs(t, err, ErrTaskNotTerminal)
	_, err = h.layer.UnbondDeposit(h.ctx, stranger, id)
	require.ErrorIs(t, err, ErrNoBondToRelease)
	_, err = h.layer.UnbondDeposit(h.ctx, owner, 5)
	require.ErrorIs(t, err, ErrTaskNotFound)

	bonded, err := h.layer.BondedDeposit(h.ctx, owner, id)
	require.NoError(t, err)
	require.True(t, common.Equal(common.Amount(minDeposit), bonded))
}

func TestStalledOpenTask(t *testing.T) {
	h := newHarness(t)
	id := h.createTask()

	h.advance(timeout - 1)
	require.ErrorIs(t, h.layer.FinalizeTask(h.ctx, stranger, id), ErrDeadlineNotReached)
	h.advance(1)
	require.NoError(t, h.layer.FinalizeTask(h.ctx, stranger, id))
	h.requireFinality(id, ResolvedExplicitly)

	h.unbond(owner, id)
	h.requireFree(owner, 1000+reward)
	h.requireConservation(0)
}

func TestStalledSolver(t *testing.T) {
	h := newHarness(t)
	id := h.createTask()
	require.NoError(t, h.layer.RegisterForTask(h.ctx, solver, id, commitment.HashWord(blinding)))
	h.advance(timeout)
	require.NoError(t, h.layer.FinalizeTask(h.ctx, owner, id))

	h.unbond(owner, id)
	h.unbond(solver, id)
	h.requireFree(owner, 1000+reward+minDeposit)
	h.requireFree(solver, 1000-minDeposit)
	h.requireConservation(0)
}

func TestSolverNeverReveals(t *testing.T) {
	h := newHarness(t)
	id := h.runToRevealWindow([]ethCommon.Address{verifier, second}, []int{1, 0})

	// The solver gets the reveal window plus one more timeout.
	h.advance(2*timeout - 1)
	require.ErrorIs(t, h.layer.FinalizeTask(h.ctx, stranger, id), ErrDeadlineNotReached)
	h.advance(1)
	require.NoError(t, h.layer.FinalizeTask(h.ctx, stranger, id))

	for _, addr := range []ethCommon.Address{owner, solver, verifier, second} {
		h.unbond(addr, id)
	}
	h.requireFree(owner, 1000+reward)
	h.requireFree(solver, 1000-minDeposit)
	h.requireFree(verifier, 1000+minDeposit)
	h.requireFree(second, 1000)
	h.requireConservation(0)
}

func TestFinalizeInActivePhase(t *testing.T) {
	h := newHarness(t)
	id := h.createTask()
	require.NoError(t, h.layer.RegisterForTask(h.ctx, solver, id, commitment.HashWord(blinding)))
	require.NoError(t, h.layer.CommitSolution(h.ctx, solver, id, commitment.HashWord(result), commitment.HashWord(blinding)))
	h.advance(100)
	require.ErrorIs(t, h.layer.FinalizeTask(h.ctx, owner, id), ErrInvalidStateTransition)
}

func TestIndependentTasksShareBalances(t *testing.T) {
	h := newHarness(t)
	h.fund(owner, reward)
	first := h.createTask()
	secondTask := h.createTask()
	require.Equal(t, first+1, secondTask)

	require.NoError(t, h.layer.RegisterForTask(h.ctx, solver, first, commitment.HashWord(blinding)))
	err := h.layer.RegisterForTask(h.ctx, solver, secondTask, commitment.HashWord(blinding))
	require.NoError(t, err)
	h.requireFree(solver, 0)

	// The solver's free balance is exhausted; a third bond fails.
	h.fund(owner, minDeposit+reward)
	require.NoError(t, h.layer.Deposit(h.ctx, owner, common.Amount(minDeposit)))
	thirdTask := h.createTask()
	require.ErrorIs(t, h.layer.RegisterForTask(h.ctx, solver, thirdTask, commitment.HashWord(blinding)), ErrInsufficientBalance)

	tasks, err := h.layer.Tasks(h.ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	tasks, err = h.layer.Tasks(h.ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, secondTask, tasks[0].ID)
}

func TestStatePersistsAcrossRestart(t *testing.T) {
	path := t.TempDir()
	store, err := kvstore.OpenKVStore(newTestLogger(t), path, nil)
	require.NoError(t, err)

	h := newHarnessWithStore(t, store)
	h.fund(owner, 1000+reward)
	require.NoError(t, h.layer.Deposit(h.ctx, owner, common.Amount(1000)))
	h.advance(3)
	id := h.createTask()
	require.NoError(t, store.Close())

	store, err = kvstore.OpenKVStore(newTestLogger(t), path, nil)
	require.NoError(t, err)
	defer store.Close()
	chain, err := memchain.Open(store, newTestLogger(t))
	require.NoError(t, err)
	restarted := NewLayer(store, chain, verification.Static(verification.SolverCorrect), events.NewMemoryLog(), Options{Custody: custody, GraceBlocks: grace}, newTestLogger(t))

	// The substrate resumes at the same height, so deadlines keep their meaning.
	height, err := restarted.Height(h.ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(3), height)

	task, err := restarted.Task(h.ctx, id)
	require.NoError(t, err)
	require.Equal(t, owner, task.Owner)
	require.Equal(t, Open, task.State)
	require.Equal(t, uint64(3+timeout), task.Deadline())
	require.True(t, common.Equal(common.Amount(reward), task.Reward))

	free, err := restarted.Balance(h.ctx, owner)
	require.NoError(t, err)
	require.True(t, common.Equal(common.Amount(1000-minDeposit), free))

	// Custody still holds the deposits made before the restart.
	require.True(t, common.Equal(common.Amount(1000+reward), chain.Balance(custody)))
	require.NoError(t, restarted.Withdraw(h.ctx, owner, common.Amount(100)))
	require.True(t, common.Equal(common.Amount(100), chain.Balance(owner)))

	require.NoError(t, chain.Fund(owner, common.Amount(reward)))
	next, err := restarted.CreateTask(h.ctx, owner, common.Amount(minDeposit), common.Amount(reward), taskData, timeout)
	require.NoError(t, err)
	require.Equal(t, id+1, next)
}
