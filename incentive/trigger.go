package incentive

import (
	"context"
	"fmt"

	ethCommon "github.com/ethereum/go-ethereum/common"

	"github.com/verilayer/verilayer/events"
	"github.com/verilayer/verilayer/verification"
)

// RunVerificationGame plays the verification game of a disputed task and
// records its verdict. It does nothing for tasks that are not disputed or
// already have a verdict, so it is safe to call unconditionally.
func (l *Layer) RunVerificationGame(ctx context.Context, caller ethCommon.Address, taskID uint64) error {
	return l.update(ctx, "run_verification_game", func(tx *txn) error {
		t, err := tx.task(taskID)
		if err != nil {
			return err
		}
		if t.State != Disputed || t.Verdict != verification.VerdictNone {
			return nil
		}

		verdict, err := l.game.Play(ctx, verification.Input{
			TaskID:     t.ID,
			TaskData:   t.TaskData,
			Result:     t.Solution.Result.Value,
			Blinding:   t.Solution.Blinding.Value,
			Disputants: t.Disputants(),
		})
		if err != nil {
			return fmt.Errorf("verification game for task %d: %w", taskID, err)
		}
		if !verdict.Final() {
			return fmt.Errorf("verification game for task %d returned no verdict (%s)", taskID, verdict)
		}

		t.Verdict = verdict
		tx.putTask(t)
		l.logger.Info("verification game finished", "task_id", taskID, "verdict", verdict.String(), "height", tx.height)
		tx.emit(events.Event{Kind: events.VerdictReached, TaskID: taskID, Actor: caller, Detail: verdict.String()})
		return nil
	})
}
