// Package verification defines the contract between the incentive layer and
// the verification game that adjudicates disputed results.
package verification

import (
	"context"
	"fmt"
	"strings"

	ethCommon "github.com/ethereum/go-ethereum/common"

	"github.com/verilayer/verilayer/commitment"
)

// Verdict is the outcome of a verification game.
type Verdict uint8

const (
	// VerdictNone means no game has been played yet.
	VerdictNone Verdict = iota
	SolverCorrect
	SolverIncorrect
)

// String returns the string representation of a Verdict.
func (v Verdict) String() string {
	switch v {
	case VerdictNone:
		return "none"
	case SolverCorrect:
		return "solver_correct"
	case SolverIncorrect:
		return "solver_incorrect"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(v))
	}
}

// ParseVerdict parses the string representation of a final verdict.
func ParseVerdict(s string) (Verdict, error) {
	switch strings.ToLower(s) {
	case "solver_correct":
		return SolverCorrect, nil
	case "solver_incorrect":
		return SolverIncorrect, nil
	default:
		return VerdictNone, fmt.Errorf("invalid verdict '%s'", s)
	}
}

// Final reports whether v is a verdict a game may return.
func (v Verdict) Final() bool {
	return v == SolverCorrect || v == SolverIncorrect
}

// Input describes a disputed task.
type Input struct {
	TaskID     uint64              `json:"task_id"`
	TaskData   ethCommon.Hash      `json:"task_data"`
	Result     commitment.Word     `json:"result"`
	Blinding   commitment.Word     `json:"blinding"`
	Disputants []ethCommon.Address `json:"disputants"`
}

// Game adjudicates a disputed result. It is invoked once per disputed task
// and must eventually return a final verdict or an error.
type Game interface {
	Play(ctx context.Context, in Input) (Verdict, error)
}

// Func adapts a function to the Game interface.
type Func func(ctx context.Context, in Input) (Verdict, error)

// Play implements Game.
func (f Func) Play(ctx context.Context, in Input) (Verdict, error) {
	return f(ctx, in)
}

// Static is a Game that always returns the same verdict.
type Static Verdict

// Play implements Game.
func (s Static) Play(ctx context.Context, in Input) (Verdict, error) {
	return Verdict(s), nil
}
