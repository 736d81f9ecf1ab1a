package simulate

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/oasisprotocol/oasis-core/go/common/quantity"

	"github.com/verilayer/verilayer/commitment"
	"github.com/verilayer/verilayer/common"
	"github.com/verilayer/verilayer/config"
	"github.com/verilayer/verilayer/events"
	"github.com/verilayer/verilayer/incentive"
	"github.com/verilayer/verilayer/log"
	"github.com/verilayer/verilayer/storage/kvstore"
	"github.com/verilayer/verilayer/substrate/memchain"
	"github.com/verilayer/verilayer/verification"
)

// Well-known simulation parties. Verifiers are numbered from verifierBase.
var (
	custody = ethCommon.HexToAddress("0x00000000000000000000000000000000000c0ffe")
	owner   = ethCommon.HexToAddress("0x000000000000000000000000000000000000000e")
	solver  = ethCommon.HexToAddress("0x0000000000000000000000000000000000000050")
)

const verifierBase = 0x100

// Scenario describes one task played end to end.
type Scenario struct {
	Verifiers  int
	Disputants int
	// Verdict is what the verification game returns if the task is disputed.
	Verdict    verification.Verdict
	MinDeposit uint64
	Reward     uint64
	Timeout    uint64

	Result   commitment.Word
	Blinding commitment.Word
}

// Validate checks that the scenario can be played.
func (s *Scenario) Validate() error {
	switch {
	case s.Verifiers < 0 || s.Disputants < 0:
		return fmt.Errorf("party counts must not be negative")
	case s.Disputants > s.Verifiers:
		return fmt.Errorf("%d disputants but only %d verifiers", s.Disputants, s.Verifiers)
	case s.Disputants > 0 && !s.Verdict.Final():
		return fmt.Errorf("a disputed scenario needs a verdict")
	case s.Timeout == 0:
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}

// PartyReport is the outcome for one participant.
type PartyReport struct {
	Role    string
	Address ethCommon.Address
	// Funded is what the party started with in its wallet.
	Funded quantity.Quantity
	// Wallet is the wallet balance after unbonding and withdrawing everything.
	Wallet quantity.Quantity
}

// Report summarizes a played scenario.
type Report struct {
	TaskID     uint64
	Finality   incentive.Finality
	Verdict    verification.Verdict
	Resolution string
	Height     uint64
	Parties    []PartyReport
	Events     []events.Event
	// Custody is what the custody account still holds. Zero once everyone withdrew.
	Custody quantity.Quantity
}

type step struct {
	name string
	fn   func() error
}

type party struct {
	role string
	addr ethCommon.Address
}

func verifierAddress(i int) ethCommon.Address {
	return ethCommon.BigToAddress(big.NewInt(int64(verifierBase + i)))
}

// Run plays a scenario on a fresh in-memory substrate.
func Run(ctx context.Context, s Scenario, logger *log.Logger) (*Report, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	chain := memchain.New(logger)
	evLog := events.NewMemoryLog()
	layer := incentive.NewLayer(
		kvstore.NewMemoryKVStore(),
		chain,
		verification.Static(s.Verdict),
		evLog,
		incentive.Options{Custody: custody, GraceBlocks: config.DefaultGraceBlocks},
		logger,
	)

	parties := []party{{"owner", owner}, {"solver", solver}}
	for i := 0; i < s.Verifiers; i++ {
		role := "verifier"
		if i < s.Disputants {
			role = "disputant"
		}
		parties = append(parties, party{role, verifierAddress(i)})
	}

	funded := make(map[ethCommon.Address]quantity.Quantity, len(parties))
	for _, p := range parties {
		amount := common.Amount(s.MinDeposit)
		if p.addr == owner {
			amount = common.Amount(s.MinDeposit + s.Reward)
		}
		if err := chain.Fund(p.addr, amount); err != nil {
			return nil, err
		}
		funded[p.addr] = amount
		if err := layer.Deposit(ctx, p.addr, common.Amount(s.MinDeposit)); err != nil {
			return nil, fmt.Errorf("%s deposit: %w", p.role, err)
		}
	}

	taskID, err := layer.CreateTask(ctx, owner, common.Amount(s.MinDeposit), common.Amount(s.Reward), commitment.HashUint64(uint64(s.Verifiers)), s.Timeout)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	logger.Info("created task", "task_id", taskID)

	steps := []step{
		{"register", func() error {
			return layer.RegisterForTask(ctx, solver, taskID, commitment.HashWord(s.Blinding))
		}},
		{"commit solution", func() error {
			return layer.CommitSolution(ctx, solver, taskID, commitment.HashWord(s.Result), commitment.HashWord(s.Blinding))
		}},
		{"open challenge window", func() error {
			if _, err := chain.Advance(s.Timeout); err != nil {
				return err
			}
			return layer.ChangeTaskState(ctx, owner, taskID, incentive.ChallengeWindowOpen)
		}},
		{"commit challenges", func() error {
			for i := 0; i < s.Verifiers; i++ {
				if err := layer.CommitChallenge(ctx, verifierAddress(i), taskID, commitment.HashIntent(intentOf(i, s.Disputants))); err != nil {
					return err
				}
			}
			return nil
		}},
		{"open intent reveal", func() error {
			if _, err := chain.Advance(s.Timeout); err != nil {
				return err
			}
			return layer.ChangeTaskState(ctx, owner, taskID, incentive.IntentRevealOpen)
		}},
		{"reveal intents", func() error {
			for i := 0; i < s.Verifiers; i++ {
				if err := layer.RevealIntent(ctx, verifierAddress(i), taskID, intentOf(i, s.Disputants)); err != nil {
					return err
				}
			}
			return nil
		}},
		{"reveal solution", func() error {
			if _, err := chain.Advance(s.Timeout); err != nil {
				return err
			}
			return layer.RevealSolution(ctx, solver, taskID, s.Result, s.Blinding)
		}},
	}
	if s.Disputants > 0 {
		steps = append(steps,
			step{"verification game", func() error {
				return layer.RunVerificationGame(ctx, verifierAddress(0), taskID)
			}},
			step{"finalize", func() error {
				return layer.FinalizeTask(ctx, owner, taskID)
			}},
		)
	}
	for _, st := range steps {
		if err := st.fn(); err != nil {
			return nil, fmt.Errorf("%s: %w", st.name, err)
		}
		logger.Debug("step done", "step", st.name)
	}

	report := &Report{TaskID: taskID}
	for _, p := range parties {
		if _, err := layer.UnbondDeposit(ctx, p.addr, taskID); err != nil && !errors.Is(err, incentive.ErrNoBondToRelease) {
			return nil, fmt.Errorf("%s unbond: %w", p.role, err)
		}
		free, err := layer.Balance(ctx, p.addr)
		if err != nil {
			return nil, err
		}
		if !free.IsZero() {
			if err := layer.Withdraw(ctx, p.addr, free); err != nil {
				return nil, fmt.Errorf("%s withdraw: %w", p.role, err)
			}
		}
		report.Parties = append(report.Parties, PartyReport{
			Role:    p.role,
			Address: p.addr,
			Funded:  funded[p.addr],
			Wallet:  chain.Balance(p.addr),
		})
	}

	task, err := layer.Task(ctx, taskID)
	if err != nil {
		return nil, err
	}
	report.Finality = task.Finality
	report.Verdict = task.Verdict
	report.Events = evLog.Since(0, 0)
	for _, ev := range report.Events {
		if ev.Kind == events.TaskFinalized {
			_, report.Resolution, _ = strings.Cut(ev.Detail, ":")
		}
	}
	if report.Height, err = layer.Height(ctx); err != nil {
		return nil, err
	}
	report.Custody = chain.Balance(custody)
	return report, nil
}

// intentOf returns the intent of the i-th verifier: the first disputants
// dispute, the rest accept.
func intentOf(i, disputants int) uint64 {
	if i < disputants {
		return commitment.IntentDispute
	}
	return commitment.IntentAccept
}
