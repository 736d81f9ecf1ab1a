// Package simulate implements the simulate sub-command, which plays a single
// task through the incentive layer on an in-memory substrate and reports how
// value moved.
package simulate

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"

	"github.com/verilayer/verilayer/commitment"
	"github.com/verilayer/verilayer/log"
	"github.com/verilayer/verilayer/verification"
)

const moduleName = "simulate"

var (
	verifiers  int
	disputants int
	verdict    string
	minDeposit uint64
	reward     uint64
	timeout    uint64

	logFormat = log.FmtLogfmt
	logLevel  = log.LevelInfo

	simulateCmd = &cobra.Command{
		Use:   "simulate",
		Short: "Play one task end to end on an in-memory substrate",
		Run:   runSimulation,
	}
)

func runSimulation(cmd *cobra.Command, args []string) {
	logger, err := log.NewLogger(moduleName, os.Stdout, logFormat, logLevel)
	if err != nil {
		log.NewDefaultLogger("init").Error("init failed",
			"error", err,
		)
		os.Exit(1)
	}

	scenario := Scenario{
		Verifiers:  verifiers,
		Disputants: disputants,
		MinDeposit: minDeposit,
		Reward:     reward,
		Timeout:    timeout,
		Result:     commitment.WordFromUint64(42),
		Blinding:   commitment.WordFromUint64(0x5eed),
	}
	if disputants > 0 {
		if scenario.Verdict, err = verification.ParseVerdict(verdict); err != nil {
			logger.Error("bad verdict", "err", err)
			os.Exit(1)
		}
	}

	report, err := Run(context.Background(), scenario, logger)
	if err != nil {
		logger.Error("simulation failed", "err", err)
		os.Exit(1)
	}

	logger.Info("task settled",
		"task_id", report.TaskID,
		"finality", report.Finality.String(),
		"verdict", report.Verdict.String(),
		"resolution", report.Resolution,
		"height", report.Height,
		"events", len(report.Events),
		"custody", report.Custody.String(),
	)
	for _, p := range report.Parties {
		logger.Info("party",
			"role", p.Role,
			"address", p.Address.Hex(),
			"funded", p.Funded.String(),
			"wallet", p.Wallet.String(),
		)
	}
	for _, ev := range report.Events {
		logger.Debug("event",
			"seq", ev.Seq,
			"height", ev.Height,
			"kind", string(ev.Kind),
			"actor", ev.Actor.Hex(),
			"detail", ev.Detail,
		)
	}
}

func registerFlags(fs *flag.FlagSet) {
	fs.IntVar(&verifiers, "verifiers", 3, "number of verifiers that challenge the task")
	fs.IntVar(&disputants, "disputants", 1, "how many of the verifiers dispute the result")
	fs.StringVar(&verdict, "verdict", "solver_incorrect", "verification game outcome: solver_correct or solver_incorrect")
	fs.Uint64Var(&minDeposit, "min-deposit", 1000, "bond required from every participant")
	fs.Uint64Var(&reward, "reward", 100, "reward escrowed by the task owner")
	fs.Uint64Var(&timeout, "timeout", 10, "length of each task phase in blocks")
	fs.Var(&logFormat, "log.format", "log format")
	fs.Var(&logLevel, "log.level", "log level")
}

// Register registers the simulate sub-command.
func Register(parentCmd *cobra.Command) {
	registerFlags(simulateCmd.Flags())
	parentCmd.AddCommand(simulateCmd)
}
