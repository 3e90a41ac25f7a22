package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cnocal/cnocal/pkg/metric"
	"github.com/cnocal/cnocal/pkg/verify"
)

// NewVerifyCommand gates logs that already exist, without running any tools.
// Useful when the pipeline ran elsewhere (CI, another machine) and only the
// logs travelled.
func NewVerifyCommand() *cobra.Command {
	var (
		tolerance float64
		lossMax   float64
		lossLog   string
	)

	cmd := &cobra.Command{
		Use:     "verify reference-log estimate-log [loss]",
		Short:   "Evaluate the calibration gates over existing logs",
		GroupID: gCalibration,
		Long: `Evaluate both calibration gates over captured tool output: the channel
simulator log holding the reference C/No, the receiver log holding the
estimate, and the measured loss (either as a literal value or extracted from a
loss scorer log via --loss-log).

Exit status: 0 if all gates passed, 1 if a gate failed, 2 if a metric could
not be extracted.`,
		Example: `  cnocal verify ch.log rx.log 0.21
  cnocal verify ch.log rx.log --loss-log loss.log`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(_ *cobra.Command, args []string) error {
			refLog, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read reference log: %w", err)
			}
			estLog, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("failed to read estimate log: %w", err)
			}

			var result verify.Result
			switch {
			case len(args) == 3 && lossLog != "":
				return fmt.Errorf("give either a loss value or --loss-log, not both")
			case len(args) == 3:
				loss, err := parseFloatArg(args, 2, "loss")
				if err != nil {
					return err
				}
				result = verify.RunCalibration(string(refLog), string(estLog), loss, lossMax, tolerance)
			case lossLog != "":
				b, err := os.ReadFile(lossLog)
				if err != nil {
					return fmt.Errorf("failed to read loss log: %w", err)
				}
				sample, lossErr := metric.ExtractLoss(string(b))
				if lossErr != nil {
					result = verify.RunCalibration(string(refLog), string(estLog), 0, lossMax, tolerance)
					result.LossGate = nil
					result.LossErr = lossErr
				} else {
					result = verify.RunCalibration(string(refLog), string(estLog), sample.Value, lossMax, tolerance)
				}
			default:
				return fmt.Errorf("missing loss: give a value or --loss-log")
			}

			result.Print(os.Stdout)
			os.Exit(result.ExitCode())
			return nil
		},
	}

	f := cmd.Flags()
	f.Float64Var(&tolerance, "tolerance", verify.DefaultToleranceDb, "maximum absolute C/No error in dB (strictly below passes)")
	f.Float64Var(&lossMax, "loss-max", verify.DefaultLossMax, "maximum feature-reconstruction loss (strictly below passes)")
	f.StringVar(&lossLog, "loss-log", "", "loss scorer log to extract the measured loss from")

	return cmd
}
