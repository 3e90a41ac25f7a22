package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cnocal/cnocal/pkg/chansim"
	"github.com/cnocal/cnocal/pkg/config"
	"github.com/cnocal/cnocal/pkg/utils/ptr"
	"github.com/cnocal/cnocal/pkg/verify"
)

// NewRunCommand builds the one-shot calibration runner. It needs no daemon:
// the pipeline runs in the foreground and the exit code carries the verdict
// (0 pass, 1 gate failed, 2 pipeline broken).
func NewRunCommand() *cobra.Command {
	var (
		tolerance     float64
		lossMax       float64
		txWaveform    string
		txFeatures    string
		fadingDir     string
		timeout       time.Duration
		keepArtifacts bool
	)

	cmd := &cobra.Command{
		Use:     "run build-dir NodB [-- channel-sim-args...]",
		Short:   "Run one calibration in the foreground",
		GroupID: gCalibration,
		Long: `Run one calibration against the tools in build-dir at the given noise set
point (No, in dB). Arguments after -- are passed to the channel simulator
verbatim, after the harness-owned flags.

Exit status: 0 if all gates passed, 1 if a gate failed, 2 if the pipeline
produced no usable output.`,
		Example: `  cnocal run ~/radae/build -20
  cnocal run ~/radae/build -20 -- --mpp`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			buildDir := args[0]
			noDb, err := parseFloatArg(args, 1, "NodB")
			if err != nil {
				return err
			}

			// Tool locations follow the configured defaults, resolved against
			// the build dir.
			conf := config.NewFileFromConfig(&config.RawFileConfig{
				BuildDir: ptr.To(buildDir),
			}, "")

			resolve := func(p string) string {
				if filepath.IsAbs(p) {
					return p
				}
				return filepath.Join(buildDir, p)
			}

			pipeline := &chansim.Pipeline{
				ChannelSim:       conf.ChannelSimPath(),
				Receiver:         conf.ReceiverPath(),
				LossScorer:       conf.LossScorerPath(),
				TxWaveform:       resolve(txWaveform),
				TxFeatures:       resolve(txFeatures),
				NoDb:             noDb,
				FadingDir:        fadingDir,
				ExtraChannelArgs: args[2:],
				ToleranceDb:      tolerance,
				LossMax:          lossMax,
				RunTimeout:       timeout,
			}

			if err := pipeline.Validate(); err != nil {
				return err
			}

			result, artifacts, err := pipeline.Run(cmd.Context(), keepArtifacts)
			if err != nil {
				logrus.WithError(err).Error("calibration pipeline failed")
				if artifacts.WorkDir != "" {
					logrus.Infof("run artifacts kept in %s", artifacts.WorkDir)
				}
				os.Exit(2)
			}

			result.Print(os.Stdout)
			if keepArtifacts {
				logrus.Infof("run artifacts kept in %s", artifacts.WorkDir)
			}
			os.Exit(result.ExitCode())
			return nil
		},
	}

	f := cmd.Flags()
	f.Float64Var(&tolerance, "tolerance", verify.DefaultToleranceDb, "maximum absolute C/No error in dB (strictly below passes)")
	f.Float64Var(&lossMax, "loss-max", verify.DefaultLossMax, "maximum feature-reconstruction loss (strictly below passes)")
	f.StringVar(&txWaveform, "tx-waveform", "tx.f32", "transmit waveform, relative paths resolve against build-dir")
	f.StringVar(&txFeatures, "tx-features", "features_in.f32", "transmit feature file, relative paths resolve against build-dir")
	f.StringVar(&fadingDir, "fading-dir", "", "directory with fading samples for the channel simulator")
	f.DurationVar(&timeout, "timeout", 5*time.Minute, "per-tool execution timeout")
	f.BoolVar(&keepArtifacts, "keep-artifacts", false, "keep the run's scratch directory for diagnosis")

	return cmd
}
