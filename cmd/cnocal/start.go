package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewStartCommand asks the daemon to run a calibration in the background.
func NewStartCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "start [NodB]",
		Short:   "Start a calibration run via the daemon",
		GroupID: gCalibration,
		Long: `Ask the daemon to start a calibration run in the background. An optional
NodB argument overrides the configured noise set point for this run only.
Follow progress with 'cnocal status' or 'cnocal events'.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			var noDb *float64
			if len(args) == 1 {
				v, err := parseFloatArg(args, 0, "NodB")
				if err != nil {
					return err
				}
				noDb = &v
			}

			runID, err := apiClient.StartRun(noDb)
			if err != nil {
				return fmt.Errorf("failed to start calibration run: %w", err)
			}

			logrus.Infof("calibration run %s started", runID)
			return nil
		},
	}
}

func NewCancelCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "cancel",
		Short:   "Cancel the active calibration run",
		GroupID: gCalibration,
		Args:    cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ret, err := apiClient.CancelRun()
			if err != nil {
				return fmt.Errorf("failed to cancel calibration run: %w", err)
			}

			if ret != "" {
				logrus.Debugf("daemon responded: %s", ret)
			}

			logrus.Info("calibration run canceled")
			return nil
		},
	}
}
