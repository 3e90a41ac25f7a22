package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	daemonutil "github.com/cnocal/cnocal/pkg/utils/daemon"
)

func NewInstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "install",
		Short:   "Install cnocal as a systemd service (requires root)",
		GroupID: gInstallation,
		Long: `Install the cnocal daemon as a systemd service so scheduled calibration runs
keep working across reboots. The service runs the current executable, so move
the binary to its final location before installing.

By default, only root can talk to the daemon socket. Pass
--allow-non-root-access on the daemon, or set allowNonRootAccess in the config
file, to widen access.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := daemonutil.Install(); err != nil {
				return err
			}
			logrus.Info("cnocal daemon installed and started")
			return nil
		},
	}
}

func NewUninstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "uninstall",
		Short:   "Stop and remove the cnocal systemd service (requires root)",
		GroupID: gInstallation,
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := daemonutil.Uninstall(); err != nil {
				return err
			}
			logrus.Info("cnocal daemon uninstalled")
			return nil
		},
	}
}
