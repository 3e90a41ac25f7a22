package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/cnocal/cnocal/pkg/client"
)

var (
	logLevel       = "info"
	unixSocketPath = "/var/run/cnocal.sock"
	configPath     = "/etc/cnocal.json"
)

var (
	gCalibration  = "Calibration:"
	gAdvanced     = "Advanced:"
	gInstallation = "Installation:"
	commandGroups = []string{
		gCalibration,
		gAdvanced,
		gInstallation,
	}
)

var apiClient *client.Client

func setupLogger() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{})
	if term.IsTerminal(int(os.Stderr.Fd())) {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.Kitchen,
		})
	}

	return nil
}

func handleCmdError(err error) {
	if errors.Is(err, client.ErrDaemonNotRunning) {
		fmt.Fprintln(os.Stderr, "\nError: cnocal daemon is not running")
		fmt.Fprintln(os.Stderr, "Is the daemon running? Have you started it?")
	} else if errors.Is(err, client.ErrPermissionDenied) {
		fmt.Fprintln(os.Stderr, "\nError: Permission Denied")
		fmt.Fprintln(os.Stderr, "  - Try running the command again with 'sudo'")
		fmt.Fprintln(os.Stderr, "  - Or run the daemon with the '--always-allow-non-root-access' flag to grant permissions to your user")
	}
}

func main() {
	// cnocal spends its time waiting on external tools; it does not need many
	// CPUs itself.
	if os.Getenv("GOMAXPROCS") == "" {
		runtime.GOMAXPROCS(2)
	}

	cmd := NewCommand()
	if err := cmd.Execute(); err != nil {
		handleCmdError(err)
		os.Exit(1)
	}
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cnocal",
		Short: "cnocal verifies C/No calibration of a radio receiver against a channel simulator",
		Long: `cnocal runs a transmit waveform through a channel simulator at a known noise
level, feeds the faded waveform to the receiver under test, and checks that the
receiver's C/No estimate agrees with the simulator's reference within a
tolerance. A feature-reconstruction loss gate guards output quality at the same
time.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if err := setupLogger(); err != nil {
				return err
			}

			apiClient = client.NewClient(unixSocketPath)

			return nil
		},
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log-level", "l", "info", "log level (trace, debug, info, warn, error, fatal, panic)")
	globalFlags.StringVar(&configPath, "config", configPath, "config file path")
	globalFlags.StringVar(&unixSocketPath, "daemon-socket", unixSocketPath, "cnocal daemon unix socket path")

	for _, i := range commandGroups {
		cmd.AddGroup(&cobra.Group{
			ID:    i,
			Title: i,
		})
	}

	cmd.AddCommand(
		NewDaemonCommand(),
		NewVersionCommand(),
		NewRunCommand(),
		NewVerifyCommand(),
		NewStartCommand(),
		NewCancelCommand(),
		NewStatusCommand(),
		NewLastResultCommand(),
		NewEventsCommand(),
		NewConfigCommand(),
		NewScheduleCommand(),
		NewInstallCommand(),
		NewUninstallCommand(),
	)

	return cmd
}
