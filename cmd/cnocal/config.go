package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewConfigCommand groups the daemon configuration setters.
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "config",
		Short:   "Show or change daemon configuration",
		GroupID: gAdvanced,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := apiClient.GetConfig()
			if err != nil {
				return fmt.Errorf("failed to get config: %w", err)
			}
			b, err := json.MarshalIndent(conf, "", "  ")
			if err != nil {
				return err
			}
			cmd.Println(string(b))
			return nil
		},
	}

	cmd.AddCommand(
		newFloatSetterCommand("tolerance", "maximum absolute C/No error in dB",
			func(v float64) (string, error) { return apiClient.SetTolerance(v) }),
		newFloatSetterCommand("loss-max", "maximum feature-reconstruction loss",
			func(v float64) (string, error) { return apiClient.SetLossMax(v) }),
		newFloatSetterCommand("no-db", "noise set point in dB",
			func(v float64) (string, error) { return apiClient.SetNoDb(v) }),
		newStringSetterCommand("build-dir", "directory holding the signal-processing tools",
			func(v string) (string, error) { return apiClient.SetBuildDir(v) }),
		newStringSetterCommand("fading-dir", "directory with fading samples",
			func(v string) (string, error) { return apiClient.SetFadingDir(v) }),
		newRunTimeoutCommand(),
		newKeepArtifactsCommand(),
	)

	return cmd
}

func newFloatSetterCommand(use, short string, set func(float64) (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " value",
		Short: "Set " + short,
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			v, err := parseFloatArg(args, 0, use)
			if err != nil {
				return err
			}

			ret, err := set(v)
			if err != nil {
				return fmt.Errorf("failed to set %s: %w", use, err)
			}

			if ret != "" {
				logrus.Infof("daemon responded: %s", ret)
			}
			return nil
		},
	}
}

func newStringSetterCommand(use, short string, set func(string) (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " value",
		Short: "Set " + short,
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ret, err := set(args[0])
			if err != nil {
				return fmt.Errorf("failed to set %s: %w", use, err)
			}

			if ret != "" {
				logrus.Infof("daemon responded: %s", ret)
			}
			return nil
		},
	}
}

func newRunTimeoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run-timeout seconds",
		Short: "Set the per-tool execution timeout",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			secs, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid timeout: %v", err)
			}

			ret, err := apiClient.SetRunTimeout(secs)
			if err != nil {
				return fmt.Errorf("failed to set run timeout: %w", err)
			}

			if ret != "" {
				logrus.Infof("daemon responded: %s", ret)
			}
			return nil
		},
	}
}

func newKeepArtifactsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keep-artifacts",
		Short: "Keep or discard run scratch directories",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "enable",
			Short: "Keep run scratch directories for diagnosis",
			RunE: func(_ *cobra.Command, _ []string) error {
				_, err := apiClient.SetKeepArtifacts(true)
				if err != nil {
					return fmt.Errorf("failed to enable keep-artifacts: %w", err)
				}
				logrus.Info("run artifacts will be kept")
				return nil
			},
		},
		&cobra.Command{
			Use:   "disable",
			Short: "Discard run scratch directories after each run",
			RunE: func(_ *cobra.Command, _ []string) error {
				_, err := apiClient.SetKeepArtifacts(false)
				if err != nil {
					return fmt.Errorf("failed to disable keep-artifacts: %w", err)
				}
				logrus.Info("run artifacts will be discarded")
				return nil
			},
		},
	)

	return cmd
}
