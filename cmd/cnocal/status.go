package main

import (
	"bufio"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/cnocal/cnocal/pkg/calib"
)

func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		GroupID: gCalibration,
		Short:   "Get the current status of cnocal",
		Long:    `Get run state, last result, and schedule from the daemon.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := apiClient.GetStatus()
			if err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}

			conf, err := apiClient.GetConfig()
			if err != nil {
				return fmt.Errorf("failed to get config: %w", err)
			}

			cmd.Println(bold("Run status:"))
			cmd.Printf("  Phase: %s\n", bold("%s", phaseText(st.Phase)))
			if st.Running {
				cmd.Printf("  Run ID: %s\n", st.RunID)
				cmd.Printf("  Started: %s\n", st.StartedAt.Local().Format(time.DateTime))
			}
			if st.Message != "" {
				cmd.Printf("  Message: %s\n", st.Message)
			}

			cmd.Println()
			cmd.Println(bold("Last result:"))
			if st.LastResult == nil {
				cmd.Println("  No finished run yet.")
			} else {
				printRunResult(cmd, st.LastResult)
				if !st.LastFinished.IsZero() {
					cmd.Printf("  Finished: %s\n", st.LastFinished.Local().Format(time.DateTime))
				}
			}

			cmd.Println()
			cmd.Println(bold("Schedule:"))
			if st.ScheduledAt.IsZero() {
				cmd.Println("  Not scheduled.")
			} else {
				cmd.Printf("  Cron: %s\n", ptrOr(conf.Cron, ""))
				cmd.Printf("  Next run: %s\n", st.ScheduledAt.Local().Format(time.DateTime))
			}

			return nil
		},
	}
}

func NewLastResultCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "last-result",
		GroupID: gCalibration,
		Short:   "Show the gates of the last finished run",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := apiClient.GetLastResult()
			if err != nil {
				return err
			}
			printRunResult(cmd, result)
			return nil
		},
	}
}

// NewEventsCommand tails the daemon's SSE stream until interrupted.
func NewEventsCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "events",
		GroupID: gAdvanced,
		Short:   "Stream daemon events (phases, actions, results)",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, err := apiClient.Events(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = body.Close() }()

			scanner := bufio.NewScanner(body)
			for scanner.Scan() {
				line := scanner.Text()
				if line == "" {
					continue
				}
				cmd.Println(line)
			}
			return scanner.Err()
		},
	}
}

func printRunResult(cmd *cobra.Command, r *calib.RunResult) {
	verdict := bool2Text(r.Passed)
	if r.Broken {
		verdict = color.New(color.Bold, color.FgYellow).Sprint("broken")
	}
	cmd.Printf("  Overall: %s\n", verdict)

	if r.CNoError != "" {
		cmd.Printf("  C/No gate: %s %s\n", bool2Text(false), r.CNoError)
	} else if r.CNoGate != nil {
		v := r.CNoGate
		cmd.Printf("  C/No gate: %s reference %.2f dB, estimate %.2f dB, error %.2f dB (tolerance %.2f dB)\n",
			bool2Text(v.Passed), v.Reference.Value, v.Estimate.Value, v.AbsoluteError, v.ToleranceDb)
		if v.Anomaly != "" {
			cmd.Printf("    Anomaly: %s\n", v.Anomaly)
		}
	}

	if r.LossError != "" {
		cmd.Printf("  Loss gate: %s %s\n", bool2Text(false), r.LossError)
	} else if r.LossGate != nil {
		g := r.LossGate
		cmd.Printf("  Loss gate: %s measured %.3f (max %.3f)\n",
			bool2Text(g.Passed), g.Value, g.MaxAllowed)
	}
}

func phaseText(p calib.Phase) string {
	switch p {
	case calib.PhaseIdle:
		return "idle"
	case calib.PhaseError:
		return color.RedString("error")
	default:
		return color.GreenString(strings.ToLower(string(p)))
	}
}

func ptrOr[T any](p *T, def T) T {
	if p != nil {
		return *p
	}
	return def
}
