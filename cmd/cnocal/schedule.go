package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func NewScheduleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "schedule [cron-expression]",
		Aliases: []string{"sch", "sche", "sched"},
		Short:   "Manage the automatic calibration schedule",
		Long: `Manage the automatic calibration schedule.

The schedule command can be used in multiple ways:
  cnocal schedule 'minute hour day month weekday' Set schedule with cron expression
  cnocal schedule disable                         Disable the schedule
  cnocal schedule postpone [duration]             Postpone next run
  cnocal schedule skip                            Skip next run
  cnocal schedule show                            Show current schedule`,
		Example: `  cnocal schedule '0 3 * * *' (Every day at 03:00)
  cnocal schedule '0 3 * * 0' (At 03:00 on Sunday)
  cnocal schedule '0 3 1 * *' (At 03:00 on the first day of every month)`,
		GroupID: gAdvanced,
		RunE: func(cmd *cobra.Command, args []string) error {
			// If no arguments, show the current schedule
			if len(args) == 0 {
				return runScheduleShow(cmd)
			}
			// Otherwise, treat as a cron expression to set
			return runScheduleSet(cmd, args[0])
		},
	}

	cmd.AddCommand(
		newScheduleDisableCommand(),
		newSchedulePostponeCommand(),
		newScheduleSkipCommand(),
		newScheduleShowCommand(),
	)

	return cmd
}

func newScheduleDisableCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "disable",
		Short: "Disable the calibration schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := apiClient.Schedule(""); err != nil {
				return err
			}
			cmd.Println("Calibration schedule disabled.")
			return nil
		},
	}
}

func newSchedulePostponeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "postpone [duration]",
		Short: "Postpone the next scheduled calibration run",
		Example: `  cnocal schedule postpone      (Postpone by 1 hour)
  cnocal schedule postpone 90m  (Postpone by 90 minutes)
  cnocal schedule postpone 2h   (Postpone by 2 hours)`,
		Long: `Postpone the next scheduled calibration run by a specified duration.
If no duration is provided, defaults to 1 hour.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := time.Hour // default
			if len(args) > 0 {
				parsed, err := time.ParseDuration(args[0])
				if err != nil {
					return fmt.Errorf("invalid duration %q: %w", args[0], err)
				}
				d = parsed
			}

			if _, err := apiClient.PostponeSchedule(d); err != nil {
				return err
			}
			cmd.Printf("Next run postponed by %s.\n", d)
			return nil
		},
	}
}

func newScheduleSkipCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "skip",
		Short: "Skip the next scheduled calibration run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := apiClient.SkipSchedule(); err != nil {
				return err
			}
			cmd.Println("Next scheduled run skipped.")
			return nil
		},
	}
}

func newScheduleShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current calibration schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScheduleShow(cmd)
		},
	}
}

func runScheduleSet(cmd *cobra.Command, cronExpr string) error {
	if cronExpr == "" {
		return fmt.Errorf("cron expression cannot be empty")
	}
	nextRuns, err := apiClient.Schedule(cronExpr)
	if err != nil {
		return err
	}
	if len(nextRuns) == 0 {
		cmd.Println("Calibration schedule disabled.")
		return nil
	}
	cmd.Printf("Calibration scheduled. Next %d run(s):\n", len(nextRuns))
	for _, run := range nextRuns {
		cmd.Printf("  - %s\n", run.Local().Format(time.DateTime))
	}
	return nil
}

func runScheduleShow(cmd *cobra.Command) error {
	st, err := apiClient.GetStatus()
	if err != nil {
		return err
	}
	if st.ScheduledAt.IsZero() {
		cmd.Println("Calibration schedule is not set.")
		return nil
	}

	conf, err := apiClient.GetConfig()
	if err != nil {
		return err
	}
	cmd.Printf("Cron: %s\n", ptrOr(conf.Cron, ""))
	cmd.Printf("Next run: %s\n", st.ScheduledAt.Local().Format(time.DateTime))
	return nil
}
