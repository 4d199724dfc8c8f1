package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/yigbench/yig/pkg/calibration"
	"github.com/yigbench/yig/pkg/plot"
)

func NewCalibrationCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "calibration",
		Aliases: []string{"cal"},
		Short:   "Show and manage the tuner calibration",
		GroupID: gCalibration,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCalibrationShow(cmd)
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Show the coefficients in use",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runCalibrationShow(cmd)
			},
		},
		&cobra.Command{
			Use:   "apply [path]",
			Short: "Refit the coefficients from a calibration table on the daemon host",
			Long:  "Refit the coefficients from a calibration table on the daemon host. Without a path the configured table is used.",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				var path string
				if len(args) > 0 {
					path = args[0]
				}
				st, err := apiClient.ApplyCalibration(path)
				if err != nil {
					return err
				}
				printCalibration(cmd, st)
				return nil
			},
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Restore the factory coefficients",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				st, err := apiClient.ResetCalibration()
				if err != nil {
					return err
				}
				printCalibration(cmd, st)
				return nil
			},
		},
		newCalibrationPlotCommand(),
		NewScheduleCommand(),
	)
	return cmd
}

func runCalibrationShow(cmd *cobra.Command) error {
	st, err := apiClient.GetCalibration()
	if err != nil {
		return err
	}
	printCalibration(cmd, st)
	return nil
}

func newCalibrationPlotCommand() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "plot <table.csv>",
		Short: "Render a local calibration table and its fit to PNG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			samples, err := calibration.ReadTable(f)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			_, ctf, err := calibration.Fit(samples)
			if err != nil {
				return err
			}
			p, err := plot.Calibration(samples, ctf)
			if err != nil {
				return err
			}
			if err := plot.SavePNG(out, p); err != nil {
				return err
			}
			cmd.Printf("Fit %s over %d samples, plot written to %s.\n", ctf, len(samples), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "calibration.png", "output path")
	return cmd
}

func NewScheduleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "schedule [cron-expression]",
		Aliases: []string{"sch", "sched"},
		Short:   "Manage the automatic calibration schedule",
		Long: `Manage the automatic calibration schedule.

The schedule command can be used in multiple ways:
  yig calibration schedule 'minute hour day month weekday' Set schedule with cron expression
  yig calibration schedule disable                         Disable the schedule
  yig calibration schedule postpone [duration]             Postpone next run
  yig calibration schedule skip                            Skip next run
  yig calibration schedule show                            Show current schedule

A scheduled calibration that finds the bench busy waits briefly and is then
skipped.`,
		Example: `  yig calibration schedule '0 6 * * 1' (At 06:00 on Monday)
  yig calibration schedule '0 22 * * *' (At 22:00 every day)`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runScheduleShow(cmd)
			}
			return runScheduleSet(cmd, args[0])
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "disable",
			Short: "Disable the calibration schedule",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				if _, err := apiClient.SetSchedule(""); err != nil {
					return err
				}
				cmd.Println("Calibration schedule disabled.")
				return nil
			},
		},
		newSchedulePostponeCommand(),
		&cobra.Command{
			Use:   "skip",
			Short: "Skip the next scheduled calibration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				s, err := apiClient.SkipSchedule()
				if err != nil {
					return err
				}
				cmd.Printf("Next scheduled run skipped, now at %s.\n", formatTime(s.NextRun))
				return nil
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "Show the calibration schedule",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runScheduleShow(cmd)
			},
		},
	)
	return cmd
}

func newSchedulePostponeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "postpone [duration]",
		Short: "Postpone the next scheduled calibration",
		Example: `  yig calibration schedule postpone      (Postpone by 1 hour)
  yig calibration schedule postpone 90m  (Postpone by 90 minutes)`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := time.Hour
			if len(args) > 0 {
				parsed, err := time.ParseDuration(args[0])
				if err != nil {
					return fmt.Errorf("invalid duration %q: %w", args[0], err)
				}
				d = parsed
			}
			s, err := apiClient.PostponeSchedule(d)
			if err != nil {
				return err
			}
			cmd.Printf("Next run postponed by %s, now at %s.\n", d, formatTime(s.NextRun))
			return nil
		},
	}
}

func runScheduleSet(cmd *cobra.Command, cronExpr string) error {
	if cronExpr == "" {
		return fmt.Errorf("cron expression cannot be empty")
	}
	s, err := apiClient.SetSchedule(cronExpr)
	if err != nil {
		return err
	}
	cmd.Printf("Calibration scheduled. Next %d run(s):\n", len(s.Upcoming))
	for _, at := range s.Upcoming {
		cmd.Printf("  - %s\n", formatTime(at))
	}
	return nil
}

func runScheduleShow(cmd *cobra.Command) error {
	s, err := apiClient.GetSchedule()
	if err != nil {
		return err
	}
	if s.Cron == "" {
		cmd.Println("Calibration schedule is not set.")
		return nil
	}
	printSchedule(cmd, s)
	if len(s.Upcoming) > 0 {
		cmd.Printf("Next %d run(s):\n", len(s.Upcoming))
		for _, at := range s.Upcoming {
			cmd.Printf("  - %s\n", formatTime(at))
		}
	}
	return nil
}
