package main

import (
	"encoding/json"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/yigbench/yig/pkg/calibration"
	"github.com/yigbench/yig/pkg/controller"
	"github.com/yigbench/yig/pkg/daemon"
)

type statusJSON struct {
	controller.Status
	Schedule *daemon.ScheduleResponse `json:"schedule,omitempty"`
}

func NewStatusCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "status",
		GroupID: gBench,
		Short:   "Get the current status of the bench",
		Long:    `Show the active or last run, the calibration in use and the calibration schedule.`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := apiClient.GetStatus()
			if err != nil {
				return err
			}
			// The schedule is optional, old daemons may not know it.
			var sched *daemon.ScheduleResponse
			if s, err := apiClient.GetSchedule(); err == nil {
				sched = &s
			}

			if asJSON {
				b, err := json.MarshalIndent(statusJSON{Status: st, Schedule: sched}, "", "  ")
				if err != nil {
					return err
				}
				cmd.Println(string(b))
				return nil
			}

			cmd.Println(bold("Run:"))
			switch {
			case st.Run == nil:
				cmd.Println("  No run since the daemon started.")
			default:
				r := st.Run
				if st.Active {
					cmd.Printf("  Active: %s\n", bool2Text(true))
				} else {
					cmd.Printf("  Active: %s (showing last run)\n", bool2Text(false))
				}
				cmd.Printf("  ID: %s\n", bold("%s", r.ID))
				cmd.Printf("  Kind: %s\n", r.Kind)
				cmd.Printf("  State: %s\n", bold("%s", stateText(string(r.State))))
				cmd.Printf("  Progress: %s\n", bold("%d%%", r.Percent))
				cmd.Printf("  Started: %s\n", formatTime(r.StartedAt))
				if !r.FinishedAt.IsZero() {
					cmd.Printf("  Finished: %s (%s)\n", formatTime(r.FinishedAt), r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
				}
				if r.Error != "" {
					cmd.Printf("  Last error: %s\n", color.RedString(r.Error))
				}
			}
			cmd.Println()

			printCalibration(cmd, st.Calibration)

			if sched != nil {
				cmd.Println()
				printSchedule(cmd, *sched)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print status as JSON")
	return cmd
}

func printCalibration(cmd *cobra.Command, st calibration.State) {
	cmd.Println(bold("Calibration:"))
	cmd.Printf("  Source: %s\n", bold("%s", st.Source))
	if st.File != "" {
		cmd.Printf("  File: %s\n", st.File)
	}
	cmd.Printf("  Frequency -> current: %s\n", bold("%s", st.FreqToCurrent))
	cmd.Printf("  Current -> frequency: %s\n", bold("%s", st.CurrentToFreq))
	cmd.Printf("  Updated: %s\n", formatTime(st.UpdatedAt))
}

func printSchedule(cmd *cobra.Command, s daemon.ScheduleResponse) {
	cmd.Println(bold("Calibration schedule:"))
	if s.Cron == "" {
		cmd.Println("  Not set.")
		return
	}
	cmd.Printf("  Cron: %s\n", bold("%s", s.Cron))
	cmd.Printf("  Enabled: %s\n", bool2Text(s.Running))
	cmd.Printf("  Next run: %s\n", formatTime(s.NextRun))
}

func bool2Text(b bool) string {
	if b {
		return color.New(color.Bold, color.FgGreen).Sprint("✔")
	}
	return color.New(color.Bold, color.FgRed).Sprint("✘")
}

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}
