package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yigbench/yig/pkg/controller"
	"github.com/yigbench/yig/pkg/run"
)

func NewCalibrateCommand() *cobra.Command {
	var (
		req    controller.CalibrationRequest
		follow bool
	)

	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Sweep the tuning current and fit the current to frequency law",
		Long: `Sweep the source current up from --from to --to and back down, read the
spectrum analyzer peak at each point and refit both mappings when the sweep
completes. The source current is restored afterwards. The samples are written
to --file on the daemon host, or to the configured calibration table.`,
		GroupID: gCalibration,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ch, cancel, err := subscribe(follow)
			if err != nil {
				return err
			}
			defer cancel()

			started, err := apiClient.StartCalibration(req)
			if err != nil {
				return err
			}
			cmd.Printf("Calibration %s started.\n", started.ID)
			if !follow {
				return nil
			}

			res, err := followRun(cmd, ch, started.ID)
			if err != nil {
				return err
			}
			if len(res.Result) > 0 {
				var c run.CalibrationResult
				if err := json.Unmarshal(res.Result, &c); err != nil {
					return fmt.Errorf("failed to decode calibration result: %w", err)
				}
				cmd.Printf("%d samples, initial current %.4f A restored.\n", len(c.Samples), c.InitialCurrent)
				if c.Fit != nil {
					cmd.Println()
					printCalibration(cmd, *c.Fit)
				}
			}
			return resultError(res)
		},
	}

	f := cmd.Flags()
	f.Float64Var(&req.CurrentFrom, "from", 0, "start current in A")
	f.Float64Var(&req.CurrentTo, "to", 0.1, "peak current in A")
	f.IntVar(&req.Points, "points", 100, "points per direction")
	f.DurationVar(&req.Delays.Step, "step-delay", 0, "settle time per point (0 for daemon default)")
	f.DurationVar(&req.Delays.FirstPoint, "first-point-delay", 0, "extra settle time on the first point (0 for daemon default)")
	f.StringVar(&req.File, "file", "", "calibration table on the daemon host (default from config)")
	f.BoolVarP(&follow, "follow", "f", true, "print progress until the run ends")

	return cmd
}
