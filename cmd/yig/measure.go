package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/yigbench/yig/pkg/controller"
	"github.com/yigbench/yig/pkg/plot"
	"github.com/yigbench/yig/pkg/run"
)

func NewMeasureCommand() *cobra.Command {
	var (
		req      controller.MeasurementRequest
		follow   bool
		plotPath string
	)

	cmd := &cobra.Command{
		Use:   "measure",
		Short: "Sweep the YIG filter and record IF power",
		Long: `Sweep the tuned frequency from --from to --to and read the IF power at each point.

With --chopper the sweep runs twice, first on the hot path and then on the cold
path, and the daemon computes the hot minus cold difference. Delays left at zero
take the daemon defaults.`,
		Example: `  yig measure --from 1e9 --to 6e9 --points 100
  yig measure --chopper --points 50 --plot sweep.png`,
		GroupID: gBench,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if plotPath != "" {
				follow = true
			}

			ch, cancel, err := subscribe(follow)
			if err != nil {
				return err
			}
			defer cancel()

			started, err := apiClient.StartMeasurement(req)
			if err != nil {
				return err
			}
			cmd.Printf("Measurement %s started.\n", started.ID)
			if !follow {
				return nil
			}

			res, err := followRun(cmd, ch, started.ID)
			if err != nil {
				return err
			}
			if res.MeasurementID != "" {
				cmd.Printf("Stored as measurement %s.\n", res.MeasurementID)
			}
			if plotPath != "" && len(res.Result) > 0 {
				var m run.MeasurementResult
				if err := json.Unmarshal(res.Result, &m); err != nil {
					return fmt.Errorf("failed to decode measurement result: %w", err)
				}
				if err := saveMeasurementPlot(&m, plotPath); err != nil {
					return err
				}
				cmd.Printf("Plot written to %s.\n", plotPath)
			}
			return resultError(res)
		},
	}

	f := cmd.Flags()
	f.Float64Var(&req.FreqFrom, "from", 1e9, "start frequency in Hz")
	f.Float64Var(&req.FreqTo, "to", 6e9, "stop frequency in Hz")
	f.IntVar(&req.FreqPoints, "points", 100, "number of frequency points")
	f.IntVar(&req.PowerPoints, "power-points", 10, "power readings averaged per point")
	f.BoolVar(&req.Chopper, "chopper", false, "measure hot and cold paths")
	f.DurationVar(&req.Delays.Step, "step-delay", 0, "settle time per point (0 for daemon default)")
	f.DurationVar(&req.Delays.FirstPoint, "first-point-delay", 0, "extra settle time on the first point of a phase (0 for daemon default)")
	f.DurationVar(&req.Delays.Phase, "phase-delay", 0, "pause between hot and cold phases (0 for daemon default)")
	f.BoolVarP(&follow, "follow", "f", false, "print progress until the run ends")
	f.StringVar(&plotPath, "plot", "", "write a PNG of the result to this path (implies --follow)")

	return cmd
}

func NewStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "stop",
		Short:   "Stop the active run",
		GroupID: gBench,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := apiClient.StopRun()
			if err != nil {
				return err
			}
			cmd.Printf("Stop requested for %s run %s.\n", st.Kind, st.ID)
			return nil
		},
	}
}

// saveMeasurementPlot writes the power plot to path and, for chopper
// runs, the difference plot next to it.
func saveMeasurementPlot(m *run.MeasurementResult, path string) error {
	p, err := plot.Measurement(m)
	if err != nil {
		return err
	}
	if err := plot.SavePNG(path, p); err != nil {
		return err
	}
	if len(m.Diff) == 0 {
		return nil
	}
	d, err := plot.Diff(m)
	if err != nil {
		return err
	}
	return plot.SavePNG(diffPath(path), d)
}

func diffPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "-diff" + ext
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}
