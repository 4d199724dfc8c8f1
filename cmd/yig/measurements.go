package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func NewMeasurementsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "measurements",
		Aliases: []string{"ms"},
		Short:   "List, export and delete stored measurements",
		GroupID: gBench,
	}

	cmd.AddCommand(
		newMeasurementsListCommand(),
		newMeasurementsGetCommand(),
		newMeasurementsPlotCommand(),
		newMeasurementsRemoveCommand(),
	)
	return cmd
}

func newMeasurementsListCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List stored measurements, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := apiClient.ListMeasurements(limit)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				cmd.Println("No measurements stored.")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tSTATE\tCREATED\tFINISHED\tPOINTS")
			for _, m := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
					m.ID, m.MeasureType, stateText(string(m.State)), formatTime(m.CreatedAt), formatTime(m.FinishedAt), m.Request.FreqPoints)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of measurements (0 for all)")
	return cmd
}

func newMeasurementsGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Print a stored measurement as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := apiClient.GetMeasurement(args[0])
			if err != nil {
				return err
			}
			b, err := json.MarshalIndent(rec, "", "  ")
			if err != nil {
				return err
			}
			cmd.Println(string(b))
			return nil
		},
	}
}

func newMeasurementsPlotCommand() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "plot <id>",
		Short: "Render a stored measurement to PNG",
		Long: `Render a stored measurement to PNG.

Chopper measurements also get a second image with the hot minus cold
difference, named after the output with a -diff suffix.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := apiClient.GetMeasurement(args[0])
			if err != nil {
				return err
			}
			if rec.Result == nil {
				return fmt.Errorf("measurement %s has no data yet (state %s)", rec.ID, rec.State)
			}
			if out == "" {
				out = rec.ID + ".png"
			}
			if err := saveMeasurementPlot(rec.Result, out); err != nil {
				return err
			}
			cmd.Printf("Plot written to %s.\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output path (default <id>.png)")
	return cmd
}

func newMeasurementsRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>...",
		Aliases: []string{"delete"},
		Short:   "Delete stored measurements",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, id := range args {
				if err := apiClient.DeleteMeasurement(id); err != nil {
					return err
				}
				cmd.Printf("Deleted %s.\n", id)
			}
			return nil
		},
	}
}
