package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func NewWatchCommand() *cobra.Command {
	var runID string

	cmd := &cobra.Command{
		Use:     "watch",
		Short:   "Print live events from the daemon",
		Long:    `Print run progress, state changes, calibration updates and schedule actions as they happen. Reconnects when the daemon restarts.`,
		GroupID: gBench,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			p := newProgressPrinter(cmd)
			for ev := range apiClient.SubscribeEvents(ctx) {
				res, done := p.handle(ev, runID)
				if !done {
					continue
				}
				if err := resultError(res); err != nil {
					cmd.Println(err)
				} else {
					cmd.Printf("run %s completed\n", short(res.RunID))
				}
				if runID != "" {
					return nil
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "only show events of this run and exit when it ends")
	return cmd
}
