package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yigbench/yig/pkg/events"
)

// followRun prints the events of run id until its result arrives. The
// first interrupt asks the daemon to stop the run; the result is still
// awaited.
func followRun(cmd *cobra.Command, ch <-chan events.Event, id string) (*events.ResultEvent, error) {
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigc)

	p := newProgressPrinter(cmd)
	for {
		select {
		case <-sigc:
			cmd.Println("\nStopping run...")
			if _, err := apiClient.StopRun(); err != nil {
				logrus.WithError(err).Warn("failed to stop run")
			}
		case ev, ok := <-ch:
			if !ok {
				return nil, fmt.Errorf("event stream closed before run %s finished", id)
			}
			res, done := p.handle(ev, id)
			if done {
				return res, nil
			}
		}
	}
}

// progressPrinter renders run events as progress lines.
type progressPrinter struct {
	cmd   *cobra.Command
	start time.Time
	lastX float64
	label string
}

func newProgressPrinter(cmd *cobra.Command) *progressPrinter {
	return &progressPrinter{cmd: cmd, start: time.Now(), label: "Freq"}
}

// handle prints ev if it belongs to run id, or to any run when id is
// empty. It reports the result event once the run is over.
func (p *progressPrinter) handle(ev events.Event, id string) (*events.ResultEvent, bool) {
	switch ev.Name {
	case events.RunState:
		e, err := events.DecodeAs[events.StateEvent](ev)
		if err != nil || !matches(id, e.RunID) {
			return nil, false
		}
		if e.Kind == "calibration" {
			p.label = "Current"
		} else {
			p.label = "Freq"
		}
		msg := fmt.Sprintf("%s run %s: %s -> %s", e.Kind, short(e.RunID), e.From, stateText(e.To))
		if e.Error != "" {
			msg += ": " + e.Error
		}
		p.cmd.Println(msg)
	case events.RunStream:
		e, err := events.DecodeAs[events.StreamEvent](ev)
		if err != nil || !matches(id, e.RunID) || len(e.X) == 0 {
			return nil, false
		}
		p.lastX = e.X[len(e.X)-1]
	case events.RunProgress:
		e, err := events.DecodeAs[events.ProgressEvent](ev)
		if err != nil || !matches(id, e.RunID) {
			return nil, false
		}
		p.cmd.Printf("[%3d %%][Time %6.1f s][%s %s]\n", e.Percent, time.Since(p.start).Seconds(), p.label, p.formatX())
	case events.RunDiff:
		e, err := events.DecodeAs[events.DiffEvent](ev)
		if err != nil || !matches(id, e.RunID) {
			return nil, false
		}
		p.cmd.Printf("hot - cold difference computed over %d points\n", len(e.Y))
	case events.RunResult:
		e, err := events.DecodeAs[events.ResultEvent](ev)
		if err != nil || !matches(id, e.RunID) {
			return nil, false
		}
		return &e, true
	case events.CalibrationUpdated:
		e, err := events.DecodeAs[events.CalibrationUpdatedEvent](ev)
		if err != nil {
			return nil, false
		}
		p.cmd.Printf("calibration updated (%s): current->freq %s\n", e.Source, e.CurrentToFreq)
	case events.ScheduleAction:
		e, err := events.DecodeAs[events.ScheduleActionEvent](ev)
		if err != nil {
			return nil, false
		}
		p.cmd.Printf("schedule %s: %s\n", e.Action, e.Message)
	}
	return nil, false
}

func (p *progressPrinter) formatX() string {
	if p.label == "Current" {
		return fmt.Sprintf("%.4f A", p.lastX)
	}
	return fmt.Sprintf("%.4f GHz", p.lastX/1e9)
}

func matches(want, got string) bool {
	return want == "" || want == got
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func stateText(s string) string {
	switch s {
	case "Completed":
		return color.GreenString(s)
	case "Failed":
		return color.RedString(s)
	case "Cancelled":
		return color.YellowString(s)
	}
	return s
}

// subscribe opens the event stream before a run is started so no event
// of the run is missed.
func subscribe(follow bool) (<-chan events.Event, context.CancelFunc, error) {
	if !follow {
		return nil, func() {}, nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := apiClient.Events(ctx)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("failed to subscribe to daemon events: %w", err)
	}
	return ch, cancel, nil
}

func resultError(res *events.ResultEvent) error {
	if res.State == "Completed" && res.Error == "" {
		return nil
	}
	if res.Error != "" {
		return fmt.Errorf("run %s %s: %s", short(res.RunID), res.State, res.Error)
	}
	return fmt.Errorf("run %s %s", short(res.RunID), res.State)
}
