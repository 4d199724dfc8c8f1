package controller

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yigbench/yig/pkg/events"
	"github.com/yigbench/yig/pkg/run"
)

const handleBuffer = 64

// Diff is the final hot minus cold trace of a chopper run.
type Diff struct {
	X []float64
	Y []float64
}

// Outcome is delivered once on Handle.Result when a run ends.
type Outcome struct {
	State       run.State
	Err         error
	Measurement *run.MeasurementResult
	Calibration *run.CalibrationResult
}

// Handle is the caller's view of a started run. Event channels are
// buffered and never block the run; a slow reader misses events. Result
// receives exactly one Outcome and Done is closed afterwards.
type Handle struct {
	ID        string
	Kind      run.Kind
	StartedAt time.Time

	cancel   context.CancelFunc
	hub      *events.EventHub
	progress chan int
	stream   chan run.Stream
	diff     chan Diff
	result   chan Outcome
	done     chan struct{}

	mu         sync.Mutex
	state      run.State
	percent    int
	err        error
	finishedAt time.Time
}

var _ run.Emitter = emitter{}

func newHandle(id string, kind run.Kind, cancel context.CancelFunc, hub *events.EventHub) *Handle {
	return &Handle{
		ID:        id,
		Kind:      kind,
		StartedAt: time.Now(),
		cancel:    cancel,
		hub:       hub,
		progress:  make(chan int, handleBuffer),
		stream:    make(chan run.Stream, handleBuffer),
		diff:      make(chan Diff, 1),
		result:    make(chan Outcome, 1),
		done:      make(chan struct{}),
		state:     run.StateIdle,
	}
}

// Cancel requests cooperative cancellation. The run observes it at its
// next step or settle delay.
func (h *Handle) Cancel() { h.cancel() }

func (h *Handle) Progress() <-chan int      { return h.progress }
func (h *Handle) Stream() <-chan run.Stream { return h.stream }
func (h *Handle) Diff() <-chan Diff         { return h.diff }
func (h *Handle) Result() <-chan Outcome    { return h.result }
func (h *Handle) Done() <-chan struct{}     { return h.done }

// Wait blocks until the run has ended or ctx is done.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunStatus is a snapshot of one run.
type RunStatus struct {
	ID         string    `json:"id"`
	Kind       run.Kind  `json:"kind"`
	State      run.State `json:"state"`
	Percent    int       `json:"percent"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt,omitempty"`
}

func (h *Handle) Status() RunStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	st := RunStatus{
		ID:         h.ID,
		Kind:       h.Kind,
		State:      h.state,
		Percent:    h.percent,
		StartedAt:  h.StartedAt,
		FinishedAt: h.finishedAt,
	}
	if h.err != nil {
		st.Error = h.err.Error()
	}
	return st
}

// emitter feeds run events into the handle channels and the event hub.
type emitter struct{ h *Handle }

func (e emitter) State(from, to run.State, err error) {
	h := e.h
	h.mu.Lock()
	h.state = to
	if to.Terminal() {
		h.err = err
		h.finishedAt = time.Now()
	}
	h.mu.Unlock()

	ev := events.StateEvent{RunID: h.ID, Kind: string(h.Kind), From: string(from), To: string(to), Ts: time.Now().Unix()}
	if err != nil {
		ev.Error = err.Error()
	}
	h.hub.Publish(events.RunState, ev)
}

func (e emitter) Progress(percent int) {
	h := e.h
	h.mu.Lock()
	h.percent = percent
	h.mu.Unlock()

	select {
	case h.progress <- percent:
	default:
	}
	h.hub.Publish(events.RunProgress, events.ProgressEvent{RunID: h.ID, Percent: percent})
}

func (e emitter) Stream(s run.Stream) {
	h := e.h
	select {
	case h.stream <- s:
	default:
	}
	h.hub.Publish(events.RunStream, events.StreamEvent{RunID: h.ID, Phase: string(s.Phase), X: s.X, Y: s.Y, NewPlot: s.NewPlot})
}

func (e emitter) Diff(x, y []float64) {
	h := e.h
	select {
	case h.diff <- Diff{X: x, Y: y}:
	default:
	}
	h.hub.Publish(events.RunDiff, events.DiffEvent{RunID: h.ID, X: x, Y: y})
}

// deliver publishes the outcome, hands it to Result and closes Done.
func (h *Handle) deliver(o Outcome) {
	ev := events.ResultEvent{RunID: h.ID, Kind: string(h.Kind), State: string(o.State)}
	if o.Err != nil {
		ev.Error = o.Err.Error()
	}
	var payload any
	switch {
	case o.Measurement != nil:
		ev.MeasurementID = o.Measurement.ID
		payload = o.Measurement
	case o.Calibration != nil:
		payload = o.Calibration
	}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			logrus.WithError(err).WithField("run", h.ID).Error("failed to marshal run result")
		} else {
			ev.Result = b
		}
	}

	h.mu.Lock()
	if o.Err != nil {
		h.err = o.Err
	}
	h.mu.Unlock()

	h.hub.Publish(events.RunResult, ev)
	h.result <- o
	close(h.done)
}
