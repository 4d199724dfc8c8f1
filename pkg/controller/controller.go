// Package controller owns the single active run of the bench. It
// validates requests, launches runs in the background and fans their
// events out to the handle and the event hub.
package controller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yigbench/yig/pkg/calibration"
	"github.com/yigbench/yig/pkg/events"
	"github.com/yigbench/yig/pkg/instrument"
	"github.com/yigbench/yig/pkg/run"
)

var (
	ErrAlreadyRunning = errors.New("a run is already active")
	ErrNotRunning     = errors.New("no run is active")
)

// Options configure a Controller. Store and Hub may be nil; a nil Model
// starts from factory coefficients without persistence.
type Options struct {
	Bench    instrument.Bench
	Model    *calibration.Model
	Store    run.Store
	Hub      *events.EventHub
	Defaults Defaults
}

type Controller struct {
	bench    instrument.Bench
	model    *calibration.Model
	store    run.Store
	hub      *events.EventHub
	defaults Defaults

	mu     sync.Mutex
	active *Handle
	last   *Handle
}

func New(opts Options) *Controller {
	c := &Controller{
		bench:    opts.Bench,
		model:    opts.Model,
		store:    opts.Store,
		hub:      opts.Hub,
		defaults: opts.Defaults,
	}
	if c.model == nil {
		c.model = calibration.NewModel("")
	}
	c.model.OnUpdate(func(st calibration.State) {
		c.hub.Publish(events.CalibrationUpdated, events.CalibrationUpdatedEvent{State: st})
	})
	return c
}

// StartMeasurement validates req and starts a measurement run.
func (c *Controller) StartMeasurement(req MeasurementRequest) (*Handle, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	m := c.defaults.measurement(req)

	return c.start(run.KindMeasurement, func(ctx context.Context, h *Handle) Outcome {
		r := run.NewMeasurementRun(h.ID, m, c.bench, c.model, c.store, emitter{h})
		res, err := r.Execute(ctx)
		state, _ := r.State()
		return Outcome{State: state, Err: err, Measurement: res}
	})
}

// StartCalibration validates req and starts a calibration run. A
// completed sweep replaces the model coefficients.
func (c *Controller) StartCalibration(req CalibrationRequest) (*Handle, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	cal := c.defaults.calibration(req)

	return c.start(run.KindCalibration, func(ctx context.Context, h *Handle) Outcome {
		r := run.NewCalibrationRun(h.ID, cal, c.bench, c.model, emitter{h})
		res, err := r.Execute(ctx)
		state, _ := r.State()
		return Outcome{State: state, Err: err, Calibration: res}
	})
}

func (c *Controller) start(kind run.Kind, exec func(ctx context.Context, h *Handle) Outcome) (*Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		return nil, ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := newHandle(uuid.NewString(), kind, cancel, c.hub)
	c.active = h

	logrus.WithFields(logrus.Fields{"run": h.ID, "kind": kind}).Info("run started")

	go func() {
		defer cancel()
		o := exec(ctx, h)

		// Free the slot before the outcome is visible.
		c.mu.Lock()
		c.active = nil
		c.last = h
		c.mu.Unlock()

		h.deliver(o)
	}()

	return h, nil
}

// Stop cancels the active run. It returns once cancellation has been
// requested, not when the run has ended.
func (c *Controller) Stop() (*Handle, error) {
	c.mu.Lock()
	h := c.active
	c.mu.Unlock()

	if h == nil {
		return nil, ErrNotRunning
	}
	logrus.WithField("run", h.ID).Info("stopping run")
	h.Cancel()
	return h, nil
}

// Active returns the running handle or nil.
func (c *Controller) Active() *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Busy reports ErrAlreadyRunning while a run is active.
func (c *Controller) Busy() error {
	if c.Active() != nil {
		return ErrAlreadyRunning
	}
	return nil
}

// Status describes the active run, or the last one when idle.
type Status struct {
	Active      bool              `json:"active"`
	Run         *RunStatus        `json:"run,omitempty"`
	Calibration calibration.State `json:"calibration"`
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	h, active := c.active, c.active != nil
	if h == nil {
		h = c.last
	}
	c.mu.Unlock()

	st := Status{Active: active}
	if h != nil {
		rs := h.Status()
		st.Run = &rs
	}
	st.Calibration = c.model.State()
	return st
}

// ApplyCalibration refits the model from a calibration table. An empty
// path selects the configured table.
func (c *Controller) ApplyCalibration(path string) (calibration.State, error) {
	if path == "" {
		path = c.defaults.CalibrationFile
	}
	if path == "" {
		return c.model.State(), &calibration.Error{Reason: "no calibration file given"}
	}
	return c.model.LoadAndRefit(path)
}

// Shutdown cancels the active run and waits for it to end.
func (c *Controller) Shutdown(ctx context.Context) error {
	h, err := c.Stop()
	if errors.Is(err, ErrNotRunning) {
		return nil
	}
	start := time.Now()
	if err := h.Wait(ctx); err != nil {
		return err
	}
	logrus.WithField("elapsed", time.Since(start).Round(time.Millisecond)).Debug("active run stopped for shutdown")
	return nil
}

// Model returns the calibration model shared by all runs.
func (c *Controller) Model() *calibration.Model {
	return c.model
}

// Schedule actions published on events.ScheduleAction.
const (
	ScheduleUpcoming = "Upcoming"
	ScheduleSkipped  = "Skipped"
	ScheduleFailed   = "Failed"
	ScheduleSet      = "Schedule"
	ScheduleDisabled = "DisableSchedule"
	SchedulePostpone = "Postpone"
	ScheduleSkip     = "Skip"
)

// PublishSchedule announces a schedule change to event subscribers.
func (c *Controller) PublishSchedule(action, msg string) {
	c.hub.Publish(events.ScheduleAction, events.ScheduleActionEvent{Action: action, Message: msg, Ts: time.Now().Unix()})
}

// NewScheduler returns a scheduler that starts the default calibration
// sweep, waiting while another run is active.
func (c *Controller) NewScheduler() *Scheduler {
	publish := c.PublishSchedule
	return NewScheduler(
		func() error {
			_, err := c.StartCalibration(CalibrationRequest{Calibration: c.defaults.Calibration})
			return err
		},
		c.Busy,
		SchedulerHooks{
			Upcoming: func(at time.Time) {
				publish(ScheduleUpcoming, "Calibration starts at "+at.Format(time.DateTime))
			},
			Skipped: func(at time.Time, err error) {
				publish(ScheduleSkipped, "Calibration at "+at.Format(time.DateTime)+" skipped: "+err.Error())
			},
			Failed: func(err error) {
				publish(ScheduleFailed, "Scheduled calibration failed: "+err.Error())
			},
		},
	)
}
