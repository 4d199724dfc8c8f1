package run

import (
	"context"
	"errors"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/yigbench/yig/pkg/calibration"
	"github.com/yigbench/yig/pkg/instrument"
	"github.com/yigbench/yig/pkg/sweep"
)

// Mapping converts a frequency setpoint to tuner units.
type Mapping interface {
	FreqToCurrent() calibration.Coefficients
}

// Store persists measurement results. Create is called before the sweep
// starts and Save exactly once when it ends, whatever the outcome.
type Store interface {
	Create(ctx context.Context, measureType MeasureType, req Measurement) (string, error)
	Save(ctx context.Context, result *MeasurementResult) error
}

// MeasurementRun sweeps the YIG filter and reads IF power at each step.
type MeasurementRun struct {
	machine

	req     Measurement
	bench   instrument.Bench
	mapping Mapping
	store   Store
	log     *logrus.Entry
}

// NewMeasurementRun prepares a run. store may be nil.
func NewMeasurementRun(id string, req Measurement, bench instrument.Bench, mapping Mapping, store Store, emit Emitter) *MeasurementRun {
	return &MeasurementRun{
		machine: newMachine(emit),
		req:     req,
		bench:   bench,
		mapping: mapping,
		store:   store,
		log: logrus.WithFields(logrus.Fields{
			"run":  id,
			"kind": KindMeasurement,
		}),
	}
}

// Execute runs the sweep to a terminal state. The returned result holds
// every step completed before the run ended. The error is ErrCancelled
// after cancellation, the instrument error after a failure, or a store
// error when only saving failed.
func (r *MeasurementRun) Execute(ctx context.Context) (*MeasurementResult, error) {
	if err := r.begin(); err != nil {
		return nil, err
	}

	res := &MeasurementResult{
		MeasureType: r.req.MeasureType(),
		StartedAt:   time.Now(),
		Request:     r.req,
	}

	runErr := r.prepare(ctx, res)
	var set *instrument.MeasurementSet
	if runErr == nil {
		set, runErr = r.bench.OpenMeasurement(ctx, r.req.Chopper)
	}
	if runErr == nil {
		runErr = r.sweep(ctx, set, res)
	}

	persistErr := r.cleanup(ctx, set, res, runErr)

	state := r.finish(runErr)
	r.log.WithFields(logrus.Fields{
		"state":       state,
		"measurement": res.ID,
		"elapsed":     time.Since(res.StartedAt).Round(time.Millisecond),
	}).Info("measurement finished")

	if runErr != nil {
		return res, runErr
	}
	return res, persistErr
}

func (r *MeasurementRun) prepare(ctx context.Context, res *MeasurementResult) error {
	if err := r.req.Validate(); err != nil {
		return err
	}
	if r.store == nil {
		return nil
	}
	id, err := r.store.Create(ctx, res.MeasureType, r.req)
	if err != nil {
		return err
	}
	res.ID = id
	r.log = r.log.WithField("measurement", id)
	return nil
}

func (r *MeasurementRun) sweep(ctx context.Context, set *instrument.MeasurementSet, res *MeasurementResult) error {
	plan, err := sweep.BuildLinear(r.req.FreqFrom, r.req.FreqTo, r.req.FreqPoints, sweep.Hertz)
	if err != nil {
		return err
	}
	phases := sweep.ChopperPhases(r.req.Chopper)
	if r.req.Chopper {
		res.Hot, res.Cold = &Bucket{}, &Bucket{}
		if set.Chopper == nil {
			return pkgerrors.New("chopper requested but no chopper switch available")
		}
	}

	total := len(plan) * r.req.PowerPoints * len(phases)
	done := 0
	path := instrument.Path(-1)

	for pi, phase := range phases {
		log := r.log.WithField("phase", phase)

		if want, ok := phasePath(phase); ok && want != path {
			if err := set.Chopper.SetPath(want); err != nil {
				return err
			}
			path = want
		}

		for i, sp := range plan {
			if err := checkCancel(ctx); err != nil {
				return err
			}

			native := r.mapping.FreqToCurrent().Apply(sp.Value)
			if err := set.Tuner.SetPoint(native); err != nil {
				return err
			}

			delay := r.req.Delays.Step
			if i == 0 {
				delay += r.req.Delays.FirstPoint
			}
			if err := settle(ctx, delay); err != nil {
				return err
			}

			step, err := readBurst(set.Meter, sp, r.req.PowerPoints)
			if err != nil {
				return err
			}

			switch phase {
			case sweep.PhaseHot:
				res.Hot.add(step)
			case sweep.PhaseCold:
				res.Cold.add(step)
			default:
				res.Steps = append(res.Steps, step)
			}

			done += r.req.PowerPoints
			pct := percent(done, total)
			r.emit.Stream(Stream{Phase: phase, X: []float64{sp.Value}, Y: []float64{step.Aggregate}, NewPlot: i == 0})
			r.emit.Progress(pct)

			log.WithFields(logrus.Fields{
				"step":     i + 1,
				"setpoint": sp.Value,
				"tuner":    native,
				"power":    step.Aggregate,
			}).Debugf("[%d %%][Time %.3f s][Freq %.6g]", pct, time.Since(res.StartedAt).Seconds(), sp.Value)
		}

		if r.req.Chopper {
			if err := set.Chopper.SetPath(instrument.PathCold); err != nil {
				return err
			}
			path = instrument.PathCold
			if pi < len(phases)-1 {
				if err := settle(ctx, r.req.Delays.Phase); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

// readBurst takes n consecutive power readings at one setpoint.
func readBurst(meter instrument.PowerMeter, sp sweep.Setpoint, n int) (StepResult, error) {
	step := StepResult{
		Setpoint:     sp,
		RawSamples:   make([]float64, 0, n),
		ElapsedTimes: make([]float64, 0, n),
	}
	start := time.Now()
	for j := 0; j < n; j++ {
		p, err := meter.ReadPower()
		if err != nil {
			return StepResult{}, err
		}
		step.RawSamples = append(step.RawSamples, p)
		step.ElapsedTimes = append(step.ElapsedTimes, time.Since(start).Seconds())
	}
	step.Aggregate = stat.Mean(step.RawSamples, nil)
	return step, nil
}

func phasePath(p sweep.ChopperPhase) (instrument.Path, bool) {
	switch p {
	case sweep.PhaseHot:
		return instrument.PathHot, true
	case sweep.PhaseCold:
		return instrument.PathCold, true
	}
	return 0, false
}

// cleanup returns the chopper to its rest position, closes the
// instruments, derives the hot/cold difference and saves the result. It
// runs once on every exit route.
func (r *MeasurementRun) cleanup(ctx context.Context, set *instrument.MeasurementSet, res *MeasurementResult, runErr error) error {
	if set != nil {
		if runErr != nil && set.Chopper != nil {
			if err := set.Chopper.SetPath(instrument.PathCold); err != nil {
				r.log.WithError(err).Warn("failed to return chopper to cold")
			}
		}
		if err := set.Close(); err != nil {
			r.log.WithError(err).Warn("failed to close measurement instruments")
		}
	}

	if res.Hot != nil && res.Cold != nil && len(res.Hot.Power) > 0 && len(res.Cold.Power) > 0 {
		res.Diff = DiffPower(res.Hot.Power, res.Cold.Power)
		r.emit.Diff(res.Hot.Frequency[:len(res.Diff)], res.Diff)
	}

	res.FinishedAt = time.Now()
	res.State = terminalFor(runErr)

	if r.store == nil || res.ID == "" {
		return nil
	}
	// Save even when ctx was cancelled.
	if err := r.store.Save(context.WithoutCancel(ctx), res); err != nil {
		r.log.WithError(err).Error("failed to save measurement")
		return err
	}
	return nil
}

func terminalFor(err error) State {
	switch {
	case err == nil:
		return StateCompleted
	case errors.Is(err, ErrCancelled):
		return StateCancelled
	default:
		return StateFailed
	}
}
