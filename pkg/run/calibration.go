package run

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yigbench/yig/pkg/calibration"
	"github.com/yigbench/yig/pkg/instrument"
	"github.com/yigbench/yig/pkg/sweep"
)

// Fitter takes the samples of a completed calibration sweep.
type Fitter interface {
	Fit(samples []calibration.Sample) (calibration.State, error)
	Save(samples []calibration.Sample, path string) error
}

// CalibrationRun ramps the coil current up then down and records the
// spectrum analyzer peak at every step. The source is returned to its
// pre-run current however the run ends.
type CalibrationRun struct {
	machine

	req    Calibration
	bench  instrument.Bench
	fitter Fitter
	log    *logrus.Entry
}

func NewCalibrationRun(id string, req Calibration, bench instrument.Bench, fitter Fitter, emit Emitter) *CalibrationRun {
	return &CalibrationRun{
		machine: newMachine(emit),
		req:     req,
		bench:   bench,
		fitter:  fitter,
		log: logrus.WithFields(logrus.Fields{
			"run":  id,
			"kind": KindCalibration,
		}),
	}
}

// Execute runs the sweep to a terminal state. Only a completed sweep is
// fitted and written to the calibration table; a fit or save failure is
// returned while the run itself stays Completed.
func (r *CalibrationRun) Execute(ctx context.Context) (*CalibrationResult, error) {
	if err := r.begin(); err != nil {
		return nil, err
	}

	res := &CalibrationResult{
		StartedAt: time.Now(),
		Request:   r.req,
	}

	var set *instrument.CalibrationSet
	runErr := r.req.Validate()
	if runErr == nil {
		set, runErr = r.bench.OpenCalibration(ctx)
	}
	if runErr == nil {
		runErr = r.sweep(ctx, set, res)
	}
	if set != nil {
		if err := set.Close(); err != nil {
			r.log.WithError(err).Warn("failed to close calibration instruments")
		}
	}

	res.FinishedAt = time.Now()
	res.State = terminalFor(runErr)

	var postErr error
	if runErr == nil && r.fitter != nil {
		postErr = r.fit(res)
	}

	state := r.finish(runErr)
	r.log.WithFields(logrus.Fields{
		"state":   state,
		"samples": len(res.Samples),
		"elapsed": time.Since(res.StartedAt).Round(time.Millisecond),
	}).Info("calibration finished")

	if runErr != nil {
		return res, runErr
	}
	return res, postErr
}

func (r *CalibrationRun) sweep(ctx context.Context, set *instrument.CalibrationSet, res *CalibrationResult) (err error) {
	plan, err := sweep.BuildBidirectional(r.req.CurrentFrom, r.req.CurrentTo, r.req.Points, sweep.Ampere)
	if err != nil {
		return err
	}

	initial, err := set.Source.GetSetCurrent()
	if err != nil {
		return err
	}
	res.InitialCurrent = initial
	r.log.WithField("current", initial).Debug("remembered initial source current")

	defer func() {
		if rerr := set.Source.SetCurrent(initial); rerr != nil {
			r.log.WithError(rerr).Error("failed to restore source current")
			if err == nil {
				err = rerr
			}
			return
		}
		r.log.WithField("current", initial).Info("restored source current")
	}()

	for i, sp := range plan {
		if err := checkCancel(ctx); err != nil {
			return err
		}

		if err := set.Source.SetCurrent(sp.Value); err != nil {
			return err
		}

		delay := r.req.Delays.Step
		if i == 0 {
			delay += r.req.Delays.FirstPoint
		}
		if err := settle(ctx, delay); err != nil {
			return err
		}

		sample, err := readPeak(set, sp.Value)
		if err != nil {
			return err
		}
		res.Samples = append(res.Samples, sample)

		step := i + 1
		pct := percent(step, len(plan))
		r.emit.Stream(Stream{X: []float64{sample.CurrentGet}, Y: []float64{sample.Frequency}, NewPlot: step == 1})
		r.emit.Progress(pct)

		r.log.WithFields(logrus.Fields{
			"step":      step,
			"setpoint":  sp.Value,
			"current":   sample.CurrentGet,
			"voltage":   sample.VoltageGet,
			"power":     sample.Power,
			"frequency": sample.Frequency,
		}).Debugf("[%d %%][Time %.3f s][Curr %.6g]", pct, time.Since(res.StartedAt).Seconds(), sp.Value)
	}

	return nil
}

func readPeak(set *instrument.CalibrationSet, currentSet float64) (calibration.Sample, error) {
	s := calibration.Sample{CurrentSet: currentSet}
	var err error
	if s.CurrentGet, err = set.Source.GetCurrent(); err != nil {
		return s, err
	}
	if s.VoltageGet, err = set.Source.GetVoltage(); err != nil {
		return s, err
	}
	if err = set.Analyzer.PeakSearch(); err != nil {
		return s, err
	}
	if s.Power, err = set.Analyzer.PeakPower(); err != nil {
		return s, err
	}
	if s.Frequency, err = set.Analyzer.PeakFrequency(); err != nil {
		return s, err
	}
	return s, nil
}

func (r *CalibrationRun) fit(res *CalibrationResult) error {
	st, fitErr := r.fitter.Fit(res.Samples)
	if fitErr != nil && !errors.Is(fitErr, calibration.ErrPersistence) {
		r.log.WithError(fitErr).Error("failed to fit calibration")
		return fitErr
	}
	res.Fit = &st

	if err := r.fitter.Save(res.Samples, r.req.File); err != nil {
		r.log.WithError(err).Error("failed to save calibration table")
		return errors.Join(fitErr, err)
	}
	return fitErr
}
