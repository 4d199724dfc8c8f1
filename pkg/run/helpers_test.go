package run

import (
	"context"
	"errors"

	"github.com/yigbench/yig/pkg/calibration"
	"github.com/yigbench/yig/pkg/instrument"
)

// wrappedBench substitutes recording or failing instruments into the sets
// opened by the embedded bench.
type wrappedBench struct {
	instrument.Bench
	tuner             *recordingTuner
	chopper           *recordingChopper
	meterFailAfter    int
	analyzerFailAfter int
}

func (b *wrappedBench) OpenMeasurement(ctx context.Context, chopper bool) (*instrument.MeasurementSet, error) {
	set, err := b.Bench.OpenMeasurement(ctx, chopper)
	if err != nil {
		return nil, err
	}
	if b.tuner != nil {
		b.tuner.Tunable = set.Tuner
		set.Tuner = b.tuner
	}
	if b.chopper != nil && set.Chopper != nil {
		b.chopper.ChopperSwitch = set.Chopper
		set.Chopper = b.chopper
	}
	if b.meterFailAfter > 0 {
		set.Meter = &flakyMeter{PowerMeter: set.Meter, left: b.meterFailAfter}
	}
	return set, nil
}

func (b *wrappedBench) OpenCalibration(ctx context.Context) (*instrument.CalibrationSet, error) {
	set, err := b.Bench.OpenCalibration(ctx)
	if err != nil {
		return nil, err
	}
	if b.analyzerFailAfter > 0 {
		set.Analyzer = &flakyAnalyzer{SpectrumAnalyzer: set.Analyzer, left: b.analyzerFailAfter}
	}
	return set, nil
}

type recordingTuner struct {
	instrument.Tunable
	values []float64
}

func (t *recordingTuner) SetPoint(v float64) error {
	t.values = append(t.values, v)
	return t.Tunable.SetPoint(v)
}

type recordingChopper struct {
	instrument.ChopperSwitch
	paths []instrument.Path
}

func (c *recordingChopper) SetPath(p instrument.Path) error {
	c.paths = append(c.paths, p)
	return c.ChopperSwitch.SetPath(p)
}

var errTimeout = errors.New("timeout")

type flakyMeter struct {
	instrument.PowerMeter
	left int
}

func (m *flakyMeter) ReadPower() (float64, error) {
	if m.left <= 0 {
		return 0, &instrument.Error{Device: "nrx", Operation: "read power", Cause: errTimeout}
	}
	m.left--
	return m.PowerMeter.ReadPower()
}

type flakyAnalyzer struct {
	instrument.SpectrumAnalyzer
	left int
}

func (a *flakyAnalyzer) PeakSearch() error {
	if a.left <= 0 {
		return &instrument.Error{Device: "fsek", Operation: "peak search", Cause: errTimeout}
	}
	a.left--
	return a.SpectrumAnalyzer.PeakSearch()
}

type fakeFitter struct {
	samples  []calibration.Sample
	path     string
	fitErr   error
	fitCalls int
}

func (f *fakeFitter) Fit(samples []calibration.Sample) (calibration.State, error) {
	f.fitCalls++
	if f.fitErr != nil {
		return calibration.State{}, f.fitErr
	}
	f.samples = samples
	return calibration.State{Source: calibration.SourceRun}, nil
}

func (f *fakeFitter) Save(samples []calibration.Sample, path string) error {
	f.path = path
	return nil
}
