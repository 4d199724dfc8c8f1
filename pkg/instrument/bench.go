package instrument

import (
	"context"
	"errors"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// BenchConfig holds the addresses of the bench instruments.
type BenchConfig struct {
	// PrologixPort is the serial port of the GPIB controller that reaches
	// the current source and the spectrum analyzer.
	PrologixPort    string
	KeithleyAddress int
	SpectrumAddress int
	// NRXAddress and TunerAddress are LXI hosts, optionally with a port.
	NRXAddress      string
	NRXFilterTime   time.Duration
	NRXApertureTime time.Duration
	TunerAddress    string
	TunerGain       float64
	TunerOffset     float64
	ChopperPort     string
	// ReadTimeout bounds transport reads. Zero leaves them unbounded.
	ReadTimeout time.Duration
}

// MeasurementSet is the set of instruments a measurement run drives.
// Chopper is nil when the run does not switch hot/cold.
type MeasurementSet struct {
	Tuner   Tunable
	Meter   PowerMeter
	Chopper ChopperSwitch
}

// Close closes every instrument in the set and reports all failures.
func (s *MeasurementSet) Close() error {
	var errs []error
	if s.Meter != nil {
		errs = append(errs, s.Meter.Close())
	}
	if s.Tuner != nil {
		errs = append(errs, s.Tuner.Close())
	}
	if s.Chopper != nil {
		errs = append(errs, s.Chopper.Close())
	}
	return errors.Join(errs...)
}

// CalibrationSet is the set of instruments a calibration run drives.
type CalibrationSet struct {
	Source   SignalSource
	Analyzer SpectrumAnalyzer
}

// Close closes every instrument in the set and reports all failures.
func (s *CalibrationSet) Close() error {
	var errs []error
	if s.Source != nil {
		errs = append(errs, s.Source.Close())
	}
	if s.Analyzer != nil {
		errs = append(errs, s.Analyzer.Close())
	}
	return errors.Join(errs...)
}

// Bench opens the instrument sets used by runs.
type Bench interface {
	OpenMeasurement(ctx context.Context, chopper bool) (*MeasurementSet, error)
	OpenCalibration(ctx context.Context) (*CalibrationSet, error)
}

// HardwareBench opens the physical instruments.
type HardwareBench struct {
	cfg BenchConfig
}

var _ Bench = &HardwareBench{}

func NewHardwareBench(cfg BenchConfig) *HardwareBench {
	return &HardwareBench{cfg: cfg}
}

func (b *HardwareBench) OpenMeasurement(ctx context.Context, chopper bool) (*MeasurementSet, error) {
	set := &MeasurementSet{}

	nrxConn, err := DialLXI(ctx, b.cfg.NRXAddress, b.cfg.ReadTimeout)
	if err != nil {
		return nil, wrap("nrx", "open", err)
	}
	nrx := NewNRX(nrxConn)
	set.Meter = nrx
	if err := nrx.Init(b.cfg.NRXFilterTime, b.cfg.NRXApertureTime); err != nil {
		_ = set.Close()
		return nil, err
	}

	tunerConn, err := DialLXI(ctx, b.cfg.TunerAddress, b.cfg.ReadTimeout)
	if err != nil {
		_ = set.Close()
		return nil, wrap("yig-tuner", "open", err)
	}
	tuner := NewDACTuner(tunerConn)
	if b.cfg.TunerGain != 0 {
		tuner.Gain = b.cfg.TunerGain
	}
	tuner.Offset = b.cfg.TunerOffset
	set.Tuner = tuner

	if chopper {
		c, err := OpenChopper(b.cfg.ChopperPort, b.cfg.ReadTimeout)
		if err != nil {
			_ = set.Close()
			return nil, wrap("chopper", "open", err)
		}
		set.Chopper = c
	}

	logrus.WithFields(logrus.Fields{
		"nrx":     b.cfg.NRXAddress,
		"tuner":   b.cfg.TunerAddress,
		"chopper": chopper,
	}).Info("measurement instruments opened")

	return set, nil
}

func (b *HardwareBench) OpenCalibration(_ context.Context) (*CalibrationSet, error) {
	if b.cfg.PrologixPort == "" {
		return nil, wrap("prologix", "open", pkgerrors.New("no prologix port configured"))
	}
	ctrl, err := OpenPrologix(b.cfg.PrologixPort, b.cfg.ReadTimeout)
	if err != nil {
		return nil, wrap("prologix", "open", err)
	}

	set := &CalibrationSet{
		Source:   NewKeithley(ctrl.Device(b.cfg.KeithleyAddress)),
		Analyzer: NewFSEK(ctrl.Device(b.cfg.SpectrumAddress)),
	}

	logrus.WithFields(logrus.Fields{
		"port":     b.cfg.PrologixPort,
		"keithley": b.cfg.KeithleyAddress,
		"spectrum": b.cfg.SpectrumAddress,
	}).Info("calibration instruments opened")

	return set, nil
}
