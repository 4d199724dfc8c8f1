package instrument

import (
	"context"
	"math"
	"math/rand"
	"sync"
)

// SimBench is a simulated bench used in demo mode and tests. The YIG
// passband follows a linear current to frequency law with a fixed
// hysteresis offset on falling current; the power meter sees a Gaussian
// passband centred on CenterFreq plus HotExcess dB on the hot path.
type SimBench struct {
	mu sync.Mutex

	Slope      float64 // Hz/A
	Intercept  float64 // Hz
	Hysteresis float64 // Hz subtracted while current is falling
	CenterFreq float64 // Hz
	Bandwidth  float64 // Hz
	FloorDBm   float64
	PeakDBm    float64
	HotExcess  float64 // dB
	Noise      float64 // dB, uniform +-Noise/2
	Resistance float64 // ohm

	rng         *rand.Rand
	current     float64
	falling     bool
	tuned       float64
	path        Path
	openCount   int
	closedCount int
}

var _ Bench = &SimBench{}

// NewSimBench returns a simulated bench close to the real filter.
func NewSimBench(seed int64) *SimBench {
	return &SimBench{
		Slope:      3.49015508e10,
		Intercept:  1.14176903e8,
		Hysteresis: 5e6,
		CenterFreq: 3.5e9,
		Bandwidth:  1.5e9,
		FloorDBm:   -45,
		PeakDBm:    -20,
		HotExcess:  3,
		Noise:      0.05,
		Resistance: 4.7,
		rng:        rand.New(rand.NewSource(seed)),
	}
}

// Handles returns how many instrument handles were opened and closed.
func (s *SimBench) Handles() (opened, closed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openCount, s.closedCount
}

// Current returns the programmed source current.
func (s *SimBench) Current() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// SetInitialCurrent programs the source without going through a handle.
func (s *SimBench) SetInitialCurrent(amps float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = amps
}

func (s *SimBench) OpenMeasurement(_ context.Context, chopper bool) (*MeasurementSet, error) {
	set := &MeasurementSet{
		Tuner: &simTuner{simHandle: s.newHandle()},
		Meter: &simMeter{simHandle: s.newHandle()},
	}
	if chopper {
		set.Chopper = &simChopper{simHandle: s.newHandle()}
	}
	return set, nil
}

func (s *SimBench) OpenCalibration(_ context.Context) (*CalibrationSet, error) {
	return &CalibrationSet{
		Source:   &simSource{simHandle: s.newHandle()},
		Analyzer: &simAnalyzer{simHandle: s.newHandle()},
	}, nil
}

func (s *SimBench) newHandle() simHandle {
	s.mu.Lock()
	s.openCount++
	s.mu.Unlock()
	return simHandle{bench: s, once: &sync.Once{}}
}

func (s *SimBench) noiseLocked() float64 {
	if s.Noise == 0 {
		return 0
	}
	return (s.rng.Float64() - 0.5) * s.Noise
}

func (s *SimBench) peakFreqLocked() float64 {
	f := s.Slope*s.current + s.Intercept
	if s.falling {
		f -= s.Hysteresis
	}
	return f
}

type simHandle struct {
	bench *SimBench
	once  *sync.Once
}

func (h simHandle) Close() error {
	h.once.Do(func() {
		h.bench.mu.Lock()
		h.bench.closedCount++
		h.bench.mu.Unlock()
	})
	return nil
}

type simTuner struct{ simHandle }

func (t *simTuner) SetPoint(value float64) error {
	t.bench.mu.Lock()
	defer t.bench.mu.Unlock()
	t.bench.tuned = value
	return nil
}

type simMeter struct{ simHandle }

func (m *simMeter) ReadPower() (float64, error) {
	s := m.bench
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.Slope*s.tuned + s.Intercept
	x := (f - s.CenterFreq) / s.Bandwidth
	p := s.FloorDBm + (s.PeakDBm-s.FloorDBm)*math.Exp(-x*x)
	if s.path == PathHot {
		p += s.HotExcess
	}
	return p + s.noiseLocked(), nil
}

type simChopper struct{ simHandle }

func (c *simChopper) SetPath(p Path) error {
	c.bench.mu.Lock()
	defer c.bench.mu.Unlock()
	c.bench.path = p
	return nil
}

type simSource struct{ simHandle }

func (src *simSource) SetCurrent(amps float64) error {
	s := src.bench
	s.mu.Lock()
	defer s.mu.Unlock()
	if amps != s.current {
		s.falling = amps < s.current
	}
	s.current = amps
	return nil
}

func (src *simSource) GetCurrent() (float64, error) {
	s := src.bench
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current * (1 + s.noiseLocked()*1e-3), nil
}

func (src *simSource) GetVoltage() (float64, error) {
	s := src.bench
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current * s.Resistance, nil
}

func (src *simSource) GetSetCurrent() (float64, error) {
	s := src.bench
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, nil
}

type simAnalyzer struct{ simHandle }

func (a *simAnalyzer) PeakSearch() error { return nil }

func (a *simAnalyzer) PeakPower() (float64, error) {
	s := a.bench
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.PeakDBm + s.noiseLocked(), nil
}

func (a *simAnalyzer) PeakFrequency() (float64, error) {
	s := a.bench
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peakFreqLocked(), nil
}
