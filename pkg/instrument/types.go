package instrument

import "io"

// Path is a chopper position.
type Path int

const (
	// PathCold is the rest position of the chopper.
	PathCold Path = iota
	PathHot
)

func (p Path) String() string {
	if p == PathHot {
		return "hot"
	}
	return "cold"
}

// Tunable is a device whose physical state follows a commanded value, such
// as the YIG tuning coil driver. Settle delays are owned by the caller.
type Tunable interface {
	io.Closer
	SetPoint(value float64) error
}

// PowerMeter returns one scalar power reading per call.
type PowerMeter interface {
	io.Closer
	ReadPower() (float64, error)
}

// SignalSource is a programmable current/voltage source.
type SignalSource interface {
	io.Closer
	SetCurrent(amps float64) error
	// GetCurrent returns the measured output current.
	GetCurrent() (float64, error)
	// GetVoltage returns the measured output voltage.
	GetVoltage() (float64, error)
	// GetSetCurrent returns the programmed (not measured) current.
	GetSetCurrent() (float64, error)
}

// SpectrumAnalyzer locates and reads the strongest spectral peak.
type SpectrumAnalyzer interface {
	io.Closer
	PeakSearch() error
	PeakPower() (float64, error)
	PeakFrequency() (float64, error)
}

// ChopperSwitch moves the hot/cold chopper.
type ChopperSwitch interface {
	io.Closer
	SetPath(p Path) error
}
