package controller

import (
	"github.com/yigbench/yig/pkg/run"
)

// MeasurementRequest asks for a measurement run. Zero delays select the
// controller defaults.
type MeasurementRequest struct {
	run.Measurement
}

func (r MeasurementRequest) Validate() error {
	return r.Measurement.Validate()
}

// CalibrationRequest asks for a calibration run. Zero delays select the
// controller defaults and an empty File selects the configured
// calibration table.
type CalibrationRequest struct {
	run.Calibration
}

func (r CalibrationRequest) Validate() error {
	return r.Calibration.Validate()
}

// Defaults fill in what a request leaves unset.
type Defaults struct {
	MeasurementDelays run.Delays
	CalibrationDelays run.Delays
	CalibrationFile   string
	// Calibration is the sweep used by scheduled calibrations.
	Calibration run.Calibration
}

func (d Defaults) measurement(r MeasurementRequest) run.Measurement {
	m := r.Measurement
	m.Delays = fillDelays(m.Delays, d.MeasurementDelays)
	return m
}

func (d Defaults) calibration(r CalibrationRequest) run.Calibration {
	c := r.Calibration
	c.Delays = fillDelays(c.Delays, d.CalibrationDelays)
	if c.File == "" {
		c.File = d.CalibrationFile
	}
	return c
}

// fillDelays defaults every zero field of d on its own.
func fillDelays(d, def run.Delays) run.Delays {
	if d.Step == 0 {
		d.Step = def.Step
	}
	if d.FirstPoint == 0 {
		d.FirstPoint = def.FirstPoint
	}
	if d.Phase == 0 {
		d.Phase = def.Phase
	}
	return d
}
