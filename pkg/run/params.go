package run

import (
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/yigbench/yig/pkg/sweep"
)

// Delays are the settle times of a sweep. FirstPoint is added to Step on
// the first point of every phase. Phase separates chopper phases.
type Delays struct {
	Step       time.Duration `json:"step"`
	FirstPoint time.Duration `json:"firstPoint"`
	Phase      time.Duration `json:"phase"`
}

// Measurement parameterizes a MeasurementRun.
type Measurement struct {
	FreqFrom    float64 `json:"freqFrom"`
	FreqTo      float64 `json:"freqTo"`
	FreqPoints  int     `json:"freqPoints"`
	PowerPoints int     `json:"powerPoints"`
	Chopper     bool    `json:"chopper"`
	Delays      Delays  `json:"delays"`
}

func (m Measurement) Validate() error {
	if err := sweep.ValidateRange(m.FreqFrom, m.FreqTo, m.FreqPoints); err != nil {
		return pkgerrors.Wrap(err, "frequency sweep")
	}
	if m.PowerPoints < 1 {
		return pkgerrors.Wrapf(sweep.ErrInvalidRange, "power points must be at least 1, got %d", m.PowerPoints)
	}
	return validateDelays(m.Delays)
}

// MeasureType returns the store record type of the run.
func (m Measurement) MeasureType() MeasureType {
	if m.Chopper {
		return MeasureChopperIFPower
	}
	return MeasureIFPower
}

// Calibration parameterizes a CalibrationRun. File is the calibration
// table written after a completed sweep; empty skips writing it.
type Calibration struct {
	CurrentFrom float64 `json:"currentFrom"`
	CurrentTo   float64 `json:"currentTo"`
	Points      int     `json:"points"`
	Delays      Delays  `json:"delays"`
	File        string  `json:"file,omitempty"`
}

func (c Calibration) Validate() error {
	if err := sweep.ValidateRange(c.CurrentFrom, c.CurrentTo, c.Points); err != nil {
		return pkgerrors.Wrap(err, "current sweep")
	}
	return validateDelays(c.Delays)
}

func validateDelays(d Delays) error {
	if d.Step < 0 || d.FirstPoint < 0 || d.Phase < 0 {
		return pkgerrors.Wrapf(sweep.ErrInvalidRange, "delays must not be negative, got %+v", d)
	}
	return nil
}
