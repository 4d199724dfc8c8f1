package calibration

import (
	"fmt"
	"time"
)

// Coefficients is a linear mapping y = Slope*x + Intercept.
type Coefficients struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
}

// Apply evaluates the mapping at x.
func (c Coefficients) Apply(x float64) float64 {
	return c.Slope*x + c.Intercept
}

func (c Coefficients) String() string {
	return fmt.Sprintf("%.8e*x %+.8e", c.Slope, c.Intercept)
}

// Sample is one step of a calibration sweep.
type Sample struct {
	CurrentSet float64 `json:"currentSet"`
	CurrentGet float64 `json:"currentGet"`
	VoltageGet float64 `json:"voltageGet"`
	Power      float64 `json:"power"`
	Frequency  float64 `json:"frequency"`
}

// Source tells where the coefficients in use came from.
type Source string

const (
	SourceDefault Source = "Default"
	SourceRun     Source = "CalibrationRun"
	SourceFile    Source = "CalibrationFile"
)

// State is the persisted coefficient state.
type State struct {
	FreqToCurrent Coefficients `json:"freqToCurrent"`
	CurrentToFreq Coefficients `json:"currentToFreq"`
	UpdatedAt     time.Time    `json:"updatedAt"`
	Source        Source       `json:"source"`
	// File is the calibration table the coefficients were fitted from, if any.
	File string `json:"file,omitempty"`
}

// Factory coefficients of the bench filter.
var (
	DefaultCurrentToFreq = Coefficients{Slope: 3.49015508e10, Intercept: 1.14176903e8}
	DefaultFreqToCurrent = Coefficients{Slope: 2.86513427e-11, Intercept: -3.26694024e-3}
)

// DefaultState returns the factory state.
func DefaultState() State {
	return State{
		FreqToCurrent: DefaultFreqToCurrent,
		CurrentToFreq: DefaultCurrentToFreq,
		Source:        SourceDefault,
	}
}
