package run

import (
	"errors"
	"time"

	"github.com/yigbench/yig/pkg/calibration"
	"github.com/yigbench/yig/pkg/sweep"
)

// State is the lifecycle state of a run.
type State string

const (
	StateIdle      State = "Idle"
	StateRunning   State = "Running"
	StateCompleted State = "Completed"
	StateCancelled State = "Cancelled"
	StateFailed    State = "Failed"
)

// Terminal reports whether s is a final state.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// Kind distinguishes the two sequencers.
type Kind string

const (
	KindMeasurement Kind = "measurement"
	KindCalibration Kind = "calibration"
)

// MeasureType is the record type handed to the measurement store.
type MeasureType string

const (
	MeasureIFPower        MeasureType = "IF_POWER"
	MeasureChopperIFPower MeasureType = "CHOPPER_IF_POWER"
)

var (
	// ErrCancelled is returned by Execute when the context was cancelled
	// before the sweep finished.
	ErrCancelled = errors.New("run cancelled")
	// ErrNotReusable is returned when Execute is called twice.
	ErrNotReusable = errors.New("run already started")
)

// StepResult is one sweep step: the commanded setpoint, the burst of
// readings taken there and their mean.
type StepResult struct {
	Setpoint sweep.Setpoint `json:"setpoint"`
	// RawSamples are the readings in acquisition order.
	RawSamples []float64 `json:"rawSamples"`
	// ElapsedTimes are seconds since the start of the step, one per sample.
	ElapsedTimes []float64 `json:"elapsedTimes"`
	Aggregate    float64   `json:"aggregate"`
}

// Bucket collects the steps of one chopper phase. Power and Frequency
// mirror Steps for plotting and differencing.
type Bucket struct {
	Steps     []StepResult `json:"steps"`
	Power     []float64    `json:"power"`
	Frequency []float64    `json:"frequency"`
}

func (b *Bucket) add(s StepResult) {
	b.Steps = append(b.Steps, s)
	b.Power = append(b.Power, s.Aggregate)
	b.Frequency = append(b.Frequency, s.Setpoint.Value)
}

// MeasurementResult is the output of a MeasurementRun. Without chopper
// only Steps is set; with chopper Hot, Cold and Diff are.
type MeasurementResult struct {
	ID          string      `json:"id"`
	MeasureType MeasureType `json:"measureType"`
	State       State       `json:"state"`
	StartedAt   time.Time   `json:"startedAt"`
	FinishedAt  time.Time   `json:"finishedAt"`
	Request     Measurement `json:"request"`

	Steps []StepResult `json:"steps,omitempty"`
	Hot   *Bucket      `json:"hot,omitempty"`
	Cold  *Bucket      `json:"cold,omitempty"`
	// Diff is hot minus cold power over the shorter of the two buckets.
	Diff []float64 `json:"diff,omitempty"`
}

// CalibrationResult is the output of a CalibrationRun.
type CalibrationResult struct {
	ID             string      `json:"id"`
	State          State       `json:"state"`
	StartedAt      time.Time   `json:"startedAt"`
	FinishedAt     time.Time   `json:"finishedAt"`
	Request        Calibration `json:"request"`
	InitialCurrent float64     `json:"initialCurrent"`

	Samples []calibration.Sample `json:"samples"`
	// Fit is set when the completed sweep produced new coefficients.
	Fit *calibration.State `json:"fit,omitempty"`
}

// Stream is an incremental result for live display.
type Stream struct {
	Phase   sweep.ChopperPhase
	X       []float64
	Y       []float64
	NewPlot bool
}

// Emitter receives run events. Implementations must not block the
// sequencer.
type Emitter interface {
	State(from, to State, err error)
	Progress(percent int)
	Stream(s Stream)
	Diff(x, y []float64)
}

// NopEmitter discards every event.
type NopEmitter struct{}

func (NopEmitter) State(State, State, error) {}
func (NopEmitter) Progress(int)              {}
func (NopEmitter) Stream(Stream)             {}
func (NopEmitter) Diff([]float64, []float64) {}
