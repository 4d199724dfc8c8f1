package events

import (
	"encoding/json"

	"github.com/yigbench/yig/pkg/calibration"
)

// Event name constants
const (
	RunState           = "run.state"
	RunProgress        = "run.progress"
	RunStream          = "run.stream"
	RunDiff            = "run.diff"
	RunResult          = "run.result"
	CalibrationUpdated = "calibration.updated"
	ScheduleAction     = "schedule.action"
)

// Event is a generic SSE event from daemon.
type Event struct {
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
}

// StateEvent is the typed payload for run.state.
type StateEvent struct {
	RunID string `json:"runId"`
	Kind  string `json:"kind"`
	From  string `json:"from"`
	To    string `json:"to"`
	Error string `json:"error,omitempty"`
	Ts    int64  `json:"ts"`
}

// ProgressEvent is the typed payload for run.progress.
type ProgressEvent struct {
	RunID   string `json:"runId"`
	Percent int    `json:"percent"`
}

// StreamEvent is the typed payload for run.stream. NewPlot marks the first
// point of a phase.
type StreamEvent struct {
	RunID   string    `json:"runId"`
	Phase   string    `json:"phase,omitempty"`
	X       []float64 `json:"x"`
	Y       []float64 `json:"y"`
	NewPlot bool      `json:"newPlot"`
}

// DiffEvent is the typed payload for run.diff, sent once at the end of a
// hot/cold run.
type DiffEvent struct {
	RunID string    `json:"runId"`
	X     []float64 `json:"x"`
	Y     []float64 `json:"y"`
}

// ResultEvent is the typed payload for run.result. Result holds the JSON
// encoded run result.
type ResultEvent struct {
	RunID         string          `json:"runId"`
	Kind          string          `json:"kind"`
	State         string          `json:"state"`
	Error         string          `json:"error,omitempty"`
	MeasurementID string          `json:"measurementId,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
}

// CalibrationUpdatedEvent is the typed payload for calibration.updated.
type CalibrationUpdatedEvent struct {
	calibration.State
}

// ScheduleActionEvent is the typed payload for schedule.action.
type ScheduleActionEvent struct {
	Action  string `json:"action"`
	Message string `json:"message,omitempty"`
	Ts      int64  `json:"ts"`
}

// DecodeAs decodes the event payload into the caller-specified generic type T.
// It ignores the event name and simply unmarshals Data into T. If Data is empty,
// it returns the zero value of T with a nil error.
//
// Example:
//
//	payload, err := events.DecodeAs[events.ProgressEvent](ev)
//	if err != nil { /* handle */ }
//	fmt.Println(payload.RunID, payload.Percent)
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
