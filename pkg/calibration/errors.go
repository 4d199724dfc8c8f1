package calibration

import "errors"

// Error is returned when a fit cannot be computed. The model keeps its
// previous coefficients.
type Error struct {
	Reason string
}

func (e *Error) Error() string { return "calibration failed: " + e.Reason }

// ErrPersistence marks failures reading or writing calibration files.
var ErrPersistence = errors.New("calibration persistence failed")

type persistenceError struct {
	op   string
	path string
	err  error
}

func (e *persistenceError) Error() string {
	return e.op + " " + e.path + ": " + e.err.Error()
}

func (e *persistenceError) Unwrap() []error { return []error{ErrPersistence, e.err} }
