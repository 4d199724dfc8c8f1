package instrument

import "fmt"

// Error is returned by every driver on transport, read or write failure.
// Sequencers treat it as fatal to the current run.
type Error struct {
	Device    string
	Operation string
	Cause     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("instrument %s: %s: %v", e.Device, e.Operation, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// wrap returns nil when err is nil.
func wrap(device, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Device: device, Operation: op, Cause: err}
}
