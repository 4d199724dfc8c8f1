package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrDaemonNotRunning is returned when the daemon is not running
	ErrDaemonNotRunning = errors.New("daemon not running")

	// ErrPermissionDenied is returned when the user does not have permission to perform the requested action
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound is returned when 404 is returned from the daemon
	ErrNotFound = errors.New("404 not found")

	// ErrBusy is returned when the daemon answers 409, e.g. a run is
	// already active or none is.
	ErrBusy = errors.New("409 conflict")
)

// APIError is a non-2xx answer from the daemon.
type APIError struct {
	StatusCode int
	Message    string
}

func newAPIError(code int, body []byte) *APIError {
	// Handlers answer with a JSON string; fall back to the raw body.
	var msg string
	if err := json.Unmarshal(body, &msg); err != nil {
		msg = strings.TrimSpace(string(body))
	}
	return &APIError{StatusCode: code, Message: msg}
}

func (e *APIError) Error() string {
	return fmt.Sprintf("got %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrBusy
	}
	return nil
}
