package orchestrator

import (
	"errors"
	"time"
)

var (
	// ErrUnauthorized is returned when the trigger credential does not match.
	ErrUnauthorized = errors.New("Unauthorized")
	// ErrBadRequest is returned for malformed chunk or size parameters.
	ErrBadRequest = errors.New("invalid chunk or size parameters")
)

// ExecutionError reports a failure while listing or building targets. Elapsed
// is the time spent before the failure surfaced.
type ExecutionError struct {
	Err     error
	Elapsed time.Duration
}

func (e *ExecutionError) Error() string {
	if e == nil || e.Err == nil {
		return "execution failed"
	}
	return e.Err.Error()
}

func (e *ExecutionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
