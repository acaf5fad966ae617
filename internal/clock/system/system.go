// Package system provides the wall clock that times chunk execution and
// stamps progress events.
package system

import "time"

// Clock implements crawl.Clock with UTC wall time. Tests substitute a fake
// so elapsed_seconds and budget overruns are deterministic.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
