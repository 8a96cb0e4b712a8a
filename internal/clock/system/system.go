// Package system provides the wall clock used to stamp catalog rows.
package system

import "time"

// Clock stamps loader upserts with the current UTC time.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time at microsecond precision, matching what a
// Postgres timestamptz column stores.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
