// Package clock abstracts the wall clock so statement and document
// timestamps can be stamped deterministically in tests.
package clock

import "time"

var (
	// UTC is the default clock. Stamped timestamps are always UTC so the
	// RFC 3339 form carries a "Z" designator.
	UTC Clock = &utcClock{}
)

type Clock interface {
	Now() time.Time
}

type utcClock struct{}

func (c *utcClock) Now() time.Time {
	return time.Now().UTC()
}

// Func adapts a plain function to the Clock interface.
type Func func() time.Time

func (f Func) Now() time.Time {
	return f()
}
