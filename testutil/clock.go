package testutil

import (
	"sync"
	"time"
)

// StartTime is the first instant a Clock returns. It carries microseconds
// so stamped timestamps exercise sub-second precision.
var StartTime = time.Date(2019, 9, 20, 14, 0, 0, 123456000, time.UTC)

// Clock implements clock.Clock. The first call to Now returns Start and
// every later call moves forward by the step.
type Clock struct {
	Start time.Time

	mu    sync.Mutex
	step  time.Duration
	ticks int
}

func NewClock(step time.Duration) *Clock {
	return &Clock{
		Start: StartTime,
		step:  step,
	}
}

// Now implements clock.Clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.at(c.ticks)
	c.ticks++
	return t
}

// Last returns the most recent time handed out, or Start if Now was
// never called.
func (c *Clock) Last() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ticks == 0 {
		return c.Start
	}
	return c.at(c.ticks - 1)
}

// Timestamp formats Last the way statements carry it.
func (c *Clock) Timestamp() string {
	return c.Last().Format(time.RFC3339Nano)
}

func (c *Clock) at(n int) time.Time {
	return c.Start.Add(time.Duration(n) * c.step)
}
