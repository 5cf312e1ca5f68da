package sim

import "time"

// Clock is the monotonic simulated clock. It only ever moves forward, by a
// fixed step.
type Clock struct {
	now  time.Time
	step time.Duration
}

// NewClock starts a clock at start, advancing by step per tick.
func NewClock(start time.Time, step time.Duration) *Clock {
	return &Clock{now: start, step: step}
}

// Now returns the current simulated time.
func (c *Clock) Now() time.Time {
	return c.now
}

// Advance moves the clock one step forward and returns the new time.
func (c *Clock) Advance() time.Time {
	c.now = c.now.Add(c.step)
	return c.now
}
