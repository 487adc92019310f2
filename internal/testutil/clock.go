// Package testutil provides test doubles shared across packages.
package testutil

import "time"

// SteppedClock is a deterministic clock for tests: every Now() call
// advances a fixed step from a fixed base. The same test run produces the
// same timestamps, which makes time-ordering assertions exact.
type SteppedClock struct {
	base time.Time
	step time.Duration
	n    int64
}

// NewSteppedClock creates a clock starting at base, advancing by step on
// each Now() call.
func NewSteppedClock(base time.Time, step time.Duration) *SteppedClock {
	return &SteppedClock{base: base, step: step}
}

// Now returns the next timestamp in the sequence.
func (c *SteppedClock) Now() time.Time {
	t := c.base.Add(time.Duration(c.n) * c.step)
	c.n++
	return t
}

// Calls returns how many times Now has been called.
func (c *SteppedClock) Calls() int64 {
	return c.n
}
