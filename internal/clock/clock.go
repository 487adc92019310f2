// Package clock supplies offset-corrected, monotonically non-decreasing
// timestamps for log rows and session boundaries.
//
// The correction offset is computed once at store open (see Probe) and held
// fixed for the life of the handle; time sync is never consulted on the
// append path.
package clock

import "time"

// Clock yields the timestamp stamped onto rows.
type Clock interface {
	Now() time.Time
}

// System is a zero-offset wall clock. Used when time sync is disabled or
// the offset probe failed.
type System struct{}

// Now returns the wall-clock time.
func (System) Now() time.Time { return time.Now() }

// Corrected is a wall clock shifted by a fixed offset, typically the one
// measured against NTP at open.
type Corrected struct {
	Offset time.Duration
}

// Now returns the wall-clock time plus the correction offset.
func (c Corrected) Now() time.Time { return time.Now().Add(c.Offset) }

// Monotone wraps a Clock and guarantees non-decreasing readings.
//
// Wall clocks can step backwards (NTP slew, VM migration); a log whose
// timestamps run backwards breaks time-ordered queries, so the guard pins
// each reading to at least the previous one.
//
// Not safe for concurrent use; the store model is single-caller.
type Monotone struct {
	inner Clock
	last  time.Time
}

// NewMonotone wraps inner with the non-decreasing guarantee.
func NewMonotone(inner Clock) *Monotone {
	return &Monotone{inner: inner}
}

// Now returns the inner clock's reading, clamped to never precede the
// previous return value.
func (m *Monotone) Now() time.Time {
	t := m.inner.Now()
	if t.Before(m.last) {
		return m.last
	}
	m.last = t
	return t
}
