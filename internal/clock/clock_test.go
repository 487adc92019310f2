package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// reversingClock steps backwards on every reading.
type reversingClock struct {
	t time.Time
}

func (c *reversingClock) Now() time.Time {
	c.t = c.t.Add(-time.Second)
	return c.t
}

func TestCorrected_AppliesOffset(t *testing.T) {
	c := Corrected{Offset: time.Hour}
	diff := time.Until(c.Now())
	assert.InDelta(t, time.Hour.Seconds(), diff.Seconds(), 1.0)
}

func TestMonotone_NeverDecreases(t *testing.T) {
	inner := &reversingClock{t: time.Now()}
	m := NewMonotone(inner)

	first := m.Now()
	for i := 0; i < 5; i++ {
		next := m.Now()
		assert.False(t, next.Before(first), "reading %d went backwards", i)
		first = next
	}
}

func TestMonotone_PassesThroughForwardTime(t *testing.T) {
	m := NewMonotone(System{})
	a := m.Now()
	b := m.Now()
	assert.False(t, b.Before(a))
}

func TestProbe_NoServersIsZeroOffset(t *testing.T) {
	c := Probe(nil, time.Second)
	require.NotNil(t, c)
	diff := time.Until(c.Now())
	assert.InDelta(t, 0, diff.Seconds(), 1.0)
}

func TestProbe_UnreachableServerFallsBack(t *testing.T) {
	start := time.Now()
	// 127.0.0.1 runs no NTP server in the test environment; the probe must
	// fall back to zero offset within the timeout, not hang.
	c := Probe([]string{"127.0.0.1"}, 250*time.Millisecond)
	elapsed := time.Since(start)

	require.NotNil(t, c)
	assert.Less(t, elapsed, 5*time.Second)
	diff := time.Until(c.Now())
	assert.InDelta(t, 0, diff.Seconds(), 1.0)
}
