package clock

import "sync/atomic"

// ManualClock is a test double that only advances when told to.
// Safe for concurrent use.
type ManualClock struct {
	ms atomic.Int64
}

// NewManualClock returns a ManualClock starting at the given ms reading.
func NewManualClock(startMs int64) *ManualClock {
	c := &ManualClock{}
	c.ms.Store(startMs)
	return c
}

func (c *ManualClock) NowMs() int64 {
	return c.ms.Load()
}

// Advance moves the clock forward by deltaMs (may be negative in tests
// that need to probe boundary conditions, though real callers never do).
func (c *ManualClock) Advance(deltaMs int64) {
	c.ms.Add(deltaMs)
}

// Set pins the clock to an absolute reading.
func (c *ManualClock) Set(ms int64) {
	c.ms.Store(ms)
}
