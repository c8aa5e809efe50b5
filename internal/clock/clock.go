// Package clock supplies the single monotonic time source the rule
// engine and its collaborators are built against. Outside SystemClock,
// the only time.Now() call is in engine.Evaluate, which measures its own
// wall-clock duration for telemetry.
package clock

import "time"

// Clock returns monotonically increasing elapsed milliseconds. Callers
// must not assume any relationship to wall-clock time; only differences
// between two readings from the same Clock are meaningful.
type Clock interface {
	NowMs() int64
}

// SystemClock is a Clock backed by the process's monotonic clock
// reading (time.Since never re-reads wall time once epoch is fixed).
type SystemClock struct {
	epoch time.Time
}

// NewSystemClock returns a SystemClock anchored to the current instant.
func NewSystemClock() *SystemClock {
	return &SystemClock{epoch: time.Now()}
}

func (c *SystemClock) NowMs() int64 {
	return time.Since(c.epoch).Milliseconds()
}
