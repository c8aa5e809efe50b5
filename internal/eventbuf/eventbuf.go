// Package eventbuf implements the bounded, age-expiring event log that
// backs the "recent" and "within" (sequence) temporal predicates.
package eventbuf

import (
	"sync"

	"github.com/ctxrules/engine/internal/clock"
	"github.com/ctxrules/engine/internal/rules"
)

// DefaultMaxAgeMs is the hard age bound enforced on every push,
// regardless of maxSize, unless the caller overrides it via New.
const DefaultMaxAgeMs int64 = 24 * 60 * 60 * 1000

// DefaultMaxSize is the default event capacity.
const DefaultMaxSize = 100

// Buffer is a thread-safe, insertion-ordered event log. Insertion order
// is assumed to equal time order — callers pushing non-monotonic
// timestamps see undefined expiry behavior, per spec.md §5.
type Buffer struct {
	mu      sync.Mutex
	events  []rules.ContextEvent
	maxSize int
	maxAge  int64
	clock   clock.Clock
}

// New creates an event buffer bounded by maxSize (<=0 uses
// DefaultMaxSize) and maxAgeMs (<=0 uses DefaultMaxAgeMs).
func New(clk clock.Clock, maxSize int, maxAgeMs int64) *Buffer {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if maxAgeMs <= 0 {
		maxAgeMs = DefaultMaxAgeMs
	}
	return &Buffer{clock: clk, maxSize: maxSize, maxAge: maxAgeMs}
}

// Push appends an event, first dropping anything older than maxAge and
// then, if still at capacity, popping the oldest entry.
func (b *Buffer) Push(event rules.ContextEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.expireOldLocked()
	if len(b.events) >= b.maxSize {
		b.events = b.events[1:]
	}
	b.events = append(b.events, event)
}

// Len returns the current event count.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// HasRecent reports whether an event of the given type occurred within
// the last withinMs milliseconds.
func (b *Buffer) HasRecent(eventType string, withinMs int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := b.clock.NowMs() - withinMs
	for i := len(b.events) - 1; i >= 0; i-- {
		e := b.events[i]
		if e.TimestampMs < cutoff {
			break
		}
		if e.EventType == eventType {
			return true
		}
	}
	return false
}

// HasSequence reports whether the newest event of type B within the
// window is preceded, also within the window, by an event of type A.
func (b *Buffer) HasSequence(typeA, typeB string, withinMs int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := b.clock.NowMs() - withinMs

	latestB := int64(-1)
	for i := len(b.events) - 1; i >= 0; i-- {
		e := b.events[i]
		if e.TimestampMs < cutoff {
			break
		}
		if e.EventType == typeB {
			latestB = e.TimestampMs
			break
		}
	}
	if latestB < 0 {
		return false
	}

	for i := len(b.events) - 1; i >= 0; i-- {
		e := b.events[i]
		if e.TimestampMs < cutoff {
			break
		}
		if e.EventType == typeA && e.TimestampMs < latestB {
			return true
		}
	}
	return false
}

// expireOldLocked drops events older than maxAge. Caller must hold mu.
func (b *Buffer) expireOldLocked() {
	cutoff := b.clock.NowMs() - b.maxAge
	i := 0
	for i < len(b.events) && b.events[i].TimestampMs < cutoff {
		i++
	}
	if i > 0 {
		b.events = b.events[i:]
	}
}
