// Package ratelimit implements the category and global sliding-window
// firing gates. Per-rule cooldown is tracked by the engine directly
// (it only needs a single ruleId → timestamp map); this package owns
// the two gates that require deques trimmed against a moving window.
package ratelimit

import (
	"sync"

	"github.com/ctxrules/engine/internal/rules"
)

const globalWindowMs int64 = 3_600_000

// Limiter tracks per-category and global firing timestamps. Its own
// mutex guards the limits and both deques, so it is safe for concurrent
// use. engine.Engine calls IsLimited while holding the engine mutex;
// Record and SetLimits are called without it.
type Limiter struct {
	mu               sync.Mutex
	limits           rules.RateLimits
	categoryFirings  map[string][]int64
	globalFirings    []int64
}

// New creates a Limiter with the given limits.
func New(limits rules.RateLimits) *Limiter {
	return &Limiter{
		limits:          limits,
		categoryFirings: make(map[string][]int64),
	}
}

// SetLimits installs new limits; affects future evaluations only.
func (l *Limiter) SetLimits(limits rules.RateLimits) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limits = limits
}

// IsLimited reports whether an action of the given type would be
// suppressed right now by either the category or global gate.
func (l *Limiter) IsLimited(actionType string, now int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if timestamps, ok := l.categoryFirings[actionType]; ok {
		catCutoff := now - l.limits.CategoryCooldownWindowMs
		timestamps = trimFront(timestamps, catCutoff)
		l.categoryFirings[actionType] = timestamps
		if len(timestamps) >= l.limits.CategoryCooldownCount {
			return true
		}
	}

	hourCutoff := now - globalWindowMs
	l.globalFirings = trimFront(l.globalFirings, hourCutoff)
	if len(l.globalFirings) >= l.limits.GlobalMaxPerHour {
		return true
	}

	return false
}

// Record appends a firing timestamp to both the category and global deques.
func (l *Limiter) Record(actionType string, now int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.categoryFirings[actionType] = append(l.categoryFirings[actionType], now)
	l.globalFirings = append(l.globalFirings, now)
}

// trimFront drops leading entries older than cutoff.
func trimFront(ts []int64, cutoff int64) []int64 {
	i := 0
	for i < len(ts) && ts[i] < cutoff {
		i++
	}
	if i == 0 {
		return ts
	}
	return ts[i:]
}
