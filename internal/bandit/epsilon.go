// Package bandit implements the two action-selection strategies that
// share a reward-update interface: an epsilon-greedy scalar-reward arm
// and a contextual LinUCB arm.
package bandit

import (
	"math/rand/v2"
	"sync"
)

// NoSelection is the sentinel index returned when Select is given no
// candidates.
const NoSelection = -1

// ArmStats is the epsilon-greedy per-arm state.
type ArmStats struct {
	Pulls       int     `json:"pulls"`
	TotalReward float64 `json:"totalReward"`
}

// AvgReward is TotalReward/Pulls, or 0 when the arm has never been pulled.
func (a ArmStats) AvgReward() float64 {
	if a.Pulls == 0 {
		return 0
	}
	return a.TotalReward / float64(a.Pulls)
}

// Epsilon is an epsilon-greedy bandit over actionId-keyed arms.
type Epsilon struct {
	mu      sync.Mutex
	epsilon float64
	arms    map[string]ArmStats
}

// NewEpsilon creates an epsilon-greedy bandit with the given exploration
// rate (default 0.1 is spec.md §4.6's stated default; callers pass it
// explicitly here since Go has no default-parameter sugar).
func NewEpsilon(epsilon float64) *Epsilon {
	return &Epsilon{epsilon: epsilon, arms: make(map[string]ArmStats)}
}

// Select picks an index into candidates, exploring with probability
// epsilon and otherwise exploiting the highest average-reward arm.
// Unseen or never-pulled arms score an optimistic 1.0. Returns
// NoSelection for an empty candidate list.
func (e *Epsilon) Select(candidates []string) int {
	if len(candidates) == 0 {
		return NoSelection
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if rand.Float64() < e.epsilon {
		return rand.IntN(len(candidates))
	}

	bestIdx := 0
	bestAvg := -1e9
	for i, actionID := range candidates {
		avg := 0.0
		if stats, ok := e.arms[actionID]; ok && stats.Pulls > 0 {
			avg = stats.AvgReward()
		} else {
			avg = 1.0 // optimistic initialization for untested actions
		}
		if avg > bestAvg {
			bestAvg = avg
			bestIdx = i
		}
	}
	return bestIdx
}

// Update records a reward observation for actionID.
func (e *Epsilon) Update(actionID string, reward float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	stats := e.arms[actionID]
	stats.Pulls++
	stats.TotalReward += reward
	e.arms[actionID] = stats
}

// Stats returns a snapshot of every arm's state, keyed by action id.
func (e *Epsilon) Stats() map[string]ArmStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]ArmStats, len(e.arms))
	for k, v := range e.arms {
		out[k] = v
	}
	return out
}

// LoadStats replaces the current arm state wholesale (used by
// Engine.ImportBandit).
func (e *Epsilon) LoadStats(stats map[string]ArmStats) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.arms = make(map[string]ArmStats, len(stats))
	for k, v := range stats {
		e.arms[k] = v
	}
}
