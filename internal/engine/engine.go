// Package engine ties the compiler, evaluator, event buffer, rate
// limiter, and bandit layers into the single facade a host embeds:
// load/add/remove rules, evaluate a context, push events, and drive
// both bandit strategies.
package engine

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ctxrules/engine/internal/bandit"
	"github.com/ctxrules/engine/internal/clock"
	"github.com/ctxrules/engine/internal/config"
	"github.com/ctxrules/engine/internal/eventbuf"
	"github.com/ctxrules/engine/internal/match"
	"github.com/ctxrules/engine/internal/ratelimit"
	"github.com/ctxrules/engine/internal/rules"
	"github.com/ctxrules/engine/internal/telemetry"
	"github.com/ctxrules/engine/internal/tree"
)

// DefaultMaxResults is used when Evaluate is called with maxResults <= 0.
const DefaultMaxResults = 5

// Engine is the rule engine facade. Zero value is not usable; construct
// with New.
type Engine struct {
	mu         sync.Mutex // guards ruleList, ruleIndex, tr, lastFired
	ruleList   []*rules.Rule
	ruleIndex  map[string]int
	tr         *tree.Tree
	lastFired  map[string]int64

	limiter *ratelimit.Limiter
	events  *eventbuf.Buffer
	epsilon *bandit.Epsilon
	linucb  *bandit.LinUCB

	clk     clock.Clock
	logger  zerolog.Logger
	metrics *telemetry.Metrics
}

// Option configures optional Engine dependencies.
type Option func(*Engine)

// WithLogger installs a zerolog.Logger; the default is a no-op logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics installs a Prometheus-backed telemetry sink. Omit to run
// without telemetry.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New constructs an Engine from cfg, injecting clk as the single
// monotonic time source for lastFired, rate limiting, and the event
// buffer.
func New(clk clock.Clock, cfg config.Config, opts ...Option) *Engine {
	e := &Engine{
		ruleIndex: make(map[string]int),
		tr:        &tree.Tree{},
		lastFired: make(map[string]int64),
		limiter:   ratelimit.New(cfg.RateLimits),
		events:    eventbuf.New(clk, cfg.EventBufferSize, cfg.EventBufferMaxMs),
		epsilon:   bandit.NewEpsilon(cfg.EpsilonGreedy),
		linucb:    bandit.NewLinUCB(cfg.LinUCBAlpha),
		clk:       clk,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// LoadRules atomically replaces the rule set and recompiles the tree.
// Bandit state and lastFired are preserved.
func (e *Engine) LoadRules(rs []*rules.Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ruleList = rs
	e.rebuildLocked()
	e.logger.Debug().Int("ruleCount", len(e.ruleList)).Msg("rules loaded")
}

// AddRule upserts a rule by id and recompiles the tree.
func (e *Engine) AddRule(r *rules.Rule) {
	r.WithDefaults()

	e.mu.Lock()
	defer e.mu.Unlock()
	if idx, ok := e.ruleIndex[r.ID]; ok {
		e.ruleList[idx] = r
	} else {
		e.ruleList = append(e.ruleList, r)
	}
	e.rebuildLocked()
}

// RemoveRule removes a rule by id, reporting whether it was present.
func (e *Engine) RemoveRule(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	idx, ok := e.ruleIndex[id]
	if !ok {
		return false
	}
	e.ruleList = append(e.ruleList[:idx], e.ruleList[idx+1:]...)
	e.rebuildLocked()
	return true
}

// RuleCount returns the number of currently loaded rules (enabled and
// disabled).
func (e *Engine) RuleCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.ruleList)
}

func (e *Engine) rebuildLocked() {
	e.ruleIndex = make(map[string]int, len(e.ruleList))
	for i, r := range e.ruleList {
		e.ruleIndex[r.ID] = i
	}
	e.tr = tree.Compile(e.ruleList)
}

type scoredResult struct {
	rules.MatchResult
	priority float64
}

// Evaluate descends the compiled tree (or falls back to a linear scan
// when it's empty), soft-matches every surviving candidate's
// conditions, and returns up to maxResults ranked MatchResults. Only
// the top-ranked result's firing is recorded against lastFired and the
// rate limiter, per spec: callers are expected to fire at most the top
// recommendation.
func (e *Engine) Evaluate(ctx rules.ContextMap, maxResults int) []rules.MatchResult {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	wallStart := time.Now()
	now := e.clk.NowMs()

	e.mu.Lock()
	candidateIdxs := e.candidateIndicesLocked(ctx)
	var filtered []*rules.Rule
	for _, idx := range candidateIdxs {
		r := e.ruleList[idx]
		if !r.Enabled {
			continue
		}
		if last, seen := e.lastFired[r.ID]; seen && now-last < r.CooldownMs {
			continue
		}
		if e.limiter.IsLimited(r.Action.Type, now) {
			continue
		}
		filtered = append(filtered, r)
	}
	e.mu.Unlock()

	// Soft matching (and any temporal condition it delegates to the
	// event buffer) happens without the engine mutex held, per the
	// engine -> event-buffer lock order.
	var scored []scoredResult
	for _, r := range filtered {
		confidence, ok := e.matchRule(r, ctx)
		if !ok {
			continue
		}
		scored = append(scored, scoredResult{
			MatchResult: rules.MatchResult{RuleID: r.ID, Confidence: confidence, Action: r.Action},
			priority:    r.Priority,
		})
	}

	scored = dedupByMaxConfidence(scored)
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Confidence*scored[i].priority > scored[j].Confidence*scored[j].priority
	})
	if len(scored) > maxResults {
		scored = scored[:maxResults]
	}

	results := make([]rules.MatchResult, len(scored))
	for i, s := range scored {
		results[i] = s.MatchResult
	}

	if len(results) > 0 {
		top := results[0]
		e.mu.Lock()
		e.lastFired[top.RuleID] = now
		e.mu.Unlock()
		e.limiter.Record(top.Action.Type, now)
		e.metrics.RuleFired(top.RuleID)
	}

	e.metrics.Evaluate(time.Since(wallStart))
	return results
}

// candidateIndicesLocked returns the rule indices reachable for ctx.
// Caller must hold e.mu.
func (e *Engine) candidateIndicesLocked(ctx rules.ContextMap) []int {
	if e.tr.Empty() {
		all := make([]int, len(e.ruleList))
		for i := range e.ruleList {
			all[i] = i
		}
		return all
	}
	return e.tr.Descend(ctx)
}

// matchRule computes the cumulative confidence of every condition in r,
// short-circuiting once the running product falls below 0.01. Reports
// false when the final confidence does not clear the 0.1 firing
// threshold.
func (e *Engine) matchRule(r *rules.Rule, ctx rules.ContextMap) (float64, bool) {
	confidence := 1.0
	for _, cond := range r.Conditions {
		confidence *= e.matchCondition(cond, ctx)
		if confidence < 0.01 {
			return 0, false
		}
	}
	if confidence > 0.1 {
		return confidence, true
	}
	return 0, false
}

// matchCondition dispatches temporal ops to the event buffer and
// everything else to the soft matcher.
func (e *Engine) matchCondition(cond rules.Condition, ctx rules.ContextMap) float64 {
	switch cond.Op {
	case rules.OpRecent:
		return e.scoreRecent(cond)
	case rules.OpWithin:
		return e.scoreWithin(cond)
	default:
		return match.Score(cond, ctx)
	}
}

// scoreRecent evaluates a `key="event:<type>"` / `op="recent"` /
// `value="<withinMs>"` condition as a boolean 1.0/0.0 — the event
// buffer answers yes/no, there is no partial credit for temporal ops.
func (e *Engine) scoreRecent(cond rules.Condition) float64 {
	eventType, ok := cutPrefix(cond.Key, "event:")
	if !ok {
		return 0.0
	}
	withinMs, err := strconv.ParseInt(cond.Value, 10, 64)
	if err != nil {
		return 0.0
	}
	if e.events.HasRecent(eventType, withinMs) {
		return 1.0
	}
	return 0.0
}

// scoreWithin evaluates a `key="sequence:<typeA>,<typeB>"` /
// `op="within"` / `value="<withinMs>"` condition.
func (e *Engine) scoreWithin(cond rules.Condition) float64 {
	rest, ok := cutPrefix(cond.Key, "sequence:")
	if !ok {
		return 0.0
	}
	typeA, typeB, ok := splitPair(rest)
	if !ok {
		return 0.0
	}
	withinMs, err := strconv.ParseInt(cond.Value, 10, 64)
	if err != nil {
		return 0.0
	}
	if e.events.HasSequence(typeA, typeB, withinMs) {
		return 1.0
	}
	return 0.0
}

func cutPrefix(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || s[:len(prefix)] != prefix {
		return "", false
	}
	return s[len(prefix):], true
}

func splitPair(s string) (string, string, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}

// dedupByMaxConfidence keeps, per ruleId, only the entry with the
// highest confidence — a rule reachable via more than one tree branch
// must appear at most once in the results.
func dedupByMaxConfidence(in []scoredResult) []scoredResult {
	best := make(map[string]int, len(in)) // ruleId -> index into out
	var out []scoredResult
	for _, s := range in {
		if idx, seen := best[s.RuleID]; seen {
			if s.Confidence > out[idx].Confidence {
				out[idx] = s
			}
			continue
		}
		best[s.RuleID] = len(out)
		out = append(out, s)
	}
	return out
}

// PushEvent appends event to the temporal log. Independent of the
// engine mutex.
func (e *Engine) PushEvent(event rules.ContextEvent) {
	e.events.Push(event)
}

// SetLimits installs new rate limits; affects future evaluations only.
func (e *Engine) SetLimits(limits rules.RateLimits) {
	e.limiter.SetLimits(limits)
}

// SelectAction delegates to the epsilon-greedy bandit.
func (e *Engine) SelectAction(candidates []string) int {
	idx := e.epsilon.Select(candidates)
	if idx >= 0 {
		e.metrics.ActionSelected("epsilon")
	}
	return idx
}

// UpdateReward delegates to the epsilon-greedy bandit.
func (e *Engine) UpdateReward(actionID string, reward float64) {
	e.epsilon.Update(actionID, reward)
	e.metrics.RewardObserved("epsilon", reward)
}

// SelectActionContextual delegates to LinUCB, deriving its feature
// vector from ctx.
func (e *Engine) SelectActionContextual(candidates []string, ctx rules.ContextMap) int {
	idx := e.linucb.Select(candidates, contextSnapshotFromMap(ctx))
	if idx >= 0 {
		e.metrics.ActionSelected("linucb")
	}
	return idx
}

// UpdateRewardContextual delegates to LinUCB.
func (e *Engine) UpdateRewardContextual(actionID string, ctx rules.ContextMap, reward float64) {
	e.linucb.Update(actionID, contextSnapshotFromMap(ctx), reward)
	e.metrics.RewardObserved("linucb", reward)
}

// contextSnapshotFromMap extracts LinUCB's typed feature inputs from a
// ContextMap, tolerating missing or unparsable fields the same way the
// soft matcher tolerates them: they degrade to zero values rather than
// erroring.
func contextSnapshotFromMap(ctx rules.ContextMap) bandit.ContextSnapshot {
	snap := bandit.ContextSnapshot{MotionState: ctx["motionState"]}
	if v, ok := ctx["hour"]; ok {
		if i, err := strconv.Atoi(v); err == nil {
			snap.Hour = i
		}
	}
	if v, ok := ctx["batteryLevel"]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			snap.BatteryLevel = int(f)
		}
	}
	snap.IsCharging = ctx["isCharging"] == "true"
	snap.IsWeekend = ctx["isWeekend"] == "true"
	return snap
}

// ExportRulesJSON serializes the current rule set to the §6 wire schema.
func (e *Engine) ExportRulesJSON() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return rules.ExportRulesJSON(e.ruleList)
}

// banditSnapshot is the opaque textual form ExportBandit/ImportBandit
// exchange. Its shape is not part of any contract beyond round-tripping
// through this package.
type banditSnapshot struct {
	Epsilon map[string]bandit.ArmStats       `json:"epsilon"`
	LinUCB  map[string]bandit.LinArmSnapshot `json:"linucb"`
}

// ExportBandit snapshots both bandit strategies' state.
func (e *Engine) ExportBandit() ([]byte, error) {
	snap := banditSnapshot{Epsilon: e.epsilon.Stats(), LinUCB: e.linucb.Snapshot()}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("ctxrules: failed to marshal bandit snapshot: %w", err)
	}
	return data, nil
}

// ImportBandit restores bandit state previously produced by ExportBandit.
func (e *Engine) ImportBandit(data []byte) error {
	var snap banditSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("ctxrules: failed to unmarshal bandit snapshot: %w", err)
	}
	e.epsilon.LoadStats(snap.Epsilon)
	e.linucb.LoadSnapshot(snap.LinUCB)
	return nil
}
