package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ctxrules/engine/internal/clock"
	"github.com/ctxrules/engine/internal/config"
	"github.com/ctxrules/engine/internal/rules"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestEngine(c clock.Clock) *Engine {
	return New(c, config.Default())
}

func rule(id string, cond rules.Condition, actionType string) *rules.Rule {
	r := &rules.Rule{
		ID:         id,
		Conditions: []rules.Condition{cond},
		Action:     rules.Action{ID: id + "-action", Type: actionType, Payload: "{}"},
		Enabled:    true,
	}
	r.WithDefaults()
	return r
}

// S1: an equality condition fires, then the same rule is suppressed by
// its own cooldown until it elapses.
func TestS1_EqualityAndCooldown(t *testing.T) {
	c := clock.NewManualClock(0)
	e := newTestEngine(c)
	r := rule("commute-suggestion", rules.Condition{Key: "motionState", Op: rules.OpEqual, Value: "driving"}, "navigate")
	r.CooldownMs = 10_000
	e.LoadRules([]*rules.Rule{r})

	ctx := rules.ContextMap{"motionState": "driving"}
	results := e.Evaluate(ctx, 0)
	require.Len(t, results, 1)
	assert.Equal(t, "commute-suggestion", results[0].RuleID)
	assert.Equal(t, 1.0, results[0].Confidence)

	// Still within cooldown: suppressed.
	results = e.Evaluate(ctx, 0)
	assert.Empty(t, results)

	c.Advance(10_001)
	results = e.Evaluate(ctx, 0)
	require.Len(t, results, 1)
}

// S2: a numeric condition close to the threshold degrades gracefully
// instead of hard-failing.
func TestS2_SoftNumericMatch(t *testing.T) {
	c := clock.NewManualClock(0)
	e := newTestEngine(c)
	r := rule("low-battery", rules.Condition{Key: "batteryLevel", Op: rules.OpLessThan, Value: "20"}, "power_save")
	e.LoadRules([]*rules.Rule{r})

	exact := e.Evaluate(rules.ContextMap{"batteryLevel": "10"}, 0)
	require.Len(t, exact, 1)
	assert.Equal(t, 1.0, exact[0].Confidence)

	c.Advance(1)
	near := e.Evaluate(rules.ContextMap{"batteryLevel": "21"}, 0)
	if assert.Len(t, near, 1) {
		assert.Greater(t, near[0].Confidence, 0.1)
		assert.Less(t, near[0].Confidence, 1.0)
	}

	c.Advance(1)
	far := e.Evaluate(rules.ContextMap{"batteryLevel": "90"}, 0)
	assert.Empty(t, far)
}

// S3: a range condition scores 1.0 inside the range and decays outside it.
func TestS3_RangeMatch(t *testing.T) {
	c := clock.NewManualClock(0)
	e := newTestEngine(c)
	r := rule("commute-hours", rules.Condition{Key: "hour", Op: rules.OpRange, Value: "7,9"}, "traffic_update")
	e.LoadRules([]*rules.Rule{r})

	inside := e.Evaluate(rules.ContextMap{"hour": "8"}, 0)
	require.Len(t, inside, 1)
	assert.Equal(t, 1.0, inside[0].Confidence)

	c.Advance(1)
	outside := e.Evaluate(rules.ContextMap{"hour": "20"}, 0)
	assert.Empty(t, outside)
}

// S4: a temporal sequence condition only fires once both events have
// been observed in order and within the window.
func TestS4_TemporalSequence(t *testing.T) {
	c := clock.NewManualClock(0)
	e := newTestEngine(c)
	r := rule("post-commute-app", rules.Condition{
		Key: "sequence:geofence_enter,app_open", Op: rules.OpWithin, Value: "5000",
	}, "suggest_playlist")
	e.LoadRules([]*rules.Rule{r})

	ctx := rules.ContextMap{}
	assert.Empty(t, e.Evaluate(ctx, 0))

	e.PushEvent(rules.ContextEvent{TimestampMs: c.NowMs(), EventType: "geofence_enter"})
	c.Advance(1000)
	e.PushEvent(rules.ContextEvent{TimestampMs: c.NowMs(), EventType: "app_open"})
	c.Advance(100)

	results := e.Evaluate(ctx, 0)
	require.Len(t, results, 1)
	assert.Equal(t, "post-commute-app", results[0].RuleID)
}

// S5: the category rate limit suppresses a rule's action type once its
// cap is hit within the sliding window, independent of that rule's own
// cooldown.
func TestS5_CategoryRateLimit(t *testing.T) {
	c := clock.NewManualClock(0)
	e := newTestEngine(c)
	limits := rules.RateLimits{CategoryCooldownCount: 2, CategoryCooldownWindowMs: 60_000, GlobalMaxPerHour: 1000}
	e.SetLimits(limits)

	r1 := rule("r1", rules.Condition{Key: "motionState", Op: rules.OpEqual, Value: "walking"}, "nudge")
	r2 := rule("r2", rules.Condition{Key: "isWeekend", Op: rules.OpEqual, Value: "true"}, "nudge")
	e.LoadRules([]*rules.Rule{r1, r2})

	// Each context sets the other rule's key to a non-matching value: a
	// missing key would score 0.5 and let that rule match as well.
	ctx1 := rules.ContextMap{"motionState": "walking", "isWeekend": "false"}
	ctx2 := rules.ContextMap{"motionState": "still", "isWeekend": "true"}
	ctx3 := rules.ContextMap{"motionState": "still", "isWeekend": "false", "isCharging": "true"}

	require.Len(t, e.Evaluate(ctx1, 0), 1)
	c.Advance(1000)
	require.Len(t, e.Evaluate(ctx2, 0), 1)

	// Category cap of 2 "nudge" firings reached; a third distinct rule
	// in the same category is suppressed even though neither its own
	// cooldown nor the global cap has been hit.
	c.Advance(1000)
	r3 := rule("r3", rules.Condition{Key: "isCharging", Op: rules.OpEqual, Value: "true"}, "nudge")
	e.AddRule(r3)
	assert.Empty(t, e.Evaluate(ctx3, 0))

	// Outside the window the gate reopens.
	c.Advance(60_001)
	assert.Len(t, e.Evaluate(ctx3, 0), 1)
}

// Property #8 (dedup): a matching rule appears exactly once in the
// results. Here one rule carries two eq conditions that both match; with
// a single rule the tree is one leaf, so the rule is scored once.
func TestDedupByMaxConfidence(t *testing.T) {
	c := clock.NewManualClock(0)
	e := newTestEngine(c)
	r := &rules.Rule{
		ID: "multi-cond",
		Conditions: []rules.Condition{
			{Key: "motionState", Op: rules.OpEqual, Value: "driving"},
			{Key: "isWeekend", Op: rules.OpEqual, Value: "true"},
		},
		Action:  rules.Action{ID: "a1", Type: "navigate"},
		Enabled: true,
	}
	r.WithDefaults()
	e.LoadRules([]*rules.Rule{r})

	results := e.Evaluate(rules.ContextMap{"motionState": "driving", "isWeekend": "true"}, 0)
	require.Len(t, results, 1)
}

// Property #6 (recompile idempotence): loading the same rule set twice
// produces identical evaluation results.
func TestLoadRules_RecompileIdempotent(t *testing.T) {
	c := clock.NewManualClock(0)
	e := newTestEngine(c)
	r := rule("idempotent", rules.Condition{Key: "motionState", Op: rules.OpEqual, Value: "driving"}, "navigate")
	rs := []*rules.Rule{r}

	e.LoadRules(rs)
	first := e.Evaluate(rules.ContextMap{"motionState": "driving"}, 0)

	c.Advance(1)
	e.LoadRules(rs)
	second := e.Evaluate(rules.ContextMap{"motionState": "driving"}, 0)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].RuleID, second[0].RuleID)
	assert.Equal(t, first[0].Confidence, second[0].Confidence)
}

// Property #3 (short-circuit equivalence): a rule whose confidence
// collapses below the firing threshold partway through its condition
// list is excluded, whether or not evaluation would have short-circuited.
func TestShortCircuitEquivalence(t *testing.T) {
	c := clock.NewManualClock(0)
	e := newTestEngine(c)
	r := &rules.Rule{
		ID: "unreachable",
		Conditions: []rules.Condition{
			{Key: "motionState", Op: rules.OpEqual, Value: "driving"},
			{Key: "motionState", Op: rules.OpNotEqual, Value: "driving"},
		},
		Action:  rules.Action{ID: "a1", Type: "navigate"},
		Enabled: true,
	}
	r.WithDefaults()
	e.LoadRules([]*rules.Rule{r})

	assert.Empty(t, e.Evaluate(rules.ContextMap{"motionState": "driving"}, 0))
}

// TestConcurrentEvaluateAndPushEvent stresses spec §5's central lock-
// order invariant: the engine mutex must be released before descending
// into the event buffer, so concurrent PushEvent and Evaluate calls
// (which both touch the buffer, one directly and one via a temporal
// condition) never deadlock or race. Mirrors eventbuf_test.go's
// TestConcurrentPushAndQuery WaitGroup pattern.
func TestConcurrentEvaluateAndPushEvent(t *testing.T) {
	c := clock.NewManualClock(0)
	e := newTestEngine(c)
	r := rule("recent-open", rules.Condition{Key: "event:app_open", Op: rules.OpRecent, Value: "60000"}, "notify")
	e.LoadRules([]*rules.Rule{r})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func(i int) {
			defer wg.Done()
			e.PushEvent(rules.ContextEvent{TimestampMs: int64(i), EventType: "app_open"})
		}(i)
		go func() {
			defer wg.Done()
			e.Evaluate(rules.ContextMap{}, 0)
		}()
		go func(i int) {
			defer wg.Done()
			e.UpdateReward("notify-action", float64(i%2))
		}(i)
	}
	wg.Wait()
}

func TestDisabledRuleNeverFires(t *testing.T) {
	c := clock.NewManualClock(0)
	e := newTestEngine(c)
	r := rule("off", rules.Condition{Key: "motionState", Op: rules.OpEqual, Value: "driving"}, "navigate")
	r.Enabled = false
	e.LoadRules([]*rules.Rule{r})

	assert.Empty(t, e.Evaluate(rules.ContextMap{"motionState": "driving"}, 0))
}
