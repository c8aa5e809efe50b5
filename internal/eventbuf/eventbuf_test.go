package eventbuf

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ctxrules/engine/internal/clock"
	"github.com/ctxrules/engine/internal/rules"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func push(b *Buffer, ts int64, eventType string) {
	b.Push(rules.ContextEvent{TimestampMs: ts, EventType: eventType})
}

func TestHasRecent(t *testing.T) {
	c := clock.NewManualClock(3000)
	b := New(c, 10, 0)
	push(b, 1000, "geofence_enter")

	assert.True(t, b.HasRecent("geofence_enter", 5000))
	assert.False(t, b.HasRecent("app_open", 5000))
	c.Set(10000)
	assert.False(t, b.HasRecent("geofence_enter", 5000))
}

func TestHasSequence_S4(t *testing.T) {
	c := clock.NewManualClock(0)
	b := New(c, 10, 0)
	push(b, 1000, "geofence_enter")
	push(b, 2000, "app_open")

	c.Set(3000)
	assert.True(t, b.HasSequence("geofence_enter", "app_open", 5000))

	c.Set(7000)
	assert.False(t, b.HasSequence("geofence_enter", "app_open", 5000))
}

func TestHasSequence_RequiresAOrderedBeforeB(t *testing.T) {
	c := clock.NewManualClock(0)
	b := New(c, 10, 0)
	push(b, 1000, "app_open")
	push(b, 2000, "geofence_enter")
	c.Set(3000)

	// A (geofence_enter) must occur before B (app_open); here it's after.
	assert.False(t, b.HasSequence("geofence_enter", "app_open", 5000))
}

func TestBoundedBySize(t *testing.T) {
	c := clock.NewManualClock(0)
	b := New(c, 3, 0)
	for i := int64(0); i < 10; i++ {
		c.Set(i * 100)
		push(b, i*100, "tick")
	}
	assert.Equal(t, 3, b.Len())
}

func TestBoundedByAge(t *testing.T) {
	c := clock.NewManualClock(0)
	b := New(c, 100, 0)
	push(b, 0, "old")
	c.Set(DefaultMaxAgeMs + 1)
	push(b, DefaultMaxAgeMs+1, "new")
	require.Equal(t, 1, b.Len())
	assert.False(t, b.HasRecent("old", DefaultMaxAgeMs*2))
}

func TestCustomMaxAge(t *testing.T) {
	c := clock.NewManualClock(0)
	b := New(c, 100, 1000) // 1s bound instead of the 24h default
	push(b, 0, "old")
	c.Set(1001)
	push(b, 1001, "new")
	require.Equal(t, 1, b.Len())
}

func TestConcurrentPushAndQuery(t *testing.T) {
	c := clock.NewManualClock(0)
	b := New(c, 50, 0)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			push(b, int64(i), "tick")
		}(i)
		go func() {
			defer wg.Done()
			b.HasRecent("tick", 1000)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, b.Len(), 50)
}
