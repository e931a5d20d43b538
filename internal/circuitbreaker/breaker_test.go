package circuitbreaker

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(threshold int) (*Breaker, *fakeClock) {
	clk := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	return New(threshold, time.Minute).WithClock(clk.Now), clk
}

func TestBreaker_TripsAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(3)

	b.RecordFailure("explorer")
	b.RecordFailure("explorer")
	assert.True(t, b.Allow("explorer"))

	b.RecordFailure("explorer")
	assert.False(t, b.Allow("explorer"))
	assert.Equal(t, StateOpen, b.State("explorer"))

	// other keys are unaffected
	assert.True(t, b.Allow("llm"))
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	b, clk := newTestBreaker(1)
	b.RecordFailure("explorer")
	require.False(t, b.Allow("explorer"))

	clk.Advance(time.Minute)
	assert.True(t, b.Allow("explorer"), "first call after open period is a probe")
	assert.Equal(t, StateHalfOpen, b.State("explorer"))
	assert.False(t, b.Allow("explorer"), "only one probe at a time")

	b.RecordSuccess("explorer")
	assert.Equal(t, StateClosed, b.State("explorer"))
	assert.True(t, b.Allow("explorer"))
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	b, clk := newTestBreaker(1)
	b.RecordFailure("llm")
	clk.Advance(2 * time.Minute)
	require.True(t, b.Allow("llm"))

	b.RecordFailure("llm")
	assert.Equal(t, StateOpen, b.State("llm"))
	assert.False(t, b.Allow("llm"))
}

func TestBreaker_Do(t *testing.T) {
	b, _ := newTestBreaker(2)
	boom := errors.New("503")
	notFound := errors.New("not found")
	countable := func(err error) bool { return !errors.Is(err, notFound) }

	for i := 0; i < 5; i++ {
		err := b.Do("explorer", countable, func() error { return notFound })
		assert.ErrorIs(t, err, notFound)
	}
	assert.Equal(t, StateClosed, b.State("explorer"), "non-countable errors do not trip")

	_ = b.Do("explorer", countable, func() error { return boom })
	_ = b.Do("explorer", countable, func() error { return boom })
	assert.Equal(t, StateOpen, b.State("explorer"))

	called := false
	err := b.Do("explorer", countable, func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestBreaker_OnTransition(t *testing.T) {
	b, _ := newTestBreaker(1)
	var got []string
	b.OnTransition(func(key string, from, to State) {
		got = append(got, key+":"+from.String()+"->"+to.String())
	})
	b.RecordFailure("llm")
	assert.Equal(t, []string{"llm:closed->open"}, got)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half_open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}
