package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFailed = errors.New("failed")

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
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

func outcome(success bool) func() error {
	return func() error {
		if success {
			return nil
		}
		return errFailed
	}
}

func TestBreakerStateTransitions(t *testing.T) {
	tests := []struct {
		name          string
		threshold     uint32
		requests      []bool // true = success, false = failure
		expectedState State
	}{
		{
			name:          "stays closed on successes",
			threshold:     3,
			requests:      []bool{true, true, true},
			expectedState: StateClosed,
		},
		{
			name:          "opens after consecutive failures",
			threshold:     3,
			requests:      []bool{false, false, false},
			expectedState: StateOpen,
		},
		{
			name:          "success resets the failure streak",
			threshold:     3,
			requests:      []bool{false, false, true, false, false},
			expectedState: StateClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			breaker := New("test", Settings{Threshold: tt.threshold, Cooldown: time.Minute})

			for _, success := range tt.requests {
				_ = breaker.Do(outcome(success))
			}

			assert.Equal(t, tt.expectedState, breaker.State())
		})
	}
}

func TestBreakerOpenState(t *testing.T) {
	breaker := New("test", Settings{Threshold: 2, Cooldown: time.Minute})

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, breaker.Do(outcome(false)), errFailed)
	}
	require.Equal(t, StateOpen, breaker.State())

	called := false
	err := breaker.Do(func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreakerHalfOpenState(t *testing.T) {
	clock := newFakeClock()
	breaker := New("test", Settings{
		Threshold: 1,
		Cooldown:  time.Second,
		Trials:    2,
		Now:       clock.Now,
	})

	_ = breaker.Do(outcome(false))
	require.Equal(t, StateOpen, breaker.State())

	clock.Advance(time.Second)
	assert.Equal(t, StateHalfOpen, breaker.State())

	require.NoError(t, breaker.Do(outcome(true)))
	assert.Equal(t, StateHalfOpen, breaker.State())
	require.NoError(t, breaker.Do(outcome(true)))
	assert.Equal(t, StateClosed, breaker.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	clock := newFakeClock()
	breaker := New("test", Settings{Threshold: 1, Cooldown: time.Second, Now: clock.Now})

	_ = breaker.Do(outcome(false))
	clock.Advance(2 * time.Second)
	require.Equal(t, StateHalfOpen, breaker.State())

	_ = breaker.Do(outcome(false))
	assert.Equal(t, StateOpen, breaker.State())

	clock.Advance(500 * time.Millisecond)
	assert.ErrorIs(t, breaker.Do(outcome(true)), ErrCircuitOpen)
}

func TestBreakerHalfOpenLimitsTrials(t *testing.T) {
	clock := newFakeClock()
	breaker := New("test", Settings{Threshold: 1, Cooldown: time.Second, Trials: 1, Now: clock.Now})

	_ = breaker.Do(outcome(false))
	clock.Advance(time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- breaker.Do(func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	assert.ErrorIs(t, breaker.Do(outcome(true)), ErrTooManyRequests)
	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, breaker.State())
}

func TestBreakerIgnoresResultsFromEarlierState(t *testing.T) {
	clock := newFakeClock()
	breaker := New("test", Settings{Threshold: 1, Cooldown: time.Second, Trials: 1, Now: clock.Now})

	// slow call admitted while closed
	releaseSlow := make(chan struct{})
	slowStarted := make(chan struct{})
	slowDone := make(chan error, 1)
	go func() {
		slowDone <- breaker.Do(func() error {
			close(slowStarted)
			<-releaseSlow
			return nil
		})
	}()
	<-slowStarted

	require.ErrorIs(t, breaker.Do(outcome(false)), errFailed)
	require.Equal(t, StateOpen, breaker.State())
	clock.Advance(time.Second)

	// trial call admitted while half-open
	releaseTrial := make(chan struct{})
	trialStarted := make(chan struct{})
	trialDone := make(chan error, 1)
	go func() {
		trialDone <- breaker.Do(func() error {
			close(trialStarted)
			<-releaseTrial
			return errFailed
		})
	}()
	<-trialStarted

	close(releaseSlow)
	require.NoError(t, <-slowDone)
	assert.Equal(t, StateHalfOpen, breaker.State(), "a success admitted while closed must not close the circuit")
	assert.ErrorIs(t, breaker.Do(outcome(true)), ErrTooManyRequests, "the trial slot is still taken")

	close(releaseTrial)
	assert.ErrorIs(t, <-trialDone, errFailed)
	assert.Equal(t, StateOpen, breaker.State())
}

func TestBreakerRecordsPanicAsFailure(t *testing.T) {
	breaker := New("test", Settings{Threshold: 1})

	assert.Panics(t, func() {
		_ = breaker.Do(func() error { panic("boom") })
	})
	assert.Equal(t, StateOpen, breaker.State())
}

func TestCall(t *testing.T) {
	breaker := New("test", Settings{Threshold: 1})

	got, err := Call(breaker, func() (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", got)

	_, err = Call(breaker, func() (int, error) { return 0, errFailed })
	assert.ErrorIs(t, err, errFailed)

	_, err = Call(breaker, func() (int, error) { return 1, nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestGroupIsolatesKeys(t *testing.T) {
	type change struct {
		key      string
		from, to State
	}
	var changes []change
	group := NewGroup(Settings{
		Threshold: 1,
		Cooldown:  time.Minute,
		OnStateChange: func(key string, from, to State) {
			changes = append(changes, change{key, from, to})
		},
	})

	assert.ErrorIs(t, group.Do("https://down.test", outcome(false)), errFailed)
	assert.ErrorIs(t, group.Do("https://down.test", outcome(true)), ErrCircuitOpen)
	assert.NoError(t, group.Do("https://up.test", outcome(true)))

	assert.Same(t, group.Get("https://down.test"), group.Get("https://down.test"))
	assert.Equal(t, "https://up.test", group.Get("https://up.test").Key())
	assert.Equal(t, map[string]State{
		"https://down.test": StateOpen,
		"https://up.test":   StateClosed,
	}, group.States())
	assert.Equal(t, []change{{"https://down.test", StateClosed, StateOpen}}, changes)
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateClosed, "closed"},
		{StateHalfOpen, "half-open"},
		{StateOpen, "open"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.state.String())
		})
	}
}
