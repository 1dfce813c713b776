package resilience

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests")
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configures every breaker in a Group
type Settings struct {
	// Threshold is the number of consecutive failures that opens the circuit
	Threshold uint32
	// Cooldown is how long the circuit stays open before trial requests
	Cooldown time.Duration
	// Trials is the number of concurrent requests allowed while half-open;
	// that many consecutive successes close the circuit again
	Trials uint32
	// OnStateChange is called whenever a breaker changes state
	OnStateChange func(key string, from, to State)
	// Now replaces time.Now
	Now func() time.Time
}

func (s Settings) withDefaults() Settings {
	if s.Threshold == 0 {
		s.Threshold = 5
	}
	if s.Cooldown == 0 {
		s.Cooldown = 30 * time.Second
	}
	if s.Trials == 0 {
		s.Trials = 1
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	return s
}

// Breaker guards calls to one downstream key
type Breaker struct {
	key      string
	settings Settings

	mu         sync.Mutex
	state      State
	generation uint64 // bumped on every transition
	failures   uint32 // consecutive, closed state
	successes  uint32 // consecutive, half-open state
	inflight   uint32 // half-open only
	openedAt   time.Time
}

// New creates a standalone breaker
func New(key string, settings Settings) *Breaker {
	return &Breaker{key: key, settings: settings.withDefaults()}
}

// Key returns the key the breaker guards
func (b *Breaker) Key() string {
	return b.key
}

// State returns the current state, moving an expired open circuit to half-open
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refresh()
	return b.state
}

// Do runs fn if the circuit admits it. A nil error from fn counts as success.
// Results of calls admitted before the last state change are discarded.
func (b *Breaker) Do(fn func() error) error {
	generation, err := b.admit()
	if err != nil {
		return err
	}

	ok := false
	defer func() { b.record(generation, ok) }()

	err = fn()
	ok = err == nil
	return err
}

// Call is Do for functions that return a value
func Call[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var out T
	err := b.Do(func() error {
		var err error
		out, err = fn()
		return err
	})
	return out, err
}

func (b *Breaker) admit() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refresh()
	switch b.state {
	case StateOpen:
		return b.generation, ErrCircuitOpen
	case StateHalfOpen:
		if b.inflight >= b.settings.Trials {
			return b.generation, ErrTooManyRequests
		}
		b.inflight++
	}
	return b.generation, nil
}

func (b *Breaker) record(generation uint64, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refresh()
	if generation != b.generation {
		return
	}

	switch b.state {
	case StateClosed:
		if ok {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.settings.Threshold {
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		if b.inflight > 0 {
			b.inflight--
		}
		if !ok {
			b.transition(StateOpen)
			return
		}
		b.successes++
		if b.successes >= b.settings.Trials {
			b.transition(StateClosed)
		}
	}
}

func (b *Breaker) refresh() {
	if b.state == StateOpen && !b.settings.Now().Before(b.openedAt.Add(b.settings.Cooldown)) {
		b.transition(StateHalfOpen)
	}
}

// transition must be called with mu held.
func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.generation++
	b.failures, b.successes, b.inflight = 0, 0, 0
	if to == StateOpen {
		b.openedAt = b.settings.Now()
	}
	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.key, from, to)
	}
}

// Group lazily creates one breaker per key
type Group struct {
	settings Settings

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewGroup creates an empty group
func NewGroup(settings Settings) *Group {
	return &Group{
		settings: settings.withDefaults(),
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for key, creating it on first use
func (g *Group) Get(key string) *Breaker {
	g.mu.Lock()
	defer g.mu.Unlock()

	b, ok := g.breakers[key]
	if !ok {
		b = New(key, g.settings)
		g.breakers[key] = b
	}
	return b
}

// Do runs fn through the breaker for key
func (g *Group) Do(key string, fn func() error) error {
	return g.Get(key).Do(fn)
}

// States returns the current state of every known breaker
func (g *Group) States() map[string]State {
	g.mu.Lock()
	breakers := make([]*Breaker, 0, len(g.breakers))
	for _, b := range g.breakers {
		breakers = append(breakers, b)
	}
	g.mu.Unlock()

	states := make(map[string]State, len(breakers))
	for _, b := range breakers {
		states[b.Key()] = b.State()
	}
	return states
}
