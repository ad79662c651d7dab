// Package circuitbreaker stops calls to a failing dependency for a cool-down
// period. The matching service guards session-history lookups with it so
// scoring falls back to neutral defaults quickly while the store is down.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the breaker position.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	// ErrCircuitOpen rejects calls during the cool-down.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests rejects calls once the half-open trial slots are taken.
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// Settings configures a breaker. Zero values take the defaults in brackets.
type Settings struct {
	Name string

	// MaxFailures consecutive failures open the breaker [5].
	MaxFailures int
	// CloseAfter consecutive half-open successes close it [2].
	CloseAfter int
	// Cooldown is how long the breaker stays open [30s].
	Cooldown time.Duration
	// HalfOpenCalls is how many trial calls a half-open breaker admits [1].
	HalfOpenCalls int

	OnStateChange func(name string, from, to State)

	// IsFailure decides which errors count against the dependency. Nil
	// counts every error.
	IsFailure func(error) bool
}

// Counts are the call totals since the breaker was created, plus the streak
// that drives the next transition.
type Counts struct {
	Requests             int
	TotalSuccesses       int
	TotalFailures        int
	ConsecutiveSuccesses int
	ConsecutiveFailures  int
}

// CircuitBreaker is safe for concurrent use.
type CircuitBreaker struct {
	set Settings
	now func() time.Time

	mu       sync.Mutex
	state    State
	counts   Counts
	openedAt time.Time
	trials   int
}

// New applies defaults to s and returns a closed breaker.
func New(s Settings) *CircuitBreaker {
	if s.MaxFailures <= 0 {
		s.MaxFailures = 5
	}
	if s.CloseAfter <= 0 {
		s.CloseAfter = 2
	}
	if s.Cooldown <= 0 {
		s.Cooldown = 30 * time.Second
	}
	if s.HalfOpenCalls <= 0 {
		s.HalfOpenCalls = 1
	}
	return &CircuitBreaker{set: s, now: time.Now}
}

// HistoryStoreBreaker guards session-history lookups. It opens fast because
// scoring has a cheap neutral fallback. Cancellations by the caller do not
// count against the store.
func HistoryStoreBreaker(onStateChange func(name string, from, to State)) *CircuitBreaker {
	return New(Settings{
		Name:          "session-history",
		MaxFailures:   3,
		CloseAfter:    1,
		Cooldown:      15 * time.Second,
		HalfOpenCalls: 1,
		OnStateChange: onStateChange,
		IsFailure: func(err error) bool {
			return !errors.Is(err, context.Canceled)
		},
	})
}

// Execute runs fn unless the breaker rejects the call, and records the result.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.allow(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.done(err)
	return err
}

func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.set.Cooldown {
			return ErrCircuitOpen
		}
		cb.moveTo(StateHalfOpen)
		cb.trials = 1
	case StateHalfOpen:
		if cb.trials >= cb.set.HalfOpenCalls {
			return ErrTooManyRequests
		}
		cb.trials++
	}
	return nil
}

func (cb *CircuitBreaker) done(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := &cb.counts
	c.Requests++
	if err == nil || (cb.set.IsFailure != nil && !cb.set.IsFailure(err)) {
		c.TotalSuccesses++
		c.ConsecutiveSuccesses++
		c.ConsecutiveFailures = 0
		if cb.state == StateHalfOpen && c.ConsecutiveSuccesses >= cb.set.CloseAfter {
			cb.moveTo(StateClosed)
		}
		return
	}

	c.TotalFailures++
	c.ConsecutiveFailures++
	c.ConsecutiveSuccesses = 0
	if cb.state == StateHalfOpen || (cb.state == StateClosed && c.ConsecutiveFailures >= cb.set.MaxFailures) {
		cb.moveTo(StateOpen)
	}
}

// moveTo requires mu.
func (cb *CircuitBreaker) moveTo(to State) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	cb.counts.ConsecutiveSuccesses = 0
	cb.counts.ConsecutiveFailures = 0
	cb.trials = 0
	if to == StateOpen {
		cb.openedAt = cb.now()
	}
	if cb.set.OnStateChange != nil {
		cb.set.OnStateChange(cb.set.Name, from, to)
	}
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Counts() Counts {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.counts
}

func (cb *CircuitBreaker) Name() string { return cb.set.Name }
