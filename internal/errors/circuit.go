package errors

import (
	"context"
	stderrors "errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the circuit breaker is open.
var ErrCircuitOpen = stderrors.New("circuit breaker is open")

// State represents the circuit breaker state.
type State int

const (
	// StateClosed lets calls through.
	StateClosed State = iota
	// StateOpen rejects calls until the reset timeout passes.
	StateOpen
	// StateHalfOpen lets a trial call through.
	StateHalfOpen
)

// String returns a string representation of the state.
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

// Breaker stops calling a collaborator after repeated failures.
// Context cancellation is not counted as a failure.
type Breaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
}

// BreakerOption configures a Breaker.
type BreakerOption func(*Breaker)

// WithMaxFailures sets the number of consecutive failures before opening.
func WithMaxFailures(n int) BreakerOption {
	return func(b *Breaker) {
		b.maxFailures = n
	}
}

// WithResetTimeout sets the time to wait before a trial call.
func WithResetTimeout(d time.Duration) BreakerOption {
	return func(b *Breaker) {
		b.resetTimeout = d
	}
}

// NewBreaker creates a breaker. Default: 5 failures, 30 second reset timeout.
func NewBreaker(name string, opts ...BreakerOption) *Breaker {
	b := &Breaker{
		name:         name,
		maxFailures:  5,
		resetTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState()
}

// currentState reports half-open once an open breaker's timeout passes.
// Caller holds b.mu.
func (b *Breaker) currentState() State {
	if b.state == StateOpen && time.Since(b.lastFailure) > b.resetTimeout {
		return StateHalfOpen
	}
	return b.state
}

// Execute runs fn unless the breaker is open.
func (b *Breaker) Execute(fn func() error) error {
	b.mu.Lock()
	if b.currentState() == StateOpen {
		b.mu.Unlock()
		return ErrCircuitOpen
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case err == nil:
		b.failures = 0
		b.state = StateClosed
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
	default:
		b.failures++
		b.lastFailure = time.Now()
		if b.failures >= b.maxFailures || b.state == StateOpen {
			b.state = StateOpen
		}
	}
	return err
}
