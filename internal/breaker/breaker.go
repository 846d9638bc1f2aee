// Package breaker implements the circuit breaker protecting the external
// completion service. State is process-local and created once per process.
package breaker

import (
	"sync"
	"time"
)

// State of the circuit.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

const (
	// DefaultFailureThreshold is the number of consecutive failures that
	// opens the circuit.
	DefaultFailureThreshold = 5
	// DefaultOpenTimeout is how long the circuit stays open before a
	// half-open trial is allowed.
	DefaultOpenTimeout = 60 * time.Second
	// DefaultSuccessThreshold is the number of consecutive half-open
	// successes that closes the circuit again.
	DefaultSuccessThreshold = 2
)

// Breaker is a Closed/Open/HalfOpen circuit breaker. Safe for concurrent
// use.
type Breaker struct {
	mu sync.Mutex

	state            State
	failures         int
	successes        int
	lastFailure      time.Time
	failureThreshold int
	openTimeout      time.Duration
	successThreshold int
	now              func() time.Time
}

// New creates a Breaker; non-positive arguments fall back to the defaults.
func New(failureThreshold int, openTimeout time.Duration, successThreshold int) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = DefaultFailureThreshold
	}
	if openTimeout <= 0 {
		openTimeout = DefaultOpenTimeout
	}
	if successThreshold <= 0 {
		successThreshold = DefaultSuccessThreshold
	}
	return &Breaker{
		state:            StateClosed,
		failureThreshold: failureThreshold,
		openTimeout:      openTimeout,
		successThreshold: successThreshold,
		now:              time.Now,
	}
}

// CanAttempt reports whether a call to the protected service may proceed.
// While open, it flips to half-open once the open timeout has elapsed,
// allowing a single trial stream.
func (b *Breaker) CanAttempt() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if b.now().Sub(b.lastFailure) >= b.openTimeout {
			b.state = StateHalfOpen
			b.successes = 0
			return true
		}
		return false
	}
	return false
}

// RecordSuccess registers a successful call. While closed it resets the
// failure counter; while half-open it counts toward closing the circuit.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.successThreshold {
			b.state = StateClosed
			b.failures = 0
			b.successes = 0
		}
	}
}

// RecordFailure registers a failed call. Reaching the failure threshold
// while closed opens the circuit; any failure while half-open reopens it
// immediately and resets the success counter.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailure = b.now()
	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.failureThreshold {
			b.state = StateOpen
		}
	case StateHalfOpen:
		b.state = StateOpen
		b.successes = 0
		b.failures = b.failureThreshold
	}
}

// State returns the current circuit state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
