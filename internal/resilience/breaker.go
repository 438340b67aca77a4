// Package resilience implements the circuit breaker and token-bucket
// rate limiter that protect each LLM provider profile from cascading
// failure. Buckets use fixed reset windows checked on the next call
// rather than continuous refill.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is one of the three circuit-breaker states.
type State string

const (
	Closed   State = "closed"
	Open     State = "open"
	HalfOpen State = "half_open"
)

// BreakerConfig tunes a CircuitBreaker's thresholds and timeouts.
type BreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	OpenTimeout      time.Duration
	CallTimeout      time.Duration
}

// DefaultBreakerConfig mirrors the resilient registry's per-profile
// defaults (5 failures to open, 2 successes to close, 60s open
// timeout, 30s per-call timeout).
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, SuccessThreshold: 2, OpenTimeout: 60 * time.Second, CallTimeout: 30 * time.Second}
}

// ErrOpen is returned when a call is short-circuited because the
// breaker is Open.
var ErrOpen = errors.New("circuit breaker open")

// CircuitBreaker guards a flaky dependency behind a three-state
// failure-counting state machine.
type CircuitBreaker struct {
	cfg BreakerConfig

	mu               sync.Mutex
	state            State
	consecutiveFails int
	consecutiveOK    int
	openedAt         time.Time
}

// NewCircuitBreaker constructs a breaker starting Closed.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{cfg: cfg, state: Closed}
}

// State reports the breaker's current state, lazily transitioning
// Open -> HalfOpen once the open timeout has elapsed.
func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpenLocked()
	return b.state
}

func (b *CircuitBreaker) maybeHalfOpenLocked() {
	if b.state == Open && time.Since(b.openedAt) >= b.cfg.OpenTimeout {
		b.state = HalfOpen
		b.consecutiveOK = 0
	}
}

// Call invokes fn through the breaker, enforcing CallTimeout and
// updating breaker state based on fn's outcome.
func (b *CircuitBreaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	b.mu.Lock()
	b.maybeHalfOpenLocked()
	if b.state == Open {
		b.mu.Unlock()
		return ErrOpen
	}
	b.mu.Unlock()

	callCtx := ctx
	var cancel context.CancelFunc
	if b.cfg.CallTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, b.cfg.CallTimeout)
		defer cancel()
	}

	err := fn(callCtx)

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.recordFailureLocked()
		return err
	}
	b.recordSuccessLocked()
	return nil
}

func (b *CircuitBreaker) recordFailureLocked() {
	switch b.state {
	case HalfOpen:
		b.openLocked()
	case Closed:
		b.consecutiveFails++
		if b.consecutiveFails >= b.cfg.FailureThreshold {
			b.openLocked()
		}
	}
}

func (b *CircuitBreaker) recordSuccessLocked() {
	switch b.state {
	case HalfOpen:
		b.consecutiveOK++
		if b.consecutiveOK >= b.cfg.SuccessThreshold {
			b.state = Closed
			b.consecutiveFails = 0
			b.consecutiveOK = 0
		}
	case Closed:
		b.consecutiveFails = 0
	}
}

func (b *CircuitBreaker) openLocked() {
	b.state = Open
	b.openedAt = time.Now()
	b.consecutiveFails = 0
	b.consecutiveOK = 0
}

// Reset restores the breaker to Closed with a zero failure counter
// regardless of its prior state.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.consecutiveFails = 0
	b.consecutiveOK = 0
}
