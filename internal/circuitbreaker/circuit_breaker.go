// Package circuitbreaker protects outbound provider calls from
// hammering a dependency that is already failing — used by the
// embedding adapter around its provider's EmbedBatch call.
package circuitbreaker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/amp-proto/amp/internal/amperrors"
)

// State is where the breaker sits in the closed/open/half-open cycle.
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

// Config tunes when the breaker trips and how it recovers.
type Config struct {
	FailureThreshold      int // consecutive failures before opening
	SuccessThreshold      int // half-open successes before closing
	Timeout               time.Duration // open duration before probing
	MaxConcurrentRequests int           // probes allowed while half-open
	OnStateChange         func(from, to State)
}

// DefaultConfig trips after 5 consecutive failures and probes again
// after 30s — the shape every C1 provider call is wrapped in.
func DefaultConfig() *Config {
	return &Config{
		FailureThreshold:      5,
		SuccessThreshold:      2,
		Timeout:               30 * time.Second,
		MaxConcurrentRequests: 1,
	}
}

// CircuitBreaker guards a single outbound dependency.
type CircuitBreaker struct {
	config *Config

	state           int32
	lastFailureTime int64

	consecutiveFailures  int32
	consecutiveSuccesses int32
	halfOpenRequests     int32

	totalRequests   int64
	totalFailures   int64
	totalSuccesses  int64
	totalRejections int64
}

// New creates a breaker, applying DefaultConfig for a nil config.
func New(config *Config) *CircuitBreaker {
	if config == nil {
		config = DefaultConfig()
	}
	return &CircuitBreaker{config: config, state: int32(StateClosed)}
}

// Execute runs fn with breaker protection. Every failure counts against
// the trip threshold except the client-fault kinds tripsCircuit excludes
// (validation, not-found, conflict, ambiguous, cancelled) — such an
// error from the wrapped call never opens the circuit.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.canExecute(); err != nil {
		atomic.AddInt64(&cb.totalRejections, 1)
		return err
	}

	atomic.AddInt64(&cb.totalRequests, 1)
	err := fn(ctx)
	cb.recordResult(err)
	return err
}

func (cb *CircuitBreaker) canExecute() error {
	switch cb.getState() {
	case StateClosed:
		return nil
	case StateOpen:
		if cb.shouldTransitionToHalfOpen() {
			cb.transitionTo(StateHalfOpen)
			return nil
		}
		return amperrors.ProviderUnavailable("circuit", ErrCircuitOpen)
	case StateHalfOpen:
		current := atomic.AddInt32(&cb.halfOpenRequests, 1)
		if current > int32(cb.config.MaxConcurrentRequests) {
			atomic.AddInt32(&cb.halfOpenRequests, -1)
			return amperrors.ProviderUnavailable("circuit", ErrTooManyConcurrentRequests)
		}
		return nil
	default:
		return amperrors.Internal("", fmt.Sprintf("unknown circuit breaker state: %v", cb.getState()))
	}
}

func (cb *CircuitBreaker) recordResult(err error) {
	state := cb.getState()
	if tripsCircuit(err) {
		cb.recordFailure()
	} else {
		cb.recordSuccess()
	}
	if state == StateHalfOpen {
		atomic.AddInt32(&cb.halfOpenRequests, -1)
	}
}

// tripsCircuit decides whether a result counts against the breaker. A
// nil error is always a success; a classified client-fault kind (the
// call reached the provider and it rejected the request on its merits)
// never counts against the dependency's health.
func tripsCircuit(err error) bool {
	if err == nil {
		return false
	}
	switch amperrors.As(err).Kind {
	case amperrors.KindValidation, amperrors.KindNotFound, amperrors.KindConflict, amperrors.KindAmbiguous, amperrors.KindCancelled:
		return false
	default:
		return true
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	atomic.AddInt64(&cb.totalSuccesses, 1)
	switch cb.getState() {
	case StateClosed:
		atomic.StoreInt32(&cb.consecutiveFailures, 0)
	case StateHalfOpen:
		successes := atomic.AddInt32(&cb.consecutiveSuccesses, 1)
		if successes >= int32(cb.config.SuccessThreshold) {
			cb.transitionTo(StateClosed)
		}
	}
}

func (cb *CircuitBreaker) recordFailure() {
	atomic.AddInt64(&cb.totalFailures, 1)
	atomic.StoreInt64(&cb.lastFailureTime, time.Now().UnixNano())
	switch cb.getState() {
	case StateClosed:
		failures := atomic.AddInt32(&cb.consecutiveFailures, 1)
		if failures >= int32(cb.config.FailureThreshold) {
			cb.transitionTo(StateOpen)
		}
	case StateHalfOpen:
		cb.transitionTo(StateOpen)
	}
}

func (cb *CircuitBreaker) shouldTransitionToHalfOpen() bool {
	lastFailure := atomic.LoadInt64(&cb.lastFailureTime)
	if lastFailure == 0 {
		return true
	}
	return time.Since(time.Unix(0, lastFailure)) >= cb.config.Timeout
}

func (cb *CircuitBreaker) transitionTo(newState State) {
	oldState := State(atomic.SwapInt32(&cb.state, int32(newState)))
	if oldState == newState {
		return
	}
	switch newState {
	case StateClosed:
		atomic.StoreInt32(&cb.consecutiveFailures, 0)
		atomic.StoreInt32(&cb.consecutiveSuccesses, 0)
	case StateOpen:
		atomic.StoreInt32(&cb.consecutiveSuccesses, 0)
	case StateHalfOpen:
		atomic.StoreInt32(&cb.consecutiveSuccesses, 0)
		atomic.StoreInt32(&cb.halfOpenRequests, 0)
	}
	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(oldState, newState)
	}
}

func (cb *CircuitBreaker) getState() State {
	return State(atomic.LoadInt32(&cb.state))
}

// GetState returns the breaker's current state.
func (cb *CircuitBreaker) GetState() State {
	return cb.getState()
}

// Stats is a snapshot of breaker counters, as returned by GetStats.
type Stats struct {
	State           State
	TotalRequests   int64
	TotalFailures   int64
	TotalSuccesses  int64
	TotalRejections int64
	FailureRate     float64
	LastFailureTime time.Time
}

// GetStats returns the breaker's current counters.
func (cb *CircuitBreaker) GetStats() Stats {
	requests := atomic.LoadInt64(&cb.totalRequests)
	failures := atomic.LoadInt64(&cb.totalFailures)

	var failureRate float64
	if requests > 0 {
		failureRate = float64(failures) / float64(requests)
	}

	var lastFailureTime time.Time
	if nano := atomic.LoadInt64(&cb.lastFailureTime); nano > 0 {
		lastFailureTime = time.Unix(0, nano)
	}

	return Stats{
		State:           cb.getState(),
		TotalRequests:   requests,
		TotalFailures:   failures,
		TotalSuccesses:  atomic.LoadInt64(&cb.totalSuccesses),
		TotalRejections: atomic.LoadInt64(&cb.totalRejections),
		FailureRate:     failureRate,
		LastFailureTime: lastFailureTime,
	}
}

// Reset forces the breaker back to closed and clears the consecutive
// counters, the half-open probe count and the last failure time; the
// lifetime totals reported by GetStats are kept.
func (cb *CircuitBreaker) Reset() {
	atomic.StoreInt32(&cb.state, int32(StateClosed))
	atomic.StoreInt32(&cb.consecutiveFailures, 0)
	atomic.StoreInt32(&cb.consecutiveSuccesses, 0)
	atomic.StoreInt32(&cb.halfOpenRequests, 0)
	atomic.StoreInt64(&cb.lastFailureTime, 0)
}

var (
	ErrCircuitOpen               = fmt.Errorf("circuit breaker is open")
	ErrTooManyConcurrentRequests = fmt.Errorf("too many concurrent requests in half-open state")
)
