package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Undefine-Innovation/Qdrant-LiteRAGMCP-sub006/internal/observability"
)

// ErrCircuitOpen is returned by CircuitBreaker.Execute when the breaker is
// open and the call was rejected without running.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerState is one of the three states a CircuitBreaker can be in.
type BreakerState int

// Breaker states.
const (
	// BreakerClosed lets every call through and counts failures.
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects every call until ResetTimeout has elapsed.
	BreakerOpen
	// BreakerHalfOpen lets a limited number of probe calls through to test
	// whether the collaborator has recovered.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures a CircuitBreaker's trip and recovery
// behavior.
type CircuitBreakerConfig struct {
	// MaxFailures trips the breaker open once this many consecutive/closed-
	// state failures have accumulated.
	MaxFailures int
	// ResetTimeout is how long the breaker stays open before allowing a
	// half-open probe.
	ResetTimeout time.Duration
	// HalfOpenMaxRequests bounds how many probe calls are allowed through
	// while half-open.
	HalfOpenMaxRequests int
	// FailureThreshold, once MinimumRequestCount requests have been seen,
	// trips the breaker if the observed failure rate reaches it.
	FailureThreshold float64
	// MinimumRequestCount is the sample size required before FailureThreshold
	// is consulted at all.
	MinimumRequestCount int
}

// DefaultCircuitBreakerConfig returns the defaults used when a Batcher's
// Config.Breaker is left at its zero value.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxFailures:         5,
		ResetTimeout:        60 * time.Second,
		HalfOpenMaxRequests: 3,
		FailureThreshold:    0.5,
		MinimumRequestCount: 10,
	}
}

// CircuitBreaker guards calls to a single external collaborator (the
// vectorstore.Client), tripping open after repeated failures so that a
// batch operation stops hammering a collection that has already proven
// broken within the current run.
type CircuitBreaker struct {
	mu          sync.Mutex
	config      CircuitBreakerConfig
	state       BreakerState
	failures    int
	successes   int
	requests    int
	lastAttempt time.Time
	logger      observability.Logger
}

// NewCircuitBreaker creates a breaker in the closed state.
func NewCircuitBreaker(config CircuitBreakerConfig, logger observability.Logger) *CircuitBreaker {
	if config.MaxFailures <= 0 {
		config.MaxFailures = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 60 * time.Second
	}
	if config.HalfOpenMaxRequests <= 0 {
		config.HalfOpenMaxRequests = 3
	}
	return &CircuitBreaker{
		config: config,
		state:  BreakerClosed,
		logger: logger.WithPrefix("circuit-breaker"),
	}
}

// Execute runs fn if the breaker currently admits calls, recording the
// outcome against the trip/recovery thresholds either way. It returns
// ErrCircuitOpen without calling fn when the breaker is open.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if !cb.admit() {
		return ErrCircuitOpen
	}
	err := fn()
	cb.record(err == nil)
	return err
}

// admit reports whether a call may proceed right now, transitioning
// open -> half-open once ResetTimeout has elapsed.
func (cb *CircuitBreaker) admit() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if time.Since(cb.lastAttempt) <= cb.config.ResetTimeout {
			return false
		}
		cb.transitionTo(BreakerHalfOpen)
		cb.resetCounters()
		cb.logger.Info("circuit breaker probing half-open", nil)
		return true
	case BreakerHalfOpen:
		return cb.requests < cb.config.HalfOpenMaxRequests
	default:
		return false
	}
}

func (cb *CircuitBreaker) record(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.requests++
	cb.lastAttempt = time.Now()
	if success {
		cb.successes++
		cb.onSuccess()
	} else {
		cb.failures++
		cb.onFailure()
	}
}

func (cb *CircuitBreaker) onSuccess() {
	switch cb.state {
	case BreakerHalfOpen:
		if cb.successes >= cb.config.HalfOpenMaxRequests {
			cb.transitionTo(BreakerClosed)
			cb.resetCounters()
			cb.logger.Info("circuit breaker closed after recovery", nil)
		}
	case BreakerClosed:
		if cb.requests >= cb.config.MinimumRequestCount && cb.failureRate() < cb.config.FailureThreshold {
			cb.resetCounters()
		}
	}
}

func (cb *CircuitBreaker) onFailure() {
	switch cb.state {
	case BreakerHalfOpen:
		cb.transitionTo(BreakerOpen)
		cb.logger.Warn("circuit breaker re-opened after a half-open probe failed", map[string]interface{}{
			"failures": cb.failures,
		})
	case BreakerClosed:
		rate := cb.failureRate()
		switch {
		case cb.failures >= cb.config.MaxFailures:
			cb.transitionTo(BreakerOpen)
			cb.logger.Warn("circuit breaker opened", map[string]interface{}{"failures": cb.failures})
		case cb.requests >= cb.config.MinimumRequestCount && rate >= cb.config.FailureThreshold:
			cb.transitionTo(BreakerOpen)
			cb.logger.Warn("circuit breaker opened on failure rate", map[string]interface{}{
				"failure_rate": rate,
				"threshold":    cb.config.FailureThreshold,
			})
		}
	}
}

func (cb *CircuitBreaker) failureRate() float64 {
	if cb.requests == 0 {
		return 0
	}
	return float64(cb.failures) / float64(cb.requests)
}

func (cb *CircuitBreaker) transitionTo(state BreakerState) { cb.state = state }

func (cb *CircuitBreaker) resetCounters() {
	cb.failures = 0
	cb.successes = 0
	cb.requests = 0
}

// State reports the breaker's current state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats returns a snapshot of the breaker's counters, for logging/debugging.
func (cb *CircuitBreaker) Stats() map[string]interface{} {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return map[string]interface{}{
		"state":        cb.state.String(),
		"failures":     cb.failures,
		"successes":    cb.successes,
		"requests":     cb.requests,
		"failure_rate": cb.failureRate(),
		"last_attempt": cb.lastAttempt,
	}
}
