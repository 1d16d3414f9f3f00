package endpoint

import (
	"sync"
	"time"
)

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// BreakerConfig holds circuit breaker configuration
type BreakerConfig struct {
	Enabled             bool
	FailureThreshold    int
	Cooldown            time.Duration
	HalfOpenMaxRequests int
}

// CircuitBreaker temporarily excludes an endpoint from selection after
// consecutive failures. After Cooldown it admits a limited number of probe
// requests; enough successes close it again, any failure reopens it.
type CircuitBreaker struct {
	cfg            BreakerConfig
	state          breakerState
	failures       int
	probes         int // admitted half-open requests, including in-flight ones
	probeSuccesses int
	openUntil      time.Time
	mu             sync.Mutex
}

// NewCircuitBreaker creates a new CircuitBreaker
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = 2
	}
	return &CircuitBreaker{
		cfg:   cfg,
		state: breakerClosed,
	}
}

// Allow returns true if a request should be attempted
func (cb *CircuitBreaker) Allow() bool {
	if !cb.cfg.Enabled {
		return true
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case breakerClosed:
		return true
	case breakerHalfOpen:
		if cb.probes < cb.cfg.HalfOpenMaxRequests {
			cb.probes++
			return true
		}
		return false
	case breakerOpen:
		if time.Now().After(cb.openUntil) {
			cb.state = breakerHalfOpen
			cb.probes = 1
			cb.probeSuccesses = 0
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess records a successful request
func (cb *CircuitBreaker) RecordSuccess() {
	if !cb.cfg.Enabled {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case breakerHalfOpen:
		cb.probeSuccesses++
		if cb.probeSuccesses >= cb.cfg.HalfOpenMaxRequests {
			cb.state = breakerClosed
			cb.failures = 0
		}
	case breakerClosed:
		cb.failures = 0
	}
}

// RecordFailure records a failed request
func (cb *CircuitBreaker) RecordFailure() {
	if !cb.cfg.Enabled {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case breakerClosed:
		cb.failures++
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.state = breakerOpen
			cb.openUntil = time.Now().Add(cb.cfg.Cooldown)
		}
	case breakerHalfOpen:
		cb.state = breakerOpen
		cb.openUntil = time.Now().Add(cb.cfg.Cooldown)
		cb.probes = 0
		cb.probeSuccesses = 0
	}
}
