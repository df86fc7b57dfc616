package broker

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// CircuitBreaker tracks consecutive backend failures and trips open
// after a threshold, following the same consecutive-failure /
// status-transition shape as the teacher's provider health poller,
// applied here to the broker's own backend rather than to upstream
// providers.
type CircuitBreaker struct {
	mu sync.Mutex

	threshold  int
	cooldown   time.Duration
	logger     zerolog.Logger

	consecutiveFailures int
	open                bool
	openedAt            time.Time
}

// NewCircuitBreaker trips after threshold consecutive failures and
// allows one trial request after cooldown elapses.
func NewCircuitBreaker(threshold int, cooldown time.Duration, logger zerolog.Logger) *CircuitBreaker {
	if threshold < 1 {
		threshold = 1
	}
	return &CircuitBreaker{
		threshold: threshold,
		cooldown:  cooldown,
		logger:    logger.With().Str("component", "broker_circuit_breaker").Logger(),
	}
}

// Allow reports whether a call should proceed. When open, it permits
// exactly one trial call per cooldown window (half-open probing).
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if !cb.open {
		return true
	}
	if time.Since(cb.openedAt) >= cb.cooldown {
		// Restart the cooldown so the next trial waits a full window.
		cb.openedAt = time.Now()
		return true
	}
	return false
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	wasOpen := cb.open
	cb.consecutiveFailures = 0
	cb.open = false
	if wasOpen {
		cb.logger.Warn().Msg("broker backend recovered, circuit closed")
	}
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutiveFailures++
	if cb.consecutiveFailures >= cb.threshold && !cb.open {
		cb.open = true
		cb.openedAt = time.Now()
		cb.logger.Warn().
			Int("consecutive_failures", cb.consecutiveFailures).
			Msg("broker backend degraded, circuit opened")
	}
}

func (cb *CircuitBreaker) IsOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.open
}
