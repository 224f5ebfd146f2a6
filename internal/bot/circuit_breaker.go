package bot

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yourusername/keiba-line-bot/internal/logger"
	"github.com/yourusername/keiba-line-bot/internal/metrics"
)

// CircuitState represents the state of the circuit breaker
type CircuitState int

const (
	// CircuitClosed means deliveries are sent
	CircuitClosed CircuitState = iota
	// CircuitHalfOpen lets one delivery through after the cooldown
	CircuitHalfOpen
	// CircuitOpen means deliveries are suppressed
	CircuitOpen
)

// String returns string representation of circuit state
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "CLOSED"
	case CircuitHalfOpen:
		return "HALF_OPEN"
	case CircuitOpen:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreakerConfig defines circuit breaker thresholds
type CircuitBreakerConfig struct {
	MaxFailureCount   int           `json:"max_failure_count"`
	FailureTimeWindow time.Duration `json:"failure_time_window"`
	CooldownPeriod    time.Duration `json:"cooldown_period"`
}

// DefaultCircuitBreakerConfig trips after three failed deliveries in ten minutes.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxFailureCount:   3,
		FailureTimeWindow: 10 * time.Minute,
		CooldownPeriod:    30 * time.Minute,
	}
}

// CircuitBreaker suppresses LINE deliveries after repeated API failures so a
// broken channel token does not burn through scheduled broadcasts.
type CircuitBreaker struct {
	name            string
	config          CircuitBreakerConfig
	state           CircuitState
	failureCount    int
	lastFailureTime time.Time
	openedAt        time.Time
	mu              sync.Mutex
	logger          *logrus.Logger
	audit           *logger.AuditLogger
	now             func() time.Time
}

// NewCircuitBreaker creates a closed circuit breaker
func NewCircuitBreaker(name string, config CircuitBreakerConfig, log *logrus.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		name:   name,
		config: config,
		state:  CircuitClosed,
		logger: log,
		audit:  logger.NewAuditLogger(log),
		now:    time.Now,
	}
}

// Allow reports whether a delivery may be attempted. An open circuit moves to
// half-open once the cooldown has passed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen && cb.now().Sub(cb.openedAt) >= cb.config.CooldownPeriod {
		cb.transitionLocked(CircuitHalfOpen)
	}
	return cb.state != CircuitOpen
}

// RecordFailure increments failure count and opens circuit if threshold exceeded
func (cb *CircuitBreaker) RecordFailure(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()

	if cb.state == CircuitHalfOpen {
		cb.tripLocked(fmt.Sprintf("delivery failed while half-open: %v", err))
		return
	}

	if now.Sub(cb.lastFailureTime) > cb.config.FailureTimeWindow {
		cb.failureCount = 0
	}
	cb.failureCount++
	cb.lastFailureTime = now

	cb.logger.WithFields(logrus.Fields{
		"breaker":       cb.name,
		"failure_count": cb.failureCount,
		"max_allowed":   cb.config.MaxFailureCount,
		"error":         err.Error(),
	}).Warn("Delivery failure recorded")

	if cb.failureCount >= cb.config.MaxFailureCount {
		cb.tripLocked(fmt.Sprintf("%d failures within %v", cb.failureCount, cb.config.FailureTimeWindow))
	}
}

// RecordSuccess closes a half-open circuit and resets the failure count
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount = 0
	if cb.state != CircuitClosed {
		cb.transitionLocked(CircuitClosed)
	}
}

// State returns current circuit state
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset manually resets circuit breaker to closed state
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount = 0
	if cb.state != CircuitClosed {
		cb.transitionLocked(CircuitClosed)
	}
}

func (cb *CircuitBreaker) tripLocked(reason string) {
	cb.openedAt = cb.now()
	cb.transitionLocked(CircuitOpen)
	metrics.RecordCircuitBreakerTrip(cb.name)

	cb.logger.WithFields(logrus.Fields{
		"breaker":         cb.name,
		"reason":          reason,
		"cooldown_period": cb.config.CooldownPeriod,
	}).Error("Delivery circuit breaker opened")
}

func (cb *CircuitBreaker) transitionLocked(to CircuitState) {
	from := cb.state
	cb.state = to
	cb.audit.LogCircuitBreakerEvent(cb.name, from.String(), to.String())
}
