package bot

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/yourusername/keiba-line-bot/internal/logger"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func newTestBreaker() (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 5, 26, 10, 0, 0, 0, jst)}
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{
		MaxFailureCount:   3,
		FailureTimeWindow: 5 * time.Minute,
		CooldownPeriod:    30 * time.Minute,
	}, logger.Discard())
	cb.now = clock.now
	return cb, clock
}

var errDelivery = errors.New("line api unavailable")

func TestCircuitBreakerTrips(t *testing.T) {
	cb, _ := newTestBreaker()

	cb.RecordFailure(errDelivery)
	cb.RecordFailure(errDelivery)
	assert.True(t, cb.Allow())
	assert.Equal(t, CircuitClosed, cb.State())

	cb.RecordFailure(errDelivery)
	assert.False(t, cb.Allow())
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitBreakerWindowResets(t *testing.T) {
	cb, clock := newTestBreaker()

	cb.RecordFailure(errDelivery)
	cb.RecordFailure(errDelivery)
	clock.t = clock.t.Add(10 * time.Minute)
	cb.RecordFailure(errDelivery)

	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreakerHalfOpen(t *testing.T) {
	cb, clock := newTestBreaker()
	for i := 0; i < 3; i++ {
		cb.RecordFailure(errDelivery)
	}

	clock.t = clock.t.Add(29 * time.Minute)
	assert.False(t, cb.Allow())

	clock.t = clock.t.Add(time.Minute)
	assert.True(t, cb.Allow())
	assert.Equal(t, CircuitHalfOpen, cb.State())

	cb.RecordFailure(errDelivery)
	assert.Equal(t, CircuitOpen, cb.State())

	clock.t = clock.t.Add(30 * time.Minute)
	assert.True(t, cb.Allow())
	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreakerReset(t *testing.T) {
	cb, _ := newTestBreaker()
	for i := 0; i < 3; i++ {
		cb.RecordFailure(errDelivery)
	}
	cb.Reset()
	assert.True(t, cb.Allow())
	assert.Equal(t, "CLOSED", cb.State().String())
}
