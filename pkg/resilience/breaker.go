// Package resilience provides the shared guards wrapped around every
// external dependency: a circuit breaker, a TTL'd LRU cache, and a retry
// helper. Breakers and caches are process-wide singletons per dependency,
// constructed once at startup and injected.
package resilience

import (
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned when a call is short-circuited because the
// breaker is open. Callers translate it into their own error taxonomy.
var ErrCircuitOpen = errors.New("circuit breaker open")

// Breaker guards calls to one external dependency. States follow the
// standard closed → open → half-open cycle: the breaker opens after a
// configured run of consecutive failures, short-circuits for the cooldown
// window, then admits a single probe.
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker
}

// NewBreaker creates a breaker that opens after threshold consecutive
// failures and stays open for the cooldown duration.
func NewBreaker(name string, threshold uint32, cooldown time.Duration) *Breaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1, // one probe in half-open
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	}
	return &Breaker{
		name: name,
		cb:   gobreaker.NewCircuitBreaker(settings),
	}
}

// Name returns the breaker's dependency name.
func (b *Breaker) Name() string { return b.name }

// Call runs fn through the breaker. When the breaker is open the call is
// short-circuited in O(1) with ErrCircuitOpen; upstream errors pass
// through unchanged and count toward the failure threshold.
func (b *Breaker) Call(fn func() (any, error)) (any, error) {
	result, err := b.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrCircuitOpen
		}
		return nil, err
	}
	return result, nil
}

// Open reports whether the breaker is currently open.
func (b *Breaker) Open() bool {
	return b.cb.State() == gobreaker.StateOpen
}

// Do is the typed variant of Breaker.Call.
func Do[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	result, err := b.Call(func() (any, error) { return fn() })
	if err != nil {
		return zero, err
	}
	v, ok := result.(T)
	if !ok {
		return zero, errors.New("resilience: breaker result type mismatch")
	}
	return v, nil
}
