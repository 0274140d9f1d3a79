// Package resilience provides resilient HTTP client wrappers with circuit breakers,
// timeouts, and retry logic for external provider calls.
package resilience

import (
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
)

// TripPolicy decides when a provider circuit opens.
type TripPolicy struct {
	// MinRequests is the number of requests in the current window before
	// FailureRatio is evaluated.
	MinRequests uint32

	// FailureRatio opens the circuit once failures/requests reaches it.
	FailureRatio float64

	// ConsecutiveFailures opens the circuit after this many failures in a row,
	// regardless of MinRequests. Zero disables the rule.
	ConsecutiveFailures uint32
}

// DefaultTripPolicy opens the circuit when half of at least 5 requests fail.
func DefaultTripPolicy() TripPolicy {
	return TripPolicy{MinRequests: 5, FailureRatio: 0.5}
}

// ReadyToTrip reports whether counts should open the circuit.
func (p TripPolicy) ReadyToTrip(counts gobreaker.Counts) bool {
	if p.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= p.ConsecutiveFailures {
		return true
	}
	if counts.Requests == 0 || counts.Requests < p.MinRequests || p.FailureRatio <= 0 {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= p.FailureRatio
}

// CircuitBreakerConfig holds configuration for a provider circuit breaker.
type CircuitBreakerConfig struct {
	// Name identifies the circuit breaker for logging/metrics.
	Name string

	// MaxRequests is the number of trial requests allowed while half-open.
	// Default: 1
	MaxRequests uint32

	// Interval is the window after which counts are cleared while closed.
	// Default: 5 minutes
	Interval time.Duration

	// Timeout is how long the circuit stays open before going half-open.
	// Default: 60 seconds
	Timeout time.Duration

	// Trip decides when the circuit opens. A zero policy uses DefaultTripPolicy.
	Trip TripPolicy

	// OnStateChange is called when the circuit breaker state changes.
	OnStateChange func(name string, from gobreaker.State, to gobreaker.State)
}

// DefaultCircuitBreakerConfig returns the configuration used for air quality providers.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:        name,
		MaxRequests: 1,
		Interval:    5 * time.Minute,
		Timeout:     60 * time.Second,
		Trip:        DefaultTripPolicy(),
	}
}

func (c CircuitBreakerConfig) withDefaults() CircuitBreakerConfig {
	def := DefaultCircuitBreakerConfig(c.Name)
	if c.MaxRequests == 0 {
		c.MaxRequests = def.MaxRequests
	}
	if c.Interval == 0 {
		c.Interval = def.Interval
	}
	if c.Timeout == 0 {
		c.Timeout = def.Timeout
	}
	if c.Trip == (TripPolicy{}) {
		c.Trip = def.Trip
	}
	return c
}

func newCircuitBreaker(cfg CircuitBreakerConfig) *gobreaker.CircuitBreaker[*http.Response] {
	cfg = cfg.withDefaults()
	return gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{ //nolint:bodyclose // type param, not response
		Name:          cfg.Name,
		MaxRequests:   cfg.MaxRequests,
		Interval:      cfg.Interval,
		Timeout:       cfg.Timeout,
		ReadyToTrip:   cfg.Trip.ReadyToTrip,
		OnStateChange: cfg.OnStateChange,
	})
}
