package circuitbreaker

import (
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerConfig holds the configuration for an in-process breaker guarding
// infrastructure the resilience layer itself depends on (the state store).
// Unlike Registry, this breaker keeps its state in memory only.
type BreakerConfig struct {
	// Name is the circuit breaker name for logging and metrics
	Name string

	// MaxRequests is the maximum number of requests allowed in half-open state
	MaxRequests uint32

	// Interval is the cyclic period of the closed state to clear success/failure counts
	Interval time.Duration

	// Timeout is how long to wait in open state before trying again
	Timeout time.Duration

	// FailureThreshold is the failure ratio threshold to trip the circuit
	FailureThreshold float64

	// MinRequests is the minimum number of requests before calculating failure ratio
	MinRequests uint32
}

// DefaultBreakerConfig returns a default configuration for in-process breakers.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxRequests:      3,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      5,
	}
}

// Breaker wraps gobreaker.CircuitBreaker.
type Breaker struct {
	breaker *gobreaker.CircuitBreaker
	name    string
}

// New creates a new in-process breaker with the given configuration.
func New(cfg BreakerConfig) *Breaker {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("infrastructure breaker state changed",
				slog.String("circuit", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	}

	return &Breaker{
		breaker: gobreaker.NewCircuitBreaker(settings),
		name:    cfg.Name,
	}
}

// Execute runs fn through the breaker.
// If the circuit is open, it returns gobreaker.ErrOpenState immediately.
func (b *Breaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	return b.breaker.Execute(fn)
}

// State returns the current state of the breaker.
func (b *Breaker) State() gobreaker.State {
	return b.breaker.State()
}

// Name returns the name of the breaker.
func (b *Breaker) Name() string {
	return b.name
}

// IsOpen returns true if the breaker is in the open state.
func (b *Breaker) IsOpen() bool {
	return b.breaker.State() == gobreaker.StateOpen
}
