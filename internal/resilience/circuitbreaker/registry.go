package circuitbreaker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"content-pipeline/internal/domain/entity"
	"content-pipeline/internal/observability/metrics"
	"content-pipeline/internal/repository"
	"content-pipeline/internal/resilience/alert"
)

const (
	// DefaultFailureThreshold is the number of consecutive failures that opens a circuit.
	DefaultFailureThreshold = 5

	// DefaultResetTimeout is how long an open circuit rejects calls before probing.
	DefaultResetTimeout = 300 * time.Second

	// DefaultHalfOpenMaxCalls is both the probe ceiling and the number of
	// successes required to close a half-open circuit.
	DefaultHalfOpenMaxCalls = 3

	// DefaultWarningMargin is how close to the threshold a closed circuit must
	// get before an early warning is sent.
	DefaultWarningMargin = 2
)

// Config holds the per-service circuit policy shared by every service in a Registry.
type Config struct {
	FailureThreshold int
	ResetTimeout     time.Duration
	HalfOpenMaxCalls int
	WarningMargin    int
}

// DefaultConfig returns the default circuit policy.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: DefaultFailureThreshold,
		ResetTimeout:     DefaultResetTimeout,
		HalfOpenMaxCalls: DefaultHalfOpenMaxCalls,
		WarningMargin:    DefaultWarningMargin,
	}
}

// withDefaults replaces non-positive values with the defaults.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = d.ResetTimeout
	}
	if c.HalfOpenMaxCalls <= 0 {
		c.HalfOpenMaxCalls = d.HalfOpenMaxCalls
	}
	if c.WarningMargin <= 0 {
		c.WarningMargin = d.WarningMargin
	}
	return c
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithClock overrides the time source used for open/half-open decisions.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// Registry holds per-service breaker state in a ResilienceStore.
// It keeps no authoritative state in memory: every operation reloads the
// persisted record and mutates it through the store's atomic update, so
// concurrent pipeline runs (and separate processes sharing a durable store)
// observe each other's transitions.
type Registry struct {
	store repository.ResilienceStore
	sink  alert.Sink
	cfg   Config
	now   func() time.Time
}

// NewRegistry creates a Registry. A nil sink discards alerts.
func NewRegistry(store repository.ResilienceStore, sink alert.Sink, cfg Config, opts ...RegistryOption) *Registry {
	r := &Registry{
		store: store,
		sink:  alert.Safe(sink),
		cfg:   cfg.withDefaults(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Config returns the effective policy.
func (r *Registry) Config() Config {
	return r.cfg
}

// transition captures what changed inside a mutator so logging and alerts
// happen only after the store commits.
type transition struct {
	from, to entity.Phase
	alert    string
}

func (t *transition) reset() {
	*t = transition{}
}

func (t *transition) changed() bool {
	return t.from != t.to
}

// CheckAllowed reports whether a call to service may proceed.
// Closed circuits always allow. Open circuits deny until the reset timeout
// has elapsed, then move to half-open and admit the call as the first probe.
// Half-open circuits admit at most HalfOpenMaxCalls probes.
func (r *Registry) CheckAllowed(ctx context.Context, service string) (bool, string, error) {
	current, err := r.store.LoadCircuit(ctx, service)
	if err != nil {
		return false, "", fmt.Errorf("load circuit %s: %w", service, err)
	}
	if current.Phase == entity.PhaseClosed {
		return true, "", nil
	}

	var (
		allowed bool
		reason  string
		tr      transition
	)
	_, err = r.store.UpdateCircuit(ctx, service, func(st *entity.CircuitState) error {
		allowed, reason = false, ""
		tr.reset()
		tr.from, tr.to = st.Phase, st.Phase

		now := r.now()
		switch st.Phase {
		case entity.PhaseClosed:
			allowed = true
		case entity.PhaseOpen:
			if st.OpenedAt != nil && now.Sub(*st.OpenedAt) <= r.cfg.ResetTimeout {
				remaining := st.OpenedAt.Add(r.cfg.ResetTimeout).Sub(now).Round(time.Second)
				reason = fmt.Sprintf("circuit open for %s: retry in %s", service, remaining)
				return nil
			}
			st.Phase = entity.PhaseHalfOpen
			st.ResetHalfOpen()
			st.HalfOpenProbesIssued = 1
			tr.to = entity.PhaseHalfOpen
			allowed = true
		case entity.PhaseHalfOpen:
			if st.HalfOpenProbesIssued >= r.cfg.HalfOpenMaxCalls {
				reason = fmt.Sprintf("circuit open for %s: half-open probe limit reached (%d/%d)",
					service, st.HalfOpenProbesIssued, r.cfg.HalfOpenMaxCalls)
				return nil
			}
			st.HalfOpenProbesIssued++
			allowed = true
		}
		return nil
	})
	if err != nil {
		return false, "", fmt.Errorf("update circuit %s: %w", service, err)
	}

	r.finish(ctx, service, &tr)
	if !allowed {
		metrics.RecordCircuitRejection(service)
	}
	return allowed, reason, nil
}

// RecordSuccess records a successful call.
// In Closed it clears the failure streak. In HalfOpen it counts toward
// recovery and closes the circuit once HalfOpenMaxCalls successes arrive.
func (r *Registry) RecordSuccess(ctx context.Context, service string) error {
	current, err := r.store.LoadCircuit(ctx, service)
	if err != nil {
		return fmt.Errorf("load circuit %s: %w", service, err)
	}
	if current.Phase == entity.PhaseClosed && current.ConsecutiveFailures == 0 {
		return nil
	}

	var tr transition
	_, err = r.store.UpdateCircuit(ctx, service, func(st *entity.CircuitState) error {
		tr.reset()
		tr.from, tr.to = st.Phase, st.Phase

		switch st.Phase {
		case entity.PhaseClosed:
			st.ConsecutiveFailures = 0
		case entity.PhaseHalfOpen:
			st.HalfOpenSuccesses++
			if st.HalfOpenSuccesses >= r.cfg.HalfOpenMaxCalls {
				r.close(st)
				tr.to = entity.PhaseClosed
				tr.alert = fmt.Sprintf("✅ Circuit breaker for %s CLOSED - service recovered", service)
			}
		case entity.PhaseOpen:
			// A call admitted before the circuit opened; the open window stands.
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("update circuit %s: %w", service, err)
	}

	r.finish(ctx, service, &tr)
	return nil
}

// ReleaseProbe returns a half-open probe slot for a call that ended without
// an outcome, such as one cancelled during backoff. It does nothing in any
// other phase.
func (r *Registry) ReleaseProbe(ctx context.Context, service string) error {
	current, err := r.store.LoadCircuit(ctx, service)
	if err != nil {
		return fmt.Errorf("load circuit %s: %w", service, err)
	}
	if current.Phase != entity.PhaseHalfOpen {
		return nil
	}

	_, err = r.store.UpdateCircuit(ctx, service, func(st *entity.CircuitState) error {
		if st.Phase == entity.PhaseHalfOpen && st.HalfOpenProbesIssued > st.HalfOpenSuccesses {
			st.HalfOpenProbesIssued--
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("update circuit %s: %w", service, err)
	}
	return nil
}

// RecordFailure records a failed call and its classified kind.
// Reaching FailureThreshold in Closed opens the circuit; any failure in
// HalfOpen re-opens it immediately.
func (r *Registry) RecordFailure(ctx context.Context, service string, cause error, kind entity.ErrorKind) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if kind == "" {
		kind = entity.KindUnknown
	}

	var tr transition
	_, err := r.store.UpdateCircuit(ctx, service, func(st *entity.CircuitState) error {
		tr.reset()
		tr.from, tr.to = st.Phase, st.Phase

		now := r.now()
		st.ConsecutiveFailures++
		st.LastFailureAt = entity.TimePtr(now)
		st.LastError = msg
		st.LastErrorKind = kind

		switch st.Phase {
		case entity.PhaseHalfOpen:
			if st.ConsecutiveFailures < r.cfg.FailureThreshold {
				st.ConsecutiveFailures = r.cfg.FailureThreshold
			}
			r.open(st, now)
			tr.to = entity.PhaseOpen
			tr.alert = fmt.Sprintf("🔴 Circuit breaker OPEN for %s after failed recovery probe. Last error: %s",
				service, truncate(msg, 200))
		case entity.PhaseClosed:
			switch {
			case st.ConsecutiveFailures >= r.cfg.FailureThreshold:
				r.open(st, now)
				tr.to = entity.PhaseOpen
				tr.alert = fmt.Sprintf("🔴 Circuit breaker OPEN for %s after %d failures. Last error: %s",
					service, st.ConsecutiveFailures, truncate(msg, 200))
			case st.ConsecutiveFailures >= r.cfg.FailureThreshold-r.cfg.WarningMargin:
				tr.alert = fmt.Sprintf("⚠️ Circuit breaker for %s at %d failures. Will open at %d.",
					service, st.ConsecutiveFailures, r.cfg.FailureThreshold)
			}
		case entity.PhaseOpen:
			// Diagnostics only.
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("update circuit %s: %w", service, err)
	}

	r.finish(ctx, service, &tr)
	return nil
}

// Reset forces a single circuit back to Closed.
func (r *Registry) Reset(ctx context.Context, service string) error {
	var tr transition
	_, err := r.store.UpdateCircuit(ctx, service, func(st *entity.CircuitState) error {
		tr.reset()
		tr.from = st.Phase
		r.close(st)
		tr.to = entity.PhaseClosed
		return nil
	})
	if err != nil {
		return fmt.Errorf("reset circuit %s: %w", service, err)
	}

	slog.Info("circuit breaker reset",
		slog.String("service", service),
		slog.String("from", tr.from.String()))
	r.finish(ctx, service, &tr)
	return nil
}

// ResetAll forces every known circuit back to Closed.
func (r *Registry) ResetAll(ctx context.Context) error {
	states, err := r.store.ListCircuits(ctx)
	if err != nil {
		return fmt.Errorf("list circuits: %w", err)
	}
	for _, st := range states {
		if err := r.Reset(ctx, st.Service); err != nil {
			return err
		}
	}
	return nil
}

// State returns the persisted state of a service. Unknown services are Closed.
func (r *Registry) State(ctx context.Context, service string) (*entity.CircuitState, error) {
	st, err := r.store.LoadCircuit(ctx, service)
	if err != nil {
		return nil, fmt.Errorf("load circuit %s: %w", service, err)
	}
	return st, nil
}

// List returns every persisted circuit.
func (r *Registry) List(ctx context.Context) ([]*entity.CircuitState, error) {
	states, err := r.store.ListCircuits(ctx)
	if err != nil {
		return nil, fmt.Errorf("list circuits: %w", err)
	}
	return states, nil
}

// OpenCircuits returns the names of services whose circuit is Open.
func (r *Registry) OpenCircuits(ctx context.Context) ([]string, error) {
	states, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	var open []string
	for _, st := range states {
		if st.IsOpen() {
			open = append(open, st.Service)
		}
	}
	return open, nil
}

func (r *Registry) open(st *entity.CircuitState, now time.Time) {
	st.Phase = entity.PhaseOpen
	st.OpenedAt = entity.TimePtr(now)
	st.ResetHalfOpen()
}

func (r *Registry) close(st *entity.CircuitState) {
	st.Phase = entity.PhaseClosed
	st.ConsecutiveFailures = 0
	st.ClosedAt = entity.TimePtr(r.now())
	st.ResetHalfOpen()
}

// finish logs the transition, updates metrics and sends the alert.
// It runs after the store update has committed.
func (r *Registry) finish(ctx context.Context, service string, tr *transition) {
	if tr.changed() {
		slog.Warn("circuit breaker state changed",
			slog.String("service", service),
			slog.String("from", tr.from.String()),
			slog.String("to", tr.to.String()))
		metrics.RecordCircuitTransition(service, tr.to)
	}
	if tr.alert != "" {
		r.sink.Notify(ctx, tr.alert)
	}
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
