package entity

import (
	"time"
)

// Phase is the state of a per-service circuit breaker.
type Phase string

const (
	PhaseClosed   Phase = "closed"
	PhaseOpen     Phase = "open"
	PhaseHalfOpen Phase = "half_open"
)

// String implements fmt.Stringer.
func (p Phase) String() string {
	return string(p)
}

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	switch p {
	case PhaseClosed, PhaseOpen, PhaseHalfOpen:
		return true
	}
	return false
}

// CircuitState is the persisted breaker record for one external service.
// A service with no persisted record is implicitly Closed.
type CircuitState struct {
	Service              string     `json:"service"`
	Phase                Phase      `json:"phase"`
	ConsecutiveFailures  int        `json:"consecutive_failures"`
	LastFailureAt        *time.Time `json:"last_failure_at,omitempty"`
	OpenedAt             *time.Time `json:"opened_at,omitempty"`
	ClosedAt             *time.Time `json:"closed_at,omitempty"`
	HalfOpenProbesIssued int        `json:"half_open_probes_issued"`
	HalfOpenSuccesses    int        `json:"half_open_successes"`
	LastError            string     `json:"last_error,omitempty"`
	LastErrorKind        ErrorKind  `json:"last_error_kind,omitempty"`
}

// NewCircuitState returns the Closed state a service starts in.
func NewCircuitState(service string) *CircuitState {
	return &CircuitState{
		Service: service,
		Phase:   PhaseClosed,
	}
}

// IsOpen reports whether the circuit is currently rejecting calls.
func (s *CircuitState) IsOpen() bool {
	return s.Phase == PhaseOpen
}

// ResetHalfOpen clears the probation counters.
func (s *CircuitState) ResetHalfOpen() {
	s.HalfOpenProbesIssued = 0
	s.HalfOpenSuccesses = 0
}

// Clone returns a deep copy so stores never share pointers with callers.
func (s *CircuitState) Clone() *CircuitState {
	if s == nil {
		return nil
	}
	c := *s
	c.LastFailureAt = cloneTime(s.LastFailureAt)
	c.OpenedAt = cloneTime(s.OpenedAt)
	c.ClosedAt = cloneTime(s.ClosedAt)
	return &c
}

// Validate checks the structural invariants of a circuit record.
func (s *CircuitState) Validate(failureThreshold int) error {
	if s.Service == "" {
		return &ValidationError{Field: "service", Message: "service name is required"}
	}
	if !s.Phase.Valid() {
		return &ValidationError{Field: "phase", Message: "unknown phase " + string(s.Phase)}
	}
	if s.ConsecutiveFailures < 0 {
		return &ValidationError{Field: "consecutive_failures", Message: "must not be negative"}
	}
	if s.Phase == PhaseOpen {
		if s.OpenedAt == nil {
			return &ValidationError{Field: "opened_at", Message: "open circuit must record opened_at"}
		}
		if s.ConsecutiveFailures < failureThreshold {
			return &ValidationError{Field: "consecutive_failures", Message: "open circuit below failure threshold"}
		}
	}
	return nil
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// TimePtr returns a pointer to t.
func TimePtr(t time.Time) *time.Time {
	return &t
}
