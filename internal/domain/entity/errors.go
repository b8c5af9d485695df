package entity

import (
	"errors"
	"fmt"
)

var (
	// ErrValidationFailed is matched by every *ValidationError.
	ErrValidationFailed = errors.New("validation failed")

	// ErrCircuitOpen indicates that a call was rejected by an open circuit
	// without the underlying action being attempted.
	ErrCircuitOpen = errors.New("circuit open")

	// ErrNoHandler indicates that no retry handler is registered for a DLQ stage.
	ErrNoHandler = errors.New("no retry handler for stage")
)

// ValidationError names the input that was rejected and why.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// Unwrap allows errors.Is(err, ErrValidationFailed) on any ValidationError.
func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// CircuitOpenError is returned when the circuit registry denies a call.
type CircuitOpenError struct {
	Service string
	Reason  string
}

func (e *CircuitOpenError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return fmt.Sprintf("circuit open for %s", e.Service)
}

// Unwrap lets callers match with errors.Is(err, ErrCircuitOpen).
func (e *CircuitOpenError) Unwrap() error {
	return ErrCircuitOpen
}
