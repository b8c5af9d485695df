// Package retry runs units of work under a per-service circuit breaker with
// deterministic exponential backoff and ordered fallbacks.
//
// Executor is the stage-level entry point used by the pipeline orchestrator.
// WithBackoff is a lighter transport-level helper for single HTTP calls.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"content-pipeline/internal/domain/entity"
	"content-pipeline/internal/observability/metrics"
	"content-pipeline/internal/observability/tracing"
	"content-pipeline/internal/resilience/classify"
)

// Action is a unit of work. Fallbacks share the same shape.
type Action func(ctx context.Context) (any, error)

// Gate is the circuit registry as seen by the executor.
type Gate interface {
	CheckAllowed(ctx context.Context, service string) (bool, string, error)
	RecordSuccess(ctx context.Context, service string) error
	RecordFailure(ctx context.Context, service string, cause error, kind entity.ErrorKind) error
	ReleaseProbe(ctx context.Context, service string) error
}

// ErrorRecorder persists exhausted failures.
type ErrorRecorder interface {
	Append(ctx context.Context, entry entity.ErrorLogEntry) error
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithSleeper replaces the backoff sleeper.
func WithSleeper(s Sleeper) ExecutorOption {
	return func(e *Executor) {
		if s != nil {
			e.sleeper = s
		}
	}
}

// WithClassifier replaces the error classifier.
func WithClassifier(c classify.Classifier) ExecutorOption {
	return func(e *Executor) {
		if c != nil {
			e.classifier = c
		}
	}
}

// WithOperation sets the operation name written to error log entries.
func WithOperation(name string) ExecutorOption {
	return func(e *Executor) {
		if name != "" {
			e.operation = name
		}
	}
}

// WithNow overrides the timestamp source for error log entries.
func WithNow(now func() time.Time) ExecutorOption {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}

// Executor wraps actions with gate checks, retries and fallbacks.
type Executor struct {
	gate       Gate
	log        ErrorRecorder
	sleeper    Sleeper
	classifier classify.Classifier
	operation  string
	now        func() time.Time
}

// NewExecutor creates an Executor. log may be nil.
func NewExecutor(gate Gate, log ErrorRecorder, opts ...ExecutorOption) *Executor {
	e := &Executor{
		gate:       gate,
		log:        log,
		sleeper:    TimerSleeper{},
		classifier: classify.NewKeywordClassifier(),
		operation:  "execute",
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Named returns a copy of e that logs failures under operation.
func (e *Executor) Named(operation string) *Executor {
	c := *e
	if operation != "" {
		c.operation = operation
	}
	return &c
}

// Execute runs action under service's circuit.
//
// A denied gate runs the fallbacks (or fails with a circuit-open error when
// there are none) without touching the circuit. Otherwise action is attempted
// up to policy.Attempts() times. Exhaustion records the failure on the circuit
// and in the error log, then tries fallbacks in order. If every fallback also
// fails, the original error is returned.
func (e *Executor) Execute(ctx context.Context, service string, action Action, policy Policy, fallbacks ...Action) (result any, err error) {
	ctx, span := tracing.GetTracer().Start(ctx, "retry.Execute")
	span.SetAttributes(attribute.String("service", service))
	outcome := "success"
	defer func() {
		span.SetAttributes(attribute.String("outcome", outcome))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	allowed, reason, gateErr := e.gate.CheckAllowed(ctx, service)
	if gateErr != nil {
		// An unreadable breaker store must not halt the pipeline.
		slog.Error("circuit check failed, allowing call",
			slog.String("service", service),
			slog.Any("error", gateErr))
		allowed = true
	}
	if !allowed {
		slog.Warn("circuit open, skipping primary action",
			slog.String("service", service),
			slog.String("reason", reason),
			slog.Int("fallbacks", len(fallbacks)))
		openErr := &entity.CircuitOpenError{Service: service, Reason: reason}
		if len(fallbacks) == 0 {
			outcome = "rejected"
			return nil, openErr
		}
		res, fbErr := e.runFallbacks(ctx, service, fallbacks)
		if fbErr != nil {
			outcome = "rejected"
			return nil, fbErr
		}
		outcome = "fallback"
		return res, nil
	}

	// Outcomes are written even when ctx ends mid-call so a half-open probe
	// is always settled.
	recordCtx := context.WithoutCancel(ctx)

	attempts := policy.Attempts()
	var (
		lastErr error
		kind    entity.ErrorKind
		made    int
	)
	for attempt := 0; attempt < attempts; attempt++ {
		made = attempt + 1
		res, actErr := action(ctx)
		if actErr == nil {
			metrics.RecordRetryAttempt(service, true)
			if recErr := e.gate.RecordSuccess(recordCtx, service); recErr != nil {
				slog.Error("failed to record success",
					slog.String("service", service),
					slog.Any("error", recErr))
			}
			if attempt > 0 {
				slog.Info("operation succeeded after retry",
					slog.String("service", service),
					slog.Int("attempt", made))
			}
			span.SetAttributes(attribute.Int("attempts", made))
			return res, nil
		}

		metrics.RecordRetryAttempt(service, false)
		lastErr = actErr
		kind = e.classifier.Classify(actErr)

		if attempt == attempts-1 {
			break
		}

		delay := policy.Delay(attempt, kind)
		slog.Warn("operation failed, retrying",
			slog.String("service", service),
			slog.Int("attempt", made),
			slog.Int("max_attempts", attempts),
			slog.String("kind", string(kind)),
			slog.Duration("delay", delay),
			slog.Any("error", actErr))
		metrics.RecordBackoff(delay)

		if sleepErr := e.sleeper.Sleep(ctx, delay); sleepErr != nil {
			outcome = "canceled"
			if relErr := e.gate.ReleaseProbe(recordCtx, service); relErr != nil {
				slog.Error("failed to release circuit probe",
					slog.String("service", service),
					slog.Any("error", relErr))
			}
			span.SetAttributes(attribute.Int("attempts", made))
			return nil, fmt.Errorf("retry aborted for %s: %w", service, sleepErr)
		}
	}
	span.SetAttributes(attribute.Int("attempts", made))

	if recErr := e.gate.RecordFailure(recordCtx, service, lastErr, kind); recErr != nil {
		slog.Error("failed to record failure",
			slog.String("service", service),
			slog.Any("error", recErr))
	}
	e.appendLog(recordCtx, entity.ErrorLogEntry{
		Module:    service,
		Operation: e.operation,
		Error:     lastErr.Error(),
		Kind:      kind,
		Severity:  classify.Severity(kind, made),
		Details: map[string]any{
			"attempts": made,
			"kind":     string(kind),
		},
	})

	exhausted := fmt.Errorf("%s failed after %d attempts: %w", service, made, lastErr)
	if len(fallbacks) == 0 {
		outcome = "failure"
		return nil, exhausted
	}

	res, fbErr := e.runFallbacks(ctx, service, fallbacks)
	if fbErr != nil {
		outcome = "failure"
		return nil, exhausted
	}
	outcome = "fallback"
	return res, nil
}

// runFallbacks tries each fallback in order and returns the first success or
// the last fallback's error. Fallback failures go to the error log as
// warnings and are never recorded on a circuit.
func (e *Executor) runFallbacks(ctx context.Context, service string, fallbacks []Action) (any, error) {
	var lastErr error
	for i, fb := range fallbacks {
		if fb == nil {
			continue
		}
		res, err := fb(ctx)
		if err == nil {
			metrics.RecordFallback(service, true)
			slog.Info("fallback succeeded",
				slog.String("service", service),
				slog.Int("fallback", i))
			return res, nil
		}
		metrics.RecordFallback(service, false)
		slog.Warn("fallback failed",
			slog.String("service", service),
			slog.Int("fallback", i),
			slog.Any("error", err))
		kind := e.classifier.Classify(err)
		e.appendLog(context.WithoutCancel(ctx), entity.ErrorLogEntry{
			Module:    service,
			Operation: fmt.Sprintf("fallback[%d]", i),
			Error:     err.Error(),
			Kind:      kind,
			Severity:  entity.SeverityWarning,
			Details: map[string]any{
				"fallback": i,
				"kind":     string(kind),
			},
		})
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("no usable fallback")
	}
	return nil, lastErr
}

func (e *Executor) appendLog(ctx context.Context, entry entity.ErrorLogEntry) {
	if e.log == nil {
		return
	}
	entry.Timestamp = e.now()
	if err := e.log.Append(ctx, entry); err != nil {
		slog.Error("failed to append error log entry",
			slog.String("service", entry.Module),
			slog.Any("error", err))
	}
}
