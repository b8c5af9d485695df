package app

import (
	"log/slog"
	"time"

	"content-pipeline/internal/pkg/config"
	"content-pipeline/internal/repository"
	"content-pipeline/internal/resilience/alert"
	"content-pipeline/internal/resilience/circuitbreaker"
	"content-pipeline/internal/resilience/dlq"
	"content-pipeline/internal/resilience/errorlog"
	"content-pipeline/internal/resilience/health"
	"content-pipeline/internal/resilience/retry"
)

// Resilience is the wired resilience layer over one store and one sink.
type Resilience struct {
	Store    repository.ResilienceStore
	Sink     alert.Sink
	Circuits *circuitbreaker.Registry
	Errors   *errorlog.Log
	Handlers *dlq.Registry
	Queue    *dlq.Queue
	Executor *retry.Executor
	Health   *health.Aggregator
}

// NewResilience wires every component to store. A nil sink discards alerts.
func NewResilience(store repository.ResilienceStore, sink alert.Sink, cfg circuitbreaker.Config) *Resilience {
	if sink == nil {
		sink = alert.Nop{}
	}
	circuits := circuitbreaker.NewRegistry(store, sink, cfg)
	errs := errorlog.NewLog(store, sink)
	handlers := dlq.NewRegistry()
	queue := dlq.NewQueue(store, handlers)

	return &Resilience{
		Store:    store,
		Sink:     sink,
		Circuits: circuits,
		Errors:   errs,
		Handlers: handlers,
		Queue:    queue,
		Executor: retry.NewExecutor(circuits, errs, retry.WithOperation("stage")),
		Health:   health.NewAggregator(errs, circuits, queue),
	}
}

// LoadCircuitConfig reads the circuit policy. Invalid values fall back to
// the defaults with a warning.
//
// Environment variables:
//   - CIRCUIT_FAILURE_THRESHOLD: consecutive failures that open a circuit, 1-100 (default 5)
//   - CIRCUIT_RESET_TIMEOUT: open period before probing (default 300s)
//   - CIRCUIT_HALF_OPEN_MAX_CALLS: probe ceiling and successes to close, 1-100 (default 3)
func LoadCircuitConfig(logger *slog.Logger) circuitbreaker.Config {
	def := circuitbreaker.DefaultConfig()
	var warnings []string
	load := func(r config.ConfigLoadResult) interface{} {
		warnings = append(warnings, r.Warnings...)
		return r.Value
	}
	between := func(lo, hi int) func(int) error {
		return func(n int) error { return config.ValidateIntRange(n, lo, hi) }
	}

	cfg := def
	cfg.FailureThreshold = load(config.LoadEnvInt("CIRCUIT_FAILURE_THRESHOLD", def.FailureThreshold, between(1, 100))).(int)
	cfg.ResetTimeout = load(config.LoadEnvDuration("CIRCUIT_RESET_TIMEOUT", def.ResetTimeout,
		func(d time.Duration) error { return config.ValidateDuration(d, time.Second, 24*time.Hour) })).(time.Duration)
	cfg.HalfOpenMaxCalls = load(config.LoadEnvInt("CIRCUIT_HALF_OPEN_MAX_CALLS", def.HalfOpenMaxCalls, between(1, 100))).(int)

	for _, w := range warnings {
		logger.Warn("circuit configuration", slog.String("warning", w))
	}
	return cfg
}
