// Package resilience groups the fault-tolerance building blocks of the
// content pipeline:
//
//   - circuitbreaker: per-service breaker state persisted in a ResilienceStore
//   - classify: error kind tagging used for backoff and severity
//   - retry: the stage executor with deterministic backoff and fallbacks
//   - dlq: dead letter queue with a stage handler registry
//   - errorlog: per-day capped failure log
//   - health: pipeline health aggregation and reporting
//   - alert: the outbound notification sink interface
//
// Usage Example:
//
//	reg := circuitbreaker.NewRegistry(store, sink, circuitbreaker.DefaultConfig())
//	exec := retry.NewExecutor(reg, errorlog.NewLog(store, sink))
//	out, err := exec.Execute(ctx, "llm_api", generate, retry.DefaultPolicy(), cachedScript)
package resilience
