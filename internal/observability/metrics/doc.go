// Package metrics provides Prometheus metrics registry and recording utilities.
//
// This package centralizes all resilience metrics including:
//   - Circuit breaker phase and transitions
//   - Retry attempts, fallbacks and backoff delays
//   - Dead letter queue and error log activity
//   - Pipeline stage runs and health
//
// All metrics are automatically registered with the Prometheus default registry
// and exposed via the /metrics endpoint.
//
// Example usage:
//
//	import "content-pipeline/internal/observability/metrics"
//
//	func runStage(name string) {
//	    start := time.Now()
//	    // ... run stage ...
//	    metrics.RecordStageRun(name, "success", time.Since(start))
//	}
package metrics
