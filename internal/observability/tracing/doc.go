// Package tracing provides OpenTelemetry tracing integration.
//
// Spans are opened around retry executions, pipeline stages and the
// worker's HTTP endpoints. InitTracer installs the SDK provider at startup.
//
// Example usage:
//
//	import "content-pipeline/internal/observability/tracing"
//
//	func main() {
//	    shutdown := tracing.InitTracer("content-pipeline")
//	    defer func() { _ = shutdown(context.Background()) }()
//	}
//
//	func runStage(ctx context.Context) {
//	    ctx, span := tracing.GetTracer().Start(ctx, "pipeline.stage")
//	    defer span.End()
//	    // ... run stage ...
//	}
package tracing
