// Package observability groups the logging, metrics, tracing and SLO
// packages shared by the worker and the admin CLI.
//
//	logger := logging.NewLogger()
//	shutdown := tracing.InitTracer("content-pipeline-worker")
//	metrics.RecordStageRun("scout", "success", elapsed)
package observability
