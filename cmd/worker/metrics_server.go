package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"content-pipeline/internal/domain/entity"
	"content-pipeline/internal/handler/http/requestid"
	"content-pipeline/internal/infra/worker"
	"content-pipeline/internal/observability/tracing"
	"content-pipeline/internal/resilience/health"
	"content-pipeline/internal/usecase/notify"
	"content-pipeline/internal/usecase/pipeline"
	pkgconfig "content-pipeline/pkg/config"
)

// ChannelHealthResponse represents the health status of all alert channels.
type ChannelHealthResponse struct {
	Healthy  bool                         `json:"healthy"`
	Channels []notify.ChannelHealthStatus `json:"channels"`
}

type channelHealthSource interface {
	GetChannelHealth() []notify.ChannelHealthStatus
}

type healthSource interface {
	ComputeHealth(ctx context.Context) (*entity.HealthReport, error)
}

type runStatusSource interface {
	Status() pipeline.Status
}

// newMetricsMux exposes:
//   - GET /metrics: Prometheus metrics
//   - GET /health/channels: alert channel mute state, 503 if an enabled channel is muted
//   - GET /health/pipeline: HealthReport, 503 when degraded or critical
//   - GET /health/runs: run statistics of the last seven days
func newMetricsMux(logger *slog.Logger, channels channelHealthSource, agg healthSource, runs runStatusSource) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /health/channels", channelHealthHandler(logger, channels))
	mux.HandleFunc("GET /health/pipeline", pipelineHealthHandler(logger, agg))
	mux.HandleFunc("GET /health/runs", func(w http.ResponseWriter, _ *http.Request) {
		worker.WriteJSON(logger, w, http.StatusOK, runs.Status())
	})
	return tracing.Middleware(requestid.Middleware(mux))
}

// startMetricsServer serves newMetricsMux on METRICS_PORT (default 9090)
// until ctx is cancelled, then shuts down within 5 seconds.
func startMetricsServer(ctx context.Context, logger *slog.Logger, handler http.Handler) *http.Server {
	port := pkgconfig.GetEnvInt("METRICS_PORT", 9090)
	if port <= 0 || port > 65535 {
		port = 9090
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("metrics server starting", slog.Int("port", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", slog.Any("error", err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", slog.Any("error", err))
			return
		}
		logger.Info("metrics server stopped")
	}()

	return server
}

func channelHealthHandler(logger *slog.Logger, channels channelHealthSource) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		statuses := channels.GetChannelHealth()

		healthy := true
		for _, status := range statuses {
			if status.Enabled && status.Muted {
				healthy = false
			}
		}

		code := http.StatusOK
		if !healthy {
			code = http.StatusServiceUnavailable
		}
		worker.WriteJSON(logger, w, code, ChannelHealthResponse{Healthy: healthy, Channels: statuses})
	}
}

func pipelineHealthHandler(logger *slog.Logger, agg healthSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := agg.ComputeHealth(r.Context())
		if err != nil {
			logger.Error("health check failed",
				slog.String("request_id", requestid.FromContext(r.Context())),
				slog.Any("error", err))
			worker.WriteJSON(logger, w, http.StatusInternalServerError, map[string]string{"error": "health check failed"})
			return
		}

		code := http.StatusOK
		if !health.Healthy(report.Status) {
			code = http.StatusServiceUnavailable
		}
		worker.WriteJSON(logger, w, code, report)
	}
}
