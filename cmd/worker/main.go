package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"content-pipeline/internal/app"
	"content-pipeline/internal/infra/worker"
	"content-pipeline/internal/observability/logging"
	"content-pipeline/internal/observability/tracing"
	"content-pipeline/internal/usecase/notify"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	logger := logging.NewLogger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Error("worker stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	shutdownTracer := tracing.InitTracer("content-pipeline-worker", tracerOptions(logger)...)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Error("tracer shutdown failed", slog.Any("error", err))
		}
	}()

	workerMetrics := worker.NewWorkerMetrics()
	cfg := worker.LoadConfigFromEnv(logger, workerMetrics)
	logger.Info("worker configuration loaded",
		slog.String("cron_schedule", cfg.CronSchedule),
		slog.String("timezone", cfg.Timezone),
		slog.Duration("run_timeout", cfg.RunTimeout),
		slog.String("store_backend", cfg.StoreBackend),
		slog.Int("health_port", cfg.HealthPort))

	store, err := app.OpenStore(ctx, logger, cfg.StoreBackend)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close resilience store", slog.Any("error", err))
		}
	}()

	notifyService := notify.NewService(app.Channels(logger), cfg.NotifyMaxConcurrent)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := notifyService.Shutdown(shutdownCtx); err != nil {
			logger.Error("notification service shutdown failed", slog.Any("error", err))
		}
	}()

	res := app.NewResilience(store, notifyService, app.LoadCircuitConfig(logger))
	orch, err := app.BuildPipeline(logger, res, app.LoadPipelineConfig(logger, cfg.DLQRetentionDays))
	if err != nil {
		return err
	}

	startMetricsServer(ctx, logger, newMetricsMux(logger, notifyService, res.Health, orch))

	healthServer := worker.NewHealthServer(fmt.Sprintf(":%d", cfg.HealthPort), logger)
	go func() {
		if err := healthServer.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("health server failed", slog.Any("error", err))
		}
	}()

	j := &job{
		logger:  logger,
		cfg:     cfg,
		metrics: workerMetrics,
		runner:  orch,
		queue:   res.Queue,
		health:  res.Health,
		sink:    notifyService,
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Error("invalid timezone, using UTC", slog.String("timezone", cfg.Timezone), slog.Any("error", err))
		loc = time.UTC
	}
	cl := cronLogger{logger}
	c := cron.New(cron.WithLocation(loc), cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	if _, err := c.AddFunc(cfg.CronSchedule, func() { j.Run(ctx) }); err != nil {
		return fmt.Errorf("add cron job: %w", err)
	}
	c.Start()

	healthServer.SetReady(true)
	logger.Info("worker started",
		slog.String("schedule", cfg.CronSchedule),
		slog.String("timezone", loc.String()),
		slog.Any("stages", orch.Stages()))

	<-ctx.Done()
	logger.Info("shutdown signal received, waiting for running job")
	healthServer.SetReady(false)
	<-c.Stop().Done()
	logger.Info("worker stopped")
	return nil
}

// tracerOptions samples OTEL_TRACES_SAMPLER_RATIO of root spans (default 1).
func tracerOptions(logger *slog.Logger) []sdktrace.TracerProviderOption {
	raw := os.Getenv("OTEL_TRACES_SAMPLER_RATIO")
	if raw == "" {
		return nil
	}
	ratio, err := strconv.ParseFloat(raw, 64)
	if err != nil || ratio < 0 || ratio > 1 {
		logger.Warn("invalid OTEL_TRACES_SAMPLER_RATIO, sampling everything", slog.String("value", raw))
		return nil
	}
	return []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	}
}

// cronLogger routes robfig/cron logs through slog.
type cronLogger struct{ logger *slog.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
