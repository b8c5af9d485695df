// Package worker holds the process-level plumbing of the pipeline worker:
// its configuration, Prometheus metrics and the liveness/readiness server.
package worker

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"content-pipeline/internal/pkg/config"
)

// Store backends accepted by STORE_BACKEND.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// WorkerConfig holds the pipeline worker settings.
//
// Environment variables:
//   - CRON_SCHEDULE: five-field cron expression (default "0 6 * * *")
//   - WORKER_TIMEZONE: IANA timezone for the schedule (default "UTC")
//   - RUN_TIMEOUT: upper bound for one scheduled run, 1m-4h (default 10m)
//   - WORKER_HEALTH_PORT: liveness/readiness port (default 9091)
//   - NOTIFY_MAX_CONCURRENT: concurrent alert deliveries, 1-100 (default 10)
//   - DLQ_RETRY_LIMIT: jobs retried per run, 0-1000, 0 = no cap (default 10)
//   - DLQ_RETENTION_DAYS: completed job retention, 1-365 (default 7)
//   - STORE_BACKEND: memory, postgres or redis (default memory)
//   - HEALTH_ALERT_ON_DEGRADED: push the health report when degraded (default true)
type WorkerConfig struct {
	CronSchedule          string
	Timezone              string
	RunTimeout            time.Duration
	HealthPort            int
	NotifyMaxConcurrent   int
	DLQRetryLimit         int
	DLQRetentionDays      int
	StoreBackend          string
	HealthAlertOnDegraded bool
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() WorkerConfig {
	return WorkerConfig{
		CronSchedule:          "0 6 * * *",
		Timezone:              "UTC",
		RunTimeout:            10 * time.Minute,
		HealthPort:            9091,
		NotifyMaxConcurrent:   10,
		DLQRetryLimit:         10,
		DLQRetentionDays:      7,
		StoreBackend:          StoreMemory,
		HealthAlertOnDegraded: true,
	}
}

func validateRunTimeout(d time.Duration) error {
	return config.ValidateDuration(d, time.Minute, 4*time.Hour)
}

func intRange(lo, hi int) func(int) error {
	return func(v int) error { return config.ValidateIntRange(v, lo, hi) }
}

var validateStoreBackend = config.ValidateOneOf(StoreMemory, StorePostgres, StoreRedis)

// Validate reports every invalid field at once.
func (c *WorkerConfig) Validate() error {
	var errs []error
	check := func(field string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
		}
	}

	check("cron schedule", config.ValidateCronSchedule(c.CronSchedule))
	check("timezone", config.ValidateTimezone(c.Timezone))
	check("run timeout", validateRunTimeout(c.RunTimeout))
	check("health port", config.ValidateIntRange(c.HealthPort, 1024, 65535))
	check("notify max concurrent", config.ValidateIntRange(c.NotifyMaxConcurrent, 1, 100))
	check("dlq retry limit", config.ValidateIntRange(c.DLQRetryLimit, 0, 1000))
	check("dlq retention days", config.ValidateIntRange(c.DLQRetentionDays, 1, 365))
	check("store backend", validateStoreBackend(c.StoreBackend))

	if len(errs) > 0 {
		return fmt.Errorf("validation failed: %w", errors.Join(errs...))
	}
	return nil
}

// LoadConfigFromEnv loads WorkerConfig. It never fails: invalid values fall
// back to their defaults, are logged at warn level and are counted in metrics.
func LoadConfigFromEnv(logger *slog.Logger, metrics *WorkerMetrics) *WorkerConfig {
	cfg := DefaultConfig()
	fallbackApplied := false

	apply := func(field string, result config.ConfigLoadResult) interface{} {
		if result.FallbackApplied {
			fallbackApplied = true
			metrics.RecordValidationError(field)
			metrics.RecordFallback(field)
			for _, warning := range result.Warnings {
				logger.Warn("Configuration fallback applied",
					slog.String("field", field),
					slog.String("warning", warning))
			}
		}
		return result.Value
	}

	cfg.CronSchedule = apply("cron_schedule",
		config.LoadEnvWithFallback("CRON_SCHEDULE", cfg.CronSchedule, config.ValidateCronSchedule)).(string)
	cfg.Timezone = apply("timezone",
		config.LoadEnvWithFallback("WORKER_TIMEZONE", cfg.Timezone, config.ValidateTimezone)).(string)
	cfg.RunTimeout = apply("run_timeout",
		config.LoadEnvDuration("RUN_TIMEOUT", cfg.RunTimeout, validateRunTimeout)).(time.Duration)
	cfg.HealthPort = apply("health_port",
		config.LoadEnvInt("WORKER_HEALTH_PORT", cfg.HealthPort, intRange(1024, 65535))).(int)
	cfg.NotifyMaxConcurrent = apply("notify_max_concurrent",
		config.LoadEnvInt("NOTIFY_MAX_CONCURRENT", cfg.NotifyMaxConcurrent, intRange(1, 100))).(int)
	cfg.DLQRetryLimit = apply("dlq_retry_limit",
		config.LoadEnvInt("DLQ_RETRY_LIMIT", cfg.DLQRetryLimit, intRange(0, 1000))).(int)
	cfg.DLQRetentionDays = apply("dlq_retention_days",
		config.LoadEnvInt("DLQ_RETENTION_DAYS", cfg.DLQRetentionDays, intRange(1, 365))).(int)
	cfg.StoreBackend = apply("store_backend",
		config.LoadEnvWithFallback("STORE_BACKEND", cfg.StoreBackend, validateStoreBackend)).(string)
	cfg.HealthAlertOnDegraded = apply("health_alert_on_degraded",
		config.LoadEnvBool("HEALTH_ALERT_ON_DEGRADED", cfg.HealthAlertOnDegraded)).(bool)

	metrics.SetFallbackActive(fallbackApplied)
	metrics.RecordLoadTimestamp()

	return &cfg
}
