package worker

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Worker metrics register with the default registry, so tests share one set.
var testMetrics = NewWorkerMetrics()

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, WorkerConfig{
		CronSchedule:          "0 6 * * *",
		Timezone:              "UTC",
		RunTimeout:            10 * time.Minute,
		HealthPort:            9091,
		NotifyMaxConcurrent:   10,
		DLQRetryLimit:         10,
		DLQRetentionDays:      7,
		StoreBackend:          StoreMemory,
		HealthAlertOnDegraded: true,
	}, cfg)
	assert.NoError(t, cfg.Validate())
}

func TestWorkerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*WorkerConfig)
		wantErr string
	}{
		{name: "bad cron", mutate: func(c *WorkerConfig) { c.CronSchedule = "daily" }, wantErr: "cron schedule"},
		{name: "bad timezone", mutate: func(c *WorkerConfig) { c.Timezone = "Nowhere/City" }, wantErr: "timezone"},
		{name: "run timeout too short", mutate: func(c *WorkerConfig) { c.RunTimeout = time.Second }, wantErr: "run timeout"},
		{name: "privileged port", mutate: func(c *WorkerConfig) { c.HealthPort = 80 }, wantErr: "health port"},
		{name: "zero concurrency", mutate: func(c *WorkerConfig) { c.NotifyMaxConcurrent = 0 }, wantErr: "notify max concurrent"},
		{name: "negative retry limit", mutate: func(c *WorkerConfig) { c.DLQRetryLimit = -1 }, wantErr: "dlq retry limit"},
		{name: "zero retention", mutate: func(c *WorkerConfig) { c.DLQRetentionDays = 0 }, wantErr: "dlq retention days"},
		{name: "unknown backend", mutate: func(c *WorkerConfig) { c.StoreBackend = "sqlite" }, wantErr: "store backend"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.wantErr)
		})
	}
}

func TestWorkerConfig_Validate_ReportsAllErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CronSchedule = ""
	cfg.StoreBackend = ""

	err := cfg.Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "cron schedule")
	assert.Contains(t, err.Error(), "store backend")
}

func TestLoadConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("CRON_SCHEDULE", "*/30 * * * *")
	t.Setenv("WORKER_TIMEZONE", "Europe/London")
	t.Setenv("RUN_TIMEOUT", "20m")
	t.Setenv("WORKER_HEALTH_PORT", "9191")
	t.Setenv("NOTIFY_MAX_CONCURRENT", "4")
	t.Setenv("DLQ_RETRY_LIMIT", "0")
	t.Setenv("DLQ_RETENTION_DAYS", "30")
	t.Setenv("STORE_BACKEND", "redis")
	t.Setenv("HEALTH_ALERT_ON_DEGRADED", "false")

	cfg := LoadConfigFromEnv(quietLogger(), testMetrics)

	assert.Equal(t, "*/30 * * * *", cfg.CronSchedule)
	assert.Equal(t, "Europe/London", cfg.Timezone)
	assert.Equal(t, 20*time.Minute, cfg.RunTimeout)
	assert.Equal(t, 9191, cfg.HealthPort)
	assert.Equal(t, 4, cfg.NotifyMaxConcurrent)
	assert.Equal(t, 0, cfg.DLQRetryLimit)
	assert.Equal(t, 30, cfg.DLQRetentionDays)
	assert.Equal(t, StoreRedis, cfg.StoreBackend)
	assert.False(t, cfg.HealthAlertOnDegraded)
	assert.Equal(t, float64(0), testutil.ToFloat64(testMetrics.FallbackActive))
}

func TestLoadConfigFromEnv_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("CRON_SCHEDULE", "whenever")
	t.Setenv("STORE_BACKEND", "mongo")
	t.Setenv("DLQ_RETENTION_DAYS", "9999")

	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	before := testutil.ToFloat64(testMetrics.FallbacksTotal.WithLabelValues("store_backend"))

	cfg := LoadConfigFromEnv(logger, testMetrics)

	defaults := DefaultConfig()
	assert.Equal(t, defaults.CronSchedule, cfg.CronSchedule)
	assert.Equal(t, defaults.StoreBackend, cfg.StoreBackend)
	assert.Equal(t, defaults.DLQRetentionDays, cfg.DLQRetentionDays)
	assert.NoError(t, cfg.Validate())

	assert.Contains(t, logs.String(), "Configuration fallback applied")
	assert.Contains(t, logs.String(), "STORE_BACKEND='mongo'")
	assert.Equal(t, before+1, testutil.ToFloat64(testMetrics.FallbacksTotal.WithLabelValues("store_backend")))
	assert.Equal(t, float64(1), testutil.ToFloat64(testMetrics.FallbackActive))
}
