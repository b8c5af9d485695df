package summarizer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SummaryMetricsRecorder records summary quality. Tests substitute a fake.
type SummaryMetricsRecorder interface {
	RecordLength(length int)
	RecordLimitExceeded()
	// RecordCompliance sets the gauge to 1 when the last summary fit the limit.
	RecordCompliance(withinLimit bool)
	RecordDuration(duration time.Duration)
}

var (
	summaryLength = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pipeline_summary_length_characters",
		Help:    "Generated summary length in Unicode characters",
		Buckets: []float64{100, 300, 500, 700, 900, 1100, 1500, 2000},
	})
	summaryLimitExceeded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_summary_limit_exceeded_total",
		Help: "Summaries that were cut to the configured character limit",
	})
	summaryCompliance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pipeline_summary_limit_compliance",
		Help: "1 when the most recent summary was within the character limit, else 0",
	})
	summaryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pipeline_summary_duration_seconds",
		Help:    "Latency of one summarization call to an LLM provider",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	sharedSummaryMetrics = &PrometheusSummaryMetrics{}
)

// PrometheusSummaryMetrics writes to the process-wide summary collectors.
type PrometheusSummaryMetrics struct{}

// NewPrometheusSummaryMetrics returns the shared recorder used by every provider.
func NewPrometheusSummaryMetrics() *PrometheusSummaryMetrics {
	return sharedSummaryMetrics
}

func (*PrometheusSummaryMetrics) RecordLength(length int) { summaryLength.Observe(float64(length)) }

func (*PrometheusSummaryMetrics) RecordLimitExceeded() { summaryLimitExceeded.Inc() }

func (*PrometheusSummaryMetrics) RecordCompliance(withinLimit bool) {
	v := 0.0
	if withinLimit {
		v = 1
	}
	summaryCompliance.Set(v)
}

func (*PrometheusSummaryMetrics) RecordDuration(d time.Duration) {
	summaryDuration.Observe(d.Seconds())
}
