// Package slo tracks service level indicators of pipeline runs: the share of
// runs that fully succeed, run latency percentiles and the share of stages
// that fail.
package slo

import (
	"math"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Targets for a daily pipeline.
const (
	// AvailabilitySLO is the target share of fully successful runs.
	AvailabilitySLO = 0.95

	// LatencyP95SLO is the target 95th percentile run duration in seconds.
	LatencyP95SLO = 600.0

	// LatencyP99SLO is the target 99th percentile run duration in seconds.
	LatencyP99SLO = 1800.0

	// ErrorRateSLO is the maximum share of failed or degraded stages.
	ErrorRateSLO = 0.05
)

var (
	SLOAvailability = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "slo_pipeline_availability_ratio",
		Help: "Share of recent pipeline runs that fully succeeded (0-1), target: 0.95",
	})

	SLOLatencyP95 = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "slo_pipeline_latency_p95_seconds",
		Help: "p95 duration of recent pipeline runs in seconds, target: 600",
	})

	SLOLatencyP99 = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "slo_pipeline_latency_p99_seconds",
		Help: "p99 duration of recent pipeline runs in seconds, target: 1800",
	})

	SLOErrorRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "slo_pipeline_stage_error_ratio",
		Help: "Share of executed stages that failed or degraded (0-1), target: 0.05",
	})
)

// RunSample is one finished pipeline run.
type RunSample struct {
	Success      bool
	Duration     time.Duration
	Stages       int
	FailedStages int
}

// Snapshot holds the indicators computed from a set of samples.
type Snapshot struct {
	Availability float64
	LatencyP95   float64
	LatencyP99   float64
	ErrorRate    float64
}

// Met reports whether every indicator is within its target.
func (s Snapshot) Met() bool {
	return s.Availability >= AvailabilitySLO &&
		s.LatencyP95 <= LatencyP95SLO &&
		s.LatencyP99 <= LatencyP99SLO &&
		s.ErrorRate <= ErrorRateSLO
}

// Compute derives the indicators. An empty sample set is a perfect score.
func Compute(samples []RunSample) Snapshot {
	if len(samples) == 0 {
		return Snapshot{Availability: 1}
	}

	var ok, stages, failed int
	durations := make([]float64, 0, len(samples))
	for _, s := range samples {
		if s.Success {
			ok++
		}
		stages += s.Stages
		failed += s.FailedStages
		durations = append(durations, s.Duration.Seconds())
	}
	sort.Float64s(durations)

	snap := Snapshot{
		Availability: float64(ok) / float64(len(samples)),
		LatencyP95:   percentile(durations, 0.95),
		LatencyP99:   percentile(durations, 0.99),
	}
	if stages > 0 {
		snap.ErrorRate = float64(failed) / float64(stages)
	}
	return snap
}

// Observe computes the indicators and publishes them as gauges.
func Observe(samples []RunSample) Snapshot {
	snap := Compute(samples)
	SLOAvailability.Set(snap.Availability)
	SLOLatencyP95.Set(snap.LatencyP95)
	SLOLatencyP99.Set(snap.LatencyP99)
	SLOErrorRate.Set(snap.ErrorRate)
	return snap
}

// percentile uses the nearest-rank method over sorted values.
func percentile(sorted []float64, p float64) float64 {
	rank := int(math.Ceil(p*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	return sorted[rank]
}
