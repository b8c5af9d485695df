// Package health derives the overall pipeline status from the error log,
// the circuit registry and the dead letter queue. It only reads.
package health

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"content-pipeline/internal/domain/entity"
	"content-pipeline/internal/resilience/alert"
)

const (
	// DefaultWindow is the trailing window considered by ComputeHealth.
	DefaultWindow = 24 * time.Hour

	// DegradedErrorThreshold is the error count above which the pipeline is degraded.
	DegradedErrorThreshold = 10

	// WarningWarningThreshold is the warning count above which the pipeline is in warning.
	WarningWarningThreshold = 20
)

// ErrorSource provides error log entries.
type ErrorSource interface {
	LoadRange(ctx context.Context, days int) ([]entity.ErrorLogEntry, error)
}

// CircuitSource lists open circuits.
type CircuitSource interface {
	OpenCircuits(ctx context.Context) ([]string, error)
}

// DLQSource counts dead letter jobs by status.
type DLQSource interface {
	Counts(ctx context.Context) (map[entity.DLQStatus]int, error)
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

// Aggregator computes HealthReports.
type Aggregator struct {
	errors   ErrorSource
	circuits CircuitSource
	dlq      DLQSource
	now      func() time.Time
}

// NewAggregator creates an Aggregator. circuits and dlq may be nil.
func NewAggregator(log ErrorSource, circuits CircuitSource, dlq DLQSource, opts ...Option) *Aggregator {
	a := &Aggregator{
		errors:   log,
		circuits: circuits,
		dlq:      dlq,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ComputeHealth builds a report over the trailing 24 hours.
func (a *Aggregator) ComputeHealth(ctx context.Context) (*entity.HealthReport, error) {
	now := a.now().UTC()
	start := now.Add(-DefaultWindow)

	// The window can span two calendar days.
	entries, err := a.errors.LoadRange(ctx, 2)
	if err != nil {
		return nil, fmt.Errorf("load error log: %w", err)
	}

	report := &entity.HealthReport{
		CheckedAt:    now,
		WindowStart:  start,
		BySeverity:   make(map[entity.Severity]int),
		ByModule:     make(map[string]int),
		OpenCircuits: []string{},
		DLQ:          make(map[entity.DLQStatus]int),
	}
	for _, e := range entries {
		if !e.Timestamp.After(start) || e.Timestamp.After(now) {
			continue
		}
		report.BySeverity[e.Severity]++
		report.ByModule[e.Module]++
	}
	report.CriticalErrors = report.BySeverity[entity.SeverityCritical]
	report.TotalErrors24h = report.BySeverity[entity.SeverityError] + report.CriticalErrors
	report.Status = Decide(report.BySeverity)

	if a.circuits != nil {
		open, err := a.circuits.OpenCircuits(ctx)
		if err != nil {
			return nil, fmt.Errorf("list open circuits: %w", err)
		}
		report.OpenCircuits = append(report.OpenCircuits, open...)
		sort.Strings(report.OpenCircuits)
	}

	if a.dlq != nil {
		counts, err := a.dlq.Counts(ctx)
		if err != nil {
			return nil, fmt.Errorf("count dlq: %w", err)
		}
		for k, v := range counts {
			report.DLQ[k] = v
		}
	}

	return report, nil
}

// Decide maps severity counts to a status. Any critical entry wins outright.
func Decide(counts map[entity.Severity]int) entity.HealthStatus {
	switch {
	case counts[entity.SeverityCritical] > 0:
		return entity.HealthCritical
	case counts[entity.SeverityError] > DegradedErrorThreshold:
		return entity.HealthDegraded
	case counts[entity.SeverityError] > 0 || counts[entity.SeverityWarning] > WarningWarningThreshold:
		return entity.HealthWarning
	default:
		return entity.HealthHealthy
	}
}

// Healthy reports whether status needs no operator action.
func Healthy(status entity.HealthStatus) bool {
	return status.Operational()
}

// GenerateReport computes health and renders it as text.
func (a *Aggregator) GenerateReport(ctx context.Context) (string, error) {
	report, err := a.ComputeHealth(ctx)
	if err != nil {
		return "", err
	}
	return Render(report), nil
}

// SendReport pushes the rendered report to sink.
func (a *Aggregator) SendReport(ctx context.Context, sink alert.Sink) error {
	text, err := a.GenerateReport(ctx)
	if err != nil {
		return err
	}
	alert.Safe(sink).Notify(ctx, text)
	return nil
}

var statusEmoji = map[entity.HealthStatus]string{
	entity.HealthHealthy:  "✅",
	entity.HealthWarning:  "⚠️",
	entity.HealthDegraded: "🔶",
	entity.HealthCritical: "🚨",
}

// Render formats a report for humans. It is the only place error summaries
// are formatted for operators.
func Render(r *entity.HealthReport) string {
	emoji, ok := statusEmoji[r.Status]
	if !ok {
		emoji = "❓"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s PIPELINE HEALTH\n", emoji)
	fmt.Fprintf(&b, "Status: %s\n", strings.ToUpper(string(r.Status)))
	fmt.Fprintf(&b, "Checked: %s\n", r.CheckedAt.UTC().Format("2006-01-02T15:04:05Z"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "Errors (24h): %d\n", r.TotalErrors24h)
	fmt.Fprintf(&b, "Critical: %d\n", r.CriticalErrors)
	fmt.Fprintf(&b, "Warnings: %d\n", r.BySeverity[entity.SeverityWarning])

	if len(r.ByModule) > 0 {
		modules := make([]string, 0, len(r.ByModule))
		for m := range r.ByModule {
			modules = append(modules, m)
		}
		sort.Strings(modules)
		b.WriteString("\nBy Module:\n")
		for _, m := range modules {
			fmt.Fprintf(&b, "  • %s: %d\n", m, r.ByModule[m])
		}
	}

	if len(r.OpenCircuits) > 0 {
		b.WriteString("\n🔴 Open Circuits:\n")
		for _, c := range r.OpenCircuits {
			fmt.Fprintf(&b, "  • %s\n", c)
		}
	} else {
		b.WriteString("\nOpen Circuits: none\n")
	}

	fmt.Fprintf(&b, "\nDead Letter Queue: %d pending, %d failed, %d completed",
		r.DLQ[entity.DLQPending], r.DLQ[entity.DLQFailed], r.DLQ[entity.DLQCompleted])
	return b.String()
}
