// Package errorlog keeps a per-day, capped record of pipeline failures for
// diagnostics and health computation.
package errorlog

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"content-pipeline/internal/domain/entity"
	"content-pipeline/internal/observability/metrics"
	"content-pipeline/internal/repository"
	"content-pipeline/internal/resilience/alert"
	"content-pipeline/internal/utils/text"
)

// MaxEntriesPerDay is the number of most recent entries kept per day.
const MaxEntriesPerDay = 500

// recentWindowDays bounds how far back Recent looks.
const recentWindowDays = 7

// Option configures a Log.
type Option func(*Log)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		if now != nil {
			l.now = now
		}
	}
}

// WithCap overrides MaxEntriesPerDay.
func WithCap(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.limit = n
		}
	}
}

// Log is an append-only error log stored one collection per UTC day.
// Oldest entries beyond the cap are dropped, not archived.
type Log struct {
	store repository.ResilienceStore
	sink  alert.Sink
	now   func() time.Time
	limit int
}

// NewLog creates a Log. A nil sink disables critical alerts.
func NewLog(store repository.ResilienceStore, sink alert.Sink, opts ...Option) *Log {
	l := &Log{
		store: store,
		sink:  alert.Safe(sink),
		now:   time.Now,
		limit: MaxEntriesPerDay,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append persists entry under its day with credentials masked out of the
// message. Missing timestamp, kind and severity default to now, unknown and
// error.
func (l *Log) Append(ctx context.Context, entry entity.ErrorLogEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.now()
	}
	entry.Timestamp = entry.Timestamp.UTC()
	entry.Error = text.Redact(entry.Error)
	if entry.Kind == "" {
		entry.Kind = entity.KindUnknown
	}
	if !entry.Severity.Valid() {
		entry.Severity = entity.SeverityError
	}

	err := l.store.UpdateErrorDay(ctx, entry.Day(), func(entries []entity.ErrorLogEntry) ([]entity.ErrorLogEntry, error) {
		entries = append(entries, entry)
		if over := len(entries) - l.limit; over > 0 {
			entries = entries[over:]
		}
		return entries, nil
	})
	if err != nil {
		return fmt.Errorf("append error log: %w", err)
	}

	metrics.RecordErrorLogEntry(entry.Module, entry.Severity)
	slog.Log(ctx, levelFor(entry.Severity), "pipeline error recorded",
		slog.String("module", entry.Module),
		slog.String("operation", entry.Operation),
		slog.String("kind", string(entry.Kind)),
		slog.String("severity", string(entry.Severity)),
		slog.String("error", entry.Error))

	if entry.Severity == entity.SeverityCritical {
		l.sink.Notify(ctx, fmt.Sprintf("🚨 CRITICAL ERROR in %s.%s: %s", entry.Module, entry.Operation, entry.Error))
	}
	return nil
}

// Record builds an entry from its parts and appends it.
func (l *Log) Record(ctx context.Context, module, operation string, err error, kind entity.ErrorKind, severity entity.Severity, details map[string]any) error {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return l.Append(ctx, entity.ErrorLogEntry{
		Module:    module,
		Operation: operation,
		Error:     msg,
		Kind:      kind,
		Severity:  severity,
		Details:   details,
	})
}

// LoadToday returns today's entries in append order.
func (l *Log) LoadToday(ctx context.Context) ([]entity.ErrorLogEntry, error) {
	entries, err := l.store.LoadErrorDay(ctx, l.now())
	if err != nil {
		return nil, fmt.Errorf("load error log: %w", err)
	}
	return entries, nil
}

// LoadRange returns the entries of today and the days-1 previous days in
// chronological order. days <= 0 is treated as 1.
func (l *Log) LoadRange(ctx context.Context, days int) ([]entity.ErrorLogEntry, error) {
	if days <= 0 {
		days = 1
	}
	today := entity.DayOf(l.now())
	var out []entity.ErrorLogEntry
	for i := days - 1; i >= 0; i-- {
		day := today.AddDate(0, 0, -i)
		entries, err := l.store.LoadErrorDay(ctx, day)
		if err != nil {
			return nil, fmt.Errorf("load error log %s: %w", entity.DayKey(day), err)
		}
		out = append(out, entries...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// Recent returns up to n of the newest entries from the last week, newest first.
func (l *Log) Recent(ctx context.Context, n int) ([]entity.ErrorLogEntry, error) {
	if n <= 0 {
		return nil, nil
	}
	entries, err := l.LoadRange(ctx, recentWindowDays)
	if err != nil {
		return nil, err
	}
	out := make([]entity.ErrorLogEntry, 0, n)
	for i := len(entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, entries[i])
	}
	return out, nil
}

// Clear deletes today and the days-1 previous days. days <= 0 clears all days.
func (l *Log) Clear(ctx context.Context, days int) error {
	if days <= 0 {
		if err := l.store.DeleteErrorDays(ctx); err != nil {
			return fmt.Errorf("clear error log: %w", err)
		}
		return nil
	}
	today := entity.DayOf(l.now())
	targets := make([]time.Time, 0, days)
	for i := 0; i < days; i++ {
		targets = append(targets, today.AddDate(0, 0, -i))
	}
	if err := l.store.DeleteErrorDays(ctx, targets...); err != nil {
		return fmt.Errorf("clear error log: %w", err)
	}
	return nil
}

func levelFor(s entity.Severity) slog.Level {
	switch s {
	case entity.SeverityInfo:
		return slog.LevelInfo
	case entity.SeverityWarning:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
