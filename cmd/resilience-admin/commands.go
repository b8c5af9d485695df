package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"content-pipeline/internal/app"
	"content-pipeline/internal/domain/entity"
	"content-pipeline/internal/resilience/alert"
	"content-pipeline/internal/resilience/circuitbreaker"
	"content-pipeline/internal/resilience/dlq"
	"content-pipeline/internal/resilience/errorlog"
	"content-pipeline/internal/resilience/health"
	"content-pipeline/internal/utils/text"
)

// deps are the components the commands operate on.
type deps struct {
	circuits *circuitbreaker.Registry
	queue    *dlq.Queue
	errors   *errorlog.Log
	health   *health.Aggregator
	sink     alert.Sink
}

func newDeps(r *app.Resilience, sink alert.Sink) *deps {
	return &deps{
		circuits: r.Circuits,
		queue:    r.Queue,
		errors:   r.Errors,
		health:   r.Health,
		sink:     sink,
	}
}

// envelope is the JSON document printed for every command.
type envelope struct {
	Command string `json:"command"`
	OK      bool   `json:"ok"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

type result struct {
	data     any
	text     string
	exitCode int
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func execute(ctx context.Context, d *deps, cmd string, opts options) (result, error) {
	switch cmd {
	case "circuits":
		states, err := d.circuits.List(ctx)
		if err != nil {
			return result{}, err
		}
		return result{data: states, text: circuitTable(states)}, nil

	case "reset-circuit":
		if strings.TrimSpace(opts.resetCircuit) == "" {
			return result{}, fmt.Errorf("circuit name is required")
		}
		if err := d.circuits.Reset(ctx, opts.resetCircuit); err != nil {
			return result{}, err
		}
		return message(fmt.Sprintf("circuit %s reset to closed", opts.resetCircuit), map[string]string{"service": opts.resetCircuit}), nil

	case "reset-all":
		if err := d.circuits.ResetAll(ctx); err != nil {
			return result{}, err
		}
		return message("all circuits reset to closed", nil), nil

	case "dlq":
		jobs, err := d.queue.List(ctx)
		if err != nil {
			return result{}, err
		}
		return result{data: jobs, text: jobTable(jobs)}, nil

	case "dlq-clear":
		var statuses []entity.DLQStatus
		if opts.status != "" {
			s := entity.DLQStatus(opts.status)
			if s != entity.DLQPending && s != entity.DLQCompleted && s != entity.DLQFailed {
				return result{}, fmt.Errorf("invalid status '%s' (must be pending, completed or failed)", opts.status)
			}
			statuses = append(statuses, s)
		}
		removed, err := d.queue.Clear(ctx, statuses...)
		if err != nil {
			return result{}, err
		}
		return message(fmt.Sprintf("removed %d dead letter jobs", removed), map[string]int{"removed": removed}), nil

	case "dlq-retry":
		if opts.dlqRetry < 0 {
			return result{}, fmt.Errorf("retry limit must not be negative, got %d", opts.dlqRetry)
		}
		stats, err := d.queue.RetryPending(ctx, opts.dlqRetry)
		if err != nil {
			return result{}, err
		}
		summary := fmt.Sprintf("attempted %d, succeeded %d, failed %d, still pending %d",
			stats.Attempted, stats.Succeeded, stats.Failed, stats.TotalPending)
		return result{data: stats, text: summary}, nil

	case "dlq-cleanup":
		if opts.dlqCleanup <= 0 {
			return result{}, fmt.Errorf("retention days must be positive, got %d", opts.dlqCleanup)
		}
		removed, err := d.queue.Cleanup(ctx, opts.dlqCleanup)
		if err != nil {
			return result{}, err
		}
		return message(fmt.Sprintf("removed %d completed jobs older than %d days", removed, opts.dlqCleanup),
			map[string]int{"removed": removed, "retention_days": opts.dlqCleanup}), nil

	case "health":
		report, err := d.health.ComputeHealth(ctx)
		if err != nil {
			return result{}, err
		}
		res := result{data: report, text: health.Render(report)}
		if !health.Healthy(report.Status) {
			res.exitCode = 1
		}
		return res, nil

	case "report":
		report, err := d.health.GenerateReport(ctx)
		if err != nil {
			return result{}, err
		}
		return result{data: map[string]string{"report": report}, text: report}, nil

	case "alert":
		if err := d.health.SendReport(ctx, d.sink); err != nil {
			return result{}, err
		}
		return message("health report sent to alert channels", nil), nil

	case "errors":
		entries, err := d.errors.Recent(ctx, opts.errors)
		if err != nil {
			return result{}, err
		}
		if entries == nil {
			entries = []entity.ErrorLogEntry{}
		}
		return result{data: entries, text: errorTable(entries)}, nil

	case "clear-errors":
		if opts.days < 0 {
			return result{}, fmt.Errorf("days must not be negative, got %d", opts.days)
		}
		if err := d.errors.Clear(ctx, opts.days); err != nil {
			return result{}, err
		}
		if opts.days == 0 {
			return message("error log cleared", nil), nil
		}
		return message(fmt.Sprintf("error log cleared for the last %d days", opts.days), map[string]int{"days": opts.days}), nil
	}
	return result{}, fmt.Errorf("unknown command %q", cmd)
}

func message(text string, data any) result {
	if data == nil {
		data = map[string]string{"message": text}
	}
	return result{data: data, text: text}
}

func circuitTable(states []*entity.CircuitState) string {
	if len(states) == 0 {
		return "no circuits recorded"
	}
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SERVICE\tPHASE\tFAILURES\tOPENED\tLAST ERROR")
	for _, st := range states {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			st.Service, st.Phase, st.ConsecutiveFailures, formatTime(st.OpenedAt), shorten(st.LastError, 60))
	}
	_ = w.Flush()
	return strings.TrimRight(b.String(), "\n")
}

func jobTable(jobs []*entity.DeadLetterJob) string {
	if len(jobs) == 0 {
		return "dead letter queue is empty"
	}
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTAGE\tSTATUS\tRETRIES\tFAILED\tREASON")
	for _, j := range jobs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			j.ID, j.Stage, j.Status, j.RetryCount, j.MaxRetries, formatTime(&j.FailedAt), shorten(j.Reason, 60))
	}
	_ = w.Flush()
	return strings.TrimRight(b.String(), "\n")
}

func errorTable(entries []entity.ErrorLogEntry) string {
	if len(entries) == 0 {
		return "no errors recorded in the last 7 days"
	}
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tSEVERITY\tMODULE\tOPERATION\tERROR")
	for _, e := range entries {
		ts := e.Timestamp
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			formatTime(&ts), e.Severity, e.Module, e.Operation, shorten(e.Error, 80))
	}
	_ = w.Flush()
	return strings.TrimRight(b.String(), "\n")
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func shorten(s string, limit int) string {
	if text.CountRunes(s) <= limit {
		return s
	}
	cut, _ := text.Truncate(s, limit-3)
	return cut + "..."
}
