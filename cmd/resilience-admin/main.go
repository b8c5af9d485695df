// Package main provides the operator CLI for the resilience layer.
// Usage: resilience-admin [--output json|text] <command>
//
// Exactly one command flag is accepted per invocation. The exit status is 0
// on success, 1 when the command failed or -health found the pipeline
// degraded or critical, and 2 on usage errors.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"content-pipeline/internal/app"
	"content-pipeline/internal/infra/worker"
	"content-pipeline/internal/observability/logging"
	"content-pipeline/internal/resilience/alert"
	"content-pipeline/internal/usecase/notify"
	pkgconfig "content-pipeline/pkg/config"
)

const commandTimeout = 2 * time.Minute

// commandFlags lists the flags that select a command, in usage order.
var commandFlags = []string{
	"circuits", "reset-circuit", "reset-all",
	"dlq", "dlq-clear", "dlq-retry", "dlq-cleanup",
	"health", "report", "alert",
	"errors", "clear-errors",
}

type options struct {
	output       string
	resetCircuit string
	status       string
	dlqRetry     int
	dlqCleanup   int
	errors       int
	days         int
}

// opener builds the components a command runs against. The returned
// function releases them.
type opener func(ctx context.Context, logger *slog.Logger) (*deps, func(), error)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Error: failed to load .env: %v\n", err)
	}
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr, openFromEnv))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, open opener) int {
	fs := flag.NewFlagSet("resilience-admin", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts options
	fs.StringVar(&opts.output, "output", "json", "Output format: json or text")
	fs.Bool("circuits", false, "List every circuit breaker")
	fs.StringVar(&opts.resetCircuit, "reset-circuit", "", "Force the named circuit back to closed")
	fs.Bool("reset-all", false, "Force every circuit back to closed")
	fs.Bool("dlq", false, "List dead letter jobs")
	fs.Bool("dlq-clear", false, "Remove dead letter jobs (all, or those matching -status)")
	fs.StringVar(&opts.status, "status", "", "Status filter for -dlq-clear: pending, completed or failed")
	fs.IntVar(&opts.dlqRetry, "dlq-retry", 10, "Retry up to N pending dead letter jobs (0 = no cap)")
	fs.IntVar(&opts.dlqCleanup, "dlq-cleanup", 7, "Remove completed jobs older than DAYS")
	fs.Bool("health", false, "Compute pipeline health (exit 1 when degraded or critical)")
	fs.Bool("report", false, "Print the health report")
	fs.Bool("alert", false, "Send the health report to the alert channels")
	fs.IntVar(&opts.errors, "errors", 20, "Show the N most recent error log entries")
	fs.Bool("clear-errors", false, "Delete the error log (all days, or the last -days days)")
	fs.IntVar(&opts.days, "days", 0, "Days for -clear-errors, 0 = all")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: resilience-admin [--output json|text] <command>")
		fmt.Fprintln(stderr, "")
		fmt.Fprintln(stderr, "Examples:")
		fmt.Fprintln(stderr, "  resilience-admin -circuits --output text")
		fmt.Fprintln(stderr, "  resilience-admin -reset-circuit llm_api")
		fmt.Fprintln(stderr, "  resilience-admin -dlq-clear -status completed")
		fmt.Fprintln(stderr, "  resilience-admin -health")
		fmt.Fprintln(stderr, "")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return 2
	}

	cmd, err := selectCommand(fs)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n\n", err)
		fs.Usage()
		return 2
	}
	if opts.output != "json" && opts.output != "text" {
		fmt.Fprintf(stderr, "Error: invalid output format '%s' (must be 'json' or 'text')\n", opts.output)
		return 2
	}

	logger := logging.NewTintLogger(stderr, logging.LevelFromEnv(), false)
	slog.SetDefault(logger)

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	d, release, err := open(ctx, logger)
	if err != nil {
		logger.Error("failed to open resilience store", slog.Any("error", err))
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer release()

	res, err := execute(ctx, d, cmd, opts)
	if err != nil {
		logger.Error("command failed", slog.String("command", cmd), slog.Any("error", err))
		if opts.output == "json" {
			_ = writeJSON(stdout, envelope{Command: cmd, OK: false, Error: err.Error()})
		} else {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}

	if opts.output == "json" {
		if err := writeJSON(stdout, envelope{Command: cmd, OK: res.exitCode == 0, Result: res.data}); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	} else {
		fmt.Fprintln(stdout, res.text)
	}
	return res.exitCode
}

// selectCommand returns the single command flag set on the command line.
func selectCommand(fs *flag.FlagSet) (string, error) {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	var chosen []string
	for _, name := range commandFlags {
		if set[name] {
			chosen = append(chosen, name)
		}
	}
	switch len(chosen) {
	case 0:
		return "", errors.New("no command given")
	case 1:
		if set["status"] && chosen[0] != "dlq-clear" {
			return "", errors.New("-status only applies to -dlq-clear")
		}
		if set["days"] && chosen[0] != "clear-errors" {
			return "", errors.New("-days only applies to -clear-errors")
		}
		return chosen[0], nil
	}
	return "", fmt.Errorf("only one command may be given, got %v", chosen)
}

// openFromEnv connects to the store named by STORE_BACKEND and builds the
// pipeline so that -dlq-retry dispatches to the same stage handlers as the
// worker.
func openFromEnv(ctx context.Context, logger *slog.Logger) (*deps, func(), error) {
	backend := pkgconfig.GetEnvString("STORE_BACKEND", worker.StoreMemory)
	store, err := app.OpenStore(ctx, logger, backend)
	if err != nil {
		return nil, nil, err
	}

	notifyService := notify.NewService(app.Channels(logger), 4)
	res := app.NewResilience(store, notifyService, app.LoadCircuitConfig(logger))
	retention := pkgconfig.GetEnvInt("DLQ_RETENTION_DAYS", 7)
	if _, err := app.BuildPipeline(logger, res, app.LoadPipelineConfig(logger, retention)); err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	release := func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := notifyService.Drain(drainCtx); err != nil {
			logger.Warn("alerts still in flight at exit", slog.Any("error", err))
		}
		_ = notifyService.Shutdown(drainCtx)
		if err := store.Close(); err != nil {
			logger.Error("failed to close resilience store", slog.Any("error", err))
		}
	}
	return newDeps(res, alert.Sink(notifyService)), release, nil
}
