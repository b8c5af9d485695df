// Package logging provides structured logging helpers on top of log/slog.
//
// The worker logs JSON to stdout. CLIs log through tint to stderr so that
// their own output on stdout can be piped.
//
// Example usage:
//
//	logger := logging.NewLogger()
//	slog.SetDefault(logger)
//
//	ctx = logging.ContextWithRunID(ctx, runID)
//	logging.WithRunID(ctx, logger).Info("stage completed", slog.String("stage", "scout"))
package logging
