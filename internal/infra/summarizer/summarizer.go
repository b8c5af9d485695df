// Package summarizer implements pipeline.Summarizer on top of the Anthropic
// and OpenAI SDKs.
//
// The clients make exactly one API call per Summarize: SDK-level retries are
// disabled, because the generate stage already runs under the retry executor
// and the llm_api circuit. API failures are returned as *retry.HTTPError so
// their status code reaches the error classifier.
package summarizer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"content-pipeline/internal/utils/text"
)

// maxInputRunes caps the article text sent to a provider.
const maxInputRunes = 10000

// call performs one provider request and returns the raw summary.
type call func(ctx context.Context, prompt string) (string, error)

// summarize wraps a provider call with truncation, logging and metrics.
func summarize(ctx context.Context, provider string, cfg Config, rec SummaryMetricsRecorder, input string, do call) (string, error) {
	requestID := uuid.New().String()
	logger := slog.With(slog.String("provider", provider), slog.String("request_id", requestID))

	input = truncate(logger, input)
	prompt := buildPrompt(cfg, input)

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	logger.DebugContext(ctx, "starting summarization",
		slog.Int("input_length", text.CountRunes(input)),
		slog.Int("character_limit", cfg.CharacterLimit))

	start := time.Now()
	summary, err := do(ctx, prompt)
	duration := time.Since(start)
	if err != nil {
		logger.WarnContext(ctx, "summarization failed",
			slog.Duration("duration", duration),
			slog.Any("error", err))
		return "", fmt.Errorf("%s summarize: %w", provider, err)
	}

	length := text.CountRunes(summary)
	withinLimit := length <= cfg.CharacterLimit
	logger.InfoContext(ctx, "summarization completed",
		slog.Int("summary_length", length),
		slog.Bool("within_limit", withinLimit),
		slog.Duration("duration", duration))

	rec.RecordLength(length)
	rec.RecordDuration(duration)
	rec.RecordCompliance(withinLimit)
	if !withinLimit {
		rec.RecordLimitExceeded()
	}
	return summary, nil
}

func buildPrompt(cfg Config, input string) string {
	return fmt.Sprintf("Summarize the following text in %s in at most %d characters:\n%s",
		cfg.Language, cfg.CharacterLimit, input)
}

func truncate(logger *slog.Logger, input string) string {
	cut, truncated := text.Truncate(input, maxInputRunes)
	if !truncated {
		return input
	}
	logger.Warn("input truncated",
		slog.Int("original_length", text.CountRunes(input)),
		slog.Int("truncated_length", maxInputRunes))
	return cut + "...\n(truncated)"
}
