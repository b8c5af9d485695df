package summarizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"content-pipeline/internal/resilience/retry"
	"content-pipeline/internal/usecase/pipeline"
)

// DefaultClaudeModel is used when SUMMARIZER_MODEL is unset.
const DefaultClaudeModel = string(anthropic.ModelClaudeSonnet4_5_20250929)

// Claude summarises with the Anthropic Messages API.
type Claude struct {
	client  anthropic.Client
	config  Config
	metrics SummaryMetricsRecorder
}

var _ pipeline.Summarizer = (*Claude)(nil)

// NewClaude creates a Claude summarizer.
func NewClaude(apiKey string, cfg Config) *Claude {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	slog.Info("claude summarizer initialised",
		slog.String("model", cfg.Model),
		slog.Int("character_limit", cfg.CharacterLimit))

	return &Claude{
		client:  anthropic.NewClient(opts...),
		config:  cfg,
		metrics: NewPrometheusSummaryMetrics(),
	}
}

// Summarize implements pipeline.Summarizer.
func (c *Claude) Summarize(ctx context.Context, input string) (string, error) {
	return summarize(ctx, "claude", c.config, c.metrics, input, c.send)
}

func (c *Claude) send(ctx context.Context, prompt string) (string, error) {
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.config.Model),
		MaxTokens: int64(c.config.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", &retry.HTTPError{StatusCode: apiErr.StatusCode, Message: http.StatusText(apiErr.StatusCode)}
		}
		return "", err
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(tb.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("claude api returned no text content")
	}
	return sb.String(), nil
}
