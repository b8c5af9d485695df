package summarizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"content-pipeline/internal/resilience/retry"
	"content-pipeline/internal/usecase/pipeline"
)

// DefaultOpenAIModel is used when SUMMARIZER_MODEL is unset.
const DefaultOpenAIModel = openai.GPT4oMini

// OpenAI summarises with the chat completions API.
type OpenAI struct {
	client  *openai.Client
	config  Config
	metrics SummaryMetricsRecorder
}

var _ pipeline.Summarizer = (*OpenAI)(nil)

// NewOpenAI creates an OpenAI summarizer.
func NewOpenAI(apiKey string, cfg Config) *OpenAI {
	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	slog.Info("openai summarizer initialised",
		slog.String("model", cfg.Model),
		slog.Int("character_limit", cfg.CharacterLimit))

	return &OpenAI{
		client:  openai.NewClientWithConfig(clientCfg),
		config:  cfg,
		metrics: NewPrometheusSummaryMetrics(),
	}
}

// Summarize implements pipeline.Summarizer.
func (o *OpenAI) Summarize(ctx context.Context, input string) (string, error) {
	return summarize(ctx, "openai", o.config, o.metrics, input, o.send)
}

func (o *OpenAI) send(ctx context.Context, prompt string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     o.config.Model,
		MaxTokens: o.config.MaxTokens,
		Messages: []openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleUser,
			Content: prompt,
		}},
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", &retry.HTTPError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
		}
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) {
			return "", &retry.HTTPError{StatusCode: reqErr.HTTPStatusCode, Message: http.StatusText(reqErr.HTTPStatusCode)}
		}
		return "", err
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("openai api returned empty response")
	}
	return resp.Choices[0].Message.Content, nil
}
