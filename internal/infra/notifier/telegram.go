package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	neturl "net/url"
	"time"

	"content-pipeline/internal/resilience/retry"
)

const (
	defaultTelegramBaseURL = "https://api.telegram.org"
	maxTelegramTextLength  = 4000
)

// TelegramConfig contains configuration for Telegram Bot API alerts.
type TelegramConfig struct {
	Enabled  bool
	BotToken string
	ChatID   string

	// BaseURL overrides the Bot API host (tests).
	BaseURL string

	// Timeout is the HTTP request timeout
	Timeout time.Duration

	// Retry controls transport retries; zero MaxAttempts uses retry.NotifierConfig.
	Retry retry.Config
}

// TelegramNotifier sends alerts with the Bot API sendMessage method.
type TelegramNotifier struct {
	config      TelegramConfig
	httpClient  *http.Client
	rateLimiter *RateLimiter
}

// NewTelegramNotifier creates a TelegramNotifier.
// Telegram allows about one message per second per chat.
func NewTelegramNotifier(config TelegramConfig) *TelegramNotifier {
	if config.BaseURL == "" {
		config.BaseURL = defaultTelegramBaseURL
	}
	if config.Retry.MaxAttempts <= 0 {
		config.Retry = retry.NotifierConfig()
	}
	return &TelegramNotifier{
		config:      config,
		httpClient:  &http.Client{Timeout: config.Timeout},
		rateLimiter: NewRateLimiter(1.0, 1),
	}
}

type telegramMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

// buildMessage escapes text for HTML parse mode after truncating it.
func (t *TelegramNotifier) buildMessage(text string) telegramMessage {
	return telegramMessage{
		ChatID:                t.config.ChatID,
		Text:                  html.EscapeString(truncateText(text, maxTelegramTextLength, truncationSuffix)),
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	}
}

// Notify sends text to the configured chat.
func (t *TelegramNotifier) Notify(ctx context.Context, text string) error {
	ctx, requestID := withRequestID(ctx)

	if err := t.rateLimiter.Allow(ctx); err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}

	msg := t.buildMessage(text)
	err := retry.WithBackoff(ctx, t.config.Retry, func() error {
		return t.send(ctx, msg)
	})
	if err != nil {
		slog.Error("Telegram notification failed",
			slog.String("request_id", requestID),
			slog.Any("error", err))
		return fmt.Errorf("telegram notification failed: %w", err)
	}

	slog.Info("Telegram notification successful",
		slog.String("request_id", requestID))
	return nil
}

func (t *TelegramNotifier) send(ctx context.Context, msg telegramMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal telegram message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.config.BaseURL, t.config.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		// The request URL carries the bot token.
		var urlErr *neturl.Error
		if errors.As(err, &urlErr) {
			urlErr.URL = t.config.BaseURL + "/bot<redacted>/sendMessage"
		}
		return fmt.Errorf("execute http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var parsed telegramResponse
	message := string(raw)
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Description != "" {
		message = parsed.Description
	}
	return &retry.HTTPError{StatusCode: resp.StatusCode, Message: message}
}
