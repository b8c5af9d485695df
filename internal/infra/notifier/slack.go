package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// SlackConfig contains configuration for Slack webhook notifications.
type SlackConfig struct {
	// Enabled indicates whether Slack notifications are enabled
	Enabled bool

	// WebhookURL is the Slack Incoming Webhook URL (includes authentication token)
	WebhookURL string

	// Timeout is the HTTP request timeout for Slack API calls
	Timeout time.Duration

	// RetryDelay is the base delay between attempts on server errors (default 5s)
	RetryDelay time.Duration
}

// SlackNotifier sends alerts to Slack via Incoming Webhook.
type SlackNotifier struct {
	config      SlackConfig
	httpClient  *http.Client
	rateLimiter *RateLimiter
	now         func() time.Time
}

// NewSlackNotifier creates a new SlackNotifier.
//
// The rate limiter is set to 1 request/second with burst of 1
// (Slack webhook limit: 1 message per second).
func NewSlackNotifier(config SlackConfig) *SlackNotifier {
	if config.RetryDelay <= 0 {
		config.RetryDelay = 5 * time.Second
	}
	return &SlackNotifier{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimiter: NewRateLimiter(1.0, 1),
		now:         time.Now,
	}
}

// SlackWebhookPayload represents the JSON payload sent to Slack webhook using Block Kit.
type SlackWebhookPayload struct {
	Text   string       `json:"text"`   // Fallback text (required)
	Blocks []SlackBlock `json:"blocks"` // Rich formatting blocks
}

// SlackBlock represents a Slack Block Kit block.
type SlackBlock struct {
	Type     string            `json:"type"`               // "section", "context", "divider"
	Text     *SlackTextObject  `json:"text,omitempty"`     // Text content (for section)
	Elements []SlackTextObject `json:"elements,omitempty"` // Elements (for context)
}

// SlackTextObject represents a text object in Slack Block Kit.
type SlackTextObject struct {
	Type string `json:"type"` // "mrkdwn" or "plain_text"
	Text string `json:"text"`
}

const (
	maxSectionTextLength = 3000
	maxFallbackLength    = 150

	slackTruncationSuffix = "..."
)

// buildBlockKitPayload renders an alert as a section block plus a context
// line. Multi-line alerts (health reports) go in a code block so their
// alignment survives.
func (s *SlackNotifier) buildBlockKitPayload(text string) SlackWebhookPayload {
	firstLine, _, multiLine := strings.Cut(text, "\n")

	sectionText := text
	if multiLine {
		sectionText = "```" + text + "```"
	}
	sectionText = truncateText(sectionText, maxSectionTextLength, slackTruncationSuffix)

	contextText := fmt.Sprintf("content-pipeline • %s", s.now().UTC().Format(time.RFC3339))

	return SlackWebhookPayload{
		Text: truncateText(firstLine, maxFallbackLength, slackTruncationSuffix),
		Blocks: []SlackBlock{
			{
				Type: "section",
				Text: &SlackTextObject{Type: "mrkdwn", Text: sectionText},
			},
			{
				Type:     "context",
				Elements: []SlackTextObject{{Type: "mrkdwn", Text: contextText}},
			},
		},
	}
}

// Notify sends text to the Slack webhook.
func (s *SlackNotifier) Notify(ctx context.Context, text string) error {
	ctx, requestID := withRequestID(ctx)

	slog.Info("Starting Slack notification",
		slog.String("request_id", requestID),
		slog.Int("length", len(text)))

	payload := s.buildBlockKitPayload(text)
	return deliver(ctx, "Slack", s.rateLimiter, deliveryPolicy{
		maxAttempts:      2,
		baseDelay:        s.config.RetryDelay,
		maxRateLimitWait: 30 * time.Second,
	}, func(ctx context.Context) error {
		return postJSON(ctx, s.httpClient, s.config.WebhookURL, "Slack", payload)
	})
}
