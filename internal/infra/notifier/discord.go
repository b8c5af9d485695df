package notifier

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DiscordConfig contains configuration for Discord webhook notifications.
type DiscordConfig struct {
	// Enabled indicates whether Discord notifications are enabled
	Enabled bool

	// WebhookURL is the Discord webhook URL (includes authentication token)
	WebhookURL string

	// Timeout is the HTTP request timeout for Discord API calls
	Timeout time.Duration

	// RetryDelay is the base delay between attempts on server errors (default 5s)
	RetryDelay time.Duration
}

// DiscordNotifier sends alerts to Discord via webhook.
type DiscordNotifier struct {
	config      DiscordConfig
	httpClient  *http.Client
	rateLimiter *RateLimiter
	now         func() time.Time
}

// NewDiscordNotifier creates a new DiscordNotifier.
//
// The rate limiter is set to 0.5 requests/second with burst of 3
// (Discord webhook limit: 30 requests per minute).
func NewDiscordNotifier(config DiscordConfig) *DiscordNotifier {
	if config.RetryDelay <= 0 {
		config.RetryDelay = 5 * time.Second
	}
	return &DiscordNotifier{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimiter: NewRateLimiter(0.5, 3),
		now:         time.Now,
	}
}

// DiscordWebhookPayload represents the JSON payload sent to Discord webhook.
type DiscordWebhookPayload struct {
	Embeds []DiscordEmbed `json:"embeds"`
}

// DiscordEmbed represents a Discord embed message.
type DiscordEmbed struct {
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Color       int                `json:"color"`
	Footer      DiscordEmbedFooter `json:"footer"`
	Timestamp   string             `json:"timestamp"`
}

// DiscordEmbedFooter represents the footer of a Discord embed.
type DiscordEmbedFooter struct {
	Text string `json:"text"`
}

const (
	maxTitleLength       = 256
	maxDescriptionLength = 4096
	truncationSuffix     = "..."

	discordBlueColor   = 5793266  // #5865F2
	discordRedColor    = 15548997 // #ED4245
	discordYellowColor = 16705372 // #FEE75C
	discordGreenColor  = 5763719  // #57F287

	discordFooter = "content-pipeline"
)

// embedColor picks the embed color from the alert's leading marker.
func embedColor(text string) int {
	switch {
	case strings.HasPrefix(text, "🔴"), strings.HasPrefix(text, "🚨"):
		return discordRedColor
	case strings.HasPrefix(text, "⚠️"), strings.HasPrefix(text, "🟡"):
		return discordYellowColor
	case strings.HasPrefix(text, "✅"), strings.HasPrefix(text, "🟢"):
		return discordGreenColor
	}
	return discordBlueColor
}

// buildEmbedPayload turns an alert into a single embed. The first line
// becomes the title; the whole text is the description.
func (d *DiscordNotifier) buildEmbedPayload(text string) DiscordWebhookPayload {
	title, _, _ := strings.Cut(text, "\n")

	return DiscordWebhookPayload{
		Embeds: []DiscordEmbed{{
			Title:       truncateText(title, maxTitleLength, truncationSuffix),
			Description: truncateText(text, maxDescriptionLength, truncationSuffix),
			Color:       embedColor(text),
			Footer:      DiscordEmbedFooter{Text: discordFooter},
			Timestamp:   d.now().UTC().Format(time.RFC3339),
		}},
	}
}

// Notify sends text to the Discord webhook.
func (d *DiscordNotifier) Notify(ctx context.Context, text string) error {
	ctx, requestID := withRequestID(ctx)

	slog.Info("Starting Discord notification",
		slog.String("request_id", requestID),
		slog.Int("length", len(text)))

	payload := d.buildEmbedPayload(text)
	return deliver(ctx, "Discord", d.rateLimiter, deliveryPolicy{
		maxAttempts:      2,
		baseDelay:        d.config.RetryDelay,
		maxRateLimitWait: 30 * time.Second,
	}, func(ctx context.Context) error {
		return postJSON(ctx, d.httpClient, d.config.WebhookURL, "Discord", payload)
	})
}
