// Package notify fans operator alerts out to every enabled delivery channel
// (Telegram, Discord, Slack, email). Delivery is asynchronous and bounded by
// a worker pool; a channel that keeps failing is muted for a while so it
// cannot slow down the rest.
package notify

import (
	"context"
	"strings"

	"content-pipeline/internal/infra/notifier"
)

// Channel represents one alert delivery channel.
//
// Retry Policy Contract:
//   - Transient failures (5xx, network errors): retried inside the channel
//   - Rate limits (429): wait for retry_after, then retry
//   - Client errors (4xx except 429): no retry
//
// All methods must be safe for concurrent use.
type Channel interface {
	// Name returns the lowercase channel identifier used in logs, metrics
	// and the health endpoint.
	Name() string

	// IsEnabled reports whether the channel is enabled via configuration.
	IsEnabled() bool

	// Send delivers text. It returns ErrChannelDisabled on a disabled
	// channel and ErrEmptyMessage for blank text.
	Send(ctx context.Context, text string) error
}

// NotifierChannel adapts an infra notifier to Channel.
type NotifierChannel struct {
	name     string
	notifier notifier.Notifier
	enabled  bool
}

// NewChannel wraps n. A disabled channel is backed by a NoOpNotifier.
func NewChannel(name string, n notifier.Notifier, enabled bool) *NotifierChannel {
	if !enabled || n == nil {
		n = notifier.NewNoOpNotifier()
	}
	return &NotifierChannel{name: name, notifier: n, enabled: enabled}
}

// NewTelegramChannel creates the "telegram" channel.
func NewTelegramChannel(cfg notifier.TelegramConfig) *NotifierChannel {
	return NewChannel("telegram", notifier.NewTelegramNotifier(cfg), cfg.Enabled)
}

// NewDiscordChannel creates the "discord" channel.
func NewDiscordChannel(cfg notifier.DiscordConfig) *NotifierChannel {
	return NewChannel("discord", notifier.NewDiscordNotifier(cfg), cfg.Enabled)
}

// NewSlackChannel creates the "slack" channel.
func NewSlackChannel(cfg notifier.SlackConfig) *NotifierChannel {
	return NewChannel("slack", notifier.NewSlackNotifier(cfg), cfg.Enabled)
}

// NewEmailChannel creates the "email" channel.
func NewEmailChannel(cfg notifier.EmailConfig) *NotifierChannel {
	return NewChannel("email", notifier.NewEmailNotifier(cfg), cfg.Enabled)
}

func (c *NotifierChannel) Name() string { return c.name }

func (c *NotifierChannel) IsEnabled() bool { return c.enabled }

func (c *NotifierChannel) Send(ctx context.Context, text string) error {
	if !c.enabled {
		return ErrChannelDisabled
	}
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	return c.notifier.Notify(ctx, text)
}
