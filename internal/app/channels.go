package app

import (
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"content-pipeline/internal/infra/notifier"
	"content-pipeline/internal/usecase/notify"
	"content-pipeline/pkg/config"
)

const channelTimeout = 30 * time.Second

// Channels builds every alert channel from the environment. Disabled or
// misconfigured channels are still returned so /health/channels lists them.
func Channels(logger *slog.Logger) []notify.Channel {
	channels := []notify.Channel{
		notify.NewTelegramChannel(LoadTelegramConfig(logger)),
		notify.NewDiscordChannel(LoadDiscordConfig(logger)),
		notify.NewSlackChannel(LoadSlackConfig(logger)),
		notify.NewEmailChannel(LoadEmailConfig(logger)),
	}
	for _, ch := range channels {
		logger.Info("alert channel configured",
			slog.String("channel", ch.Name()),
			slog.Bool("enabled", ch.IsEnabled()))
	}
	return channels
}

// LoadTelegramConfig enables Telegram when both TELEGRAM_BOT_TOKEN and
// TELEGRAM_CHAT_ID are set.
func LoadTelegramConfig(logger *slog.Logger) notifier.TelegramConfig {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	chatID := os.Getenv("TELEGRAM_CHAT_ID")

	switch {
	case token == "" && chatID == "":
		return notifier.TelegramConfig{Enabled: false}
	case token == "" || chatID == "":
		logger.Warn("Telegram needs both TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID, disabling notifications")
		return notifier.TelegramConfig{Enabled: false}
	}

	return notifier.TelegramConfig{
		Enabled:  true,
		BotToken: token,
		ChatID:   chatID,
		Timeout:  channelTimeout,
	}
}

// LoadDiscordConfig loads Discord configuration from environment variables.
//
// Environment variables:
//   - DISCORD_ENABLED: Boolean flag to enable Discord notifications (default: false)
//   - DISCORD_WEBHOOK_URL: Discord webhook URL (required if enabled)
func LoadDiscordConfig(logger *slog.Logger) notifier.DiscordConfig {
	if !config.GetEnvBool("DISCORD_ENABLED", false) {
		return notifier.DiscordConfig{Enabled: false}
	}

	webhookURL := os.Getenv("DISCORD_WEBHOOK_URL")
	if !validWebhook(logger, "Discord", webhookURL, "discord.com", "/api/webhooks/") {
		return notifier.DiscordConfig{Enabled: false}
	}

	return notifier.DiscordConfig{
		Enabled:    true,
		WebhookURL: webhookURL,
		Timeout:    channelTimeout,
	}
}

// LoadSlackConfig loads Slack configuration from environment variables.
//
// Environment variables:
//   - SLACK_ENABLED: Boolean flag to enable Slack notifications (default: false)
//   - SLACK_WEBHOOK_URL: Slack webhook URL (required if enabled)
func LoadSlackConfig(logger *slog.Logger) notifier.SlackConfig {
	if !config.GetEnvBool("SLACK_ENABLED", false) {
		return notifier.SlackConfig{Enabled: false}
	}

	webhookURL := os.Getenv("SLACK_WEBHOOK_URL")
	if !validWebhook(logger, "Slack", webhookURL, "hooks.slack.com", "/services/") {
		return notifier.SlackConfig{Enabled: false}
	}

	return notifier.SlackConfig{
		Enabled:    true,
		WebhookURL: webhookURL,
		Timeout:    channelTimeout,
	}
}

// LoadEmailConfig enables SendGrid email when SENDGRID_API_KEY,
// ALERT_EMAIL_FROM and ALERT_EMAIL_TO (comma-separated) are all set.
func LoadEmailConfig(logger *slog.Logger) notifier.EmailConfig {
	apiKey := os.Getenv("SENDGRID_API_KEY")
	if apiKey == "" {
		return notifier.EmailConfig{Enabled: false}
	}

	from := os.Getenv("ALERT_EMAIL_FROM")
	to := config.GetEnvStringList("ALERT_EMAIL_TO", nil)
	if from == "" || len(to) == 0 {
		logger.Warn("ALERT_EMAIL_FROM and ALERT_EMAIL_TO are required for email alerts, disabling notifications")
		return notifier.EmailConfig{Enabled: false}
	}

	return notifier.EmailConfig{
		Enabled:  true,
		APIKey:   apiKey,
		FromName: config.GetEnvString("ALERT_EMAIL_FROM_NAME", "Content Pipeline"),
		From:     from,
		To:       to,
	}
}

// validWebhook checks that raw is an https URL on host under pathPrefix.
func validWebhook(logger *slog.Logger, service, raw, host, pathPrefix string) bool {
	if raw == "" {
		logger.Warn(service + " webhook URL is empty, disabling notifications")
		return false
	}

	u, err := url.Parse(raw)
	if err != nil {
		logger.Warn("Invalid "+service+" webhook URL format, disabling notifications", slog.Any("error", err))
		return false
	}
	if u.Scheme != "https" {
		logger.Warn(service + " webhook URL must use HTTPS, disabling notifications")
		return false
	}
	if u.Host != host {
		logger.Warn("Invalid "+service+" webhook host, disabling notifications", slog.String("host", u.Host))
		return false
	}
	if !strings.HasPrefix(u.Path, pathPrefix) {
		logger.Warn("Invalid "+service+" webhook path, disabling notifications", slog.String("path", u.Path))
		return false
	}
	return true
}
