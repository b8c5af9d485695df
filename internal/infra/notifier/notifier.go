// Package notifier delivers operator alerts to external channels.
// Every channel implements Notifier and is plain text in, error out; the
// fan-out, failure cutoff and async delivery live in usecase/notify.
//
// Implementations: Telegram Bot API, Discord and Slack webhooks, SendGrid
// email, and a no-op notifier for when alerting is disabled.
package notifier

import (
	"context"

	"github.com/google/uuid"
)

// Notifier sends one alert message.
// Implementations should handle rate limiting, retries, and error logging internally.
type Notifier interface {
	// Notify delivers text. The returned error is non-nil only after all
	// retry attempts failed.
	Notify(ctx context.Context, text string) error
}

// withRequestID attaches a fresh request ID used in every log line of one delivery.
func withRequestID(ctx context.Context) (context.Context, string) {
	id := uuid.New().String()
	return context.WithValue(ctx, requestIDKey, id), id
}
