package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const defaultSendGridHost = "https://api.sendgrid.com"

// EmailConfig contains configuration for SendGrid email alerts.
type EmailConfig struct {
	Enabled  bool
	APIKey   string
	FromName string
	From     string
	To       []string

	// Host overrides the SendGrid API host (tests).
	Host string
}

// EmailNotifier sends alerts as plain-text email through SendGrid.
type EmailNotifier struct {
	config      EmailConfig
	rateLimiter *RateLimiter
}

// NewEmailNotifier creates an EmailNotifier.
func NewEmailNotifier(config EmailConfig) *EmailNotifier {
	if config.Host == "" {
		config.Host = defaultSendGridHost
	}
	if config.FromName == "" {
		config.FromName = "content-pipeline"
	}
	return &EmailNotifier{
		config:      config,
		rateLimiter: NewRateLimiter(1.0, 2),
	}
}

// buildMessage uses the first line of text as the subject.
func (e *EmailNotifier) buildMessage(text string) *mail.SGMailV3 {
	subject, _, _ := strings.Cut(text, "\n")
	subject = "[content-pipeline] " + truncateText(strings.TrimSpace(subject), 120, truncationSuffix)

	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(e.config.FromName, e.config.From))
	m.Subject = subject

	p := mail.NewPersonalization()
	for _, addr := range e.config.To {
		if addr = strings.TrimSpace(addr); addr != "" {
			p.AddTos(mail.NewEmail("", addr))
		}
	}
	m.AddPersonalizations(p)
	m.AddContent(mail.NewContent("text/plain", text))
	return m
}

// Notify sends text to every configured recipient.
func (e *EmailNotifier) Notify(ctx context.Context, text string) error {
	ctx, requestID := withRequestID(ctx)

	if len(e.config.To) == 0 {
		return &ClientError{StatusCode: http.StatusBadRequest, Message: "email notifier has no recipients"}
	}

	msg := e.buildMessage(text)
	return deliver(ctx, "Email", e.rateLimiter, deliveryPolicy{maxAttempts: 1}, func(ctx context.Context) error {
		request := sendgrid.GetRequest(e.config.APIKey, "/v3/mail/send", e.config.Host)
		request.Method = "POST"
		request.Body = mail.GetRequestBody(msg)

		resp, err := sendgrid.MakeRequestWithContext(ctx, request)
		if err != nil {
			return fmt.Errorf("sendgrid request: %w", err)
		}

		slog.Debug("SendGrid response",
			slog.String("request_id", requestID),
			slog.Int("status", resp.StatusCode))

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode == http.StatusTooManyRequests:
			return &RateLimitError{Message: "SendGrid rate limit exceeded"}
		case resp.StatusCode >= 500:
			return &ServerError{StatusCode: resp.StatusCode, Message: "SendGrid server error: " + resp.Body}
		default:
			return &ClientError{StatusCode: resp.StatusCode, Message: "SendGrid client error: " + resp.Body}
		}
	})
}
