package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"content-pipeline/internal/resilience/retry"
)

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
}

func TestTelegramNotifier_buildMessage(t *testing.T) {
	n := NewTelegramNotifier(TelegramConfig{ChatID: "42"})

	t.Run("escapes html", func(t *testing.T) {
		msg := n.buildMessage("error in <generate> & retry")
		if msg.Text != "error in &lt;generate&gt; &amp; retry" {
			t.Errorf("unexpected text %q", msg.Text)
		}
		if msg.ParseMode != "HTML" || msg.ChatID != "42" {
			t.Errorf("unexpected message %+v", msg)
		}
	})

	t.Run("truncates to 4000 characters", func(t *testing.T) {
		msg := n.buildMessage(strings.Repeat("x", 5000))
		if len(msg.Text) != maxTelegramTextLength {
			t.Errorf("expected %d, got %d", maxTelegramTextLength, len(msg.Text))
		}
	})
}

func TestTelegramNotifier_Notify(t *testing.T) {
	t.Run("sends to bot endpoint", func(t *testing.T) {
		var path string
		var got telegramMessage
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path = r.URL.Path
			_ = json.NewDecoder(r.Body).Decode(&got)
			_, _ = w.Write([]byte(`{"ok":true}`))
		}))
		defer server.Close()

		n := NewTelegramNotifier(TelegramConfig{BotToken: "TOKEN", ChatID: "42", BaseURL: server.URL, Timeout: time.Second})
		if err := n.Notify(context.Background(), "✅ recovered"); err != nil {
			t.Fatalf("expected nil, got %v", err)
		}
		if path != "/botTOKEN/sendMessage" {
			t.Errorf("unexpected path %q", path)
		}
		if got.Text != "✅ recovered" {
			t.Errorf("unexpected text %q", got.Text)
		}
	})

	t.Run("retries server errors", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			_, _ = w.Write([]byte(`{"ok":true}`))
		}))
		defer server.Close()

		n := NewTelegramNotifier(TelegramConfig{BotToken: "T", ChatID: "1", BaseURL: server.URL, Retry: fastRetry()})
		if err := n.Notify(context.Background(), "x"); err != nil {
			t.Fatalf("expected nil, got %v", err)
		}
		if calls != 3 {
			t.Errorf("expected 3 calls, got %d", calls)
		}
	})

	t.Run("bad request is not retried", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
		}))
		defer server.Close()

		n := NewTelegramNotifier(TelegramConfig{BotToken: "T", ChatID: "1", BaseURL: server.URL, Retry: fastRetry()})
		err := n.Notify(context.Background(), "x")
		if err == nil || !strings.Contains(err.Error(), "chat not found") {
			t.Fatalf("expected chat not found error, got %v", err)
		}
		if calls != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
	})

	t.Run("transport errors do not leak the token", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		url := server.URL
		server.Close()

		n := NewTelegramNotifier(TelegramConfig{
			BotToken: "SECRET",
			ChatID:   "1",
			BaseURL:  url,
			Retry:    retry.Config{MaxAttempts: 1, Multiplier: 1},
		})
		err := n.Notify(context.Background(), "x")
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if strings.Contains(err.Error(), "SECRET") {
			t.Errorf("token leaked in error: %v", err)
		}
	})
}
