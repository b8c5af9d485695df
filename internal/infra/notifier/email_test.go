package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEmailNotifier_buildMessage(t *testing.T) {
	n := NewEmailNotifier(EmailConfig{From: "alerts@example.com", To: []string{"ops@example.com", " ", "dev@example.com"}})

	m := n.buildMessage("🚨 CRITICAL ERROR in llm_api.generate: 401\nmore detail")

	if m.Subject != "[content-pipeline] 🚨 CRITICAL ERROR in llm_api.generate: 401" {
		t.Errorf("unexpected subject %q", m.Subject)
	}
	if m.From.Address != "alerts@example.com" || m.From.Name != "content-pipeline" {
		t.Errorf("unexpected from %+v", m.From)
	}
	if len(m.Personalizations) != 1 || len(m.Personalizations[0].To) != 2 {
		t.Fatalf("expected 2 recipients, got %+v", m.Personalizations)
	}
	if len(m.Content) != 1 || m.Content[0].Type != "text/plain" {
		t.Errorf("unexpected content %+v", m.Content)
	}
}

func TestEmailNotifier_Notify(t *testing.T) {
	t.Run("posts to mail send endpoint", func(t *testing.T) {
		var path, auth string
		var body map[string]any
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path = r.URL.Path
			auth = r.Header.Get("Authorization")
			_ = json.NewDecoder(r.Body).Decode(&body)
			w.WriteHeader(http.StatusAccepted)
		}))
		defer server.Close()

		n := NewEmailNotifier(EmailConfig{APIKey: "SG.key", From: "a@example.com", To: []string{"b@example.com"}, Host: server.URL})
		if err := n.Notify(context.Background(), "report"); err != nil {
			t.Fatalf("expected nil, got %v", err)
		}
		if path != "/v3/mail/send" {
			t.Errorf("unexpected path %q", path)
		}
		if auth != "Bearer SG.key" {
			t.Errorf("unexpected auth header %q", auth)
		}
		if body["subject"] != "[content-pipeline] report" {
			t.Errorf("unexpected subject %v", body["subject"])
		}
	})

	t.Run("client error is surfaced", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"errors":[{"message":"forbidden"}]}`))
		}))
		defer server.Close()

		n := NewEmailNotifier(EmailConfig{APIKey: "k", From: "a@example.com", To: []string{"b@example.com"}, Host: server.URL})
		err := n.Notify(context.Background(), "x")
		var ce *ClientError
		if !errors.As(err, &ce) || ce.StatusCode != http.StatusForbidden {
			t.Fatalf("expected ClientError 403, got %v", err)
		}
	})

	t.Run("no recipients", func(t *testing.T) {
		n := NewEmailNotifier(EmailConfig{APIKey: "k", From: "a@example.com"})
		if err := n.Notify(context.Background(), "x"); err == nil {
			t.Fatal("expected error, got nil")
		}
	})
}
