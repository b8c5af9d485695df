package notifier

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestTruncateText(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		max      int
		expected string
	}{
		{name: "short text unchanged", text: "hello", max: 10, expected: "hello"},
		{name: "exact length unchanged", text: "hello", max: 5, expected: "hello"},
		{name: "truncated with suffix", text: "hello world", max: 8, expected: "hello..."},
		{name: "multi-byte runes kept whole", text: "🔴🔴🔴🔴🔴", max: 4, expected: "🔴..."},
		{name: "suffix longer than limit", text: "abcdef", max: 2, expected: "..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateText(tt.text, tt.max, "...")
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestExtractRetryAfter(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		body     string
		expected time.Duration
	}{
		{name: "json body", body: `{"retry_after": 1.5}`, expected: 1500 * time.Millisecond},
		{name: "header", header: "3", body: `{}`, expected: 3 * time.Second},
		{name: "default", body: `not json`, expected: 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{Header: http.Header{}}
			if tt.header != "" {
				resp.Header.Set("Retry-After", tt.header)
			}
			got := extractRetryAfter(resp, []byte(tt.body))
			if got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestPostJSON_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(t *testing.T, err error)
	}{
		{
			name:   "2xx is success",
			status: http.StatusNoContent,
			check: func(t *testing.T, err error) {
				if err != nil {
					t.Errorf("expected nil, got %v", err)
				}
			},
		},
		{
			name:   "429 is RateLimitError",
			status: http.StatusTooManyRequests,
			check: func(t *testing.T, err error) {
				var rl *RateLimitError
				if !errors.As(err, &rl) {
					t.Fatalf("expected RateLimitError, got %T", err)
				}
			},
		},
		{
			name:   "4xx is ClientError",
			status: http.StatusNotFound,
			check: func(t *testing.T, err error) {
				var ce *ClientError
				if !errors.As(err, &ce) || ce.StatusCode != http.StatusNotFound {
					t.Fatalf("expected ClientError 404, got %v", err)
				}
			},
		},
		{
			name:   "5xx is ServerError",
			status: http.StatusBadGateway,
			check: func(t *testing.T, err error) {
				var se *ServerError
				if !errors.As(err, &se) || se.StatusCode != http.StatusBadGateway {
					t.Fatalf("expected ServerError 502, got %v", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if ct := r.Header.Get("Content-Type"); ct != "application/json" {
					t.Errorf("expected application/json, got %q", ct)
				}
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			err := postJSON(context.Background(), server.Client(), server.URL, "Test", map[string]string{"a": "b"})
			tt.check(t, err)
		})
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "server error", err: &ServerError{StatusCode: 500}, expected: true},
		{name: "client error", err: &ClientError{StatusCode: 400}, expected: false},
		{name: "rate limit handled separately", err: &RateLimitError{}, expected: false},
		{name: "network error", err: errors.New("connection reset by peer"), expected: true},
		{name: "canceled", err: context.Canceled, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryableError(tt.err); got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestDeliver(t *testing.T) {
	fastPolicy := deliveryPolicy{maxAttempts: 3, baseDelay: time.Millisecond, maxRateLimitWait: 20 * time.Millisecond}

	t.Run("retries server errors then succeeds", func(t *testing.T) {
		var calls int32
		err := deliver(context.Background(), "Test", NewRateLimiter(100, 10), fastPolicy, func(context.Context) error {
			if atomic.AddInt32(&calls, 1) < 3 {
				return &ServerError{StatusCode: 503, Message: "unavailable"}
			}
			return nil
		})
		if err != nil {
			t.Fatalf("expected nil, got %v", err)
		}
		if calls != 3 {
			t.Errorf("expected 3 calls, got %d", calls)
		}
	})

	t.Run("client errors are not retried", func(t *testing.T) {
		var calls int32
		err := deliver(context.Background(), "Test", NewRateLimiter(100, 10), fastPolicy, func(context.Context) error {
			atomic.AddInt32(&calls, 1)
			return &ClientError{StatusCode: 401, Message: "bad token"}
		})
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if calls != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
	})

	t.Run("rate limit wait is capped", func(t *testing.T) {
		var calls int32
		start := time.Now()
		err := deliver(context.Background(), "Test", NewRateLimiter(100, 10), fastPolicy, func(context.Context) error {
			if atomic.AddInt32(&calls, 1) == 1 {
				return &RateLimitError{RetryAfter: time.Hour}
			}
			return nil
		})
		if err != nil {
			t.Fatalf("expected nil, got %v", err)
		}
		if elapsed := time.Since(start); elapsed > time.Second {
			t.Errorf("expected capped wait, took %v", elapsed)
		}
	})

	t.Run("exhaustion wraps last error", func(t *testing.T) {
		err := deliver(context.Background(), "Test", NewRateLimiter(100, 10), fastPolicy, func(context.Context) error {
			return &ServerError{StatusCode: 500, Message: "boom"}
		})
		if err == nil || !strings.Contains(err.Error(), "failed after 3 attempts") {
			t.Fatalf("expected exhaustion error, got %v", err)
		}
		var se *ServerError
		if !errors.As(err, &se) {
			t.Errorf("expected wrapped ServerError, got %T", err)
		}
	})

	t.Run("canceled context stops backoff", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		policy := deliveryPolicy{maxAttempts: 3, baseDelay: time.Hour}
		err := deliver(ctx, "Test", NewRateLimiter(100, 10), policy, func(context.Context) error {
			cancel()
			return &ServerError{StatusCode: 500, Message: "boom"}
		})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	})
}

func TestRateLimiter_Allow(t *testing.T) {
	t.Run("allows within burst", func(t *testing.T) {
		limiter := NewRateLimiter(10.0, 5)
		for i := 0; i < 5; i++ {
			if err := limiter.Allow(context.Background()); err != nil {
				t.Fatalf("request %d: expected no error, got %v", i, err)
			}
		}
	})

	t.Run("blocks past burst until context ends", func(t *testing.T) {
		limiter := NewRateLimiter(0.1, 1)
		if err := limiter.Allow(context.Background()); err != nil {
			t.Fatalf("first request should succeed: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		if err := limiter.Allow(ctx); err == nil {
			t.Error("expected error for exhausted bucket, got nil")
		}
	})
}

func TestNoOpNotifier(t *testing.T) {
	var n Notifier = NewNoOpNotifier()
	if err := n.Notify(context.Background(), "anything"); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}
