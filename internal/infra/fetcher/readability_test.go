package fetcher_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"content-pipeline/internal/infra/fetcher"
	"content-pipeline/internal/resilience/circuitbreaker"
)

const articleHTML = `<!DOCTYPE html>
<html>
<head><title>Test Article</title></head>
<body>
	<article>
		<h1>Test Article Title</h1>
		<p>This is the first paragraph of the article content, long enough to be kept.</p>
		<p>This is the second paragraph with more important information for readers.</p>
		<p>This is the third paragraph to ensure we have enough content to extract.</p>
	</article>
</body>
</html>`

func localConfig() fetcher.ContentFetchConfig {
	cfg := fetcher.DefaultConfig()
	cfg.DenyPrivateIPs = false
	return cfg
}

func serveHTML(html string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(html))
	}
}

func TestFetchContent_Success(t *testing.T) {
	var ua string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.UserAgent()
		serveHTML(articleHTML)(w, r)
	}))
	defer server.Close()

	content, err := fetcher.NewReadabilityFetcher(localConfig()).FetchContent(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Contains(t, content, "first paragraph")
	assert.NotContains(t, content, "<p>")
	assert.Equal(t, "ContentPipelineBot/1.0", ua)
}

func TestFetchContent_RejectedURLs(t *testing.T) {
	f := fetcher.NewReadabilityFetcher(fetcher.DefaultConfig())

	tests := []struct {
		name string
		url  string
		want error
	}{
		{name: "ftp scheme", url: "ftp://example.com/file", want: fetcher.ErrInvalidURL},
		{name: "file scheme", url: "file:///etc/passwd", want: fetcher.ErrInvalidURL},
		{name: "no host", url: "http:///path", want: fetcher.ErrInvalidURL},
		{name: "malformed", url: "http://[::1", want: fetcher.ErrInvalidURL},
		{name: "loopback", url: "http://127.0.0.1/admin", want: fetcher.ErrPrivateIP},
		{name: "private 10", url: "http://10.0.0.1/", want: fetcher.ErrPrivateIP},
		{name: "private 192", url: "http://192.168.1.1/", want: fetcher.ErrPrivateIP},
		{name: "private 172", url: "http://172.16.0.1/", want: fetcher.ErrPrivateIP},
		{name: "ipv6 loopback", url: "http://[::1]/", want: fetcher.ErrPrivateIP},
		{name: "metadata service", url: "http://169.254.169.254/latest/meta-data/", want: fetcher.ErrPrivateIP},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.FetchContent(context.Background(), tt.url)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestFetchContent_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := fetcher.NewReadabilityFetcher(localConfig()).FetchContent(context.Background(), server.URL)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 503")
}

func TestFetchContent_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	cfg := localConfig()
	cfg.Timeout = 50 * time.Millisecond

	_, err := fetcher.NewReadabilityFetcher(cfg).FetchContent(context.Background(), server.URL)

	assert.ErrorIs(t, err, fetcher.ErrTimeout)
}

func TestFetchContent_BodyTooLarge(t *testing.T) {
	server := httptest.NewServer(serveHTML("<html><body><p>" + strings.Repeat("a", 4096) + "</p></body></html>"))
	defer server.Close()

	cfg := localConfig()
	cfg.MaxBodySize = 1024

	_, err := fetcher.NewReadabilityFetcher(cfg).FetchContent(context.Background(), server.URL)

	assert.ErrorIs(t, err, fetcher.ErrBodyTooLarge)
}

func TestFetchContent_Redirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("/final", serveHTML(articleHTML))
	mux.HandleFunc("/hop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusFound)
	})
	mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	f := fetcher.NewReadabilityFetcher(localConfig())

	content, err := f.FetchContent(context.Background(), server.URL+"/hop")
	require.NoError(t, err)
	assert.Contains(t, content, "second paragraph")

	_, err = f.FetchContent(context.Background(), server.URL+"/loop")
	assert.ErrorIs(t, err, fetcher.ErrTooManyRedirects)
}

func TestFetchContent_BreakerOpens(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	bc := circuitbreaker.DefaultBreakerConfig("content-fetch-test")
	bc.MinRequests = 3
	breaker := circuitbreaker.New(bc)
	f := fetcher.NewReadabilityFetcher(localConfig(), fetcher.WithBreaker(breaker))

	for i := 0; i < 3; i++ {
		_, err := f.FetchContent(context.Background(), server.URL)
		require.Error(t, err)
	}
	require.True(t, breaker.IsOpen())

	_, err := f.FetchContent(context.Background(), server.URL)
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
	assert.Equal(t, int32(3), calls.Load())
}
