// Package fetcher extracts readable article text from web pages. The scout
// stage uses it to enrich feed items whose own content is too short.
package fetcher

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-shiori/go-readability"

	"content-pipeline/internal/resilience/circuitbreaker"
	"content-pipeline/internal/usecase/pipeline"
)

const userAgent = "ContentPipelineBot/1.0"

// Option configures a ReadabilityFetcher.
type Option func(*ReadabilityFetcher)

// WithBreaker overrides the in-process breaker.
func WithBreaker(b *circuitbreaker.Breaker) Option {
	return func(f *ReadabilityFetcher) { f.breaker = b }
}

// ReadabilityFetcher implements pipeline.ContentFetcher with go-readability.
// Every URL, including each redirect target, is checked before it is
// requested. It is safe for concurrent use.
type ReadabilityFetcher struct {
	client  *http.Client
	breaker *circuitbreaker.Breaker
	config  ContentFetchConfig
}

var _ pipeline.ContentFetcher = (*ReadabilityFetcher)(nil)

// NewReadabilityFetcher creates a fetcher for cfg.
func NewReadabilityFetcher(cfg ContentFetchConfig, opts ...Option) *ReadabilityFetcher {
	bc := circuitbreaker.DefaultBreakerConfig("content-fetch")
	bc.MaxRequests = 5
	bc.Interval = 60 * time.Second

	f := &ReadabilityFetcher{
		breaker: circuitbreaker.New(bc),
		config:  cfg,
	}
	f.client = &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= f.config.MaxRedirects {
				return fmt.Errorf("%w: %d redirects", ErrTooManyRedirects, len(via))
			}
			if err := validateURL(req.URL.String(), f.config.DenyPrivateIPs); err != nil {
				return fmt.Errorf("redirect target validation failed: %w", err)
			}
			return nil
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchContent returns the article text at urlStr.
func (f *ReadabilityFetcher) FetchContent(ctx context.Context, urlStr string) (string, error) {
	if err := validateURL(urlStr, f.config.DenyPrivateIPs); err != nil {
		return "", err
	}
	res, err := f.breaker.Execute(func() (interface{}, error) {
		return f.doFetch(ctx, urlStr)
	})
	if err != nil {
		return "", err
	}
	return res.(string), nil
}

func (f *ReadabilityFetcher) doFetch(ctx context.Context, urlStr string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, urlStr, nil)
	if err != nil {
		return "", fmt.Errorf("%w: failed to create request: %v", ErrInvalidURL, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return "", fmt.Errorf("%w: request exceeded %v", ErrTimeout, f.config.Timeout)
		}
		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Err != nil {
			return "", urlErr.Err
		}
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBodySize+1))
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > f.config.MaxBodySize {
		return "", fmt.Errorf("%w: response exceeds %d bytes", ErrBodyTooLarge, f.config.MaxBodySize)
	}

	pageURL := resp.Request.URL
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrReadabilityFailed, err)
	}
	if article.TextContent != "" {
		return article.TextContent, nil
	}
	if article.Content == "" {
		return "", fmt.Errorf("%w: no readable content found", ErrReadabilityFailed)
	}
	slog.DebugContext(ctx, "using article HTML instead of text",
		slog.String("url", urlStr),
		slog.Int("content_length", len(article.Content)))
	return article.Content, nil
}
