// Package scraper fetches RSS/Atom feeds for the scout stage.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/sony/gobreaker"

	"content-pipeline/internal/resilience/circuitbreaker"
	"content-pipeline/internal/resilience/retry"
	"content-pipeline/internal/usecase/pipeline"
)

const userAgent = "ContentPipelineBot/1.0"

// Option configures an RSSFetcher.
type Option func(*RSSFetcher)

// WithRetryConfig overrides the per-request transport retry.
func WithRetryConfig(cfg retry.Config) Option {
	return func(f *RSSFetcher) { f.retryConfig = cfg }
}

// WithBreaker overrides the in-process breaker shared by all feeds.
func WithBreaker(b *circuitbreaker.Breaker) Option {
	return func(f *RSSFetcher) { f.breaker = b }
}

// WithClock sets the time used for items without a publication date.
func WithClock(now func() time.Time) Option {
	return func(f *RSSFetcher) { f.now = now }
}

// RSSFetcher implements pipeline.FeedFetcher with gofeed.
//
// Only transport failures are retried here, a couple of times with short
// delays. Stage-level retries and the persistent feed_api circuit are owned
// by the retry executor that runs the scout stage.
type RSSFetcher struct {
	client      *http.Client
	breaker     *circuitbreaker.Breaker
	retryConfig retry.Config
	now         func() time.Time
}

var _ pipeline.FeedFetcher = (*RSSFetcher)(nil)

// NewRSSFetcher creates an RSSFetcher using client.
func NewRSSFetcher(client *http.Client, opts ...Option) *RSSFetcher {
	f := &RSSFetcher{
		client:  client,
		breaker: circuitbreaker.New(circuitbreaker.DefaultBreakerConfig("feed-fetch")),
		retryConfig: retry.Config{
			MaxAttempts:  2,
			InitialDelay: 2 * time.Second,
			MaxDelay:     10 * time.Second,
			Multiplier:   2.0,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch retrieves and parses the feed at feedURL.
func (f *RSSFetcher) Fetch(ctx context.Context, feedURL string) ([]pipeline.FeedItem, error) {
	var items []pipeline.FeedItem

	err := retry.WithBackoff(ctx, f.retryConfig, func() error {
		res, err := f.breaker.Execute(func() (interface{}, error) {
			return f.doFetch(ctx, feedURL)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) {
				slog.Warn("feed fetch breaker open, request rejected",
					slog.String("url", feedURL),
					slog.String("state", f.breaker.State().String()))
			}
			return err
		}
		items = res.([]pipeline.FeedItem)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", feedURL, err)
	}
	return items, nil
}

func (f *RSSFetcher) doFetch(ctx context.Context, feedURL string) ([]pipeline.FeedItem, error) {
	fp := gofeed.NewParser()
	fp.UserAgent = userAgent
	fp.Client = f.client

	feed, err := fp.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		var httpErr gofeed.HTTPError
		if errors.As(err, &httpErr) {
			return nil, &retry.HTTPError{StatusCode: httpErr.StatusCode, Message: httpErr.Status}
		}
		return nil, err
	}

	items := make([]pipeline.FeedItem, 0, len(feed.Items))
	for _, it := range feed.Items {
		published := f.now()
		switch {
		case it.PublishedParsed != nil:
			published = *it.PublishedParsed
		case it.UpdatedParsed != nil:
			published = *it.UpdatedParsed
		}

		content := it.Content
		if content == "" {
			content = it.Description
		}

		items = append(items, pipeline.FeedItem{
			Title:       it.Title,
			URL:         it.Link,
			Content:     content,
			PublishedAt: published.UTC(),
		})
	}
	return items, nil
}
