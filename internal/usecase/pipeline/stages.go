package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"content-pipeline/internal/resilience/retry"
)

// FeedItem is one entry read from an RSS/Atom feed.
type FeedItem struct {
	Feed        string    `json:"feed"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Content     string    `json:"content"`
	PublishedAt time.Time `json:"published_at"`
}

// FeedFetcher reads a feed.
type FeedFetcher interface {
	Fetch(ctx context.Context, feedURL string) ([]FeedItem, error)
}

// ContentFetcher extracts the readable text of an article page.
type ContentFetcher interface {
	FetchContent(ctx context.Context, url string) (string, error)
}

// Summarizer condenses article text.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// DigestEntry is one summarised item.
type DigestEntry struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Summary string `json:"summary"`
}

// Digest is the output of the generate stage.
type Digest struct {
	Date    string        `json:"date"`
	Entries []DigestEntry `json:"entries"`
}

/* ───────── scout ───────── */

// ScoutConfig controls the scout stage.
type ScoutConfig struct {
	Feeds []string

	// Parallelism bounds concurrent feed fetches. Values <= 0 mean 5.
	Parallelism int

	// MaxItems caps the items handed downstream, newest first. 0 means no cap.
	MaxItems int

	// EnrichBelow triggers full-text extraction for items whose feed content
	// is shorter than this many bytes. 0 disables enrichment.
	EnrichBelow int
}

// ScoutAction reads every feed and returns the merged items ([]FeedItem).
// Individual feeds may fail; the stage fails only when all of them do.
func ScoutAction(feeds FeedFetcher, content ContentFetcher, cfg ScoutConfig) retry.Action {
	parallelism := cfg.Parallelism
	if parallelism <= 0 {
		parallelism = 5
	}

	return func(ctx context.Context) (any, error) {
		if len(cfg.Feeds) == 0 {
			return []FeedItem{}, nil
		}

		var (
			mu    sync.Mutex
			items []FeedItem
			errs  []error
		)
		eg, egCtx := errgroup.WithContext(ctx)
		eg.SetLimit(parallelism)
		for _, feedURL := range cfg.Feeds {
			eg.Go(func() error {
				got, err := feeds.Fetch(egCtx, feedURL)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					slog.WarnContext(ctx, "feed fetch failed",
						slog.String("feed", feedURL),
						slog.Any("error", err))
					errs = append(errs, fmt.Errorf("%s: %w", feedURL, err))
					return nil
				}
				for i := range got {
					got[i].Feed = feedURL
				}
				items = append(items, got...)
				return nil
			})
		}
		_ = eg.Wait()

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(errs) == len(cfg.Feeds) {
			return nil, fmt.Errorf("%w: %w", ErrAllFeedsFailed, errors.Join(errs...))
		}

		items = dedupe(items)
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].PublishedAt.After(items[j].PublishedAt)
		})
		if cfg.MaxItems > 0 && len(items) > cfg.MaxItems {
			items = items[:cfg.MaxItems]
		}

		if content != nil && cfg.EnrichBelow > 0 {
			enrich(ctx, content, items, cfg.EnrichBelow, parallelism)
		}

		slog.InfoContext(ctx, "scout finished",
			slog.Int("feeds", len(cfg.Feeds)),
			slog.Int("failed_feeds", len(errs)),
			slog.Int("items", len(items)))
		return items, nil
	}
}

func dedupe(items []FeedItem) []FeedItem {
	seen := make(map[string]bool, len(items))
	out := items[:0]
	for _, it := range items {
		key := it.URL
		if key == "" {
			key = it.Feed + "\x00" + it.Title
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, it)
	}
	return out
}

// enrich replaces short feed content with the article text. Failures keep
// the feed content.
func enrich(ctx context.Context, content ContentFetcher, items []FeedItem, below, parallelism int) {
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(parallelism)
	for i := range items {
		if len(items[i].Content) >= below || items[i].URL == "" {
			continue
		}
		eg.Go(func() error {
			text, err := content.FetchContent(egCtx, items[i].URL)
			if err != nil {
				slog.DebugContext(ctx, "content enrichment failed, keeping feed content",
					slog.String("url", items[i].URL),
					slog.Any("error", err))
				return nil
			}
			if len(text) > len(items[i].Content) {
				items[i].Content = text
			}
			return nil
		})
	}
	_ = eg.Wait()
}

/* ───────── generate ───────── */

// GenerateConfig controls the generate stage.
type GenerateConfig struct {
	// Source is the stage whose []FeedItem output is summarised. Default "scout".
	Source string

	// MaxItems caps the number of summaries. 0 means no cap.
	MaxItems int
}

// GenerateAction summarises the items scouted earlier in the run and returns
// a Digest. Items whose summary fails are left out; the stage fails when
// every summary fails, returning the first error so it can be classified.
func GenerateAction(s Summarizer, cfg GenerateConfig) retry.Action {
	source := cfg.Source
	if source == "" {
		source = "scout"
	}

	return func(ctx context.Context) (any, error) {
		out, ok := OutputOf(ctx, source)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNoInput, source)
		}
		items, ok := out.([]FeedItem)
		if !ok {
			return nil, fmt.Errorf("%w: %s produced %T", ErrNoInput, source, out)
		}
		if cfg.MaxItems > 0 && len(items) > cfg.MaxItems {
			items = items[:cfg.MaxItems]
		}

		digest := Digest{Date: RunDate(ctx), Entries: make([]DigestEntry, 0, len(items))}
		var firstErr error
		for _, it := range items {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			text := it.Content
			if text == "" {
				text = it.Title
			}
			summary, err := s.Summarize(ctx, text)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				slog.WarnContext(ctx, "summarize failed",
					slog.String("url", it.URL),
					slog.Any("error", err))
				continue
			}
			digest.Entries = append(digest.Entries, DigestEntry{Title: it.Title, URL: it.URL, Summary: summary})
		}

		if len(items) > 0 && len(digest.Entries) == 0 {
			return nil, fmt.Errorf("summarize %d items: %w", len(items), firstErr)
		}
		return digest, nil
	}
}

/* ───────── retention ───────── */

// Cleaner removes completed dead letter jobs.
type Cleaner interface {
	Cleanup(ctx context.Context, retentionDays int) (int, error)
}

// RetentionAction prunes completed dead letter jobs older than days and
// returns how many were removed.
func RetentionAction(c Cleaner, days int) retry.Action {
	return func(ctx context.Context) (any, error) {
		return c.Cleanup(ctx, days)
	}
}
