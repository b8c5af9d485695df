package fetcher_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"content-pipeline/internal/infra/fetcher"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestDefaultConfig(t *testing.T) {
	cfg := fetcher.DefaultConfig()

	assert.True(t, cfg.Enabled)
	assert.Equal(t, 1500, cfg.Threshold)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, int64(10*1024*1024), cfg.MaxBodySize)
	assert.Equal(t, 5, cfg.MaxRedirects)
	assert.True(t, cfg.DenyPrivateIPs)
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*fetcher.ContentFetchConfig)
		wantErr string
	}{
		{name: "zero threshold is valid", mutate: func(c *fetcher.ContentFetchConfig) { c.Threshold = 0 }},
		{name: "negative threshold", mutate: func(c *fetcher.ContentFetchConfig) { c.Threshold = -1 }, wantErr: "threshold"},
		{name: "zero timeout", mutate: func(c *fetcher.ContentFetchConfig) { c.Timeout = 0 }, wantErr: "timeout"},
		{name: "tiny body", mutate: func(c *fetcher.ContentFetchConfig) { c.MaxBodySize = 512 }, wantErr: "max body size"},
		{name: "huge body", mutate: func(c *fetcher.ContentFetchConfig) { c.MaxBodySize = 200 * 1024 * 1024 }, wantErr: "max body size"},
		{name: "too many redirects", mutate: func(c *fetcher.ContentFetchConfig) { c.MaxRedirects = 11 }, wantErr: "max redirects"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := fetcher.DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("CONTENT_FETCH_ENABLED", "false")
	t.Setenv("CONTENT_FETCH_THRESHOLD", "800")
	t.Setenv("CONTENT_FETCH_TIMEOUT", "3s")
	t.Setenv("CONTENT_FETCH_MAX_REDIRECTS", "not-a-number")

	cfg := fetcher.LoadConfigFromEnv(discard())

	assert.False(t, cfg.Enabled)
	assert.Equal(t, 800, cfg.Threshold)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
	assert.Equal(t, 5, cfg.MaxRedirects, "invalid value falls back to the default")
}

func TestLoadConfigFromEnv_InvalidCombinationUsesDefaults(t *testing.T) {
	t.Setenv("CONTENT_FETCH_THRESHOLD", "100")
	t.Setenv("CONTENT_FETCH_MAX_BODY_SIZE", "10")

	cfg := fetcher.LoadConfigFromEnv(discard())

	assert.Equal(t, fetcher.DefaultConfig(), cfg)
}
