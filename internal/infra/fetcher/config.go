package fetcher

import (
	"fmt"
	"log/slog"
	"time"

	"content-pipeline/internal/pkg/config"
)

// ContentFetchConfig controls full-text extraction for short feed items.
type ContentFetchConfig struct {
	// Enabled turns enrichment on. When false the scout stage keeps feed content.
	Enabled bool

	// Threshold is the feed content length (bytes) below which the article
	// page is fetched.
	Threshold int

	// Timeout bounds one HTTP request.
	Timeout time.Duration

	MaxBodySize  int64
	MaxRedirects int

	// DenyPrivateIPs rejects URLs (and redirect targets) that resolve to
	// loopback, private or link-local addresses.
	DenyPrivateIPs bool
}

// DefaultConfig returns the production defaults.
func DefaultConfig() ContentFetchConfig {
	return ContentFetchConfig{
		Enabled:        true,
		Threshold:      1500,
		Timeout:        10 * time.Second,
		MaxBodySize:    10 * 1024 * 1024,
		MaxRedirects:   5,
		DenyPrivateIPs: true,
	}
}

// Validate checks ranges.
func (c ContentFetchConfig) Validate() error {
	if c.Threshold < 0 {
		return fmt.Errorf("threshold must be non-negative, got %d", c.Threshold)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}
	const minBody, maxBody = int64(1024), int64(100 * 1024 * 1024)
	if c.MaxBodySize < minBody || c.MaxBodySize > maxBody {
		return fmt.Errorf("max body size must be between %d and %d bytes, got %d", minBody, maxBody, c.MaxBodySize)
	}
	if c.MaxRedirects < 0 || c.MaxRedirects > 10 {
		return fmt.Errorf("max redirects must be between 0 and 10, got %d", c.MaxRedirects)
	}
	return nil
}

// LoadConfigFromEnv reads CONTENT_FETCH_* variables. Invalid values fall back
// to their defaults with a warning; an invalid combination falls back to
// DefaultConfig as a whole.
func LoadConfigFromEnv(logger *slog.Logger) ContentFetchConfig {
	def := DefaultConfig()
	cfg := def
	var warnings []string

	load := func(r config.ConfigLoadResult) interface{} {
		warnings = append(warnings, r.Warnings...)
		return r.Value
	}
	cfg.Enabled = load(config.LoadEnvBool("CONTENT_FETCH_ENABLED", def.Enabled)).(bool)
	cfg.Threshold = load(config.LoadEnvInt("CONTENT_FETCH_THRESHOLD", def.Threshold, nil)).(int)
	cfg.Timeout = load(config.LoadEnvDuration("CONTENT_FETCH_TIMEOUT", def.Timeout, config.ValidatePositiveDuration)).(time.Duration)
	cfg.MaxBodySize = int64(load(config.LoadEnvInt("CONTENT_FETCH_MAX_BODY_SIZE", int(def.MaxBodySize), nil)).(int))
	cfg.MaxRedirects = load(config.LoadEnvInt("CONTENT_FETCH_MAX_REDIRECTS", def.MaxRedirects, nil)).(int)
	cfg.DenyPrivateIPs = load(config.LoadEnvBool("CONTENT_FETCH_DENY_PRIVATE_IPS", def.DenyPrivateIPs)).(bool)

	for _, w := range warnings {
		logger.Warn("content fetch configuration", slog.String("warning", w))
	}
	if err := cfg.Validate(); err != nil {
		logger.Warn("content fetch configuration invalid, using defaults", slog.Any("error", err))
		return def
	}
	return cfg
}
