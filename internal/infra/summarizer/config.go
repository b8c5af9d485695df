package summarizer

import (
	"fmt"
	"log/slog"
	"time"

	"content-pipeline/internal/pkg/config"
)

const (
	minCharLimit     = 100
	maxCharLimit     = 5000
	defaultCharLimit = 900
)

// Config holds the settings shared by every provider.
type Config struct {
	// CharacterLimit is the requested summary length in runes (100-5000).
	CharacterLimit int

	// Language is the language summaries are written in.
	Language string

	Model     string
	MaxTokens int

	// Timeout bounds one API call.
	Timeout time.Duration

	// BaseURL overrides the provider endpoint. Empty means the SDK default.
	BaseURL string
}

// ValidateCharacterLimit checks that limit is within 100-5000.
func ValidateCharacterLimit(limit int) error {
	if limit < minCharLimit {
		return fmt.Errorf("character limit %d is below minimum %d", limit, minCharLimit)
	}
	if limit > maxCharLimit {
		return fmt.Errorf("character limit %d exceeds maximum %d", limit, maxCharLimit)
	}
	return nil
}

// Validate checks every field.
func (c Config) Validate() error {
	if err := ValidateCharacterLimit(c.CharacterLimit); err != nil {
		return fmt.Errorf("invalid character limit: %w", err)
	}
	if c.Language == "" {
		return fmt.Errorf("language cannot be empty")
	}
	if c.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", c.MaxTokens)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}
	return nil
}

// LoadConfig reads SUMMARIZER_* variables on top of the defaults for
// defaultModel. Invalid values fall back to their defaults with a warning.
//
// Environment variables:
//   - SUMMARIZER_CHAR_LIMIT: default 900, range 100-5000
//   - SUMMARIZER_LANGUAGE: default "English"
//   - SUMMARIZER_MODEL: default defaultModel
//   - SUMMARIZER_MAX_TOKENS: default 1024
//   - SUMMARIZER_TIMEOUT: default 60s
//   - SUMMARIZER_BASE_URL: default empty
func LoadConfig(logger *slog.Logger, defaultModel string) Config {
	var warnings []string
	load := func(r config.ConfigLoadResult) interface{} {
		warnings = append(warnings, r.Warnings...)
		return r.Value
	}

	cfg := Config{
		CharacterLimit: load(config.LoadEnvInt("SUMMARIZER_CHAR_LIMIT", defaultCharLimit, ValidateCharacterLimit)).(int),
		Language:       config.LoadEnvString("SUMMARIZER_LANGUAGE", "English"),
		Model:          config.LoadEnvString("SUMMARIZER_MODEL", defaultModel),
		MaxTokens: load(config.LoadEnvInt("SUMMARIZER_MAX_TOKENS", 1024, func(n int) error {
			return config.ValidateIntRange(n, 1, 64000)
		})).(int),
		Timeout: load(config.LoadEnvDuration("SUMMARIZER_TIMEOUT", 60*time.Second, config.ValidatePositiveDuration)).(time.Duration),
		BaseURL: config.LoadEnvString("SUMMARIZER_BASE_URL", ""),
	}

	for _, w := range warnings {
		logger.Warn("summarizer configuration", slog.String("warning", w))
	}
	return cfg
}
