package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadEnvString(t *testing.T) {
	t.Setenv("TEST_STRING", "")
	assert.Equal(t, "default", LoadEnvString("TEST_STRING", "default"))

	t.Setenv("TEST_STRING", "custom")
	assert.Equal(t, "custom", LoadEnvString("TEST_STRING", "default"))
}

func TestLoadEnvWithFallback(t *testing.T) {
	tests := []struct {
		name         string
		value        string
		want         string
		wantFallback bool
	}{
		{name: "unset uses default silently", value: "", want: "0 6 * * *"},
		{name: "valid value", value: "*/15 * * * *", want: "*/15 * * * *"},
		{name: "invalid value falls back", value: "every day", want: "0 6 * * *", wantFallback: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_CRON", tt.value)

			result := LoadEnvWithFallback("TEST_CRON", "0 6 * * *", ValidateCronSchedule)

			assert.Equal(t, tt.want, result.Value)
			assert.Equal(t, tt.wantFallback, result.FallbackApplied)
			if tt.wantFallback {
				assert.Len(t, result.Warnings, 1)
				assert.Contains(t, result.Warnings[0], "TEST_CRON='every day'")
				assert.Contains(t, result.Warnings[0], "falling back to default '0 6 * * *'")
			} else {
				assert.Empty(t, result.Warnings)
			}
		})
	}
}

func TestLoadEnvWithFallback_NilValidator(t *testing.T) {
	t.Setenv("TEST_ANY", "anything goes")
	result := LoadEnvWithFallback("TEST_ANY", "x", nil)
	assert.Equal(t, "anything goes", result.Value)
	assert.False(t, result.FallbackApplied)
}

func TestLoadEnvDuration(t *testing.T) {
	validator := func(d time.Duration) error { return ValidateDuration(d, time.Minute, 4*time.Hour) }

	tests := []struct {
		name         string
		value        string
		want         time.Duration
		wantFallback bool
	}{
		{name: "unset", value: "", want: 10 * time.Minute},
		{name: "valid", value: "30m", want: 30 * time.Minute},
		{name: "unparseable", value: "soon", want: 10 * time.Minute, wantFallback: true},
		{name: "out of range", value: "5h", want: 10 * time.Minute, wantFallback: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_TIMEOUT", tt.value)

			result := LoadEnvDuration("TEST_TIMEOUT", 10*time.Minute, validator)

			assert.Equal(t, tt.want, result.Value)
			assert.Equal(t, tt.wantFallback, result.FallbackApplied)
		})
	}
}

func TestLoadEnvInt(t *testing.T) {
	validator := func(v int) error { return ValidateIntRange(v, 0, 1000) }

	tests := []struct {
		name         string
		value        string
		want         int
		wantFallback bool
		wantWarning  string
	}{
		{name: "unset", value: "", want: 10},
		{name: "valid", value: "250", want: 250},
		{name: "zero is allowed", value: "0", want: 0},
		{name: "not a number", value: "ten", want: 10, wantFallback: true, wantWarning: "invalid integer format"},
		{name: "trailing garbage", value: "12abc", want: 10, wantFallback: true, wantWarning: "invalid integer format"},
		{name: "exceeds max", value: "5000", want: 10, wantFallback: true, wantWarning: "exceeds maximum 1000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_LIMIT", tt.value)

			result := LoadEnvInt("TEST_LIMIT", 10, validator)

			assert.Equal(t, tt.want, result.Value)
			assert.Equal(t, tt.wantFallback, result.FallbackApplied)
			if tt.wantWarning != "" {
				assert.Contains(t, result.Warnings[0], tt.wantWarning)
			}
		})
	}
}

func TestLoadEnvBool(t *testing.T) {
	tests := []struct {
		value        string
		want         bool
		wantFallback bool
	}{
		{value: "", want: true},
		{value: "false", want: false},
		{value: "0", want: false},
		{value: "TRUE", want: true},
		{value: "yes", want: true, wantFallback: true},
	}

	for _, tt := range tests {
		t.Run("value="+tt.value, func(t *testing.T) {
			t.Setenv("TEST_BOOL", tt.value)

			result := LoadEnvBool("TEST_BOOL", true)

			assert.Equal(t, tt.want, result.Value)
			assert.Equal(t, tt.wantFallback, result.FallbackApplied)
		})
	}
}
