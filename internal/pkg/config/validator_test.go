package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateCronSchedule(t *testing.T) {
	valid := []string{"0 6 * * *", "*/15 * * * *", "30 9 * * 1-5", "0 0 1 * *"}
	for _, s := range valid {
		assert.NoError(t, ValidateCronSchedule(s), s)
	}

	invalid := []string{"", "* * * *", "60 * * * *", "0 6 * * * *", "@daily-ish"}
	for _, s := range invalid {
		assert.Error(t, ValidateCronSchedule(s), s)
	}
}

func TestValidateTimezone(t *testing.T) {
	assert.NoError(t, ValidateTimezone("UTC"))
	assert.NoError(t, ValidateTimezone("Asia/Tokyo"))

	assert.EqualError(t, ValidateTimezone(""), "invalid timezone: cannot be empty")
	assert.ErrorContains(t, ValidateTimezone("Mars/Olympus"), "invalid timezone 'Mars/Olympus'")
}

func TestValidateDuration(t *testing.T) {
	tests := []struct {
		name    string
		d       time.Duration
		lo, hi  time.Duration
		wantErr string
	}{
		{name: "inside", d: time.Hour, lo: time.Minute, hi: 4 * time.Hour},
		{name: "inclusive min", d: time.Minute, lo: time.Minute, hi: time.Hour},
		{name: "inclusive max", d: time.Hour, lo: time.Minute, hi: time.Hour},
		{name: "below", d: time.Second, lo: time.Minute, hi: time.Hour, wantErr: "below minimum"},
		{name: "above", d: 2 * time.Hour, lo: time.Minute, hi: time.Hour, wantErr: "exceeds maximum"},
		{name: "inverted range", d: time.Minute, lo: time.Hour, hi: time.Minute, wantErr: "invalid range"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDuration(tt.d, tt.lo, tt.hi)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestValidateIntRange(t *testing.T) {
	assert.NoError(t, ValidateIntRange(0, 0, 1000))
	assert.NoError(t, ValidateIntRange(1000, 0, 1000))
	assert.ErrorContains(t, ValidateIntRange(-1, 0, 1000), "below minimum 0")
	assert.ErrorContains(t, ValidateIntRange(1001, 0, 1000), "exceeds maximum 1000")
	assert.ErrorContains(t, ValidateIntRange(5, 10, 1), "invalid range")
}

func TestValidatePositiveDuration(t *testing.T) {
	assert.NoError(t, ValidatePositiveDuration(time.Nanosecond))
	assert.EqualError(t, ValidatePositiveDuration(0), "duration must be positive, got 0s")
	assert.Error(t, ValidatePositiveDuration(-time.Second))
}

func TestValidateOneOf(t *testing.T) {
	validate := ValidateOneOf("memory", "postgres", "redis")

	assert.NoError(t, validate("postgres"))
	assert.EqualError(t, validate("sqlite"), "value 'sqlite' is not one of [memory, postgres, redis]")
	assert.Error(t, validate("Redis"), "matching is case sensitive")
}
