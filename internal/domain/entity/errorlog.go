package entity

import (
	"time"
)

// ErrorKind tags a failure so callers can pick a backoff policy and severity.
type ErrorKind string

const (
	KindRateLimit ErrorKind = "rate_limit"
	KindTimeout   ErrorKind = "timeout"
	KindAuth      ErrorKind = "auth"
	KindUnknown   ErrorKind = "unknown"
)

// Severity ranks error log entries for health computation.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return true
	}
	return false
}

// ErrorLogEntry is an immutable diagnostic record of one failure.
type ErrorLogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Module    string         `json:"module"`
	Operation string         `json:"operation"`
	Error     string         `json:"error"`
	Kind      ErrorKind      `json:"kind"`
	Severity  Severity       `json:"severity"`
	Details   map[string]any `json:"details,omitempty"`
}

// Day returns the UTC calendar day the entry belongs to.
func (e ErrorLogEntry) Day() time.Time {
	return DayOf(e.Timestamp)
}

// DayOf truncates t to midnight UTC.
func DayOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// DayKey formats a day as YYYY-MM-DD.
func DayKey(t time.Time) string {
	return DayOf(t).Format("2006-01-02")
}
