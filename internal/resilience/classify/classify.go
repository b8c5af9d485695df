// Package classify tags failures with an entity.ErrorKind by matching the
// error text against keyword sets. The kind only selects backoff policy and
// log severity; it never changes control flow.
package classify

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"content-pipeline/internal/domain/entity"
)

// Classifier assigns an ErrorKind to an error.
type Classifier interface {
	Classify(err error) entity.ErrorKind
}

// Rule maps sentinel errors and case-insensitive keywords to a kind.
// A keyword must start at a word boundary, and one ending in a digit must
// also end at one, so "eof" skips "thereof" and "429" skips "14290".
type Rule struct {
	Kind     entity.ErrorKind
	Keywords []string
	Errors   []error
}

// DefaultRules returns the built-in rules in match order.
// Rate limits are checked before auth so "429 ... forbidden quota" is treated
// as a rate limit, and auth before timeout so "401 ... timeout" is critical.
func DefaultRules() []Rule {
	return []Rule{
		{
			Kind: entity.KindRateLimit,
			Keywords: []string{
				"429", "rate limit", "rate_limit", "ratelimit", "too many requests",
				"quota", "resource exhausted", "overloaded",
			},
		},
		{
			Kind: entity.KindAuth,
			Keywords: []string{
				"401", "403", "unauthorized", "forbidden", "invalid api key",
				"authentication", "permission denied", "invalid token",
			},
		},
		{
			Kind: entity.KindTimeout,
			Keywords: []string{
				"timeout", "timed out", "deadline exceeded", "connection reset",
				"connection refused", "temporarily unavailable", "eof",
			},
			Errors: []error{context.DeadlineExceeded, os.ErrDeadlineExceeded, io.EOF, io.ErrUnexpectedEOF},
		},
	}
}

// KeywordClassifier matches rules in order; the first hit wins.
type KeywordClassifier struct {
	rules []Rule
}

// NewKeywordClassifier builds a classifier from rules.
// With no rules it uses DefaultRules.
func NewKeywordClassifier(rules ...Rule) *KeywordClassifier {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	normalized := make([]Rule, 0, len(rules))
	for _, r := range rules {
		kw := make([]string, 0, len(r.Keywords))
		for _, k := range r.Keywords {
			if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
				kw = append(kw, k)
			}
		}
		normalized = append(normalized, Rule{Kind: r.Kind, Keywords: kw, Errors: r.Errors})
	}
	return &KeywordClassifier{rules: normalized}
}

// Classify implements Classifier. A nil error is Unknown.
func (c *KeywordClassifier) Classify(err error) entity.ErrorKind {
	if err == nil {
		return entity.KindUnknown
	}
	msg := strings.ToLower(err.Error())
	for _, r := range c.rules {
		for _, target := range r.Errors {
			if errors.Is(err, target) {
				return r.Kind
			}
		}
		for _, k := range r.Keywords {
			if containsKeyword(msg, k) {
				return r.Kind
			}
		}
	}
	return entity.KindUnknown
}

func containsKeyword(msg, k string) bool {
	last := k[len(k)-1]
	needEnd := last >= '0' && last <= '9'
	for from := 0; from <= len(msg)-len(k); {
		i := strings.Index(msg[from:], k)
		if i < 0 {
			return false
		}
		start, end := from+i, from+i+len(k)
		if (start == 0 || !isWordByte(msg[start-1])) &&
			(!needEnd || end == len(msg) || !isWordByte(msg[end])) {
			return true
		}
		from = start + 1
	}
	return false
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}

var defaultClassifier = NewKeywordClassifier()

// Classify tags err using the default rules.
func Classify(err error) entity.ErrorKind {
	return defaultClassifier.Classify(err)
}

// Severity returns the log severity for a failure that exhausted its retries.
// Auth failures do not resolve by retrying, so they are always critical.
func Severity(kind entity.ErrorKind, attempts int) entity.Severity {
	if kind == entity.KindAuth || attempts > 3 {
		return entity.SeverityCritical
	}
	return entity.SeverityError
}
