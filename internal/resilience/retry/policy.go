package retry

import (
	"time"

	"content-pipeline/internal/domain/entity"
)

// Policy is the retry budget for one Execute call.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	// Negative values are treated as zero.
	MaxRetries int

	// BackoffBase is the delay before the first retry. Values <= 0 mean one second.
	BackoffBase time.Duration

	// BackoffMax caps the delay. Rate-limit failures may wait up to twice this.
	BackoffMax time.Duration
}

// DefaultPolicy returns 3 retries with a 2s base and a 60s cap.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:  3,
		BackoffBase: 2 * time.Second,
		BackoffMax:  60 * time.Second,
	}
}

// Attempts returns the total number of attempts the policy allows.
func (p Policy) Attempts() int {
	if p.MaxRetries < 0 {
		return 1
	}
	return p.MaxRetries + 1
}

// Delay returns the wait after failed attempt number attempt (0-based).
// Generic failures grow by 2^attempt up to BackoffMax; rate limits grow by
// 4^attempt up to 2*BackoffMax. There is no jitter.
func (p Policy) Delay(attempt int, kind entity.ErrorKind) time.Duration {
	base := p.BackoffBase
	if base <= 0 {
		base = time.Second
	}
	limit := p.BackoffMax
	if limit <= 0 {
		limit = base
	}
	factor := int64(2)
	if kind == entity.KindRateLimit {
		factor = 4
		limit *= 2
	}
	if attempt < 0 {
		attempt = 0
	}

	delay := base
	for i := 0; i < attempt; i++ {
		if delay >= limit {
			break
		}
		delay *= time.Duration(factor)
	}
	if delay > limit {
		delay = limit
	}
	return delay
}
