package scheduler

import (
	"math"
	"time"
)

// Backoff spaces out retry_soon firings: Base after the first failure,
// doubling per consecutive failure, never more than Max.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

func (b Backoff) Delay(failures int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = 30 * time.Second
	}
	limit := b.Max
	if limit <= 0 {
		limit = time.Hour
	}
	if failures < 1 {
		failures = 1
	}

	// 2^62 already overflows any sane cap, stop before float precision matters.
	exp := min(failures-1, 62)
	delay := float64(base) * math.Pow(2, float64(exp))
	if delay >= float64(limit) {
		return limit
	}
	return time.Duration(delay)
}
