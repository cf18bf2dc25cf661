package infra

import (
	"math/rand/v2"
	"time"
)

const (
	baseBackoff    = 500 * time.Millisecond
	defaultBackoff = 30 * time.Second
)

// CalculateBackoff returns the reconnect delay for the given attempt
// (0-based): exponential from 500ms, capped at limit (30s when limit <= 0),
// with up to 20% jitter subtracted.
func CalculateBackoff(attempt int, limit time.Duration) time.Duration {
	if limit <= 0 {
		limit = defaultBackoff
	}
	if attempt < 0 {
		attempt = 0
	}

	d := baseBackoff
	for i := 0; i < attempt && d < limit; i++ {
		d *= 2
	}
	if d > limit {
		d = limit
	}

	jitter := time.Duration(rand.Int64N(int64(d)/5 + 1))
	return d - jitter
}
