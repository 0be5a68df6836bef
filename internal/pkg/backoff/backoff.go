package backoff

import (
	"math"
	"time"
)

// Exponential computes retry delays: min(Max, Base * 2^(attempt-1)).
// Attempt is 1-indexed; attempt 1 is the delay after the first failure.
// Stateless and safe for concurrent use.
type Exponential struct {
	Base time.Duration
	Max  time.Duration
}

func NewExponential(base, maxDelay time.Duration) Exponential {
	return Exponential{Base: base, Max: maxDelay}
}

func (e Exponential) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(e.Base) * math.Pow(2, float64(attempt-1))
	if e.Max > 0 && d > float64(e.Max) {
		return e.Max
	}
	return time.Duration(d)
}
