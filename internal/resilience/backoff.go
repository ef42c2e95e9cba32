package resilience

import (
	"math"
	"time"
)

// Backoff returns the delay to wait after the given failed attempt (1-based)
// before trying again: min(base × multiplier^(attempt-1), maxDelay).
//
// A non-positive maxDelay disables the cap. Multipliers below 1 are treated
// as 1 so the delay never shrinks between attempts.
func Backoff(attempt int, base time.Duration, multiplier float64, maxDelay time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	if multiplier < 1 {
		multiplier = 1
	}

	delay := float64(base) * math.Pow(multiplier, float64(attempt-1))
	if maxDelay > 0 && (delay > float64(maxDelay) || math.IsInf(delay, 1)) {
		return maxDelay
	}
	if delay >= math.MaxInt64 || math.IsInf(delay, 1) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}
