package tracker

import (
	"math"
	"time"
)

const backoffMultiplier = 1.5

// Interval returns the delay before poll attempt n+1:
//
//	min(base * 1.5^n, max)
//
// The curve is part of the tracker's observable contract, so it is computed
// exactly rather than delegated to a jittered backoff helper.
func Interval(base, max time.Duration, n int) time.Duration {
	if base <= 0 {
		return 0
	}
	d := time.Duration(float64(base) * math.Pow(backoffMultiplier, float64(n)))
	if max > 0 && d > max {
		return max
	}
	return d
}
