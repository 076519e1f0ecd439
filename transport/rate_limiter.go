package transport

import (
	"time"

	"golang.org/x/time/rate"
)

// newRateLimiter allows burst frames at once and refills burst tokens per interval.
func newRateLimiter(burst int, interval time.Duration) *rate.Limiter {
	if burst <= 0 {
		burst = 1
	}
	if interval <= 0 {
		interval = time.Second
	}
	return rate.NewLimiter(rate.Every(interval/time.Duration(burst)), burst)
}
