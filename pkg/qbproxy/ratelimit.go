package qbproxy

import "golang.org/x/time/rate"

// NewRateLimiter returns a token bucket limiter allowing rps requests per
// second with the given burst
func NewRateLimiter(rps float64, burst int) RateLimiter {
	return rate.NewLimiter(rate.Limit(rps), burst)
}
