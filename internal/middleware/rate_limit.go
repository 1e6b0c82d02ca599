package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// EdgeRateLimitConfig holds the per-IP burst limit applied in front of a
// route group. This is a coarse first line; the DB-backed limiter inside
// the handlers enforces the durable per-action windows.
type EdgeRateLimitConfig struct {
	RequestsPerMinute int
}

// DefaultLoginEdgeLimit returns the burst limit for the login endpoint
func DefaultLoginEdgeLimit() EdgeRateLimitConfig {
	return EdgeRateLimitConfig{
		RequestsPerMinute: 15,
	}
}

// DefaultVerifyEdgeLimit returns the burst limit for the public verification endpoint
func DefaultVerifyEdgeLimit() EdgeRateLimitConfig {
	return EdgeRateLimitConfig{
		RequestsPerMinute: 60,
	}
}

// RateLimitByIP creates a middleware that rate limits requests by client IP
func RateLimitByIP(config EdgeRateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyByRealIP(),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate_limit_exceeded","message":"Too many requests"}`))
		}),
	)
}
