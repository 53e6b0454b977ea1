package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/rakshak/internal/ratelimit"
)

// RateLimit rejects a client IP with 429 once it has used up its attempts
// inside the limiter's window. Every request counts as an attempt; the
// login route also throttles per email inside the identity provider.
func RateLimit(limiter *ratelimit.Limiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ratelimit.ExtractIP(r)
			if limiter.Allow(ip) {
				next.ServeHTTP(w, r)
				return
			}

			retry := limiter.RetryAfterSeconds(ip)
			logger.Warn("rate limit exceeded",
				slog.String("ip", ip),
				slog.String("path", r.URL.Path),
				slog.Int("retryAfter", retry),
			)

			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error":   "rate_limited",
				"message": "Too many attempts. Try again in " + ratelimit.FormatRetryMessage(retry) + ".",
			})
		})
	}
}
