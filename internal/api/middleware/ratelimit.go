package middleware

import (
	"net/http"

	"otcbot/pkg/ratelimit"
)

// RateLimit throttles requests per client IP using pkg/ratelimit's
// MultiLimiter, lazily provisioning a bucket the first time an IP is
// seen. perMinute is a requests/minute budget with a matching burst.
func RateLimit(perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		perMinute = 60
	}
	limiters := ratelimit.NewMultiLimiter()
	rate := float64(perMinute) / 60

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientIP(r)
			if limiters.Get(key) == nil {
				limiters.Add(key, rate, float64(perMinute))
			}
			if !limiters.Allow(key) {
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}
