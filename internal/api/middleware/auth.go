package middleware

import (
	"crypto/subtle"
	"net/http"
)

// Auth checks the X-Dashboard-Key header against a shared secret
// (config.SecurityConfig.DashboardSecret) using constant-time comparison,
// same defense the teacher applies to debug endpoints via HTTP Basic
// Auth. An empty secret leaves the write API open, which is only safe
// for local/dev use behind a trusted network boundary.
func Auth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-Dashboard-Key")
			if subtle.ConstantTimeCompare([]byte(key), []byte(secret)) != 1 {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
