package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"otcbot/pkg/utils"
)

// Recovery catches panics in downstream handlers so one broken request
// can't take the dashboard server down. Logs the panic value and stack
// trace, then returns 500 to the client.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				utils.L().Error("panic in dashboard handler",
					utils.Any("error", err),
					utils.String("path", r.URL.Path),
					utils.String("stack", string(debug.Stack())),
				)
				http.Error(w, fmt.Sprintf("Internal Server Error: %v", err), http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
