// Package logging emits one structured log line per HTTP request.
package logging

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/pendergraft/fundme/internal/auth"
	"github.com/pendergraft/fundme/internal/middleware/realip"
)

// Middleware logs each request at a level chosen from its response status:
// Error for 5xx, Warn for 4xx, Info otherwise. Authenticated requests carry
// the account bound to their API key.
func Middleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			attrs := []any{
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start).String(),
				"client_ip", realip.GetClientIP(r),
			}
			if account, ok := auth.AccountFromContext(r.Context()); ok {
				attrs = append(attrs, "account", account.Hex())
			}

			logger.Log(r.Context(), levelFor(status), "request", attrs...)
		})
	}
}

func levelFor(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
