package myMiddleware

import (
	"net/http"
	"time"

	"bridgeme/internal/logger"

	"github.com/go-chi/chi/v5/middleware"
)

// Logging logs every request with its status and latency.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		event := logger.Info()
		if status >= 400 {
			event = logger.Warn()
		}
		if status >= 500 {
			event = logger.Error()
		}

		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("ip", r.RemoteAddr).
			Str("user_id", UserID(r.Context())).
			Str("request_id", middleware.GetReqID(r.Context())).
			Int("body_size", ww.BytesWritten()).
			Msg("request")
	})
}
