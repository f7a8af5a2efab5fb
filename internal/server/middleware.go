package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"taskline/internal/logger"
)

// newRequestLogger logs one line per request and puts a request-scoped
// entry into the context for handlers and the engine.
func newRequestLogger(log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			entry := log.WithFields(logrus.Fields{
				"method": r.Method,
				"path":   r.URL.Path,
			})
			ctx := logger.WithContext(r.Context(), entry)

			next.ServeHTTP(ww, r.WithContext(ctx))

			fields := logrus.Fields{
				"status":   ww.Status(),
				"bytes":    ww.BytesWritten(),
				"duration": time.Since(start),
			}
			entry.WithFields(fields).Info("request")
		})
	}
}
