// Package middleware provides HTTP middlewares shared by the stub
// service.
package middleware

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// WithRequestLogging returns a middleware that logs every request with
// its method, path and handling duration.
func WithRequestLogging(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
