package middleware

import (
	"log/slog"
	"net/http"

	"github.com/justin-elyphant/elyphant-v1-sub002/pkg/logger"
)

// RequestLogger stores a logger enriched with correlation_id, account_id,
// trace_id and span_id in the request context. Mount it after
// RequestLogging, Tracing and Auth so those fields are available.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
