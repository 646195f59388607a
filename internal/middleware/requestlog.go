package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/m1shkaJavaDeveloper/activeMqWildfy/internal/logging"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// RequestContextMiddleware adds request attributes to context early in the middleware chain.
// A caller-supplied X-Request-ID is kept; otherwise a fresh UUID is assigned and echoed back.
func RequestContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)

		attrs := &logging.RequestAttrs{
			Method:    r.Method,
			Path:      r.URL.Path,
			IP:        logging.ExtractClientIP(r),
			RequestID: requestID,
		}
		ctx := logging.WithRequestAttrs(r.Context(), attrs)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
