package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/m1shkaJavaDeveloper/activeMqWildfy/internal/logging"
	"github.com/m1shkaJavaDeveloper/activeMqWildfy/internal/models"
	"github.com/m1shkaJavaDeveloper/activeMqWildfy/internal/sentry"
)

// writeJSON serializes data as JSON and writes it to the response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response. If no context/error provided, just writes the response.
// For simple client errors (400-level), use: writeError(w, status, msg)
// For broker failures with cause, use: writeErrorWithCause(ctx, w, status, msg, err)
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, models.ErrorResponse{Error: message})
}

// writeErrorWithCause writes an error response, logs the error with stack trace
// and reports it to Sentry when configured.
func writeErrorWithCause(ctx context.Context, w http.ResponseWriter, status int, message string, err error) {
	writeError(w, status, message)

	if status >= 500 && err != nil {
		wrappedErr := logging.WrapError(err, message)
		logging.LogErrorWithStatus(ctx, status, "error response", wrappedErr)
		sentry.CaptureError(ctx, wrappedErr)
	}
}
