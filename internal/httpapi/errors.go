package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"lightserve/internal/backend"
	"lightserve/internal/manager"
	"lightserve/pkg/types"
)

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

// statusFor maps an error from admission or a backend call to an HTTP status.
// Errors carrying StatusCode() keep it; a per-request timeout becomes 504;
// everything else is 500.
func statusFor(err error) int {
	var he backend.HTTPError
	if errors.As(err, &he) {
		return backend.StatusOf(err)
	}
	switch {
	case manager.IsTooBusy(err):
		return http.StatusTooManyRequests
	case manager.IsServiceUnavailable(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
