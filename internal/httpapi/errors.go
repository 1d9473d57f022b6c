package httpapi

import (
	"encoding/json"
	"net/http"

	"modelrt/internal/asset"
	"modelrt/internal/manager"
	"modelrt/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

type sessionNotFoundError struct{ id string }

func (e sessionNotFoundError) Error() string   { return "session not found: " + e.id }
func (e sessionNotFoundError) StatusCode() int { return http.StatusNotFound }

// statusFor maps manager and asset errors onto HTTP status codes. A missing
// native backend surfaces wrapped in a load failure, so it is matched first;
// other load failures fall through to 500.
func statusFor(err error) int {
	switch {
	case asset.IsNotFound(err):
		return http.StatusNotFound
	case asset.IsCorrupt(err):
		return http.StatusUnprocessableEntity
	case manager.IsDependencyUnavailable(err):
		return http.StatusServiceUnavailable
	case manager.IsPoolExhausted(err):
		return http.StatusTooManyRequests
	case manager.IsRuntimeNotReady(err):
		return http.StatusConflict
	case manager.IsInvalidRequest(err):
		return http.StatusBadRequest
	case manager.IsGenerationTimeout(err):
		return http.StatusGatewayTimeout
	}
	if he, ok := err.(HTTPError); ok {
		return he.StatusCode()
	}
	return http.StatusInternalServerError
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

// writeError maps err to a status, counts backpressure and writes the payload.
func writeError(w http.ResponseWriter, err error) int {
	status := statusFor(err)
	if status == http.StatusTooManyRequests {
		IncrementBackpressure("pool_exhausted")
	}
	writeJSONError(w, status, err.Error())
	return status
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger().Error().Err(err).Msg("encode response")
	}
}
