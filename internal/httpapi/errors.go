package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"devicehub/backend/internal/session"
)

// Error is the structured error response body.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	errCodeBadRequest      = "bad_request"
	errCodeUnauthorized    = "unauthorised"
	errCodeForbidden       = "forbidden"
	errCodeConflict        = "conflict"
	errCodeTooManyAttempts = "too_many_attempts"
	errCodeUnavailable     = "service_unavailable"
	errCodeInternal        = "internal_error"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

// writeServiceError maps session-service sentinels onto HTTP responses. The
// low-information messages are deliberate; detail lives in server logs only.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrInvalidCredential):
		writeError(w, http.StatusUnauthorized, errCodeUnauthorized, "invalid credentials")
	case errors.Is(err, session.ErrInvalidOrExpiredSession):
		writeError(w, http.StatusUnauthorized, errCodeUnauthorized, "invalid or expired session")
	case errors.Is(err, session.ErrPrincipalNotFound):
		writeError(w, http.StatusUnauthorized, errCodeUnauthorized, "invalid or expired session")
	case errors.Is(err, session.ErrAccountInactive):
		writeError(w, http.StatusForbidden, errCodeForbidden, "account inactive")
	case errors.Is(err, session.ErrDuplicateIdentity):
		writeError(w, http.StatusConflict, errCodeConflict, "email already registered")
	case errors.Is(err, session.ErrConcurrentRefreshConflict):
		writeError(w, http.StatusConflict, errCodeConflict, "session was refreshed concurrently; retry or log in again")
	case errors.Is(err, session.ErrPersistence):
		writeError(w, http.StatusServiceUnavailable, errCodeUnavailable, "temporarily unavailable")
	default:
		writeError(w, http.StatusInternalServerError, errCodeInternal, "internal error")
	}
}
