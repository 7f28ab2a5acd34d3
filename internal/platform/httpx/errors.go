package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors mapped onto HTTP statuses by RespondError.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrConfig       = errors.New("configuration error")
	ErrUpstream     = errors.New("upstream unavailable")
)

// RespondError maps errors to the JSON error envelope. Messages are fixed
// so upstream details never reach the client.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUnauthorized):
		Message(w, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, ErrConfig):
		Message(w, http.StatusInternalServerError, "backend API is not configured")
	case errors.Is(err, ErrUpstream):
		Message(w, http.StatusInternalServerError, "backend API unavailable")
	default:
		Message(w, http.StatusInternalServerError, "internal error")
	}
}
