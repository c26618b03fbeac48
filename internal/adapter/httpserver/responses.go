// Package httpserver contains the HTTP handlers and middleware for the API
// surface: login, submission, status polling, and the gallery. Artifact bytes
// never pass through these handlers; completed work is exposed as signed
// URLs.
package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/craftlab/cardsmith/internal/domain"
)

type errorEnvelope struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Kind    string      `json:"kind"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain sentinels onto HTTP statuses and the stable error
// kind vocabulary.
func writeError(w http.ResponseWriter, _ *http.Request, err error, details interface{}) {
	status := http.StatusInternalServerError
	kind := domain.ErrorKindInternal
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
		kind = domain.ErrorKindInvalidInput
	case errors.Is(err, domain.ErrTokenExpired):
		status = http.StatusUnauthorized
		kind = "token_expired"
	case errors.Is(err, domain.ErrUnauthenticated):
		status = http.StatusUnauthorized
		kind = "unauthenticated"
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
		kind = "not_found"
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
		kind = "conflict"
	case errors.Is(err, domain.ErrQuotaExceeded):
		status = http.StatusTooManyRequests
		kind = domain.ErrorKindQuotaExceeded
	case errors.Is(err, domain.ErrEnqueueFailed):
		status = http.StatusServiceUnavailable
		kind = domain.ErrorKindEnqueueFailed
	case errors.Is(err, domain.ErrThrottled):
		status = http.StatusServiceUnavailable
		kind = domain.ErrorKindThrottled
	case errors.Is(err, domain.ErrBackendUnavailable):
		status = http.StatusServiceUnavailable
		kind = domain.ErrorKindBackendUnavailable
	}
	writeJSON(w, status, errorEnvelope{Error: apiError{Kind: kind, Message: err.Error(), Details: details}})
}
