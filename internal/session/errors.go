package session

import (
	"errors"
	"net/http"
)

// Domain errors for session operations.
var (
	ErrInvalidID  = errors.New("invalid session id")
	ErrNotFound   = errors.New("session record not found")
	ErrAssessment = errors.New("assessment not found in session")
)

// MapHTTPStatus maps session domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrInvalidID) {
		return http.StatusBadRequest
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrAssessment) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
