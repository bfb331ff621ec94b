package pipeline

import (
	"errors"
	"net/http"
)

// Domain errors for pipeline operations.
var (
	ErrClientRequired = errors.New("client reference required")
	ErrNotFound       = errors.New("pipeline entry not found")
	ErrDuplicate      = errors.New("assessment already submitted")
	ErrInvalidEntry   = errors.New("invalid pipeline entry")
)

// MapHTTPStatus maps pipeline domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrClientRequired) {
		return http.StatusUnprocessableEntity
	}
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrDuplicate) {
		return http.StatusConflict
	}
	if errors.Is(err, ErrInvalidEntry) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
