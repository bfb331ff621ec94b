package evidence

import (
	"errors"
	"net/http"
)

// Domain errors for evidence operations.
var (
	ErrFileRejected       = errors.New("evidence file rejected")
	ErrFileTooLarge       = errors.New("evidence file exceeds maximum size")
	ErrUnsupportedType    = errors.New("unsupported evidence file type")
	ErrEmptyFile          = errors.New("evidence file is empty")
	ErrIngredientNotFound = errors.New("ingredient not found")
)

// MapHTTPStatus maps evidence domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrIngredientNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrFileTooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	if errors.Is(err, ErrUnsupportedType) {
		return http.StatusUnsupportedMediaType
	}
	if errors.Is(err, ErrFileRejected) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
