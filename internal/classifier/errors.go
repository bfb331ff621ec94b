package classifier

import (
	"errors"
	"net/http"
)

// Domain errors for classifier operations.
var (
	ErrInvalidRequest    = errors.New("invalid classification request")
	ErrTransient         = errors.New("classifier unavailable")
	ErrMalformedResponse = errors.New("malformed classifier response")
)

// MapHTTPStatus maps classifier errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrInvalidRequest) {
		return http.StatusBadRequest
	}
	if errors.Is(err, ErrTransient) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
