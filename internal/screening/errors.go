package screening

import (
	"errors"
	"net/http"

	"github.com/JaimeStill/tayyib/internal/classifier"
	"github.com/JaimeStill/tayyib/internal/evidence"
	"github.com/JaimeStill/tayyib/internal/pipeline"
	"github.com/JaimeStill/tayyib/internal/session"
)

// Domain errors for screening operations.
var (
	ErrInvalidRequest     = errors.New("invalid screening request")
	ErrNoIngredients      = errors.New("classifier returned no usable ingredients")
	ErrAssessmentNotFound = errors.New("assessment not found")
	ErrEvidenceNotFound   = errors.New("evidence preview not found")
	ErrFileTooLarge       = errors.New("upload exceeds maximum size")
)

// MapHTTPStatus maps screening errors, and the errors of the systems it
// coordinates, to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrNoIngredients):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrAssessmentNotFound),
		errors.Is(err, ErrEvidenceNotFound),
		errors.Is(err, session.ErrAssessment):
		return http.StatusNotFound
	case errors.Is(err, ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, classifier.ErrInvalidRequest), errors.Is(err, classifier.ErrTransient):
		return classifier.MapHTTPStatus(err)
	case errors.Is(err, evidence.ErrFileRejected), errors.Is(err, evidence.ErrIngredientNotFound):
		return evidence.MapHTTPStatus(err)
	case errors.Is(err, session.ErrInvalidID):
		return session.MapHTTPStatus(err)
	}
	if status := pipeline.MapHTTPStatus(err); status != http.StatusInternalServerError {
		return status
	}
	return http.StatusInternalServerError
}
