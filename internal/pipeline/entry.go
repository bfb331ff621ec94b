// Package pipeline hands finished assessments to the certification
// pipeline store. Once submitted, an entry belongs to the pipeline.
package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/tayyib/internal/assessment"
)

// Priority orders pipeline work.
type Priority string

// Entry priorities.
const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Entry is a submission to the certification pipeline.
type Entry struct {
	ID                 uuid.UUID         `json:"id"`
	SourceAssessmentID uuid.UUID         `json:"source_assessment_id"`
	ProductName        string            `json:"product_name"`
	OverallStatus      assessment.Status `json:"overall_status"`
	Stage              assessment.Stage  `json:"stage"`
	Priority           Priority          `json:"priority"`
	ClientReference    *string           `json:"client_reference,omitempty"`
	SubmittedAt        time.Time         `json:"submitted_at"`
}

// SubmitCommand carries the reviewer's submission input.
type SubmitCommand struct {
	ClientReference *string `json:"client_reference,omitempty"`
}
