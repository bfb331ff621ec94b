package pipeline

import (
	"net/url"

	"github.com/google/uuid"

	"github.com/JaimeStill/tayyib/pkg/query"
	"github.com/JaimeStill/tayyib/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "pipeline_entries", "e").
	Project("id", "ID").
	Project("source_assessment_id", "SourceAssessmentID").
	Project("product_name", "ProductName").
	Project("overall_status", "OverallStatus").
	Project("stage", "Stage").
	Project("priority", "Priority").
	Project("client_reference", "ClientReference").
	Project("submitted_at", "SubmittedAt")

var defaultSort = query.SortField{
	Field:      "SubmittedAt",
	Descending: true,
}

// Filters contains optional filtering criteria for pipeline entry queries.
// Nil fields are ignored.
type Filters struct {
	Stage              *string    `json:"stage,omitempty"`
	Priority           *string    `json:"priority,omitempty"`
	ClientReference    *string    `json:"client_reference,omitempty"`
	SourceAssessmentID *uuid.UUID `json:"source_assessment_id,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("Stage", f.Stage).
		WhereEquals("Priority", f.Priority).
		WhereEquals("ClientReference", f.ClientReference).
		WhereEquals("SourceAssessmentID", f.SourceAssessmentID)
}

// FiltersFromQuery extracts filter values from URL query parameters.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters

	if s := values.Get("stage"); s != "" {
		f.Stage = &s
	}

	if p := values.Get("priority"); p != "" {
		f.Priority = &p
	}

	if c := values.Get("client_reference"); c != "" {
		f.ClientReference = &c
	}

	if a := values.Get("source_assessment_id"); a != "" {
		if id, err := uuid.Parse(a); err == nil {
			f.SourceAssessmentID = &id
		}
	}

	return f
}

func scanEntry(s repository.Scanner) (Entry, error) {
	var e Entry
	err := s.Scan(
		&e.ID,
		&e.SourceAssessmentID,
		&e.ProductName,
		&e.OverallStatus,
		&e.Stage,
		&e.Priority,
		&e.ClientReference,
		&e.SubmittedAt,
	)
	return e, err
}
