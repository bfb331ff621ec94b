// Package normalize maps raw classifier output onto the assessment model.
// Every function here is pure: same input, same ingredient.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/JaimeStill/tayyib/internal/assessment"
)

// DefaultConfidence is assumed when the classifier omits a confidence score.
const DefaultConfidence = 70

var (
	// ErrMissingName rejects a classifier record with no ingredient name.
	ErrMissingName = errors.New("ingredient name missing")
	// ErrDuplicateName rejects a second record for an ingredient already seen.
	ErrDuplicateName = errors.New("duplicate ingredient name")
)

var approvedLabels = map[string]bool{
	"HALAL": true,
}

var prohibitedLabels = map[string]bool{
	"HARAM":      true,
	"PROHIBITED": true,
	"NON_HALAL":  true,
	"NOT_HALAL":  true,
}

// Record is one raw classifier result.
type Record struct {
	Name         string
	Label        string
	Confidence   *float64
	Category     string
	Supplemental json.RawMessage
}

// Warning describes a record rejected during batch normalization.
type Warning struct {
	Index  int    `json:"index"`
	Name   string `json:"name,omitempty"`
	Reason string `json:"reason"`
}

// CanonicalLabel trims and upper-cases a label, folding spaces and
// hyphens to underscores ("not halal" -> "NOT_HALAL").
func CanonicalLabel(label string) string {
	l := strings.ToUpper(strings.TrimSpace(label))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(l)
}

// ClassifyLabel maps a classifier label to a status. MASHBOOH,
// VERIFY_SOURCE and anything unrecognized require review.
func ClassifyLabel(label string) assessment.Status {
	l := CanonicalLabel(label)
	switch {
	case approvedLabels[l]:
		return assessment.StatusApproved
	case prohibitedLabels[l]:
		return assessment.StatusProhibited
	default:
		return assessment.StatusRequiresReview
	}
}

// Band maps a 0-100 confidence score to a risk band.
func Band(confidence int) assessment.RiskBand {
	switch {
	case confidence > 80:
		return assessment.RiskLow
	case confidence > 50:
		return assessment.RiskMedium
	default:
		return assessment.RiskHigh
	}
}

// Confidence resolves an optional score to an integer in [0,100].
func Confidence(c *float64) int {
	if c == nil || math.IsNaN(*c) {
		return DefaultConfidence
	}
	return int(math.Round(min(max(*c, 0), 100)))
}

// Normalize converts a record to an ingredient. The effective status
// starts equal to the label classification; rollup recomputes it once
// evidence exists.
func Normalize(r Record) (assessment.Ingredient, error) {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return assessment.Ingredient{}, ErrMissingName
	}

	confidence := Confidence(r.Confidence)
	status := ClassifyLabel(r.Label)

	return assessment.Ingredient{
		Name:           name,
		Label:          CanonicalLabel(r.Label),
		Classification: status,
		Status:         status,
		RiskBand:       Band(confidence),
		Confidence:     confidence,
		Category:       strings.TrimSpace(r.Category),
		Supplemental:   r.Supplemental,
		Evidence:       []assessment.EvidenceRecord{},
	}, nil
}

// Batch normalizes records in order. Malformed or duplicate records are
// skipped and reported as warnings; the remainder is returned.
func Batch(records []Record) ([]assessment.Ingredient, []Warning) {
	ingredients := make([]assessment.Ingredient, 0, len(records))
	var warnings []Warning
	seen := make(map[string]bool, len(records))

	for i, r := range records {
		ing, err := Normalize(r)
		if err == nil && seen[assessment.NameKey(ing.Name)] {
			err = fmt.Errorf("%w: %s", ErrDuplicateName, ing.Name)
		}
		if err != nil {
			warnings = append(warnings, Warning{
				Index:  i,
				Name:   strings.TrimSpace(r.Name),
				Reason: err.Error(),
			})
			continue
		}

		seen[assessment.NameKey(ing.Name)] = true
		ingredients = append(ingredients, ing)
	}

	return ingredients, warnings
}
