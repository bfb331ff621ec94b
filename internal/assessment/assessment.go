// Package assessment defines the screening data model: ingredient and
// product assessments and the evidence records attached to them.
// Derived fields (effective status, counts, overall status, stage) are
// written only by the rollup package.
package assessment

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EvidenceRecord notes that a verification document was supplied for an
// ingredient. The document content is never interpreted.
type EvidenceRecord struct {
	ID            uuid.UUID    `json:"id"`
	Filename      string       `json:"filename"`
	DeclaredType  DeclaredType `json:"declared_type"`
	CapturedAt    time.Time    `json:"captured_at"`
	ByteSize      int64        `json:"byte_size"`
	MimeType      string       `json:"mime_type"`
	PageCount     *int         `json:"page_count,omitempty"`
	StorageKey    string       `json:"storage_key,omitempty"`
	PreviewHandle string       `json:"preview_handle,omitempty"`
}

// Ingredient is a single classified ingredient within a product.
// Classification is fixed by the classifier label; Status is the effective
// status after evidence is taken into account.
type Ingredient struct {
	Name           string           `json:"name"`
	Label          string           `json:"label"`
	Classification Status           `json:"classification"`
	Status         Status           `json:"status"`
	RiskBand       RiskBand         `json:"risk_band"`
	Confidence     int              `json:"confidence"`
	Category       string           `json:"category"`
	Supplemental   json.RawMessage  `json:"supplemental,omitempty"`
	Evidence       []EvidenceRecord `json:"evidence"`
}

// Documented reports whether at least one evidence record is attached.
func (i *Ingredient) Documented() bool {
	return len(i.Evidence) > 0
}

// Counts aggregates ingredient statuses for a product.
type Counts struct {
	Total          int `json:"total"`
	Approved       int `json:"approved"`
	Prohibited     int `json:"prohibited"`
	RequiresReview int `json:"requires_review"`
	Documented     int `json:"documented"`
}

// Product is the product-level assessment. Ingredients keep the order the
// classifier returned them in.
type Product struct {
	ID            uuid.UUID    `json:"id"`
	ProductName   string       `json:"product_name"`
	Ingredients   []Ingredient `json:"ingredients"`
	OverallStatus Status       `json:"overall_status"`
	Stage         Stage        `json:"stage"`
	Counts        Counts       `json:"counts"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// Ingredient returns the ingredient matching name, compared
// case-insensitively after trimming.
func (p *Product) Ingredient(name string) (*Ingredient, bool) {
	key := NameKey(name)
	for i := range p.Ingredients {
		if NameKey(p.Ingredients[i].Name) == key {
			return &p.Ingredients[i], true
		}
	}
	return nil, false
}

// Evidence returns every evidence record across all ingredients.
func (p *Product) Evidence() []EvidenceRecord {
	var all []EvidenceRecord
	for _, ing := range p.Ingredients {
		all = append(all, ing.Evidence...)
	}
	return all
}

// Clone returns a deep copy so callers can mutate without touching
// shared history.
func (p Product) Clone() Product {
	out := p
	out.Ingredients = make([]Ingredient, len(p.Ingredients))
	for i, ing := range p.Ingredients {
		c := ing
		c.Evidence = append([]EvidenceRecord(nil), ing.Evidence...)
		if c.Evidence == nil {
			c.Evidence = []EvidenceRecord{}
		}
		if ing.Supplemental != nil {
			c.Supplemental = append(json.RawMessage(nil), ing.Supplemental...)
		}
		out.Ingredients[i] = c
	}
	return out
}

// NameKey folds an ingredient name for uniqueness comparisons.
func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
