package assessment

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Status is the three-valued verdict used at ingredient and product level.
type Status string

const (
	StatusApproved       Status = "approved"
	StatusProhibited     Status = "prohibited"
	StatusRequiresReview Status = "requires_review"
)

// RiskBand buckets classifier confidence.
type RiskBand string

const (
	RiskLow    RiskBand = "low"
	RiskMedium RiskBand = "medium"
	RiskHigh   RiskBand = "high"
)

// Stage is the certification workflow stage a product is routed to.
type Stage string

const (
	StageApproved    Stage = "approved"
	StageNeedsReview Stage = "needs_review"
)

// DeclaredType is the kind of document a reviewer says they supplied.
type DeclaredType string

const (
	DeclaredCertificate    DeclaredType = "certificate"
	DeclaredSupplierLetter DeclaredType = "supplier_letter"
	DeclaredLabReport      DeclaredType = "lab_report"
	DeclaredOther          DeclaredType = "other"
)

var declaredTypes = []DeclaredType{
	DeclaredCertificate,
	DeclaredSupplierLetter,
	DeclaredLabReport,
	DeclaredOther,
}

// ParseDeclaredType validates s as a declared evidence type.
// An empty value is treated as DeclaredOther.
func ParseDeclaredType(s string) (DeclaredType, error) {
	if s == "" {
		return DeclaredOther, nil
	}
	v := DeclaredType(s)
	if !slices.Contains(declaredTypes, v) {
		return "", fmt.Errorf("unknown declared type %q", s)
	}
	return v, nil
}

// UnmarshalJSON rejects declared types outside the known set.
func (d *DeclaredType) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v, err := ParseDeclaredType(raw)
	if err != nil {
		return err
	}
	*d = v
	return nil
}
