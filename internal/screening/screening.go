// Package screening coordinates a reviewer session: classifying products,
// recording evidence against their ingredients, and handing finished
// assessments to the certification pipeline.
package screening

import (
	"github.com/JaimeStill/tayyib/internal/assessment"
	"github.com/JaimeStill/tayyib/internal/classifier"
	"github.com/JaimeStill/tayyib/internal/normalize"
)

// ScreenRequest asks for one product to be screened.
type ScreenRequest struct {
	ProductName     string           `json:"product_name"`
	IngredientsText string           `json:"ingredients_text,omitempty"`
	IngredientsFile *classifier.File `json:"-"`
}

func (r ScreenRequest) classifierRequest() classifier.Request {
	return classifier.Request{
		ProductName:     r.ProductName,
		IngredientsText: r.IngredientsText,
		IngredientsFile: r.IngredientsFile,
	}
}

// BatchRequest asks for several products to be screened together.
type BatchRequest struct {
	Products []ScreenRequest `json:"products"`
}

// Result is a newly screened product with the classifier records that
// were dropped during normalization.
type Result struct {
	Product  assessment.Product  `json:"product"`
	Warnings []normalize.Warning `json:"warnings"`
}

// BatchWarning is a normalization warning for one product of a batch.
type BatchWarning struct {
	ProductIndex int    `json:"product_index"`
	ProductName  string `json:"product_name"`
	normalize.Warning
}

// BatchResult is a newly screened batch in request order.
type BatchResult struct {
	Products []assessment.Product `json:"products"`
	Warnings []BatchWarning       `json:"warnings"`
}

// EvidenceResult is the product after an evidence change.
type EvidenceResult struct {
	Product  assessment.Product         `json:"product"`
	Evidence *assessment.EvidenceRecord `json:"evidence,omitempty"`
	Removed  *bool                      `json:"removed,omitempty"`
}
