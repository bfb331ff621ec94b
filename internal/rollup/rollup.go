// Package rollup derives product-level verdicts from ingredient state.
//
// The algorithm is deterministic and independent of ingredient order:
//
//  1. Any prohibited ingredient makes the product prohibited.
//  2. Otherwise any review-required ingredient that the Policy does not
//     consider satisfied makes the product require review.
//  3. Otherwise the product is approved.
//
// The workflow stage is derived separately: approved only when the product
// has no prohibited ingredient and every review-required ingredient is
// satisfied.
package rollup

import (
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/tayyib/internal/assessment"
)

// Policy reports whether a review-required ingredient has met its review
// requirement.
type Policy func(ing *assessment.Ingredient) bool

// EvidencePresence is satisfied by any attached evidence record. Content
// is never inspected; confirming it is the reviewer's job.
func EvidencePresence(ing *assessment.Ingredient) bool {
	return ing.Documented()
}

// Engine applies the rollup algorithm under a review Policy.
type Engine struct {
	satisfied Policy
	now       func() time.Time
}

// Default is the engine using EvidencePresence.
var Default = New(EvidencePresence)

// New creates an Engine with the given review policy.
func New(p Policy) *Engine {
	return &Engine{
		satisfied: p,
		now:       time.Now,
	}
}

// WithClock returns a copy of the engine that stamps UpdatedAt using now.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	c := *e
	c.now = now
	return &c
}

// IngredientStatus is the effective status of one ingredient.
func (e *Engine) IngredientStatus(ing *assessment.Ingredient) assessment.Status {
	if ing.Classification == assessment.StatusRequiresReview && e.satisfied(ing) {
		return assessment.StatusApproved
	}
	return ing.Classification
}

// Overall computes the product verdict from ingredients.
func (e *Engine) Overall(ingredients []assessment.Ingredient) assessment.Status {
	undocumented := false

	for i := range ingredients {
		ing := &ingredients[i]
		switch ing.Classification {
		case assessment.StatusProhibited:
			return assessment.StatusProhibited
		case assessment.StatusRequiresReview:
			if !e.satisfied(ing) {
				undocumented = true
			}
		}
	}

	if undocumented {
		return assessment.StatusRequiresReview
	}
	return assessment.StatusApproved
}

// Stage computes the workflow stage from ingredients. Prohibited products
// are routed through review rather than dropped.
func (e *Engine) Stage(ingredients []assessment.Ingredient) assessment.Stage {
	for i := range ingredients {
		ing := &ingredients[i]
		if ing.Classification == assessment.StatusProhibited {
			return assessment.StageNeedsReview
		}
		if ing.Classification == assessment.StatusRequiresReview && !e.satisfied(ing) {
			return assessment.StageNeedsReview
		}
	}
	return assessment.StageApproved
}

// Counts tallies effective statuses.
func (e *Engine) Counts(ingredients []assessment.Ingredient) assessment.Counts {
	c := assessment.Counts{Total: len(ingredients)}
	for i := range ingredients {
		ing := &ingredients[i]
		switch e.IngredientStatus(ing) {
		case assessment.StatusApproved:
			c.Approved++
		case assessment.StatusProhibited:
			c.Prohibited++
		case assessment.StatusRequiresReview:
			c.RequiresReview++
		}
		if ing.Documented() {
			c.Documented++
		}
	}
	return c
}

// Recompute rewrites every derived field of p. It is the only writer of
// ingredient Status, product OverallStatus, Stage, and Counts.
func (e *Engine) Recompute(p *assessment.Product) {
	for i := range p.Ingredients {
		p.Ingredients[i].Status = e.IngredientStatus(&p.Ingredients[i])
	}
	p.OverallStatus = e.Overall(p.Ingredients)
	p.Stage = e.Stage(p.Ingredients)
	p.Counts = e.Counts(p.Ingredients)
	p.UpdatedAt = e.now()
}

// Assemble builds a new product assessment from normalized ingredients
// with every derived field already computed.
func (e *Engine) Assemble(productName string, ingredients []assessment.Ingredient) assessment.Product {
	now := e.now()
	p := assessment.Product{
		ID:          uuid.New(),
		ProductName: productName,
		Ingredients: ingredients,
		CreatedAt:   now,
	}
	if p.Ingredients == nil {
		p.Ingredients = []assessment.Ingredient{}
	}
	e.Recompute(&p)
	return p
}

// Consistent reports whether p's derived fields match a fresh rollup.
func (e *Engine) Consistent(p *assessment.Product) bool {
	if p.OverallStatus != e.Overall(p.Ingredients) || p.Stage != e.Stage(p.Ingredients) {
		return false
	}
	for i := range p.Ingredients {
		if p.Ingredients[i].Status != e.IngredientStatus(&p.Ingredients[i]) {
			return false
		}
	}
	return p.Counts == e.Counts(p.Ingredients)
}
