package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/tayyib/internal/assessment"
	"github.com/JaimeStill/tayyib/internal/metrics"
	"github.com/JaimeStill/tayyib/internal/rollup"
)

// Policy holds deployment rules for submissions.
type Policy struct {
	RequireClient bool
}

// PriorityFor returns High when any ingredient's effective status under
// engine is Prohibited or RequiresReview.
func PriorityFor(engine *rollup.Engine, p *assessment.Product) Priority {
	for i := range p.Ingredients {
		if engine.IngredientStatus(&p.Ingredients[i]) != assessment.StatusApproved {
			return PriorityHigh
		}
	}
	return PriorityNormal
}

// Build validates the policy and constructs an entry for p. Verdict,
// stage, and priority are derived from the ingredients by engine at
// submission time; the derived fields stored on p are not trusted.
func Build(engine *rollup.Engine, p *assessment.Product, cmd SubmitCommand, policy Policy, now time.Time) (Entry, error) {
	ref := normalizeRef(cmd.ClientReference)
	if policy.RequireClient && ref == nil {
		return Entry{}, ErrClientRequired
	}

	return Entry{
		ID:                 uuid.New(),
		SourceAssessmentID: p.ID,
		ProductName:        p.ProductName,
		OverallStatus:      engine.Overall(p.Ingredients),
		Stage:              engine.Stage(p.Ingredients),
		Priority:           PriorityFor(engine, p),
		ClientReference:    ref,
		SubmittedAt:        now.UTC(),
	}, nil
}

// Handoff submits assessments to a Store under a Policy.
type Handoff struct {
	store   Store
	policy  Policy
	engine  *rollup.Engine
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewHandoff creates a Handoff.
func NewHandoff(store Store, policy Policy, logger *slog.Logger, m *metrics.Metrics) *Handoff {
	return &Handoff{
		store:   store,
		policy:  policy,
		engine:  rollup.Default,
		logger:  logger.With("system", "pipeline"),
		metrics: m,
		now:     time.Now,
	}
}

// WithEngine sets the rollup engine used to derive submitted verdicts.
func (h *Handoff) WithEngine(e *rollup.Engine) *Handoff {
	h.engine = e
	return h
}

// Policy returns the submission policy.
func (h *Handoff) Policy() Policy {
	return h.policy
}

// Store returns the backing store.
func (h *Handoff) Store() Store {
	return h.store
}

// Submit builds an entry for p and hands it to the store. Policy
// violations are reported before the store is called.
func (h *Handoff) Submit(ctx context.Context, p *assessment.Product, cmd SubmitCommand) (*Entry, error) {
	entry, err := Build(h.engine, p, cmd, h.policy, h.now())
	if err != nil {
		return nil, err
	}

	saved, err := h.store.Submit(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("submit %s: %w", p.ID, err)
	}

	h.metrics.RecordSubmission(string(saved.Stage), string(saved.Priority))
	h.logger.Info(
		"assessment submitted",
		"entry_id", saved.ID,
		"assessment_id", saved.SourceAssessmentID,
		"stage", saved.Stage,
		"priority", saved.Priority,
	)
	return saved, nil
}

func normalizeRef(ref *string) *string {
	if ref == nil {
		return nil
	}
	s := strings.TrimSpace(*ref)
	if s == "" {
		return nil
	}
	return &s
}
