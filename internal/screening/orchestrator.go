package screening

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/JaimeStill/tayyib/internal/assessment"
	"github.com/JaimeStill/tayyib/internal/classifier"
	"github.com/JaimeStill/tayyib/internal/evidence"
	"github.com/JaimeStill/tayyib/internal/metrics"
	"github.com/JaimeStill/tayyib/internal/normalize"
	"github.com/JaimeStill/tayyib/internal/pipeline"
	"github.com/JaimeStill/tayyib/internal/rollup"
	"github.com/JaimeStill/tayyib/internal/session"
	"github.com/JaimeStill/tayyib/pkg/keylock"
)

// Deps are the systems a screening System coordinates.
type Deps struct {
	Classifier classifier.Classifier
	Ledger     *evidence.Ledger
	Sessions   *session.Store
	Handoff    *pipeline.Handoff
	Engine     *rollup.Engine
	Metrics    *metrics.Metrics
	// Concurrency bounds classifier calls during batch screening.
	Concurrency int
}

type orchestrator struct {
	classifier  classifier.Classifier
	ledger      *evidence.Ledger
	sessions    *session.Store
	handoff     *pipeline.Handoff
	engine      *rollup.Engine
	metrics     *metrics.Metrics
	locks       *keylock.Locker
	concurrency int
	logger      *slog.Logger
}

// New creates a screening System.
func New(deps Deps, logger *slog.Logger) System {
	engine := deps.Engine
	if engine == nil {
		engine = rollup.Default
	}
	concurrency := deps.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	o := &orchestrator{
		classifier:  deps.Classifier,
		ledger:      deps.Ledger,
		sessions:    deps.Sessions,
		handoff:     deps.Handoff,
		engine:      engine,
		metrics:     deps.Metrics,
		locks:       keylock.New(),
		concurrency: concurrency,
		logger:      logger.With("system", "screening"),
	}
	deps.Sessions.OnExpire(o.releaseExpired)
	return o
}

func (o *orchestrator) Screen(ctx context.Context, sessionID string, req ScreenRequest) (*Result, error) {
	if err := validateScreen(req); err != nil {
		return nil, err
	}

	product, warnings, err := o.assess(ctx, req)
	if err != nil {
		return nil, err
	}

	if _, err := o.sessions.Save(ctx, sessionID, session.Update{Single: &product}); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	o.metrics.RecordScreening(string(product.OverallStatus))
	o.logger.Info(
		"product screened",
		"session_id", sessionID,
		"assessment_id", product.ID,
		"product", product.ProductName,
		"overall_status", product.OverallStatus,
		"warnings", len(warnings),
	)

	return &Result{Product: product, Warnings: warnings}, nil
}

func (o *orchestrator) ScreenBatch(ctx context.Context, sessionID string, req BatchRequest) (*BatchResult, error) {
	if len(req.Products) == 0 {
		return nil, fmt.Errorf("%w: batch has no products", ErrInvalidRequest)
	}
	for i, r := range req.Products {
		if err := validateScreen(r); err != nil {
			return nil, fmt.Errorf("product %d: %w", i, err)
		}
	}

	products := make([]assessment.Product, len(req.Products))
	warnings := make([][]normalize.Warning, len(req.Products))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workerCount(o.concurrency, len(req.Products)))

	for i := range req.Products {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			p, w, err := o.assess(gctx, req.Products[i])
			if err != nil {
				return fmt.Errorf("product %d (%s): %w", i, req.Products[i].ProductName, err)
			}
			products[i] = p
			warnings[i] = w
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if _, err := o.sessions.Save(ctx, sessionID, session.Update{Batch: products}); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	result := &BatchResult{Products: products, Warnings: []BatchWarning{}}
	for i, ws := range warnings {
		for _, w := range ws {
			result.Warnings = append(result.Warnings, BatchWarning{
				ProductIndex: i,
				ProductName:  products[i].ProductName,
				Warning:      w,
			})
		}
		o.metrics.RecordScreening(string(products[i].OverallStatus))
	}

	o.logger.Info(
		"batch screened",
		"session_id", sessionID,
		"products", len(products),
		"warnings", len(result.Warnings),
	)
	return result, nil
}

func (o *orchestrator) History(ctx context.Context, sessionID string) (session.Cache, error) {
	return o.sessions.Load(ctx, sessionID)
}

func (o *orchestrator) Find(ctx context.Context, sessionID string, id uuid.UUID) (*assessment.Product, error) {
	c, err := o.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	p, ok := c.Find(id)
	if !ok {
		return nil, ErrAssessmentNotFound
	}
	return &p, nil
}

func (o *orchestrator) AttachEvidence(
	ctx context.Context,
	sessionID string,
	id uuid.UUID,
	ingredient string,
	file evidence.File,
) (*EvidenceResult, error) {
	var rec *assessment.EvidenceRecord

	product, err := o.mutate(ctx, sessionID, id,
		func(p *assessment.Product) error {
			var err error
			rec, err = o.ledger.Attach(ctx, p, ingredient, file)
			return err
		},
		nil,
		func(p *assessment.Product) {
			// the record was never persisted; drop its preview and archive copy
			o.ledger.Discard(context.WithoutCancel(ctx), *rec)
		},
	)
	if err != nil {
		return nil, err
	}

	return &EvidenceResult{Product: *product, Evidence: rec}, nil
}

func (o *orchestrator) RemoveEvidence(
	ctx context.Context,
	sessionID string,
	id uuid.UUID,
	ingredient string,
	evidenceID uuid.UUID,
) (*EvidenceResult, error) {
	var rec *assessment.EvidenceRecord

	product, err := o.mutate(ctx, sessionID, id,
		func(p *assessment.Product) error {
			var err error
			rec, err = o.ledger.Remove(p, ingredient, evidenceID)
			return err
		},
		func(p *assessment.Product) {
			// only a persisted removal may give up the document
			if rec != nil {
				o.ledger.Discard(context.WithoutCancel(ctx), *rec)
			}
		},
		nil,
	)
	if err != nil {
		return nil, err
	}

	removed := rec != nil
	return &EvidenceResult{Product: *product, Removed: &removed}, nil
}

func (o *orchestrator) Submit(
	ctx context.Context,
	sessionID string,
	id uuid.UUID,
	cmd pipeline.SubmitCommand,
) (*pipeline.Entry, error) {
	unlock := o.locks.Lock(id.String())
	defer unlock()

	p, err := o.Find(ctx, sessionID, id)
	if err != nil {
		return nil, err
	}

	return o.handoff.Submit(ctx, p, cmd)
}

func (o *orchestrator) EndSession(ctx context.Context, sessionID string) error {
	c, err := o.sessions.Clear(ctx, sessionID)
	if err != nil {
		return err
	}

	var released int
	for _, p := range c.Products() {
		records := p.Evidence()
		o.ledger.Release(ctx, records...)
		released += len(records)
	}

	o.logger.Info("session ended", "session_id", sessionID, "released", released)
	return nil
}

// releaseExpired frees the previews of a session that aged out. Archived
// copies stay for audit, as with EndSession.
func (o *orchestrator) releaseExpired(ctx context.Context, sessionID string, c session.Cache) {
	var released int
	for _, p := range c.Products() {
		records := p.Evidence()
		o.ledger.Release(ctx, records...)
		released += len(records)
	}
	if released > 0 {
		o.logger.Info("expired session released", "session_id", sessionID, "released", released)
	}
}

// assess classifies and normalizes one product off to the side. Nothing
// is committed.
func (o *orchestrator) assess(ctx context.Context, req ScreenRequest) (assessment.Product, []normalize.Warning, error) {
	records, err := o.classifier.Classify(ctx, req.classifierRequest())
	if err != nil {
		return assessment.Product{}, nil, err
	}

	ingredients, warnings := normalize.Batch(records)
	o.metrics.RecordNormalizationRejects(len(warnings))
	for _, w := range warnings {
		o.logger.Warn(
			"classifier record rejected",
			"product", req.ProductName,
			"index", w.Index,
			"name", w.Name,
			"reason", w.Reason,
		)
	}

	if len(ingredients) == 0 {
		return assessment.Product{}, nil, ErrNoIngredients
	}

	if err := ctx.Err(); err != nil {
		return assessment.Product{}, nil, err
	}

	if warnings == nil {
		warnings = []normalize.Warning{}
	}
	return o.engine.Assemble(strings.TrimSpace(req.ProductName), ingredients), warnings, nil
}

// mutate applies fn to a copy of the assessment under the assessment's
// lock and saves the result. saved runs once the save succeeds and undo
// runs when it fails, both against the modified copy.
func (o *orchestrator) mutate(
	ctx context.Context,
	sessionID string,
	id uuid.UUID,
	fn func(p *assessment.Product) error,
	saved func(p *assessment.Product),
	undo func(p *assessment.Product),
) (*assessment.Product, error) {
	unlock := o.locks.Lock(id.String())
	defer unlock()

	p, err := o.Find(ctx, sessionID, id)
	if err != nil {
		return nil, err
	}

	if err := fn(p); err != nil {
		return nil, err
	}

	if _, err := o.sessions.Save(ctx, sessionID, session.Update{Replace: []assessment.Product{*p}}); err != nil {
		if undo != nil {
			undo(p)
		}
		return nil, fmt.Errorf("save session: %w", err)
	}

	if saved != nil {
		saved(p)
	}
	return p, nil
}

func validateScreen(req ScreenRequest) error {
	if strings.TrimSpace(req.ProductName) == "" {
		return fmt.Errorf("%w: product_name required", ErrInvalidRequest)
	}
	if err := req.classifierRequest().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return nil
}

func workerCount(limit, n int) int {
	return max(min(limit, n), 1)
}
