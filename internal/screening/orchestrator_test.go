package screening_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/JaimeStill/tayyib/internal/assessment"
	"github.com/JaimeStill/tayyib/internal/classifier"
	"github.com/JaimeStill/tayyib/internal/pipeline"
	"github.com/JaimeStill/tayyib/internal/rollup"
	"github.com/JaimeStill/tayyib/internal/screening"
	"github.com/JaimeStill/tayyib/pkg/pagination"
)

func TestScreen(t *testing.T) {
	h := newHarness(t, pipeline.Policy{})

	res, err := h.sys.Screen(context.Background(), sid, screening.ScreenRequest{
		ProductName:     "biscuits",
		IngredientsText: "flour, gelatin",
	})
	require.NoError(t, err)

	p := res.Product
	assert.Equal(t, assessment.StatusRequiresReview, p.OverallStatus)
	assert.Equal(t, assessment.StageNeedsReview, p.Stage)
	require.Len(t, p.Ingredients, 2)
	assert.Equal(t, assessment.StatusApproved, p.Ingredients[0].Status)
	assert.Equal(t, assessment.StatusRequiresReview, p.Ingredients[1].Status)
	assert.Empty(t, res.Warnings)

	history, err := h.sys.History(context.Background(), sid)
	require.NoError(t, err)
	require.Len(t, history.SingleProductHistory, 1)
	assert.Equal(t, p.ID, history.SingleProductHistory[0].ID)
	assert.NotZero(t, history.LastPersistedAt)
}

func TestScreenStatuses(t *testing.T) {
	tests := []struct {
		product string
		want    assessment.Status
	}{
		{"sausage", assessment.StatusProhibited},
		{"water", assessment.StatusApproved},
		{"mystery", assessment.StatusRequiresReview},
	}

	h := newHarness(t, pipeline.Policy{})
	for _, tt := range tests {
		t.Run(tt.product, func(t *testing.T) {
			assert.Equal(t, tt.want, h.screen(t, tt.product).OverallStatus)
		})
	}

	history, err := h.sys.History(context.Background(), sid)
	require.NoError(t, err)
	assert.Equal(t, []string{"mystery", "water", "sausage"}, names(history.SingleProductHistory))
}

func TestScreenWarnings(t *testing.T) {
	h := newHarness(t, pipeline.Policy{})

	res, err := h.sys.Screen(context.Background(), sid, screening.ScreenRequest{
		ProductName:     "mystery",
		IngredientsText: "xyz",
	})
	require.NoError(t, err)

	require.Len(t, res.Product.Ingredients, 1)
	assert.Equal(t, "XYZ", res.Product.Ingredients[0].Name)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, 1, res.Warnings[0].Index)
}

func TestScreenNoIngredients(t *testing.T) {
	h := newHarness(t, pipeline.Policy{})

	_, err := h.sys.Screen(context.Background(), sid, screening.ScreenRequest{
		ProductName:     "empty",
		IngredientsText: "nothing",
	})
	require.ErrorIs(t, err, screening.ErrNoIngredients)

	history, err := h.sys.History(context.Background(), sid)
	require.NoError(t, err)
	assert.Empty(t, history.SingleProductHistory)
}

func TestScreenClassifierFailureCommitsNothing(t *testing.T) {
	h := newHarness(t, pipeline.Policy{})
	h.screen(t, "water")

	h.classifier.errs["biscuits"] = fmt.Errorf("%w: upstream 503", classifier.ErrTransient)

	_, err := h.sys.Screen(context.Background(), sid, screening.ScreenRequest{
		ProductName:     "biscuits",
		IngredientsText: "flour",
	})
	require.ErrorIs(t, err, classifier.ErrTransient)

	history, err := h.sys.History(context.Background(), sid)
	require.NoError(t, err)
	assert.Equal(t, []string{"water"}, names(history.SingleProductHistory))
}

func TestScreenInvalidRequest(t *testing.T) {
	tests := []struct {
		name string
		req  screening.ScreenRequest
	}{
		{"missing product name", screening.ScreenRequest{IngredientsText: "flour"}},
		{"blank product name", screening.ScreenRequest{ProductName: "  ", IngredientsText: "flour"}},
		{"no ingredients source", screening.ScreenRequest{ProductName: "biscuits"}},
		{
			"both sources",
			screening.ScreenRequest{
				ProductName:     "biscuits",
				IngredientsText: "flour",
				IngredientsFile: &classifier.File{Filename: "label.png", MimeType: "image/png", Data: pngData},
			},
		},
	}

	h := newHarness(t, pipeline.Policy{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.sys.Screen(context.Background(), sid, tt.req)
			require.ErrorIs(t, err, screening.ErrInvalidRequest)
		})
	}
	assert.Zero(t, h.classifier.calls.Load())
}

func TestScreenCancelled(t *testing.T) {
	h := newHarness(t, pipeline.Policy{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.sys.Screen(ctx, sid, screening.ScreenRequest{
		ProductName:     "biscuits",
		IngredientsText: "flour",
	})
	require.ErrorIs(t, err, context.Canceled)

	history, err := h.sys.History(context.Background(), sid)
	require.NoError(t, err)
	assert.Empty(t, history.SingleProductHistory)
}

func TestScreenInvalidSession(t *testing.T) {
	h := newHarness(t, pipeline.Policy{})

	_, err := h.sys.Screen(context.Background(), "../etc", screening.ScreenRequest{
		ProductName:     "water",
		IngredientsText: "water",
	})
	require.Error(t, err)
	assert.Equal(t, 400, screening.MapHTTPStatus(err))
}

func batch(products ...string) screening.BatchRequest {
	req := screening.BatchRequest{}
	for _, p := range products {
		req.Products = append(req.Products, screening.ScreenRequest{
			ProductName:     p,
			IngredientsText: "ingredients of " + p,
		})
	}
	return req
}

func TestScreenBatch(t *testing.T) {
	h := newHarness(t, pipeline.Policy{})
	ctx := context.Background()

	first, err := h.sys.ScreenBatch(ctx, sid, batch("water", "sausage"))
	require.NoError(t, err)
	assert.Equal(t, []string{"water", "sausage"}, names(first.Products))

	second, err := h.sys.ScreenBatch(ctx, sid, batch("biscuits", "mystery", "water"))
	require.NoError(t, err)
	assert.Equal(t, []string{"biscuits", "mystery", "water"}, names(second.Products))

	require.Len(t, second.Warnings, 1)
	assert.Equal(t, 1, second.Warnings[0].ProductIndex)
	assert.Equal(t, "mystery", second.Warnings[0].ProductName)

	history, err := h.sys.History(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t,
		[]string{"biscuits", "mystery", "water", "water", "sausage"},
		names(history.BatchHistory),
	)
	assert.Empty(t, history.SingleProductHistory)
}

func TestScreenBatchAllOrNothing(t *testing.T) {
	h := newHarness(t, pipeline.Policy{})
	ctx := context.Background()

	_, err := h.sys.ScreenBatch(ctx, sid, batch("water"))
	require.NoError(t, err)

	h.classifier.errs["sausage"] = fmt.Errorf("%w: timeout", classifier.ErrTransient)

	_, err = h.sys.ScreenBatch(ctx, sid, batch("biscuits", "sausage", "water"))
	require.ErrorIs(t, err, classifier.ErrTransient)

	history, err := h.sys.History(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, []string{"water"}, names(history.BatchHistory))
}

func TestScreenBatchInvalid(t *testing.T) {
	h := newHarness(t, pipeline.Policy{})

	_, err := h.sys.ScreenBatch(context.Background(), sid, screening.BatchRequest{})
	require.ErrorIs(t, err, screening.ErrInvalidRequest)

	req := batch("water")
	req.Products = append(req.Products, screening.ScreenRequest{ProductName: "no source"})
	_, err = h.sys.ScreenBatch(context.Background(), sid, req)
	require.ErrorIs(t, err, screening.ErrInvalidRequest)
	assert.Zero(t, h.classifier.calls.Load())
}

func TestScreenBatchConcurrencyBound(t *testing.T) {
	h := newHarness(t, pipeline.Policy{})
	h.classifier.gate = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := h.sys.ScreenBatch(context.Background(), sid, batch("water", "water", "water", "water", "water"))
		done <- err
	}()

	for range 5 {
		h.classifier.gate <- struct{}{}
	}
	require.NoError(t, <-done)
	assert.LessOrEqual(t, h.classifier.peak.Load(), int32(2))
	assert.Equal(t, int32(5), h.classifier.calls.Load())
}

func TestEvidenceLifecycle(t *testing.T) {
	h := newHarness(t, pipeline.Policy{})
	ctx := context.Background()
	p := h.screen(t, "biscuits")

	attached, err := h.sys.AttachEvidence(ctx, sid, p.ID, "gelatin", pngFile())
	require.NoError(t, err)
	require.NotNil(t, attached.Evidence)
	assert.Equal(t, assessment.StatusApproved, attached.Product.OverallStatus)
	assert.Equal(t, assessment.StageApproved, attached.Product.Stage)
	assert.Equal(t, 1, h.previews.Len())

	stored, err := h.sys.Find(ctx, sid, p.ID)
	require.NoError(t, err)
	assert.Equal(t, assessment.StatusApproved, stored.OverallStatus)
	require.Len(t, stored.Evidence(), 1)

	removed, err := h.sys.RemoveEvidence(ctx, sid, p.ID, "Gelatin", attached.Evidence.ID)
	require.NoError(t, err)
	require.NotNil(t, removed.Removed)
	assert.True(t, *removed.Removed)
	assert.Equal(t, assessment.StatusRequiresReview, removed.Product.OverallStatus)
	assert.Zero(t, h.previews.Len())

	again, err := h.sys.RemoveEvidence(ctx, sid, p.ID, "Gelatin", attached.Evidence.ID)
	require.NoError(t, err)
	assert.False(t, *again.Removed)
	assert.Equal(t, assessment.StatusRequiresReview, again.Product.OverallStatus)
}

func TestEvidenceProhibitedAbsorbs(t *testing.T) {
	h := newHarness(t, pipeline.Policy{})
	p := h.screen(t, "sausage")

	res, err := h.sys.AttachEvidence(context.Background(), sid, p.ID, "Pork", pngFile())
	require.NoError(t, err)
	assert.Equal(t, assessment.StatusProhibited, res.Product.OverallStatus)
}

func TestEvidenceErrors(t *testing.T) {
	h := newHarness(t, pipeline.Policy{})
	ctx := context.Background()
	p := h.screen(t, "biscuits")

	_, err := h.sys.AttachEvidence(ctx, sid, uuid.New(), "Gelatin", pngFile())
	require.ErrorIs(t, err, screening.ErrAssessmentNotFound)
	assert.Equal(t, 404, screening.MapHTTPStatus(err))

	_, err = h.sys.AttachEvidence(ctx, sid, p.ID, "Sugar", pngFile())
	require.Error(t, err)
	assert.Equal(t, 404, screening.MapHTTPStatus(err))

	f := pngFile()
	f.MimeType = "text/plain"
	f.Data = []byte("hello")
	_, err = h.sys.AttachEvidence(ctx, sid, p.ID, "Gelatin", f)
	require.Error(t, err)
	assert.Equal(t, 415, screening.MapHTTPStatus(err))

	stored, err := h.sys.Find(ctx, sid, p.ID)
	require.NoError(t, err)
	assert.Equal(t, assessment.StatusRequiresReview, stored.OverallStatus)
	assert.Empty(t, stored.Evidence())
	assert.Zero(t, h.previews.Len())
}

func TestEvidenceAttachCancelledCommitsNothing(t *testing.T) {
	h := newHarness(t, pipeline.Policy{})
	p := h.screen(t, "biscuits")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.sys.AttachEvidence(ctx, sid, p.ID, "Gelatin", pngFile())
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, h.previews.Len())

	stored, err := h.sys.Find(context.Background(), sid, p.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Evidence())
}

func TestEvidenceRemoveUnsavedKeepsDocument(t *testing.T) {
	h := newHarness(t, pipeline.Policy{})
	p := h.screen(t, "biscuits")

	attached, err := h.sys.AttachEvidence(context.Background(), sid, p.ID, "Gelatin", pngFile())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = h.sys.RemoveEvidence(ctx, sid, p.ID, "Gelatin", attached.Evidence.ID)
	require.ErrorIs(t, err, context.Canceled)

	stored, err := h.sys.Find(context.Background(), sid, p.ID)
	require.NoError(t, err)
	require.Len(t, stored.Evidence(), 1)
	assert.Equal(t, assessment.StatusApproved, stored.OverallStatus)

	_, resolvable := h.ledger.Preview(stored.Evidence()[0])
	assert.True(t, resolvable)
	assert.Equal(t, 1, h.previews.Len())
}

func TestEvidenceConcurrentAttach(t *testing.T) {
	const n = 16
	h := newHarness(t, pipeline.Policy{})
	p := h.screen(t, "biscuits")

	var g errgroup.Group
	for range n {
		g.Go(func() error {
			_, err := h.sys.AttachEvidence(context.Background(), sid, p.ID, "Gelatin", pngFile())
			return err
		})
	}
	require.NoError(t, g.Wait())

	stored, err := h.sys.Find(context.Background(), sid, p.ID)
	require.NoError(t, err)
	gelatin, ok := stored.Ingredient("Gelatin")
	require.True(t, ok)
	assert.Len(t, gelatin.Evidence, n)
	assert.True(t, rollup.Default.Consistent(stored))
	assert.Equal(t, n, h.previews.Len())

	var rg errgroup.Group
	for _, rec := range gelatin.Evidence {
		rg.Go(func() error {
			_, err := h.sys.RemoveEvidence(context.Background(), sid, p.ID, "Gelatin", rec.ID)
			return err
		})
	}
	require.NoError(t, rg.Wait())

	stored, err = h.sys.Find(context.Background(), sid, p.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Evidence())
	assert.True(t, rollup.Default.Consistent(stored))
	assert.Zero(t, h.previews.Len())
}

func TestExpiredSessionReleasesPreviews(t *testing.T) {
	h := newHarness(t, pipeline.Policy{})
	ctx := context.Background()

	now := time.Now()
	h.sessions.WithClock(func() time.Time { return now })

	p := h.screen(t, "biscuits")
	_, err := h.sys.AttachEvidence(ctx, sid, p.ID, "Gelatin", pngFile())
	require.NoError(t, err)
	require.Equal(t, 1, h.previews.Len())

	now = now.Add(25 * time.Hour)

	history, err := h.sys.History(ctx, sid)
	require.NoError(t, err)
	assert.Empty(t, history.Products())
	assert.Zero(t, h.previews.Len())
}

func TestEvidenceInBatchHistory(t *testing.T) {
	h := newHarness(t, pipeline.Policy{})
	ctx := context.Background()

	res, err := h.sys.ScreenBatch(ctx, sid, batch("water", "biscuits"))
	require.NoError(t, err)
	target := res.Products[1]

	_, err = h.sys.AttachEvidence(ctx, sid, target.ID, "Gelatin", pngFile())
	require.NoError(t, err)

	history, err := h.sys.History(ctx, sid)
	require.NoError(t, err)
	require.Len(t, history.BatchHistory, 2)
	assert.Equal(t, assessment.StatusApproved, history.BatchHistory[1].OverallStatus)
}

func TestSubmit(t *testing.T) {
	h := newHarness(t, pipeline.Policy{})
	ctx := context.Background()
	p := h.screen(t, "biscuits")

	ref := "  ACME-42 "
	entry, err := h.sys.Submit(ctx, sid, p.ID, pipeline.SubmitCommand{ClientReference: &ref})
	require.NoError(t, err)
	assert.Equal(t, p.ID, entry.SourceAssessmentID)
	assert.Equal(t, assessment.StageNeedsReview, entry.Stage)
	assert.Equal(t, pipeline.PriorityHigh, entry.Priority)
	require.NotNil(t, entry.ClientReference)
	assert.Equal(t, "ACME-42", *entry.ClientReference)

	_, err = h.sys.Submit(ctx, sid, p.ID, pipeline.SubmitCommand{})
	require.ErrorIs(t, err, pipeline.ErrDuplicate)
	assert.Equal(t, 409, screening.MapHTTPStatus(err))

	_, err = h.sys.Submit(ctx, sid, uuid.New(), pipeline.SubmitCommand{})
	require.ErrorIs(t, err, screening.ErrAssessmentNotFound)
}

func TestSubmitApprovedAfterEvidence(t *testing.T) {
	h := newHarness(t, pipeline.Policy{})
	ctx := context.Background()
	p := h.screen(t, "biscuits")

	_, err := h.sys.AttachEvidence(ctx, sid, p.ID, "Gelatin", pngFile())
	require.NoError(t, err)

	entry, err := h.sys.Submit(ctx, sid, p.ID, pipeline.SubmitCommand{})
	require.NoError(t, err)
	assert.Equal(t, assessment.StageApproved, entry.Stage)
	assert.Equal(t, pipeline.PriorityNormal, entry.Priority)
}

func TestSubmitClientRequired(t *testing.T) {
	h := newHarness(t, pipeline.Policy{RequireClient: true})
	ctx := context.Background()
	p := h.screen(t, "water")

	blank := "   "
	_, err := h.sys.Submit(ctx, sid, p.ID, pipeline.SubmitCommand{ClientReference: &blank})
	require.ErrorIs(t, err, pipeline.ErrClientRequired)
	assert.Equal(t, 422, screening.MapHTTPStatus(err))

	page, err := h.pipeline.List(ctx, pagination.PageRequest{Page: 1, PageSize: 10}, pipeline.Filters{})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestEndSession(t *testing.T) {
	h := newHarness(t, pipeline.Policy{})
	ctx := context.Background()

	p := h.screen(t, "biscuits")
	res, err := h.sys.ScreenBatch(ctx, sid, batch("biscuits"))
	require.NoError(t, err)

	_, err = h.sys.AttachEvidence(ctx, sid, p.ID, "Gelatin", pngFile())
	require.NoError(t, err)
	_, err = h.sys.AttachEvidence(ctx, sid, res.Products[0].ID, "Gelatin", pngFile())
	require.NoError(t, err)
	require.Equal(t, 2, h.previews.Len())

	require.NoError(t, h.sys.EndSession(ctx, sid))
	assert.Zero(t, h.previews.Len())

	history, err := h.sys.History(ctx, sid)
	require.NoError(t, err)
	assert.Empty(t, history.SingleProductHistory)
	assert.Empty(t, history.BatchHistory)

	require.NoError(t, h.sys.EndSession(ctx, sid))
}

func TestSessionsAreIsolated(t *testing.T) {
	h := newHarness(t, pipeline.Policy{})
	ctx := context.Background()
	p := h.screen(t, "water")

	_, err := h.sys.Find(ctx, "reviewer-2", p.ID)
	require.ErrorIs(t, err, screening.ErrAssessmentNotFound)

	_, err = h.sys.AttachEvidence(ctx, "reviewer-2", p.ID, "Water", pngFile())
	require.True(t, errors.Is(err, screening.ErrAssessmentNotFound))
}
