package screening_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JaimeStill/tayyib/internal/assessment"
	"github.com/JaimeStill/tayyib/internal/classifier"
	"github.com/JaimeStill/tayyib/internal/evidence"
	"github.com/JaimeStill/tayyib/internal/normalize"
	"github.com/JaimeStill/tayyib/internal/pipeline"
	"github.com/JaimeStill/tayyib/internal/rollup"
	"github.com/JaimeStill/tayyib/internal/screening"
	"github.com/JaimeStill/tayyib/internal/session"
	"github.com/JaimeStill/tayyib/pkg/pagination"
)

const sid = "reviewer-1"

var pngData = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 32)...)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func conf(v float64) *float64 { return &v }

// fakeClassifier answers by product name. Unknown products fail.
type fakeClassifier struct {
	mu       sync.Mutex
	results  map[string][]normalize.Record
	errs     map[string]error
	calls    atomic.Int32
	inFlight atomic.Int32
	peak     atomic.Int32
	gate     chan struct{}
}

func newFakeClassifier() *fakeClassifier {
	return &fakeClassifier{
		results: map[string][]normalize.Record{
			"biscuits": {
				{Name: "Flour", Label: "HALAL", Confidence: conf(90)},
				{Name: "Gelatin", Label: "MASHBOOH", Confidence: conf(60)},
			},
			"sausage": {
				{Name: "Pork", Label: "HARAM", Confidence: conf(95)},
				{Name: "Salt", Label: "HALAL", Confidence: conf(90)},
			},
			"water": {
				{Name: "Water", Label: "HALAL", Confidence: conf(99)},
			},
			"mystery": {
				{Name: "XYZ", Label: "UNKNOWN_LABEL", Confidence: conf(70)},
				{Name: "", Label: "HALAL", Confidence: conf(80)},
			},
			"empty": {
				{Name: " ", Label: "HALAL"},
			},
		},
		errs: map[string]error{},
	}
}

func (f *fakeClassifier) Provider() string { return "fake" }

func (f *fakeClassifier) Classify(ctx context.Context, req classifier.Request) ([]normalize.Record, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[req.ProductName]; ok {
		return nil, err
	}
	records, ok := f.results[req.ProductName]
	if !ok {
		return nil, errors.New("no canned result")
	}
	return records, nil
}

type harness struct {
	sys        screening.System
	classifier *fakeClassifier
	ledger     *evidence.Ledger
	previews   *evidence.Previews
	sessions   *session.Store
	pipeline   pipeline.Store
}

func newHarness(t *testing.T, policy pipeline.Policy) *harness {
	t.Helper()
	logger := discardLogger()

	cfg := &evidence.Config{}
	require.NoError(t, cfg.Finalize(nil))
	previews, err := evidence.NewPreviews("", logger, nil)
	require.NoError(t, err)
	t.Cleanup(func() { previews.Close() })

	ledger := evidence.New(cfg, rollup.Default, previews, nil, logger, nil)
	sessions := session.NewStore(session.NewMemoryBackend(), session.DefaultTTL, logger, nil)
	store := pipeline.NewMemoryStore(pagination.Config{DefaultPageSize: 20, MaxPageSize: 100})
	fc := newFakeClassifier()

	sys := screening.New(screening.Deps{
		Classifier:  fc,
		Ledger:      ledger,
		Sessions:    sessions,
		Handoff:     pipeline.NewHandoff(store, policy, logger, nil),
		Concurrency: 2,
	}, logger)

	return &harness{
		sys:        sys,
		classifier: fc,
		ledger:     ledger,
		previews:   previews,
		sessions:   sessions,
		pipeline:   store,
	}
}

func (h *harness) screen(t *testing.T, name string) assessment.Product {
	t.Helper()
	res, err := h.sys.Screen(context.Background(), sid, screening.ScreenRequest{
		ProductName:     name,
		IngredientsText: "ingredients of " + name,
	})
	require.NoError(t, err)
	return res.Product
}

func pngFile() evidence.File {
	return evidence.File{
		Filename:     "cert.png",
		DeclaredType: assessment.DeclaredCertificate,
		MimeType:     "image/png",
		Data:         pngData,
	}
}

func names(products []assessment.Product) []string {
	out := make([]string, len(products))
	for i, p := range products {
		out[i] = p.ProductName
	}
	return out
}
