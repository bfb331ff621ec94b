package evidence_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"maps"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaimeStill/tayyib/internal/assessment"
	"github.com/JaimeStill/tayyib/internal/evidence"
	"github.com/JaimeStill/tayyib/internal/normalize"
	"github.com/JaimeStill/tayyib/internal/rollup"
	"github.com/JaimeStill/tayyib/pkg/lifecycle"
	"github.com/JaimeStill/tayyib/pkg/storage"
)

var (
	pngData  = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 32)...)
	jpegData = append([]byte("\xff\xd8\xff\xe0"), bytes.Repeat([]byte{0}, 32)...)
)

// memStore is an in-memory storage.System.
type memStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
	fail  error
}

func newMemStore() *memStore {
	return &memStore{blobs: make(map[string][]byte)}
}

func (m *memStore) Start(*lifecycle.Coordinator) error { return nil }

func (m *memStore) Upload(_ context.Context, key string, r io.Reader, _ string) error {
	if m.fail != nil {
		return m.fail
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = data
	return nil
}

func (m *memStore) Download(_ context.Context, key string) (*storage.Blob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &storage.Blob{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: int64(len(data)),
	}, nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[key]; !ok {
		return storage.ErrNotFound
	}
	delete(m.blobs, key)
	return nil
}

func (m *memStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blobs[key]
	return ok, nil
}

func (m *memStore) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return keysOf(m.blobs)
}

func keysOf(m map[string][]byte) []string {
	keys := make([]string, 0, len(m))
	for k := range maps.Keys(m) {
		keys = append(keys, k)
	}
	return keys
}

// onePagePDF builds a minimal single-page PDF with a valid xref table.
func onePagePDF() []byte {
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func product(t *testing.T) assessment.Product {
	t.Helper()
	conf := func(v float64) *float64 { return &v }
	ings, warnings := normalize.Batch([]normalize.Record{
		{Name: "Flour", Label: "HALAL", Confidence: conf(95)},
		{Name: "Gelatin", Label: "MASHBOOH", Confidence: conf(60)},
		{Name: "Pork fat", Label: "HARAM", Confidence: conf(99)},
	})
	require.Empty(t, warnings)
	return rollup.Default.Assemble("biscuits", ings)
}

func newLedger(t *testing.T, archive storage.System) (*evidence.Ledger, *evidence.Previews) {
	t.Helper()
	cfg := &evidence.Config{}
	require.NoError(t, cfg.Finalize(nil))
	previews := newPreviews(t)
	return evidence.New(cfg, rollup.Default, previews, archive, discardLogger(), nil), previews
}

func pngFile() evidence.File {
	return evidence.File{
		Filename:     "cert.png",
		DeclaredType: assessment.DeclaredCertificate,
		MimeType:     "image/png",
		Data:         pngData,
	}
}

func TestAttachApprovesReviewIngredient(t *testing.T) {
	ledger, previews := newLedger(t, nil)
	p := product(t)
	require.Equal(t, assessment.StatusProhibited, p.OverallStatus)

	rec, err := ledger.Attach(context.Background(), &p, "gelatin", pngFile())
	require.NoError(t, err)

	ing, _ := p.Ingredient("Gelatin")
	assert.Equal(t, assessment.StatusApproved, ing.Status)
	assert.Equal(t, assessment.StatusRequiresReview, ing.Classification)
	require.Len(t, ing.Evidence, 1)
	assert.Equal(t, rec.ID, ing.Evidence[0].ID)
	assert.Equal(t, int64(len(pngData)), rec.ByteSize)
	assert.Equal(t, "image/png", rec.MimeType)
	assert.Nil(t, rec.PageCount)
	assert.Empty(t, rec.StorageKey)
	assert.Equal(t, 1, p.Counts.Documented)
	assert.Equal(t, 1, previews.Len())

	_, ok := ledger.Preview(*rec)
	assert.True(t, ok)

	// pork fat still prohibits the product
	assert.Equal(t, assessment.StatusProhibited, p.OverallStatus)
	assert.Equal(t, assessment.StageNeedsReview, p.Stage)
	assert.True(t, rollup.Default.Consistent(&p))
}

func TestAttachProhibitedUnchanged(t *testing.T) {
	ledger, _ := newLedger(t, nil)
	p := product(t)

	_, err := ledger.Attach(context.Background(), &p, "pork fat", pngFile())
	require.NoError(t, err)

	ing, _ := p.Ingredient("pork fat")
	assert.Equal(t, assessment.StatusProhibited, ing.Status)
	assert.True(t, ing.Documented())
}

func TestAttachUnknownIngredient(t *testing.T) {
	ledger, previews := newLedger(t, nil)
	p := product(t)
	before := p.Clone()

	_, err := ledger.Attach(context.Background(), &p, "sugar", pngFile())
	require.ErrorIs(t, err, evidence.ErrIngredientNotFound)
	assert.Equal(t, before, p)
	assert.Equal(t, 0, previews.Len())
}

func TestAttachRejectsFiles(t *testing.T) {
	cases := []struct {
		name string
		file evidence.File
		is   error
	}{
		{
			name: "empty",
			file: evidence.File{Filename: "a.png", MimeType: "image/png"},
			is:   evidence.ErrEmptyFile,
		},
		{
			name: "too large",
			file: evidence.File{Filename: "a.png", MimeType: "image/png", Data: make([]byte, 10<<20+1)},
			is:   evidence.ErrFileTooLarge,
		},
		{
			name: "unsupported type",
			file: evidence.File{Filename: "a.txt", MimeType: "text/plain", Data: []byte("hello")},
			is:   evidence.ErrUnsupportedType,
		},
		{
			name: "sniffed unsupported",
			file: evidence.File{Filename: "a.bin", Data: []byte("plain text body")},
			is:   evidence.ErrUnsupportedType,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ledger, previews := newLedger(t, nil)
			p := product(t)
			before := p.Clone()

			_, err := ledger.Attach(context.Background(), &p, "gelatin", tc.file)
			require.ErrorIs(t, err, evidence.ErrFileRejected)
			assert.ErrorIs(t, err, tc.is)
			assert.Equal(t, before, p)
			assert.Equal(t, 0, previews.Len())
		})
	}
}

func TestTooLargeNamesLimit(t *testing.T) {
	ledger, _ := newLedger(t, nil)
	p := product(t)

	_, err := ledger.Attach(context.Background(), &p, "gelatin", evidence.File{
		Filename: "a.png",
		MimeType: "image/png",
		Data:     make([]byte, 11<<20),
	})
	require.ErrorIs(t, err, evidence.ErrFileTooLarge)
	assert.Contains(t, err.Error(), "11.0 MB exceeds 10.0 MB")
}

func TestAttachAcceptsMaxSize(t *testing.T) {
	ledger, _ := newLedger(t, nil)
	p := product(t)

	data := make([]byte, 10<<20)
	copy(data, pngData)
	_, err := ledger.Attach(context.Background(), &p, "gelatin", evidence.File{
		Filename: "big.png",
		MimeType: "image/png",
		Data:     data,
	})
	assert.NoError(t, err)
}

func TestAttachSniffsMimeType(t *testing.T) {
	ledger, _ := newLedger(t, nil)
	p := product(t)

	rec, err := ledger.Attach(context.Background(), &p, "gelatin", evidence.File{
		Filename: "letter.jpg",
		MimeType: "application/octet-stream",
		Data:     jpegData,
	})
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", rec.MimeType)
	assert.Equal(t, assessment.DeclaredOther, rec.DeclaredType)
}

func TestAttachPDFPageCount(t *testing.T) {
	ledger, _ := newLedger(t, nil)
	p := product(t)

	rec, err := ledger.Attach(context.Background(), &p, "gelatin", evidence.File{
		Filename:     "lab.pdf",
		DeclaredType: assessment.DeclaredLabReport,
		MimeType:     "application/pdf",
		Data:         onePagePDF(),
	})
	require.NoError(t, err)
	require.NotNil(t, rec.PageCount)
	assert.Equal(t, 1, *rec.PageCount)
}

func TestAttachUnreadablePDFStillAccepted(t *testing.T) {
	ledger, _ := newLedger(t, nil)
	p := product(t)

	rec, err := ledger.Attach(context.Background(), &p, "gelatin", evidence.File{
		Filename: "scan.pdf",
		MimeType: "application/pdf",
		Data:     []byte("%PDF-1.4 truncated"),
	})
	require.NoError(t, err)
	assert.Nil(t, rec.PageCount)
}

func TestAttachArchivesAndRemoveDeletes(t *testing.T) {
	store := newMemStore()
	ledger, _ := newLedger(t, store)
	p := product(t)

	rec, err := ledger.Attach(context.Background(), &p, "gelatin", pngFile())
	require.NoError(t, err)
	require.NotEmpty(t, rec.StorageKey)
	assert.True(t, strings.HasPrefix(rec.StorageKey, "evidence/"+p.ID.String()+"/"))

	data, err := storage.ReadAll(context.Background(), store, rec.StorageKey)
	require.NoError(t, err)
	assert.Equal(t, pngData, data)

	removed, err := ledger.Remove(&p, "gelatin", rec.ID)
	require.NoError(t, err)
	require.NotNil(t, removed)
	assert.Equal(t, rec.StorageKey, removed.StorageKey)
	assert.Len(t, store.keys(), 1, "archive kept until discarded")

	ledger.Discard(context.Background(), *removed)
	assert.Empty(t, store.keys())
}

func TestAttachArchiveFailureLeavesProductUntouched(t *testing.T) {
	store := newMemStore()
	store.fail = fmt.Errorf("unavailable")
	ledger, previews := newLedger(t, store)
	p := product(t)
	before := p.Clone()

	_, err := ledger.Attach(context.Background(), &p, "gelatin", pngFile())
	require.Error(t, err)
	assert.Equal(t, before, p)
	assert.Equal(t, 0, previews.Len())
}

func TestAttachCancelledCommitsNothing(t *testing.T) {
	store := newMemStore()
	ledger, previews := newLedger(t, store)
	p := product(t)
	before := p.Clone()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ledger.Attach(ctx, &p, "gelatin", pngFile())
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, before, p)
	assert.Equal(t, 0, previews.Len())
	assert.Empty(t, store.keys())
}

func TestRemoveRestoresReview(t *testing.T) {
	ledger, previews := newLedger(t, nil)
	p := product(t)

	rec, err := ledger.Attach(context.Background(), &p, "gelatin", pngFile())
	require.NoError(t, err)

	removed, err := ledger.Remove(&p, "GELATIN", rec.ID)
	require.NoError(t, err)
	require.NotNil(t, removed)
	assert.Equal(t, rec.ID, removed.ID)

	ing, _ := p.Ingredient("gelatin")
	assert.Equal(t, assessment.StatusRequiresReview, ing.Status)
	assert.NotNil(t, ing.Evidence)
	assert.Empty(t, ing.Evidence)
	assert.True(t, rollup.Default.Consistent(&p))

	_, resolvable := ledger.Preview(*removed)
	assert.True(t, resolvable, "preview kept until discarded")
	assert.Equal(t, 1, previews.Len())

	ledger.Discard(context.Background(), *removed)
	assert.Equal(t, 0, previews.Len())
}

func TestRemoveAbsentIsNoop(t *testing.T) {
	ledger, _ := newLedger(t, nil)
	p := product(t)

	_, err := ledger.Attach(context.Background(), &p, "gelatin", pngFile())
	require.NoError(t, err)
	before := p.Clone()

	removed, err := ledger.Remove(&p, "gelatin", uuid.New())
	require.NoError(t, err)
	assert.Nil(t, removed)
	assert.Equal(t, before, p)
}

func TestRemoveUnknownIngredient(t *testing.T) {
	ledger, _ := newLedger(t, nil)
	p := product(t)

	_, err := ledger.Remove(&p, "sugar", uuid.New())
	assert.ErrorIs(t, err, evidence.ErrIngredientNotFound)
}

func TestReleaseFreesPreviews(t *testing.T) {
	ledger, previews := newLedger(t, nil)
	p := product(t)

	_, err := ledger.Attach(context.Background(), &p, "gelatin", pngFile())
	require.NoError(t, err)
	_, err = ledger.Attach(context.Background(), &p, "flour", pngFile())
	require.NoError(t, err)
	require.Equal(t, 2, previews.Len())

	ledger.Release(context.Background(), p.Evidence()...)
	assert.Equal(t, 0, previews.Len())

	// records remain on the product
	assert.Len(t, p.Evidence(), 2)
}

func TestAttachUsesClock(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ledger, _ := newLedger(t, nil)
	ledger = ledger.WithClock(func() time.Time { return at })
	p := product(t)

	rec, err := ledger.Attach(context.Background(), &p, "gelatin", pngFile())
	require.NoError(t, err)
	assert.Equal(t, at, rec.CapturedAt)
}

func TestRandomLedgerOperationsStayConsistent(t *testing.T) {
	ledger, previews := newLedger(t, nil)
	rng := rand.New(rand.NewPCG(3, 11))
	names := []string{"Flour", "Gelatin", "Pork fat", "Sugar"}

	for round := range 20 {
		p := product(t)
		attached := map[string][]uuid.UUID{}

		for range 25 {
			name := names[rng.IntN(len(names))]
			if rng.IntN(2) == 0 {
				rec, err := ledger.Attach(context.Background(), &p, name, pngFile())
				if name == "Sugar" {
					require.ErrorIs(t, err, evidence.ErrIngredientNotFound)
					continue
				}
				require.NoError(t, err)
				attached[name] = append(attached[name], rec.ID)
			} else {
				ids := attached[name]
				if name == "Sugar" || len(ids) == 0 {
					continue
				}
				i := rng.IntN(len(ids))
				removed, err := ledger.Remove(&p, name, ids[i])
				require.NoError(t, err)
				require.NotNil(t, removed)
				ledger.Discard(context.Background(), *removed)
				attached[name] = append(ids[:i], ids[i+1:]...)
			}

			require.True(t, rollup.Default.Consistent(&p), "round %d", round)

			gelatin, _ := p.Ingredient("Gelatin")
			if len(attached["Gelatin"]) > 0 {
				require.Equal(t, assessment.StatusApproved, gelatin.Status)
			} else {
				require.Equal(t, assessment.StatusRequiresReview, gelatin.Status)
			}
			require.Equal(t, assessment.StatusProhibited, p.OverallStatus)
		}

		ledger.Release(context.Background(), p.Evidence()...)
	}

	assert.Equal(t, 0, previews.Len())
}
