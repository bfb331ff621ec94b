// Package evidence implements the verification ledger: attaching and
// removing evidence records on ingredient assessments. Document contents
// are stored and previewed but never interpreted.
package evidence

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/JaimeStill/tayyib/internal/assessment"
	"github.com/JaimeStill/tayyib/internal/metrics"
	"github.com/JaimeStill/tayyib/internal/rollup"
	"github.com/JaimeStill/tayyib/pkg/formatting"
	"github.com/JaimeStill/tayyib/pkg/storage"
)

// File is an uploaded verification document.
type File struct {
	Filename     string
	DeclaredType assessment.DeclaredType
	MimeType     string
	Data         []byte
}

// Ledger attaches and removes evidence records and keeps product
// rollups consistent after every change.
type Ledger struct {
	engine   *rollup.Engine
	previews *Previews
	archive  storage.System
	maxSize  int64
	allowed  []string
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// New creates a Ledger. archive may be nil, in which case evidence bytes
// live only in preview files.
func New(
	cfg *Config,
	engine *rollup.Engine,
	previews *Previews,
	archive storage.System,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Ledger {
	allowed := make([]string, 0, len(cfg.AllowedTypes))
	for _, t := range cfg.AllowedTypes {
		allowed = append(allowed, normalizeMime(t))
	}

	return &Ledger{
		engine:   engine,
		previews: previews,
		archive:  archive,
		maxSize:  cfg.MaxFileSizeBytes(),
		allowed:  allowed,
		logger:   logger.With("system", "evidence"),
		metrics:  m,
		now:      time.Now,
	}
}

// WithClock returns a copy of the ledger that stamps records using now.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	c := *l
	c.now = now
	return &c
}

// MaxFileSize returns the largest accepted evidence file in bytes.
func (l *Ledger) MaxFileSize() int64 {
	return l.maxSize
}

// Validate checks a file against the size and type constraints.
// An empty MimeType is sniffed from the content.
func (l *Ledger) Validate(f *File) error {
	if len(f.Data) == 0 {
		return fmt.Errorf("%w: %w", ErrFileRejected, ErrEmptyFile)
	}
	if int64(len(f.Data)) > l.maxSize {
		return fmt.Errorf(
			"%w: %w: %s exceeds %s",
			ErrFileRejected, ErrFileTooLarge,
			formatting.FormatBytes(int64(len(f.Data)), 1),
			formatting.FormatBytes(l.maxSize, 1),
		)
	}

	mime := normalizeMime(f.MimeType)
	if mime == "" || mime == "application/octet-stream" {
		mime = normalizeMime(http.DetectContentType(f.Data))
	}
	if !slices.Contains(l.allowed, mime) {
		return fmt.Errorf("%w: %w: %s", ErrFileRejected, ErrUnsupportedType, mime)
	}
	f.MimeType = mime
	return nil
}

// Attach records f as evidence for the named ingredient of p and
// recomputes the product rollup. p is modified only on success.
func (l *Ledger) Attach(
	ctx context.Context,
	p *assessment.Product,
	ingredient string,
	f File,
) (*assessment.EvidenceRecord, error) {
	ing, ok := p.Ingredient(ingredient)
	if !ok {
		l.metrics.RecordEvidence("attach", "not_found")
		return nil, fmt.Errorf("%w: %s", ErrIngredientNotFound, ingredient)
	}

	if err := l.Validate(&f); err != nil {
		l.metrics.RecordEvidence("attach", "rejected")
		return nil, err
	}

	rec := assessment.EvidenceRecord{
		ID:           uuid.New(),
		Filename:     filepath.Base(f.Filename),
		DeclaredType: f.DeclaredType,
		CapturedAt:   l.now().UTC(),
		ByteSize:     int64(len(f.Data)),
		MimeType:     f.MimeType,
		PageCount:    l.pageCount(f),
	}
	if rec.DeclaredType == "" {
		rec.DeclaredType = assessment.DeclaredOther
	}

	handle, err := l.previews.Open(rec.Filename, f.Data)
	if err != nil {
		l.metrics.RecordEvidence("attach", "error")
		return nil, err
	}
	rec.PreviewHandle = handle

	if l.archive != nil {
		key := storageKey(p.ID, rec.ID, rec.Filename)
		if err := l.archive.Upload(ctx, key, bytes.NewReader(f.Data), rec.MimeType); err != nil {
			l.releasePreview(handle)
			l.metrics.RecordEvidence("attach", "error")
			return nil, fmt.Errorf("archive evidence: %w", err)
		}
		rec.StorageKey = key
	}

	if err := ctx.Err(); err != nil {
		l.Discard(context.WithoutCancel(ctx), rec)
		return nil, err
	}

	ing.Evidence = append(ing.Evidence, rec)
	l.engine.Recompute(p)

	l.metrics.RecordEvidence("attach", "success")
	l.logger.Info(
		"evidence attached",
		"assessment_id", p.ID,
		"ingredient", ing.Name,
		"evidence_id", rec.ID,
		"declared_type", rec.DeclaredType,
		"size", rec.ByteSize,
	)
	return &rec, nil
}

// Remove takes the evidence record with id off the named ingredient
// and recomputes the rollup. It returns the removed record, or nil when
// no record has that id. The record's preview and archived copy are left
// in place; pass it to Discard once the change is persisted.
func (l *Ledger) Remove(
	p *assessment.Product,
	ingredient string,
	id uuid.UUID,
) (*assessment.EvidenceRecord, error) {
	ing, ok := p.Ingredient(ingredient)
	if !ok {
		l.metrics.RecordEvidence("remove", "not_found")
		return nil, fmt.Errorf("%w: %s", ErrIngredientNotFound, ingredient)
	}

	idx := slices.IndexFunc(ing.Evidence, func(r assessment.EvidenceRecord) bool {
		return r.ID == id
	})
	if idx < 0 {
		l.metrics.RecordEvidence("remove", "absent")
		return nil, nil
	}

	rec := ing.Evidence[idx]
	ing.Evidence = slices.Delete(ing.Evidence, idx, idx+1)
	l.engine.Recompute(p)

	l.metrics.RecordEvidence("remove", "success")
	l.logger.Info(
		"evidence removed",
		"assessment_id", p.ID,
		"ingredient", ing.Name,
		"evidence_id", id,
	)
	return &rec, nil
}

// Discard frees the preview handles of records and deletes their
// archived copies. Failures are logged.
func (l *Ledger) Discard(ctx context.Context, records ...assessment.EvidenceRecord) {
	for _, rec := range records {
		l.releasePreview(rec.PreviewHandle)
		l.deleteArchived(ctx, rec)
	}
}

// Release frees the preview handles held by records. Archived blobs are
// retained.
func (l *Ledger) Release(_ context.Context, records ...assessment.EvidenceRecord) {
	for _, rec := range records {
		l.releasePreview(rec.PreviewHandle)
	}
}

// Preview resolves the preview file path for an evidence record.
func (l *Ledger) Preview(rec assessment.EvidenceRecord) (string, bool) {
	return l.previews.Path(rec.PreviewHandle)
}

func (l *Ledger) releasePreview(handle string) {
	if err := l.previews.Release(handle); err != nil {
		l.logger.Warn("preview release failed", "handle", handle, "error", err)
	}
}

func (l *Ledger) deleteArchived(ctx context.Context, rec assessment.EvidenceRecord) {
	if l.archive == nil || rec.StorageKey == "" {
		return
	}
	if err := l.archive.Delete(ctx, rec.StorageKey); err != nil {
		l.logger.Warn("archived evidence delete failed", "key", rec.StorageKey, "error", err)
	}
}

func (l *Ledger) pageCount(f File) *int {
	if f.MimeType != "application/pdf" {
		return nil
	}

	count, err := api.PageCount(bytes.NewReader(f.Data), nil)
	if err != nil {
		l.logger.Warn("failed to extract PDF page count", "filename", f.Filename, "error", err)
		return nil
	}
	return &count
}

func normalizeMime(mime string) string {
	mime, _, _ = strings.Cut(mime, ";")
	return strings.ToLower(strings.TrimSpace(mime))
}

func storageKey(productID, evidenceID uuid.UUID, filename string) string {
	if filename == "." || filename == "" || filename == "/" {
		filename = "evidence"
	}
	return fmt.Sprintf("evidence/%s/%s/%s", productID, evidenceID, url.PathEscape(filename))
}
