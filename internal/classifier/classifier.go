// Package classifier calls the external ingredient classifier and returns
// its raw per-ingredient records. Labels, reasoning and references are
// passed through uninterpreted.
package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/JaimeStill/tayyib/internal/metrics"
	"github.com/JaimeStill/tayyib/internal/normalize"
)

// File is an ingredient list supplied as a document instead of text.
type File struct {
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

// Request asks the classifier to classify one product's ingredients.
// Exactly one of IngredientsText or IngredientsFile is set.
type Request struct {
	ProductName     string `json:"product_name"`
	IngredientsText string `json:"ingredients_text,omitempty"`
	IngredientsFile *File  `json:"ingredients_file,omitempty"`
}

// Validate checks that the request carries ingredients.
func (r Request) Validate() error {
	hasText := strings.TrimSpace(r.IngredientsText) != ""
	hasFile := r.IngredientsFile != nil && len(r.IngredientsFile.Data) > 0
	if !hasText && !hasFile {
		return fmt.Errorf("%w: ingredients text or file required", ErrInvalidRequest)
	}
	if hasText && hasFile {
		return fmt.Errorf("%w: provide ingredients text or file, not both", ErrInvalidRequest)
	}
	return nil
}

// Classifier classifies ingredient lists.
type Classifier interface {
	// Classify returns the classifier's records in response order.
	// Failures of the remote call wrap ErrTransient.
	Classify(ctx context.Context, req Request) ([]normalize.Record, error)
	// Provider names the backing implementation.
	Provider() string
}

// New creates the classifier configured by cfg.
func New(cfg *Config, logger *slog.Logger, m *metrics.Metrics) (Classifier, error) {
	logger = logger.With("system", "classifier", "provider", cfg.Provider)

	var c Classifier
	var err error
	switch cfg.Provider {
	case ProviderOpenAI:
		c, err = newOpenAI(cfg, logger)
	case ProviderHTTP:
		c, err = newHTTP(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown classifier provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	return &instrumented{next: c, logger: logger, metrics: m}, nil
}

type instrumented struct {
	next    Classifier
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func (i *instrumented) Provider() string {
	return i.next.Provider()
}

func (i *instrumented) Classify(ctx context.Context, req Request) ([]normalize.Record, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	records, err := i.next.Classify(ctx, req)
	elapsed := time.Since(start)
	i.metrics.RecordClassifier(i.next.Provider(), err, elapsed)

	if err != nil {
		i.logger.Error(
			"classification failed",
			"product", req.ProductName,
			"elapsed", elapsed,
			"error", err,
		)
		return nil, err
	}

	i.logger.Info(
		"classification complete",
		"product", req.ProductName,
		"ingredients", len(records),
		"elapsed", elapsed,
	)
	return records, nil
}
