package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/JaimeStill/tayyib/pkg/pagination"
	"github.com/JaimeStill/tayyib/pkg/query"
	"github.com/JaimeStill/tayyib/pkg/repository"
)

// Store is the certification pipeline's entry store.
type Store interface {
	Submit(ctx context.Context, entry Entry) (*Entry, error)
	Find(ctx context.Context, id uuid.UUID) (*Entry, error)
	List(
		ctx context.Context,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[Entry], error)
}

type repo struct {
	db         *sql.DB
	logger     *slog.Logger
	pagination pagination.Config
}

// NewStore creates a PostgreSQL-backed Store.
func NewStore(db *sql.DB, logger *slog.Logger, pagination pagination.Config) Store {
	return &repo{
		db:         db,
		logger:     logger.With("system", "pipeline-store"),
		pagination: pagination,
	}
}

func (r *repo) Submit(ctx context.Context, entry Entry) (*Entry, error) {
	q := `
		INSERT INTO pipeline_entries(id, source_assessment_id, product_name, overall_status, stage, priority, client_reference, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, source_assessment_id, product_name, overall_status, stage, priority, client_reference, submitted_at`

	args := []any{
		entry.ID,
		entry.SourceAssessmentID,
		entry.ProductName,
		entry.OverallStatus,
		entry.Stage,
		entry.Priority,
		entry.ClientReference,
		entry.SubmittedAt,
	}

	e, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Entry, error) {
		return repository.QueryOne(ctx, tx, q, args, scanEntry)
	})
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.logger.Info("pipeline entry stored", "id", e.ID)
	return &e, nil
}

func (r *repo) Find(ctx context.Context, id uuid.UUID) (*Entry, error) {
	q, args := query.NewBuilder(projection).BuildSingle("ID", id)

	e, err := repository.QueryOne(ctx, r.db, q, args, scanEntry)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &e, nil
}

func (r *repo) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Entry], error) {
	page.Normalize(r.pagination)

	qb := ListQuery(page, filters)

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count pipeline entries: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	entries, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanEntry)
	if err != nil {
		return nil, fmt.Errorf("query pipeline entries: %w", err)
	}

	result := pagination.NewPageResult(entries, total, page.Page, page.PageSize)
	return &result, nil
}

// ListQuery builds the list query for a page request and filters.
func ListQuery(page pagination.PageRequest, filters Filters) *query.Builder {
	qb := query.
		NewBuilder(projection, defaultSort).
		WhereSearch(page.Search, "ProductName", "ClientReference")

	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}
	return qb
}
