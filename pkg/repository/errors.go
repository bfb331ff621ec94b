package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE unique_violation.
const uniqueViolation = "23505"

// MapError turns driver errors into the caller's domain errors: a
// missing row becomes notFound and a unique violation becomes
// duplicate, naming the constraint when the server reports one. Any
// other error is returned as is.
func MapError(err error, notFound, duplicate error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows), errors.Is(err, pgx.ErrNoRows):
		return notFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		if pgErr.ConstraintName != "" {
			return fmt.Errorf("%w: %s", duplicate, pgErr.ConstraintName)
		}
		return duplicate
	}

	return err
}
