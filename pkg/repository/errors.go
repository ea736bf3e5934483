package repository

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/inkwell-ai/storyforge/pkg/pipeline"
)

// mapNotFound translates pgx.ErrNoRows into the shared pipeline.ErrNotFound
// sentinel so callers above this package never import pgx directly.
func mapNotFound(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return pipeline.ErrNotFound
	}
	return err
}

// isUniqueViolation reports whether err is a PostgreSQL unique_violation.
// Content-hash dedup does not depend on it: PgContentRepository.Create
// resolves a duplicate insert with ON CONFLICT.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
