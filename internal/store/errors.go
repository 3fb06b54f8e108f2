package store

import (
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5/pgconn"

	"academy/internal/model"
)

// RangeIndex is the index the cross-student date range query depends on.
const RangeIndex = "log_entries_created_at_idx"

// RangeIndexDDL is the statement that provisions RangeIndex.
const RangeIndexDDL = "CREATE INDEX IF NOT EXISTS " + RangeIndex + " ON log_entries (created_at DESC)"

// indexSignature matches managed-database errors that carry a link to create
// the missing composite index.
var indexSignature = regexp.MustCompile(`(?is)requires an index.*?(https://\S+)`)

// DetectIndexError recognizes the "requires an index" error signature and
// extracts its remediation link.
func DetectIndexError(err error) (*model.IndexMissingError, bool) {
	if err == nil {
		return nil, false
	}
	var idx *model.IndexMissingError
	if errors.As(err, &idx) {
		return idx, true
	}
	m := indexSignature.FindStringSubmatch(err.Error())
	if m == nil {
		return nil, false
	}
	return &model.IndexMissingError{Index: RangeIndex, Remediation: m[1], Err: err}, true
}

// Postgres error codes the repository maps to domain errors.
const (
	pgUniqueViolation = "23505"
	pgUndefinedTable  = "42P01"
	pgInvalidText     = "22P02"
)

// classify translates driver errors to the model taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, model.ErrNotFound)
	}
	if idx, ok := DetectIndexError(err); ok {
		return idx
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%s: %w: %s", op, model.ErrInvalidInput, pgErr.Detail)
		case pgUndefinedTable:
			return fmt.Errorf("%s: %w: schema not migrated (%s)", op, model.ErrMisconfigured, pgErr.Message)
		case pgInvalidText:
			return fmt.Errorf("%s: %w", op, model.ErrNotFound)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
