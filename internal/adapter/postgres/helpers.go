package postgres

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Strob0t/LabCore/internal/domain"
)

// PostgreSQL error codes the adapter reacts to.
const (
	sqlStateInsufficientPrivilege = "42501"
	sqlStateUniqueViolation       = "23505"
	sqlStateForeignKeyViolation   = "23503"
	sqlStateCheckViolation        = "23514"
	sqlStateInvalidText           = "22P02"
)

var identRegex = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// validIdent reports whether s can be used unquoted as a column name.
func validIdent(s string) bool {
	return identRegex.MatchString(s)
}

// scannable abstracts pgx.Row and pgx.Rows for shared scan helpers.
type scannable interface {
	Scan(dest ...any) error
}

// orEmpty returns items unchanged if non-nil, or an empty slice if nil.
// Useful to ensure JSON serialization produces [] instead of null.
func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// notFoundWrap checks whether err is pgx.ErrNoRows and, if so, wraps
// domain.ErrNotFound with the given message. Otherwise it maps the
// PostgreSQL error class onto the domain sentinels.
func notFoundWrap(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", msg, domain.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", msg, mapPgError(err))
}

// execExpectOne verifies that an Exec affected exactly one row. If not
// (and err is nil), it returns domain.ErrNotFound with the given message.
func execExpectOne(tag pgconn.CommandTag, err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", msg, mapPgError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", msg, domain.ErrNotFound)
	}
	return nil
}

// mapPgError translates constraint failures into domain sentinels. The
// original error text is kept for logs.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case sqlStateUniqueViolation:
		return fmt.Errorf("%w (%s)", domain.ErrConflict, pgErr.ConstraintName)
	case sqlStateForeignKeyViolation, sqlStateCheckViolation, sqlStateInvalidText:
		return fmt.Errorf("%w: %s", domain.ErrValidation, pgErr.Message)
	}
	return err
}

// isPolicyViolation reports whether err is the storage boundary rejecting a
// row on tenant grounds.
func isPolicyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == sqlStateInsufficientPrivilege
}
