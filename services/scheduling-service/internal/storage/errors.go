package storage

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	codeExclusionViolation = "23P01"
	codeUniqueViolation    = "23505"

	overlapConstraint = "appointments_no_overlap"
)

// IsConflict reports whether err is the appointment overlap constraint
// firing, or any exclusion violation.
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case codeExclusionViolation:
		return true
	case codeUniqueViolation:
		return pgErr.ConstraintName == overlapConstraint
	default:
		return false
	}
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
