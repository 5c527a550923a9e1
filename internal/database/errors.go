package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/safar/renew-path-trade/internal/apperr"
)

type ErrorClass int

const (
	ErrorClassPermanent ErrorClass = iota
	ErrorClassTransient
	ErrorClassDeadlock
	ErrorClassSerialization
	ErrorClassUniqueViolation
	ErrorClassConstraintViolation
)

func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassPermanent
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001":
			return ErrorClassSerialization
		case "40P01":
			return ErrorClassDeadlock
		case "55P03", "57014":
			return ErrorClassTransient
		case "23505":
			return ErrorClassUniqueViolation
		case "23503", "23502", "23514", "22P02", "22003":
			return ErrorClassConstraintViolation
		}
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		switch {
		case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE, code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return ErrorClassUniqueViolation
		case code&0xff == sqlite3.SQLITE_CONSTRAINT:
			return ErrorClassConstraintViolation
		case code&0xff == sqlite3.SQLITE_BUSY, code&0xff == sqlite3.SQLITE_LOCKED:
			return ErrorClassTransient
		}
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrorClassPermanent
	}

	return ErrorClassPermanent
}

// Translate wraps driver errors in the application error classes so the
// HTTP layer can map them without knowing which database is behind it.
func Translate(err error) error {
	switch ClassifyError(err) {
	case ErrorClassUniqueViolation:
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	case ErrorClassConstraintViolation:
		return fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	case ErrorClassTransient, ErrorClassDeadlock, ErrorClassSerialization:
		return fmt.Errorf("%w: %v", apperr.ErrUnavailable, err)
	}
	return err
}

var (
	ErrProfileNotFound = fmt.Errorf("profile %w", apperr.ErrNotFound)
	ErrProductNotFound = fmt.Errorf("product %w", apperr.ErrNotFound)
	ErrOrderNotFound   = fmt.Errorf("order %w", apperr.ErrNotFound)
	ErrRequestNotFound = fmt.Errorf("recycle request %w", apperr.ErrNotFound)
	ErrAccountNotFound = fmt.Errorf("account %w", apperr.ErrNotFound)
	ErrDuplicate       = fmt.Errorf("duplicate row: %w", apperr.ErrConflict)
	ErrStaleState      = fmt.Errorf("row is not in the expected state: %w", apperr.ErrConflict)
)
