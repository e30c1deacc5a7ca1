package db

import (
	"database/sql"
	"errors"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/germanygsg/taurimedrec/internal/apperr"
)

// classify wraps a store failure with the apperr kind it belongs to.
// The message is prepended to the driver's own text, which stays the
// human-readable part shown to the frontend.
func classify(err error, message string) error {
	if err == nil {
		return nil
	}

	kind := apperr.KindIO
	switch {
	case errors.Is(err, sql.ErrNoRows):
		kind = apperr.KindNotFound
	case isConstraintError(err):
		kind = apperr.KindConstraint
	}
	return apperr.Wrap(kind, err, message)
}

// isConstraintError reports whether err is an SQLITE_CONSTRAINT failure
// (UNIQUE, NOT NULL, CHECK ...) from either supported driver.
func isConstraintError(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}
	return isCgoConstraintError(err)
}
