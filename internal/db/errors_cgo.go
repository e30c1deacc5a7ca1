//go:build cgo

package db

import (
	"errors"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// isCgoConstraintError matches constraint failures from the mattn driver,
// which is registered as "sqlite3" in cgo builds.
func isCgoConstraintError(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrConstraint
	}
	return false
}
