//go:build !cgo

package db

// isCgoConstraintError always reports false: without cgo the mattn driver is
// not linked and "sqlite3" cannot be opened.
func isCgoConstraintError(error) bool { return false }
