package db

import (
	"errors"
	"strings"

	sqlite3 "modernc.org/sqlite"
)

// SQLite result codes for constraint violations. The extended codes carry
// the constraint class in the high byte.
const (
	sqliteConstraint           = 19
	sqliteConstraintUnique     = 2067
	sqliteConstraintPrimaryKey = 1555
)

// isUniqueViolation classifies a storage error as a unique-constraint
// collision. The acquire path relies on this to discover a concurrent
// winner instead of failing the caller, so classification is deliberately
// typed (error code first, message as fallback) rather than a blanket
// error check.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var se *sqlite3.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqliteConstraintUnique, sqliteConstraintPrimaryKey:
			return true
		case sqliteConstraint:
			return strings.Contains(se.Error(), "UNIQUE constraint failed")
		}
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
