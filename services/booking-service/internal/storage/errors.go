package storage

import (
	cr "github.com/cockroachdb/errors"

	"github.com/chatbook/platform/libs/db"
)

var (
	ErrNotFound = cr.New("record not found")
	// ErrOverlap is the exclusion constraint on active appointment ranges firing.
	ErrOverlap   = cr.New("appointment overlaps an active appointment")
	ErrDuplicate = cr.New("duplicate record")
)

// classify wraps err with msg and marks it with the storage sentinel matching
// the underlying pg error, if any.
func classify(err error, msg string) error {
	if err == nil {
		return nil
	}
	wrapped := cr.Wrap(err, msg)
	if name := db.ConstraintName(err); name != "" {
		wrapped = cr.WithDetailf(wrapped, "constraint %s", name)
	}
	switch {
	case db.IsNoRows(err):
		return cr.Mark(wrapped, ErrNotFound)
	case db.HasCode(err, db.CodeExclusionViolation):
		return cr.Mark(wrapped, ErrOverlap)
	case db.HasCode(err, db.CodeUniqueViolation):
		return cr.Mark(wrapped, ErrDuplicate)
	}
	return wrapped
}
