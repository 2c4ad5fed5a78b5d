package store

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write violates a uniqueness constraint.
var ErrConflict = errors.New("conflict")

const (
	pqInvalidTextRepresentation = "22P02"
	pqForeignKeyViolation       = "23503"
	pqUniqueViolation           = "23505"
)

func isPQCode(err error, code string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == code
	}
	return false
}

// translateWriteError maps constraint violations onto store sentinels.
// A foreign key violation means the referenced record is gone and a
// malformed id cannot name any record.
func translateWriteError(err error) error {
	switch {
	case err == nil:
		return nil
	case isPQCode(err, pqUniqueViolation):
		return ErrConflict
	case isPQCode(err, pqForeignKeyViolation), isPQCode(err, pqInvalidTextRepresentation):
		return ErrNotFound
	default:
		return err
	}
}

// translateReadError maps a missing row or a malformed id onto ErrNotFound.
func translateReadError(err error) error {
	if errors.Is(err, sql.ErrNoRows) || isPQCode(err, pqInvalidTextRepresentation) {
		return ErrNotFound
	}
	return err
}
