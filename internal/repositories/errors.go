package repositories

import (
	"errors"

	"github.com/lib/pq"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgInvalidTextRepr     = "22P02"
)

// ErrDuplicate is returned when an insert collides with a uniqueness key.
var ErrDuplicate = errors.New("duplicate row")

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

func isUniqueViolation(err error) bool { return pqCode(err) == pgUniqueViolation }

func isForeignKeyViolation(err error) bool { return pqCode(err) == pgForeignKeyViolation }

// isMalformedID catches identifiers that are not valid uuids; the row cannot exist.
func isMalformedID(err error) bool { return pqCode(err) == pgInvalidTextRepr }
