package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/abhisek/ascend/ent"
	"github.com/abhisek/ascend/internal/apperr"
)

var (
	// ErrDuplicateEdge is returned by AddRelationship for an existing triple.
	ErrDuplicateEdge = errors.New("relationship already exists")

	// ErrStaleRecord is returned by WriteMastery when the record changed
	// since it was read.
	ErrStaleRecord = errors.New("mastery record changed since read")

	// ErrSessionAlreadyOpen is returned by StartSession when the student
	// has an open session.
	ErrSessionAlreadyOpen = errors.New("session already open")

	// ErrAlreadyServed is returned when a question was already served in
	// the session.
	ErrAlreadyServed = errors.New("question already served in session")
)

// mapErr classifies a database error into the persistence taxonomy.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}

	switch {
	case errors.Is(err, ErrDuplicateEdge), errors.Is(err, ErrStaleRecord):
		return apperr.Persistence(apperr.CodeConstraintViolation, op, err)
	case errors.Is(err, ErrSessionAlreadyOpen):
		return apperr.New(apperr.KindState, apperr.CodeSessionAlreadyOpen, op, err)
	case errors.Is(err, ErrAlreadyServed):
		return apperr.Persistence(apperr.CodeConstraintViolation, op, err)
	case errors.Is(err, sql.ErrNoRows), ent.IsNotFound(err):
		return apperr.Persistence(apperr.CodeNotFound, op, err)
	case ent.IsValidationError(err):
		return apperr.Validation(op, "%v", err)
	case errors.Is(err, context.DeadlineExceeded):
		return apperr.Persistence(apperr.CodeQueryTimeout, op, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w", op, err)
	}

	if ent.IsConstraintError(err) {
		return apperr.Persistence(apperr.CodeConstraintViolation, op, err)
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_CONSTRAINT:
			return apperr.Persistence(apperr.CodeConstraintViolation, op, err)
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return apperr.Persistence(apperr.CodeQueryTimeout, op, err)
		}
	}
	return apperr.Persistence(apperr.CodeConnectionFailure, op, err)
}

// isConstraint reports whether err is a constraint failure, as reported by
// ent or by the driver.
func isConstraint(err error) bool {
	if ent.IsConstraintError(err) {
		return true
	}
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
}
