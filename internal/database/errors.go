package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"

	contextutils "civicapp/internal/utils"

	"github.com/lib/pq"
)

// Postgres SQLSTATE codes the repositories translate
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
	pqCheckViolation      = "23514"
)

// IsUniqueViolation reports whether err is a postgres unique constraint violation
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}

// IsForeignKeyViolation reports whether err is a postgres foreign key violation
func IsForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation
}

// ViolatedConstraint returns the constraint named by a postgres integrity error, or ""
func ViolatedConstraint(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Constraint
	}
	return ""
}

// IsConnectionError reports whether err means the database could not be reached
func IsConnectionError(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pqErr *pq.Error
	// Class 08: connection exception; 57P01..57P03: admin shutdown / cannot connect now
	if errors.As(err, &pqErr) {
		return pqErr.Code.Class() == "08" || pqErr.Code == "57P01" || pqErr.Code == "57P02" || pqErr.Code == "57P03"
	}
	return false
}

// ClassifyError maps driver errors onto the application error taxonomy.
// Errors that are already AppErrors, or unrecognised, pass through unchanged.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}

	var appErr *contextutils.AppError
	if errors.As(err, &appErr) {
		return err
	}

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return contextutils.NewAppErrorWithCause(contextutils.ErrorCodeRecordNotFound, contextutils.SeverityInfo, "Record not found", err.Error(), err)
	case IsUniqueViolation(err):
		return contextutils.NewAppErrorWithCause(contextutils.ErrorCodeRecordExists, contextutils.SeverityInfo, "Record already exists", err.Error(), err)
	case IsForeignKeyViolation(err):
		return contextutils.NewAppErrorWithCause(contextutils.ErrorCodeRecordNotFound, contextutils.SeverityInfo, "Referenced record not found", err.Error(), err)
	case isCheckViolation(err):
		return contextutils.NewAppErrorWithCause(contextutils.ErrorCodeValidationFailed, contextutils.SeverityWarn, "Constraint check failed", err.Error(), err)
	case errors.Is(err, context.DeadlineExceeded):
		return contextutils.NewAppErrorWithCause(contextutils.ErrorCodeTimeout, contextutils.SeverityWarn, "Database call timed out", err.Error(), err)
	case IsConnectionError(err):
		return contextutils.NewAppErrorWithCause(contextutils.ErrorCodeDatabaseConnection, contextutils.SeverityError, "Database connection failed", err.Error(), err)
	}
	return err
}

func isCheckViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqCheckViolation
}
