package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	contextutils "civicapp/internal/utils"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected contextutils.ErrorCode
	}{
		{name: "no rows", err: sql.ErrNoRows, expected: contextutils.ErrorCodeRecordNotFound},
		{name: "unique violation", err: &pq.Error{Code: "23505"}, expected: contextutils.ErrorCodeRecordExists},
		{name: "wrapped unique violation", err: fmt.Errorf("insert vote: %w", &pq.Error{Code: "23505"}), expected: contextutils.ErrorCodeRecordExists},
		{name: "foreign key violation", err: &pq.Error{Code: "23503"}, expected: contextutils.ErrorCodeRecordNotFound},
		{name: "check violation", err: &pq.Error{Code: "23514"}, expected: contextutils.ErrorCodeValidationFailed},
		{name: "bad connection", err: driver.ErrBadConn, expected: contextutils.ErrorCodeDatabaseConnection},
		{name: "connection exception class", err: &pq.Error{Code: "08006"}, expected: contextutils.ErrorCodeDatabaseConnection},
		{name: "admin shutdown", err: &pq.Error{Code: "57P01"}, expected: contextutils.ErrorCodeDatabaseConnection},
		{name: "deadline", err: context.DeadlineExceeded, expected: contextutils.ErrorCodeTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := ClassifyError(tt.err)
			assert.Equal(t, tt.expected, contextutils.GetErrorCode(classified))
			assert.True(t, errors.Is(classified, tt.err) || errors.Unwrap(classified) == tt.err)
		})
	}
}

func TestClassifyError_PassThrough(t *testing.T) {
	assert.Nil(t, ClassifyError(nil))

	plain := errors.New("syntax error at or near")
	assert.Same(t, plain, ClassifyError(plain))

	appErr := contextutils.WrapError(contextutils.ErrInvalidState, "not pending")
	assert.Same(t, appErr, ClassifyError(appErr))
}

func TestClassifyError_ConnectionErrorsAreRetryable(t *testing.T) {
	assert.True(t, contextutils.IsRetryable(ClassifyError(driver.ErrBadConn)))
	assert.False(t, contextutils.IsRetryable(ClassifyError(&pq.Error{Code: "23505"})))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("duplicate key")))
}

func TestViolatedConstraint(t *testing.T) {
	err := fmt.Errorf("insert vote: %w", &pq.Error{Code: "23503", Constraint: "votes_user_id_fkey"})
	assert.Equal(t, "votes_user_id_fkey", ViolatedConstraint(err))
	assert.Empty(t, ViolatedConstraint(errors.New("plain")))
}
