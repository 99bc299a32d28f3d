package contextutils

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The error kinds a report mutation can surface, and how callers should treat them
func TestReportErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		code      ErrorCode
		retryable bool
	}{
		{name: "bad coordinates", err: WrapError(ErrValidationFailed, "latitude must be within [-90, 90]"), code: ErrorCodeValidationFailed},
		{name: "stranger edits report", err: WrapError(ErrForbidden, "only the owner may modify this report"), code: ErrorCodeForbidden},
		{name: "missing report", err: WrapErrorf(ErrRecordNotFound, "report %s not found", "r1"), code: ErrorCodeRecordNotFound},
		{name: "duplicate vote", err: WrapError(ErrRecordExists, "user has already voted on this report"), code: ErrorCodeRecordExists},
		{name: "report no longer pending", err: WrapError(ErrInvalidState, "report can only be changed while Pending"), code: ErrorCodeInvalidState},
		{name: "store unreachable", err: WrapError(ErrDatabaseConnection, "failed to load report"), code: ErrorCodeDatabaseConnection, retryable: true},
		{name: "cache unreachable", err: WrapError(ErrCacheUnavailable, "failed to read dashboard"), code: ErrorCodeCacheUnavailable, retryable: true},
		{name: "store timeout", err: WrapError(ErrTimeout, "count by status"), code: ErrorCodeTimeout, retryable: true},
		{name: "blob store down", err: WrapError(ErrServiceUnavailable, "failed to upload image"), code: ErrorCodeServiceUnavailable, retryable: true},
		{name: "plain driver error", err: WrapError(errors.New("pq: syntax error"), "failed to insert report"), code: ErrorCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, GetErrorCode(tt.err))
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}

func TestIsRetryable_FatalAndForeignErrors(t *testing.T) {
	assert.False(t, IsRetryable(&AppError{Code: ErrorCodeTimeout, Severity: SeverityFatal}))
	assert.False(t, IsRetryable(errors.New("connection reset")))
	assert.False(t, IsRetryable(nil))
}

func TestAppError_ErrorString(t *testing.T) {
	err := NewAppError(ErrorCodeInvalidState, SeverityInfo, "report can only be changed while Pending", "current status is Fixed")
	assert.Equal(t, "INVALID_STATE: report can only be changed while Pending - current status is Fixed", err.Error())

	bare := NewAppError(ErrorCodeRecordNotFound, SeverityInfo, "report not found", "")
	assert.Equal(t, "RECORD_NOT_FOUND: report not found", bare.Error())
}

func TestWrapError_KeepsCodeAcrossLayers(t *testing.T) {
	assert.Nil(t, WrapError(nil, "ignored"))

	repoErr := NewAppErrorWithCause(ErrorCodeRecordExists, SeverityInfo, "user has already voted on this report", "", errors.New("pq: duplicate key"))
	serviceErr := WrapError(repoErr, "failed to record vote")

	var appErr *AppError
	require.True(t, errors.As(serviceErr, &appErr))
	assert.Equal(t, ErrorCodeRecordExists, appErr.Code)
	assert.Equal(t, SeverityInfo, appErr.Severity)
	assert.Equal(t, "failed to record vote", appErr.Message)
	assert.Contains(t, appErr.Details, "user has already voted")
	assert.ErrorIs(t, serviceErr, repoErr)
}

func TestWrapErrorf_PercentWKeepsChain(t *testing.T) {
	wrapped := WrapErrorf(ErrInvalidState, "report %s is %w", "r1", ErrInvalidState)

	assert.Equal(t, ErrorCodeInvalidState, GetErrorCode(wrapped))
	assert.True(t, errors.Is(wrapped, ErrInvalidState))
	assert.Nil(t, WrapErrorf(nil, "report %s", "r1"))
}

func TestIsError_ThroughFmtWrapping(t *testing.T) {
	err := fmt.Errorf("outer: %w", WrapError(ErrRecordExists, "vote already recorded"))

	assert.True(t, IsError(err, ErrRecordExists))
	assert.False(t, IsError(err, ErrRecordNotFound))
	assert.False(t, IsError(errors.New("vote already recorded"), ErrRecordExists))
}

func TestErrorWithContextf(t *testing.T) {
	err := ErrorWithContextf("unsupported queue backend %q", "kafka")

	assert.Equal(t, ErrorCodeInternalError, GetErrorCode(err))
	assert.Contains(t, err.Error(), `unsupported queue backend "kafka"`)
}

func TestAppError_ToJSON(t *testing.T) {
	t.Run("client error hides cause", func(t *testing.T) {
		body := NewAppErrorWithCause(ErrorCodeValidationFailed, SeverityWarn, "invalid report", "Description failed required", errors.New("validator")).ToJSON()

		assert.Equal(t, "VALIDATION_FAILED", body["code"])
		assert.Equal(t, "invalid report", body["message"])
		assert.Equal(t, "warn", body["severity"])
		assert.Equal(t, "Description failed required", body["details"])
		assert.Equal(t, false, body["retryable"])
		assert.NotContains(t, body, "cause")
	})

	t.Run("dependency error is retryable and carries cause", func(t *testing.T) {
		body := NewAppErrorWithCause(ErrorCodeDatabaseConnection, SeverityError, "failed to load dashboard", "", errors.New("dial tcp: refused")).ToJSON()

		assert.Equal(t, true, body["retryable"])
		assert.Equal(t, "dial tcp: refused", body["cause"])
		assert.NotContains(t, body, "details")
	})
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetUserIDFromContext(ctx))
	assert.False(t, IsAdminFromContext(ctx))

	ctx = WithIsAdmin(WithUserID(ctx, "user-1"), true)
	assert.Equal(t, "user-1", GetUserIDFromContext(ctx))
	assert.True(t, IsAdminFromContext(ctx))
}
