package services

import (
	"context"

	contextutils "civicapp/internal/utils"
)

// retryRead runs an idempotent read and repeats it once on a retryable dependency error
func retryRead[T any](ctx context.Context, read func(context.Context) (T, error)) (T, error) {
	result, err := read(ctx)
	if err == nil || !contextutils.IsRetryable(err) || ctx.Err() != nil {
		return result, err
	}
	return read(ctx)
}
