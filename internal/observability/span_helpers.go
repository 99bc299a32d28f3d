package observability

import (
	"errors"

	contextutils "civicapp/internal/utils"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// FinishSpan ends span, marking it failed when *errPtr is set. Application errors
// also tag the span with their code and whether a retry could succeed.
// Use with a named error return: `defer observability.FinishSpan(span, &err)`
func FinishSpan(span trace.Span, errPtr *error) {
	if span == nil {
		return
	}
	defer span.End()

	if errPtr == nil || *errPtr == nil {
		return
	}
	err := *errPtr

	var appErr *contextutils.AppError
	if errors.As(err, &appErr) {
		span.SetAttributes(
			attribute.String("error.code", string(appErr.Code)),
			attribute.Bool("error.retryable", contextutils.IsRetryable(appErr)),
		)
	}
	span.RecordError(err, trace.WithStackTrace(true))
	span.SetStatus(codes.Error, err.Error())
}
