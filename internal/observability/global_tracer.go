package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "civic-app"

var globalTracer trace.Tracer

// InitGlobalTracer initializes the global tracer for the application.
func InitGlobalTracer() {
	globalTracer = otel.Tracer(tracerName)
}

// GetGlobalTracer returns the global tracer instance for the application.
func GetGlobalTracer() trace.Tracer {
	if globalTracer == nil {
		globalTracer = otel.Tracer(tracerName)
	}
	return globalTracer
}

// TraceFunction starts a new span with a descriptive name for the given service and function.
func TraceFunction(ctx context.Context, serviceName, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := GetGlobalTracer()
	spanName := fmt.Sprintf("%s.%s", serviceName, functionName)
	return tracer.Start(ctx, spanName, trace.WithAttributes(attributes...))
}

// TraceReportFunction starts a new span for a report lifecycle function.
func TraceReportFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "report", functionName, attributes...)
}

// TraceEngagementFunction starts a new span for a vote or comment function.
func TraceEngagementFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "engagement", functionName, attributes...)
}

// TraceStatsFunction starts a new span for an aggregation function.
func TraceStatsFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "stats", functionName, attributes...)
}

// TraceCacheFunction starts a new span for an aggregate cache operation.
func TraceCacheFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "cache", functionName, attributes...)
}

// TraceUserFunction starts a new span for a user service function.
func TraceUserFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "user", functionName, attributes...)
}

// TraceQueueFunction starts a new span for a task queue operation.
func TraceQueueFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "queue", functionName, attributes...)
}

// TraceStorageFunction starts a new span for a blob storage operation.
func TraceStorageFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "storage", functionName, attributes...)
}

// TraceNotificationFunction starts a new span for a notification function.
func TraceNotificationFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "notification", functionName, attributes...)
}

// TraceHandlerFunction starts a new span for a handler function.
func TraceHandlerFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "handler", functionName, attributes...)
}

// TraceDatabaseFunction starts a new span for a database function.
func TraceDatabaseFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "database", functionName, attributes...)
}

// AttributeReportID returns a tracing attribute for a report ID.
func AttributeReportID(id string) attribute.KeyValue {
	return attribute.String("report.id", id)
}

// AttributeUserID returns a tracing attribute for a user ID.
func AttributeUserID(id string) attribute.KeyValue {
	return attribute.String("user.id", id)
}

// AttributeStatus returns a tracing attribute for a report status.
func AttributeStatus(status string) attribute.KeyValue {
	return attribute.String("report.status", status)
}

// AttributeCategory returns a tracing attribute for a report category.
func AttributeCategory(category string) attribute.KeyValue {
	return attribute.String("report.category", category)
}

// AttributePage returns a tracing attribute for a page value.
func AttributePage(page int) attribute.KeyValue {
	return attribute.Int("page", page)
}

// AttributePageSize returns a tracing attribute for a page size value.
func AttributePageSize(size int) attribute.KeyValue {
	return attribute.Int("page_size", size)
}

// AttributeStatusFilter returns a tracing attribute for a status filter value.
func AttributeStatusFilter(statusFilter string) attribute.KeyValue {
	return attribute.String("status_filter", statusFilter)
}

// AttributeCategoryFilter returns a tracing attribute for a category filter value.
func AttributeCategoryFilter(categoryFilter string) attribute.KeyValue {
	return attribute.String("category_filter", categoryFilter)
}

// AttributeCacheKey returns a tracing attribute for a cache key.
func AttributeCacheKey(key string) attribute.KeyValue {
	return attribute.String("cache.key", key)
}

// AttributeTaskType returns a tracing attribute for a queued task type.
func AttributeTaskType(taskType string) attribute.KeyValue {
	return attribute.String("task.type", taskType)
}
