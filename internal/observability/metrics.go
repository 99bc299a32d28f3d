package observability

import (
	"context"

	"civicapp/internal/config"
	contextutils "civicapp/internal/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// InitMetrics initializes OpenTelemetry metrics
func InitMetrics(cfg *config.OpenTelemetryConfig) (result0 *metric.MeterProvider, err error) {
	ctx := context.Background()

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var exporter metric.Exporter
	switch cfg.Protocol {
	case "grpc", "":
		opts := []otlpmetricgrpc.Option{
			otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
			otlpmetricgrpc.WithHeaders(cfg.Headers),
		}
		if cfg.Insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		exporter, err = otlpmetricgrpc.New(ctx, opts...)
		if err != nil {
			return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to create otlp grpc metric exporter: %w", err)
		}
	case "http":
		opts := []otlpmetrichttp.Option{
			otlpmetrichttp.WithEndpoint(cfg.Endpoint),
			otlpmetrichttp.WithHeaders(cfg.Headers),
		}
		if cfg.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		exporter, err = otlpmetrichttp.New(ctx, opts...)
		if err != nil {
			return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to create otlp http metric exporter: %w", err)
		}
	default:
		return nil, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "unsupported otel protocol: %s", cfg.Protocol)
	}

	return metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(exporter)),
		metric.WithResource(res),
	), nil
}

// DashboardMetrics records aggregate cache effectiveness and recompute cost
type DashboardMetrics struct {
	hits            otelmetric.Int64Counter
	misses          otelmetric.Int64Counter
	errors          otelmetric.Int64Counter
	computeDuration otelmetric.Float64Histogram
}

// NewDashboardMetrics registers the dashboard instruments on the global meter provider.
// Instrument creation errors fall back to no-op instruments.
func NewDashboardMetrics() *DashboardMetrics {
	meter := otel.Meter("civicapp/stats")
	m := &DashboardMetrics{}
	m.hits, _ = meter.Int64Counter("dashboard.cache.hits", otelmetric.WithDescription("Dashboard snapshots served from cache"))
	m.misses, _ = meter.Int64Counter("dashboard.cache.misses", otelmetric.WithDescription("Dashboard snapshots recomputed"))
	m.errors, _ = meter.Int64Counter("dashboard.cache.errors", otelmetric.WithDescription("Aggregate cache operations that failed"))
	m.computeDuration, _ = meter.Float64Histogram("dashboard.compute.duration",
		otelmetric.WithDescription("Time spent recomputing dashboard aggregates"),
		otelmetric.WithUnit("s"),
	)
	return m
}

// CacheHit counts a snapshot served from the cache
func (m *DashboardMetrics) CacheHit(ctx context.Context) {
	if m != nil && m.hits != nil {
		m.hits.Add(ctx, 1)
	}
}

// CacheMiss counts a recomputation
func (m *DashboardMetrics) CacheMiss(ctx context.Context) {
	if m != nil && m.misses != nil {
		m.misses.Add(ctx, 1)
	}
}

// CacheError counts a failed cache operation
func (m *DashboardMetrics) CacheError(ctx context.Context) {
	if m != nil && m.errors != nil {
		m.errors.Add(ctx, 1)
	}
}

// ComputeSeconds records how long a recomputation took
func (m *DashboardMetrics) ComputeSeconds(ctx context.Context, seconds float64) {
	if m != nil && m.computeDuration != nil {
		m.computeDuration.Record(ctx, seconds)
	}
}

// NotificationMetrics counts notification tasks handed to the queue
type NotificationMetrics struct {
	enqueued otelmetric.Int64Counter
	failed   otelmetric.Int64Counter
}

// NewNotificationMetrics registers the notification instruments on the global meter provider
func NewNotificationMetrics() *NotificationMetrics {
	meter := otel.Meter("civicapp/notifications")
	m := &NotificationMetrics{}
	m.enqueued, _ = meter.Int64Counter("notifications.enqueued")
	m.failed, _ = meter.Int64Counter("notifications.failed")
	return m
}

// Enqueued counts a successfully queued notification
func (m *NotificationMetrics) Enqueued(ctx context.Context) {
	if m != nil && m.enqueued != nil {
		m.enqueued.Add(ctx, 1)
	}
}

// Failed counts a notification that could not be queued or delivered
func (m *NotificationMetrics) Failed(ctx context.Context) {
	if m != nil && m.failed != nil {
		m.failed.Add(ctx, 1)
	}
}
