package observability

import (
	"context"

	"civicapp/internal/config"
	contextutils "civicapp/internal/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Providers holds the telemetry providers created for a process so they can be flushed on shutdown
type Providers struct {
	Tracer *sdktrace.TracerProvider
	Meter  *metric.MeterProvider
	Logger *Logger
}

// SetupObservability initializes tracing, metrics, and logging for a service
func SetupObservability(cfg *config.OpenTelemetryConfig, serviceName, logLevel string) (result0 *Providers, err error) {
	if serviceName != "" {
		cfg.ServiceName = serviceName
	}

	providers := &Providers{
		Logger: NewLoggerWithLevel(cfg, ParseLevel(logLevel)),
	}

	InitPropagation()

	if cfg.EnableTracing {
		tp, err := InitStandardTracing(cfg)
		if err != nil {
			return nil, contextutils.WrapError(err, "failed to initialize tracing")
		}
		otel.SetTracerProvider(tp)
		providers.Tracer = tp
		providers.Logger.Info(context.Background(), "Tracing enabled", map[string]interface{}{
			"service_name": cfg.ServiceName,
			"protocol":     cfg.Protocol,
		})
	}
	InitGlobalTracer()

	if cfg.EnableMetrics {
		mp, err := InitMetrics(cfg)
		if err != nil {
			return nil, contextutils.WrapError(err, "failed to initialize metrics")
		}
		otel.SetMeterProvider(mp)
		providers.Meter = mp
	}

	return providers, nil
}

// Shutdown flushes and stops the tracer and meter providers
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var firstErr error
	if p.Tracer != nil {
		if err := p.Tracer.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}
	if p.Meter != nil {
		if err := p.Meter.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if p.Logger != nil {
		_ = p.Logger.Sync()
	}
	return firstErr
}
