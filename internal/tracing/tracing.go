// Package tracing wires OpenTelemetry run and phase spans. Tracing stays a
// no-op until an OTLP endpoint is configured.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/fx"

	"github.com/ambientdata/horaria/internal/config"
	"github.com/ambientdata/horaria/pkg/util/exception"
	"github.com/ambientdata/horaria/pkg/util/logger"
)

const tracerName = "github.com/ambientdata/horaria"

// NewTracerProvider builds the tracer provider. Without an endpoint the
// provider is a no-op; with one, spans are exported over OTLP/HTTP and the
// provider is flushed on shutdown through the fx lifecycle.
func NewTracerProvider(lc fx.Lifecycle, cfg *config.Config) (trace.TracerProvider, error) {
	endpoint := cfg.Horaria.Tracing.Endpoint
	if endpoint == "" {
		logger.Debugf("Tracing disabled: no OTLP endpoint configured.")
		return noop.NewTracerProvider(), nil
	}

	exporter, err := otlptracehttp.New(context.Background(),
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, exception.New("tracing", "failed to create OTLP trace exporter", err, false)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName("horaria"),
		semconv.ServiceVersion(cfg.Horaria.Pipeline.Version),
	))
	if err != nil {
		return nil, exception.New("tracing", "failed to build trace resource", err, false)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	})

	logger.Infof("Tracing enabled, exporting to %s.", endpoint)
	return tp, nil
}

// StartRunSpan opens the top-level span for one pipeline run.
func StartRunSpan(ctx context.Context, tp trace.TracerProvider, runID string) (context.Context, trace.Span) {
	return tp.Tracer(tracerName).Start(ctx, "pipeline.run",
		trace.WithAttributes(attribute.String("run.id", runID)))
}

// StartPhaseSpan opens a child span for one run phase (fetch, aggregate,
// export, watermark).
func StartPhaseSpan(ctx context.Context, tp trace.TracerProvider, phase string) (context.Context, trace.Span) {
	return tp.Tracer(tracerName).Start(ctx, "pipeline."+phase)
}

// Module provides the tracer provider.
var Module = fx.Options(
	fx.Provide(NewTracerProvider),
)
