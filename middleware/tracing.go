package middleware

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/duynhne/onboarding-service/config"
)

var (
	tracer          trace.Tracer
	tracerProvider  *sdktrace.TracerProvider
	detectedService string
)

// InitTracing installs the global tracer provider and W3C propagators.
// Spans are batched and exported over OTLP/HTTP to cfg.Tracing.Endpoint.
func InitTracing(cfg *config.Config) (*sdktrace.TracerProvider, error) {
	switch {
	case !cfg.Tracing.Enabled:
		return nil, errors.New("tracing is disabled (TRACING_ENABLED=false)")
	case cfg.Tracing.Endpoint == "":
		return nil, errors.New("OTEL_COLLECTOR_ENDPOINT is required when tracing is enabled")
	case cfg.Tracing.SampleRate < 0 || cfg.Tracing.SampleRate > 1.0:
		return nil, fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got: %.2f", cfg.Tracing.SampleRate)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.Tracing.Endpoint),
		otlptracehttp.WithInsecure(), // in-cluster collector
		otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
	)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	// CreateResource falls back to a minimal resource on partial failure.
	res, _ := CreateResource(ctx)
	if detectedService = GetServiceName(res); detectedService == unknownService {
		detectedService = cfg.Tracing.ServiceName
	}

	tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.Tracing.SampleRate))),
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(5*time.Second),
			sdktrace.WithExportTimeout(30*time.Second),
			sdktrace.WithMaxExportBatchSize(cfg.Tracing.MaxExportBatchSize),
		),
	)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	tracer = otel.Tracer(detectedService)

	return tracerProvider, nil
}

// Probe, scrape and static paths are never traced.
var untracedPaths = []string{"/health", "/ready", "/livez", "/metrics", "/favicon.ico"}

func shouldTrace(path string) bool {
	for _, skip := range untracedPaths {
		if strings.HasPrefix(path, skip) {
			return false
		}
	}
	return true
}

// TracingMiddleware wraps otelgin, skipping probe and scrape endpoints.
func TracingMiddleware() gin.HandlerFunc {
	traced := otelgin.Middleware(serviceNameOrUnknown(), otelgin.WithTracerProvider(otel.GetTracerProvider()))

	return func(c *gin.Context) {
		if shouldTrace(c.Request.URL.Path) {
			traced(c)
			return
		}
		c.Next()
	}
}

// GetTracer returns the service tracer, falling back to the global provider
// when InitTracing was not called.
func GetTracer() trace.Tracer {
	if tracer == nil {
		return otel.Tracer(serviceNameOrUnknown())
	}
	return tracer
}

func serviceNameOrUnknown() string {
	if detectedService == "" {
		return unknownService
	}
	return detectedService
}

// StartSpan starts a child span on the service tracer. The caller ends it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	//nolint:spancheck // span is returned to caller who is responsible for calling span.End()
	return GetTracer().Start(ctx, name, opts...)
}

// RecordError records err on span and marks it failed.
func RecordError(span trace.Span, err error) {
	if span.IsRecording() {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// Shutdown flushes pending spans and stops the tracer provider.
func Shutdown(ctx context.Context) error {
	if tracerProvider == nil {
		return nil
	}
	if err := tracerProvider.ForceFlush(ctx); err != nil {
		return fmt.Errorf("flush spans: %w", err)
	}
	return tracerProvider.Shutdown(ctx)
}
