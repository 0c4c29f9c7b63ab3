// Package telemetry sets up OpenTelemetry tracing and metrics for the
// dashboard service, plus the instrument set the run supervisor and
// HTTP layer record into.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/urbanflow/urbanflow"

// Shutdown flushes and stops the configured exporters.
type Shutdown func(ctx context.Context) error

// Init wires the global tracer and meter providers against an OTLP/HTTP
// collector. An empty endpoint disables export entirely; the returned
// shutdown is then a no-op.
func Init(ctx context.Context, endpoint, serviceName, version string, insecure bool) (Shutdown, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	tp, err := tracerProvider(ctx, endpoint, insecure, res)
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	mp, err := meterProvider(ctx, endpoint, insecure, res)
	if err != nil {
		return nil, err
	}
	otel.SetMeterProvider(mp)

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}

func tracerProvider(ctx context.Context, endpoint string, insecure bool, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
	if insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exp, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: trace exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
	), nil
}

func meterProvider(ctx context.Context, endpoint string, insecure bool, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(endpoint)}
	if insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	exp, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: metric exporter: %w", err)
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(15*time.Second))),
		sdkmetric.WithResource(res),
	), nil
}

// Tracer returns the service tracer.
func Tracer() trace.Tracer {
	return otel.GetTracerProvider().Tracer(scopeName)
}

// Metrics holds the counters recorded around simulation runs.
type Metrics struct {
	RunsStarted  metric.Int64Counter
	RunsStopped  metric.Int64Counter
	HTTPRequests metric.Int64Counter
}

// NewMetrics registers the run instruments on the global meter. Safe to
// call before Init; instruments are then no-ops.
func NewMetrics() (*Metrics, error) {
	meter := otel.GetMeterProvider().Meter(scopeName)

	started, err := meter.Int64Counter("urbanflow.runs.started",
		metric.WithDescription("Simulation runs launched"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: runs.started: %w", err)
	}
	stopped, err := meter.Int64Counter("urbanflow.runs.stopped",
		metric.WithDescription("Simulation runs stopped by request"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: runs.stopped: %w", err)
	}
	requests, err := meter.Int64Counter("urbanflow.http.requests",
		metric.WithDescription("HTTP requests served"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: http.requests: %w", err)
	}

	return &Metrics{RunsStarted: started, RunsStopped: stopped, HTTPRequests: requests}, nil
}
