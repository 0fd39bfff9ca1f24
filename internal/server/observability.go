package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

type Observability struct {
	Tracer oteltrace.Tracer
	Meter  metric.Meter

	traceProvider   *sdktrace.TracerProvider
	RunCounter      metric.Int64Counter
	FeatureDuration metric.Int64Histogram
	SkippedProbes   metric.Int64Counter
	OrphanCounter   metric.Int64Counter
}

func SetupObservability(ctx context.Context, cfg ObservabilityConfig) (*Observability, error) {
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "verify-api"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}
	sampler := sdktrace.TraceIDRatioBased(cfg.SampleRatio)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	if cfg.OTLPEndpoint != "" {
		exporter, exportErr := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		if exportErr != nil {
			return nil, fmt.Errorf("create otlp trace exporter: %w", exportErr)
		}
		tp = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sampler),
		)
	} else {
		slog.Info("otel trace exporter not configured; using local tracer provider")
	}
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	meter := otel.Meter(serviceName)
	tracer := otel.Tracer(serviceName)
	runCounter, _ := meter.Int64Counter("verify_run_total")
	featureDuration, _ := meter.Int64Histogram("verify_feature_duration_ms")
	skippedProbes, _ := meter.Int64Counter("verify_skipped_probe_total")
	orphanCounter, _ := meter.Int64Counter("verify_orphaned_resource_total")
	return &Observability{
		Tracer:          tracer,
		Meter:           meter,
		traceProvider:   tp,
		RunCounter:      runCounter,
		FeatureDuration: featureDuration,
		SkippedProbes:   skippedProbes,
		OrphanCounter:   orphanCounter,
	}, nil
}

func (o *Observability) Shutdown(ctx context.Context) error {
	if o == nil || o.traceProvider == nil {
		return nil
	}
	ctx, cancel := withTimeout(ctx, 10*time.Second)
	defer cancel()
	return o.traceProvider.Shutdown(ctx)
}

func (o *Observability) MarkRun(ctx context.Context, status string) {
	if o == nil {
		return
	}
	o.RunCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
	))
}

func (o *Observability) MarkFeature(ctx context.Context, feature string, durationMS int64) {
	if o == nil {
		return
	}
	o.FeatureDuration.Record(ctx, durationMS, metric.WithAttributes(
		attribute.String("feature", feature),
	))
}

func (o *Observability) MarkSkipped(ctx context.Context, reason string) {
	if o == nil {
		return
	}
	o.SkippedProbes.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (o *Observability) MarkOrphans(ctx context.Context, target string, count int64) {
	if o == nil || count <= 0 {
		return
	}
	o.OrphanCounter.Add(ctx, count, metric.WithAttributes(
		attribute.String("target", target),
	))
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}
