package main

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tplumina/lumina/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const otelShutdownTimeout = 5 * time.Second

func tracingEnabled(cfg models.Config) bool {
	return cfg.OtelEnabled || firstNonEmpty(cfg.OtelEndpoint) != ""
}

// sampleRatio keeps the ratio in (0, 1]; unset means 10%.
func sampleRatio(v float64) float64 {
	switch {
	case v <= 0:
		return 0.1
	case v > 1:
		return 1
	default:
		return v
	}
}

func otelResource(cfg models.Config) *resource.Resource {
	name := firstNonEmpty(cfg.OtelServiceName, "lumina")
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(name),
		semconv.ServiceVersion(version),
		semconv.CloudAccountID(cfg.ProjectID),
	))
	if err != nil {
		// schema conflicts still yield a usable resource
		return resource.Default()
	}
	return res
}

// initOTel installs an OTLP/gRPC tracer provider when tracing is configured
// and returns its shutdown. Without configuration tracing stays a no-op.
func initOTel(ctx context.Context, cfg models.Config, logger *logrus.Logger) func(context.Context) error {
	noop := func(context.Context) error { return nil }
	if !tracingEnabled(cfg) {
		return noop
	}

	var opts []otlptracegrpc.Option
	if endpoint := firstNonEmpty(cfg.OtelEndpoint); endpoint != "" {
		opts = append(opts, otlptracegrpc.WithEndpoint(endpoint))
	}
	if cfg.OtelInsecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		logger.WithError(err).Warn("otel exporter unavailable, tracing disabled")
		return noop
	}

	ratio := sampleRatio(cfg.OtelSampleRate)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(otelResource(cfg)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	logger.WithFields(logrus.Fields{
		"endpoint":    cfg.OtelEndpoint,
		"sample_rate": ratio,
		"insecure":    cfg.OtelInsecure,
	}).Info("tracing enabled")
	return tp.Shutdown
}
