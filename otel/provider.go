// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package otel configures the OpenTelemetry SDK for a capsule.
//
// Providers are [config.Reader]s which produce no value when their exporter
// produces none, so telemetry stays disabled until an OTLP endpoint is
// configured. [Build] installs whatever providers were produced and falls
// back to no-op providers for the rest.
//
// Environment Variables:
//   - OTEL_SERVICE_NAME: service name resource attribute, default "capsule"
//   - OTEL_SERVICE_VERSION: service version resource attribute
//   - OTEL_TRACES_SAMPLER_ARG: trace ID ratio between 0 and 1, default 1
//   - OTEL_BSP_SCHEDULE_DELAY: delay between span batch exports
//   - OTEL_METRIC_EXPORT_INTERVAL: interval between metric exports
//   - OTEL_BLRP_SCHEDULE_DELAY: delay between log batch exports
//   - CAPSULE_LOG_LEVELS: minimum levels per logger, e.g. "gemini=warn"
//
// Durations use Go syntax, e.g. "5s".
package otel

import (
	"context"
	"time"

	"github.com/z5labs/capsule/config"

	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.38.0"
	"go.opentelemetry.io/otel/trace"
)

// DefaultServiceName is reported when OTEL_SERVICE_NAME is not set.
const DefaultServiceName = "capsule"

// Resource describes the process producing telemetry.
type Resource struct {
	ServiceName    config.Reader[string]
	ServiceVersion config.Reader[string]
}

// ResourceFromEnv reads the service name and version from OTEL_SERVICE_NAME
// and OTEL_SERVICE_VERSION.
func ResourceFromEnv() Resource {
	return Resource{
		ServiceName:    config.Env("OTEL_SERVICE_NAME"),
		ServiceVersion: config.Env("OTEL_SERVICE_VERSION"),
	}
}

// Read implements the [config.Reader] interface.
func (r Resource) Read(ctx context.Context) (config.Value[*resource.Resource], error) {
	attrs := []resource.Option{
		resource.WithTelemetrySDK(),
		resource.WithAttributes(semconv.ServiceName(config.MustOr(ctx, DefaultServiceName, r.ServiceName))),
	}
	if version := config.MustOr(ctx, "", r.ServiceVersion); version != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.ServiceVersion(version)))
	}

	rsc, err := resource.New(context.Background(), attrs...)
	if err != nil {
		return config.Value[*resource.Resource]{}, err
	}
	return config.ValueOf(rsc), nil
}

// TracerProvider batches spans to Exporter, sampling by trace ID.
type TracerProvider struct {
	Resource    config.Reader[*resource.Resource]
	Exporter    config.Reader[sdktrace.SpanExporter]
	SampleRatio config.Reader[float64]
	BatchDelay  config.Reader[time.Duration]
}

// TracerProviderFromEnv configures a [TracerProvider] for exporter from the
// standard OTEL_* variables.
func TracerProviderFromEnv(rsc config.Reader[*resource.Resource], exporter config.Reader[sdktrace.SpanExporter]) TracerProvider {
	return TracerProvider{
		Resource:    rsc,
		Exporter:    exporter,
		SampleRatio: config.Float64FromString(config.Env("OTEL_TRACES_SAMPLER_ARG")),
		BatchDelay:  config.DurationFromString(config.Env("OTEL_BSP_SCHEDULE_DELAY")),
	}
}

// Read implements the [config.Reader] interface. No value is produced
// when Exporter produces none.
func (tp TracerProvider) Read(ctx context.Context) (config.Value[trace.TracerProvider], error) {
	exporter, ok, err := optional(ctx, tp.Exporter)
	if !ok || err != nil {
		return config.Value[trace.TracerProvider]{}, err
	}

	rsc := config.Must(ctx, tp.Resource)
	ratio := config.MustOr(ctx, 1.0, tp.SampleRatio)
	delay := config.MustOr(ctx, 5*time.Second, tp.BatchDelay)

	return config.ValueOf[trace.TracerProvider](sdktrace.NewTracerProvider(
		sdktrace.WithResource(rsc),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(delay)),
	)), nil
}

// MeterProvider periodically exports metrics to Exporter.
type MeterProvider struct {
	Resource config.Reader[*resource.Resource]
	Exporter config.Reader[sdkmetric.Exporter]
	Interval config.Reader[time.Duration]
}

// MeterProviderFromEnv configures a [MeterProvider] for exporter from the
// standard OTEL_* variables.
func MeterProviderFromEnv(rsc config.Reader[*resource.Resource], exporter config.Reader[sdkmetric.Exporter]) MeterProvider {
	return MeterProvider{
		Resource: rsc,
		Exporter: exporter,
		Interval: config.DurationFromString(config.Env("OTEL_METRIC_EXPORT_INTERVAL")),
	}
}

// Read implements the [config.Reader] interface. No value is produced
// when Exporter produces none.
func (mp MeterProvider) Read(ctx context.Context) (config.Value[metric.MeterProvider], error) {
	exporter, ok, err := optional(ctx, mp.Exporter)
	if !ok || err != nil {
		return config.Value[metric.MeterProvider]{}, err
	}

	rsc := config.Must(ctx, mp.Resource)
	interval := config.MustOr(ctx, 60*time.Second, mp.Interval)

	return config.ValueOf[metric.MeterProvider](sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(rsc),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
	)), nil
}

// LoggerProvider batches log records to Exporter.
type LoggerProvider struct {
	Resource   config.Reader[*resource.Resource]
	Exporter   config.Reader[sdklog.Exporter]
	BatchDelay config.Reader[time.Duration]

	// Levels sets minimum levels per logger, see [ParseLogLevels].
	Levels config.Reader[string]
}

// LoggerProviderFromEnv configures a [LoggerProvider] for exporter from the
// standard OTEL_* variables.
func LoggerProviderFromEnv(rsc config.Reader[*resource.Resource], exporter config.Reader[sdklog.Exporter]) LoggerProvider {
	return LoggerProvider{
		Resource:   rsc,
		Exporter:   exporter,
		BatchDelay: config.DurationFromString(config.Env("OTEL_BLRP_SCHEDULE_DELAY")),
		Levels:     LogLevelsFromEnv(),
	}
}

// Read implements the [config.Reader] interface. No value is produced
// when Exporter produces none.
func (lp LoggerProvider) Read(ctx context.Context) (config.Value[log.LoggerProvider], error) {
	exporter, ok, err := optional(ctx, lp.Exporter)
	if !ok || err != nil {
		return config.Value[log.LoggerProvider]{}, err
	}

	rsc := config.Must(ctx, lp.Resource)
	delay := config.MustOr(ctx, time.Second, lp.BatchDelay)

	var processor sdklog.Processor = sdklog.NewBatchProcessor(exporter, sdklog.WithExportInterval(delay))
	if levels := ParseLogLevels(config.MustOr(ctx, "", lp.Levels)); len(levels) > 0 {
		processor = newLevelFilter(processor, levels)
	}

	return config.ValueOf[log.LoggerProvider](sdklog.NewLoggerProvider(
		sdklog.WithResource(rsc),
		sdklog.WithProcessor(processor),
	)), nil
}

func optional[T any](ctx context.Context, r config.Reader[T]) (T, bool, error) {
	var zero T
	if r == nil {
		return zero, false, nil
	}
	val, err := r.Read(ctx)
	if err != nil {
		return zero, false, err
	}
	v, ok := val.Value()
	return v, ok, nil
}
