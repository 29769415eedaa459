// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package otel

import (
	"context"
	"errors"

	"github.com/z5labs/capsule/app"
	"github.com/z5labs/capsule/config"

	"github.com/z5labs/sdk-go/try"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	lognoop "go.opentelemetry.io/otel/log/noop"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// SDK holds the readers for every global OpenTelemetry component.
//
// Unset readers, or readers which produce no value, fall back to a W3C
// trace context and baggage propagator and no-op providers.
type SDK struct {
	TextMapPropagator config.Reader[propagation.TextMapPropagator]
	TracerProvider    config.Reader[trace.TracerProvider]
	MeterProvider     config.Reader[metric.MeterProvider]
	LoggerProvider    config.Reader[log.LoggerProvider]

	// RuntimeMetrics enables Go runtime metrics (GC, heap, goroutines).
	RuntimeMetrics config.Reader[bool]
}

// Runtime installs the global providers around an inner runtime and shuts
// them down once it returns.
type Runtime struct {
	inner          app.Runtime
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	loggerProvider log.LoggerProvider
}

// Build reads sdk, registers the resulting providers globally and only then
// builds the inner runtime, so everything it constructs already reports to
// the configured providers.
func Build[T app.Runtime](sdk SDK, builder app.Builder[T]) app.Builder[Runtime] {
	return app.BuilderFunc[Runtime](func(ctx context.Context) (Runtime, error) {
		var (
			defaultPropagator propagation.TextMapPropagator = propagation.NewCompositeTextMapPropagator(
				propagation.TraceContext{},
				propagation.Baggage{},
			)
			defaultTracerProvider trace.TracerProvider = tracenoop.NewTracerProvider()
			defaultMeterProvider  metric.MeterProvider = metricnoop.NewMeterProvider()
			defaultLoggerProvider log.LoggerProvider   = lognoop.NewLoggerProvider()
		)

		tp := config.MustOr(ctx, defaultTracerProvider, sdk.TracerProvider)
		mp := config.MustOr(ctx, defaultMeterProvider, sdk.MeterProvider)
		lp := config.MustOr(ctx, defaultLoggerProvider, sdk.LoggerProvider)

		otel.SetTextMapPropagator(config.MustOr(ctx, defaultPropagator, sdk.TextMapPropagator))
		otel.SetTracerProvider(tp)
		otel.SetMeterProvider(mp)
		global.SetLoggerProvider(lp)

		if config.MustOr(ctx, false, sdk.RuntimeMetrics) {
			err := runtime.Start(runtime.WithMeterProvider(mp))
			if err != nil {
				return Runtime{}, errors.Join(err, shutdown(tp, mp, lp).Close())
			}
		}

		inner, err := builder.Build(ctx)
		if err != nil {
			return Runtime{}, errors.Join(err, shutdown(tp, mp, lp).Close())
		}

		return Runtime{
			inner:          inner,
			tracerProvider: tp,
			meterProvider:  mp,
			loggerProvider: lp,
		}, nil
	})
}

// Run runs the inner runtime. Providers are flushed and shut down even if
// it fails, and shutdown errors are joined with its error.
func (rt Runtime) Run(ctx context.Context) (err error) {
	defer try.Close(&err, shutdown(
		rt.tracerProvider,
		rt.meterProvider,
		rt.loggerProvider,
	))

	return rt.inner.Run(ctx)
}

type closerFunc func() error

func (f closerFunc) Close() error {
	return f()
}

type shutdowner interface {
	Shutdown(context.Context) error
}

// shutdown closes every provider which supports it. No-op providers don't.
func shutdown(providers ...any) closerFunc {
	return func() error {
		var errs error
		for _, p := range providers {
			s, ok := p.(shutdowner)
			if !ok {
				continue
			}
			errs = errors.Join(errs, s.Shutdown(context.Background()))
		}
		return errs
	}
}
