// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package otlp provides OTLP exporters for traces, metrics and logs.
//
// Exporters are configured with the standard variables:
//   - OTEL_EXPORTER_OTLP_PROTOCOL: "grpc" or "http/protobuf" (the default)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: base endpoint for every signal
//   - OTEL_EXPORTER_OTLP_{TRACES,METRICS,LOGS}_PROTOCOL: per signal protocol
//   - OTEL_EXPORTER_OTLP_{TRACES,METRICS,LOGS}_ENDPOINT: per signal endpoint, used as is
//
// An exporter whose endpoint is unset produces no value, which leaves the
// corresponding provider disabled.
package otlp

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/z5labs/capsule/concurrent"
	"github.com/z5labs/capsule/config"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	ProtocolGRPC         = "grpc"
	ProtocolHTTPProtobuf = "http/protobuf"
)

// Endpoint is where, and over which protocol, a signal is exported.
type Endpoint struct {
	Protocol config.Reader[string]
	URL      config.Reader[string]
}

// EndpointFromEnv reads the endpoint for signal, one of "traces", "metrics"
// or "logs". The per signal endpoint wins over the base endpoint, which has
// the signal path appended for HTTP.
func EndpointFromEnv(signal string) Endpoint {
	upper := strings.ToUpper(signal)

	protocol := config.Or(
		config.Env("OTEL_EXPORTER_OTLP_"+upper+"_PROTOCOL"),
		config.Env("OTEL_EXPORTER_OTLP_PROTOCOL"),
	)

	base := config.Map(config.Env("OTEL_EXPORTER_OTLP_ENDPOINT"), func(ctx context.Context, s string) (string, error) {
		if config.MustOr(ctx, ProtocolHTTPProtobuf, protocol) == ProtocolGRPC {
			return s, nil
		}
		return strings.TrimSuffix(s, "/") + "/v1/" + signal, nil
	})

	return Endpoint{
		Protocol: protocol,
		URL: config.Or(
			config.Env("OTEL_EXPORTER_OTLP_"+upper+"_ENDPOINT"),
			base,
		),
	}
}

func (e Endpoint) resolve(ctx context.Context) (protocol, endpoint string, ok bool, err error) {
	endpoint = config.MustOr(ctx, "", e.URL)
	if endpoint == "" {
		return "", "", false, nil
	}

	protocol = config.MustOr(ctx, ProtocolHTTPProtobuf, e.Protocol)
	switch protocol {
	case ProtocolGRPC, ProtocolHTTPProtobuf:
		return protocol, endpoint, true, nil
	default:
		return "", "", false, fmt.Errorf("otlp: unsupported protocol: %q", protocol)
	}
}

// GrpcConn is a [config.Reader] for a plaintext gRPC client connection.
type GrpcConn struct {
	Target config.Reader[string]
}

// Read implements the [config.Reader] interface. A URL target is reduced to its host.
func (gc GrpcConn) Read(ctx context.Context) (config.Value[*grpc.ClientConn], error) {
	target := config.Must(ctx, gc.Target)
	if u, err := url.Parse(target); err == nil && u.Host != "" {
		target = u.Host
	}

	cc, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return config.Value[*grpc.ClientConn]{}, err
	}
	return config.ValueOf(cc), nil
}

// conns shares one connection between the signals exported to the same endpoint.
var conns = concurrent.NewCache[string, *grpc.ClientConn]()

func dial(ctx context.Context, endpoint string) (*grpc.ClientConn, error) {
	return conns.GetOr(endpoint, func() (*grpc.ClientConn, error) {
		return config.Read(ctx, GrpcConn{Target: config.ReaderOf(endpoint)})
	})
}

// TraceExporter is a [config.Reader] for an OTLP span exporter.
type TraceExporter struct {
	Endpoint Endpoint
}

// TraceExporterFromEnv configures a [TraceExporter] from the environment.
func TraceExporterFromEnv() TraceExporter {
	return TraceExporter{Endpoint: EndpointFromEnv("traces")}
}

// Read implements the [config.Reader] interface.
func (e TraceExporter) Read(ctx context.Context) (config.Value[sdktrace.SpanExporter], error) {
	protocol, endpoint, ok, err := e.Endpoint.resolve(ctx)
	if !ok || err != nil {
		return config.Value[sdktrace.SpanExporter]{}, err
	}

	var exp sdktrace.SpanExporter
	switch protocol {
	case ProtocolGRPC:
		cc, err := dial(ctx, endpoint)
		if err != nil {
			return config.Value[sdktrace.SpanExporter]{}, err
		}
		exp, err = otlptracegrpc.New(context.Background(), otlptracegrpc.WithGRPCConn(cc))
		if err != nil {
			return config.Value[sdktrace.SpanExporter]{}, err
		}
	default:
		exp, err = otlptracehttp.New(context.Background(), otlptracehttp.WithEndpointURL(endpoint))
		if err != nil {
			return config.Value[sdktrace.SpanExporter]{}, err
		}
	}
	return config.ValueOf(exp), nil
}

// MetricExporter is a [config.Reader] for an OTLP metric exporter.
type MetricExporter struct {
	Endpoint Endpoint
}

// MetricExporterFromEnv configures a [MetricExporter] from the environment.
func MetricExporterFromEnv() MetricExporter {
	return MetricExporter{Endpoint: EndpointFromEnv("metrics")}
}

// Read implements the [config.Reader] interface.
func (e MetricExporter) Read(ctx context.Context) (config.Value[sdkmetric.Exporter], error) {
	protocol, endpoint, ok, err := e.Endpoint.resolve(ctx)
	if !ok || err != nil {
		return config.Value[sdkmetric.Exporter]{}, err
	}

	var exp sdkmetric.Exporter
	switch protocol {
	case ProtocolGRPC:
		cc, err := dial(ctx, endpoint)
		if err != nil {
			return config.Value[sdkmetric.Exporter]{}, err
		}
		exp, err = otlpmetricgrpc.New(context.Background(), otlpmetricgrpc.WithGRPCConn(cc))
		if err != nil {
			return config.Value[sdkmetric.Exporter]{}, err
		}
	default:
		exp, err = otlpmetrichttp.New(context.Background(), otlpmetrichttp.WithEndpointURL(endpoint))
		if err != nil {
			return config.Value[sdkmetric.Exporter]{}, err
		}
	}
	return config.ValueOf(exp), nil
}

// LogExporter is a [config.Reader] for an OTLP log exporter.
type LogExporter struct {
	Endpoint Endpoint
}

// LogExporterFromEnv configures a [LogExporter] from the environment.
func LogExporterFromEnv() LogExporter {
	return LogExporter{Endpoint: EndpointFromEnv("logs")}
}

// Read implements the [config.Reader] interface.
func (e LogExporter) Read(ctx context.Context) (config.Value[sdklog.Exporter], error) {
	protocol, endpoint, ok, err := e.Endpoint.resolve(ctx)
	if !ok || err != nil {
		return config.Value[sdklog.Exporter]{}, err
	}

	var exp sdklog.Exporter
	switch protocol {
	case ProtocolGRPC:
		cc, err := dial(ctx, endpoint)
		if err != nil {
			return config.Value[sdklog.Exporter]{}, err
		}
		exp, err = otlploggrpc.New(context.Background(), otlploggrpc.WithGRPCConn(cc))
		if err != nil {
			return config.Value[sdklog.Exporter]{}, err
		}
	default:
		exp, err = otlploghttp.New(context.Background(), otlploghttp.WithEndpointURL(endpoint))
		if err != nil {
			return config.Value[sdklog.Exporter]{}, err
		}
	}
	return config.ValueOf(exp), nil
}
