// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package otlp

import (
	"context"
	"testing"

	"github.com/z5labs/capsule/config"

	"github.com/stretchr/testify/require"
)

func TestEndpointFromEnv(t *testing.T) {
	t.Run("will produce no endpoint", func(t *testing.T) {
		t.Run("if nothing is set", func(t *testing.T) {
			_, _, ok, err := EndpointFromEnv("traces").resolve(context.Background())
			require.NoError(t, err)
			require.False(t, ok)
		})
	})

	t.Run("will append the signal path to the base endpoint", func(t *testing.T) {
		t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://collector:4318/")

		protocol, endpoint, ok, err := EndpointFromEnv("metrics").resolve(context.Background())
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, ProtocolHTTPProtobuf, protocol)
		require.Equal(t, "http://collector:4318/v1/metrics", endpoint)
	})

	t.Run("will use the base endpoint as is for grpc", func(t *testing.T) {
		t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
		t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://collector:4317")

		protocol, endpoint, ok, err := EndpointFromEnv("logs").resolve(context.Background())
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, ProtocolGRPC, protocol)
		require.Equal(t, "http://collector:4317", endpoint)
	})

	t.Run("will prefer the signal specific settings", func(t *testing.T) {
		t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
		t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://collector:4317")
		t.Setenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", "http/protobuf")
		t.Setenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", "http://tracing:4318/custom")

		protocol, endpoint, ok, err := EndpointFromEnv("traces").resolve(context.Background())
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, ProtocolHTTPProtobuf, protocol)
		require.Equal(t, "http://tracing:4318/custom", endpoint)
	})

	t.Run("will return an error", func(t *testing.T) {
		t.Run("if the protocol is not supported", func(t *testing.T) {
			t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "http/json")
			t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://collector:4318")

			_, _, _, err := EndpointFromEnv("traces").resolve(context.Background())
			require.Error(t, err)
		})
	})
}

func TestExporters(t *testing.T) {
	t.Run("will produce no value", func(t *testing.T) {
		t.Run("if no endpoint is configured", func(t *testing.T) {
			ctx := context.Background()

			traces, err := TraceExporterFromEnv().Read(ctx)
			require.NoError(t, err)
			_, ok := traces.Value()
			require.False(t, ok)

			metrics, err := MetricExporterFromEnv().Read(ctx)
			require.NoError(t, err)
			_, ok = metrics.Value()
			require.False(t, ok)

			logs, err := LogExporterFromEnv().Read(ctx)
			require.NoError(t, err)
			_, ok = logs.Value()
			require.False(t, ok)
		})
	})

	t.Run("will create an exporter", func(t *testing.T) {
		t.Run("if the protocol is http/protobuf", func(t *testing.T) {
			e := TraceExporter{Endpoint: Endpoint{URL: config.ReaderOf("http://localhost:4318/v1/traces")}}

			exp, err := config.Read(context.Background(), e)
			require.NoError(t, err)
			require.NoError(t, exp.Shutdown(context.Background()))
		})

		t.Run("if the protocol is grpc", func(t *testing.T) {
			e := MetricExporter{Endpoint: Endpoint{
				Protocol: config.ReaderOf(ProtocolGRPC),
				URL:      config.ReaderOf("http://localhost:4317"),
			}}

			exp, err := config.Read(context.Background(), e)
			require.NoError(t, err)
			require.NotNil(t, exp)
		})
	})
}

func TestGrpcConn_Read(t *testing.T) {
	t.Run("will reduce a url target to its host", func(t *testing.T) {
		cc, err := config.Read(context.Background(), GrpcConn{Target: config.ReaderOf("http://localhost:4317")})
		require.NoError(t, err)
		defer cc.Close()

		require.Equal(t, "localhost:4317", cc.Target())
	})
}

func TestDial(t *testing.T) {
	t.Run("will share a connection per endpoint", func(t *testing.T) {
		first, err := dial(context.Background(), "http://localhost:4319")
		require.NoError(t, err)

		second, err := dial(context.Background(), "http://localhost:4319")
		require.NoError(t, err)

		require.Same(t, first, second)
	})
}
