// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"context"
	"net/http"

	"github.com/z5labs/capsule/admin"
	"github.com/z5labs/capsule/app"
	"github.com/z5labs/capsule/comments"
	"github.com/z5labs/capsule/config"
	"github.com/z5labs/capsule/gemini"
	"github.com/z5labs/capsule/health"
	"github.com/z5labs/capsule/internal/reload"
	"github.com/z5labs/capsule/otel"
	"github.com/z5labs/capsule/otel/otlp"

	"github.com/spf13/cobra"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

func newRootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "capsule",
		Short: "Serve a Gemini capsule with a comment section",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cfg, err := loadConfig(cmd.Context(), configPath)
			if err != nil {
				return err
			}

			// gemini.Run logs its own errors.
			cmd.SilenceErrors = true

			return gemini.Run(cmd.Context(), buildApp(cfg, configPath))
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file, reloaded on change")

	cmd.AddCommand(newCertCommand())
	return cmd
}

// buildApp wires the comment store into the Gemini and admin servers and
// wraps both in the OpenTelemetry SDK.
func buildApp(cfg Config, configPath string) app.Builder[otel.Runtime] {
	rsc := otel.ResourceFromEnv()
	sdk := otel.SDK{
		TracerProvider: otel.TracerProviderFromEnv(rsc, otlp.TraceExporterFromEnv()),
		MeterProvider:  otel.MeterProviderFromEnv(rsc, otlp.MetricExporterFromEnv()),
		LoggerProvider: otel.LoggerProviderFromEnv(rsc, config.Or[sdklog.Exporter](
			otlp.LogExporterFromEnv(),
			otel.JSONLogExporter{},
		)),
		RuntimeMetrics: config.BoolFromString(config.Env("CAPSULE_RUNTIME_METRICS")),
	}

	return otel.Build(sdk, app.WithHooks(func(ctx context.Context, h *app.HookRegistry) (app.Runtime, error) {
		store := comments.NewStore(
			comments.WithCapacity(config.MustOr(ctx, comments.DefaultCapacity, cfg.commentCapacity())),
		)

		if configPath != "" {
			w, err := reload.Watch(ctx, configPath, reload.CommentCapacity(store))
			if err != nil {
				return nil, err
			}
			h.OnPostRun(func(ctx context.Context) error {
				return w.Close()
			})
		}

		var serving health.Binary

		geminiRuntime := gemini.Build(
			gemini.NewServer(
				gemini.TLSListener(
					gemini.NewTCPListener(gemini.Addr(cfg.geminiAddr())),
					gemini.NewTLSConfig(
						gemini.CertFile(cfg.certFile()),
						gemini.KeyFile(cfg.keyFile()),
						gemini.Hostname(cfg.hostname()),
					),
				),
				gemini.MaxConnections(cfg.maxConnections()),
				gemini.ReadTimeout(cfg.readTimeout()),
				gemini.WriteTimeout(cfg.writeTimeout()),
			),
			app.Build(func(ctx context.Context) (*gemini.Router, error) {
				return newRouter(store, config.MustOr(ctx, comments.DefaultPath, cfg.commentPath())), nil
			}),
		)

		adminRuntime := admin.Build(
			admin.NewServer(admin.Listener(cfg.adminAddr())),
			app.Build(func(ctx context.Context) (http.Handler, error) {
				return admin.NewHandler(store, admin.Readiness(&serving)), nil
			}),
		)

		return app.Group(
			app.Runtimes(geminiRuntime),
			app.Runtimes(adminRuntime),
			app.Build(func(ctx context.Context) (app.Runtime, error) {
				return servingRuntime(&serving), nil
			}),
		).Build(ctx)
	}))
}

func newRouter(store *comments.Store, path string) *gemini.Router {
	r := gemini.NewRouter()
	r.Attach(pages, comments.NewModule(store, comments.Path(path)))
	return r
}

// servingRuntime reports ready once every listener is bound and not ready
// as soon as shutdown begins.
func servingRuntime(b *health.Binary) app.Runtime {
	return app.RuntimeFunc(func(ctx context.Context) error {
		b.MarkHealthy()
		<-ctx.Done()
		b.MarkUnhealthy()
		return nil
	})
}
