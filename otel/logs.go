// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package otel

import (
	"context"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/z5labs/capsule/config"

	"go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// LogLevelsFromEnv reads per logger minimum levels from CAPSULE_LOG_LEVELS,
// e.g. "gemini=warn,github.com/z5labs/capsule=debug". See [ParseLogLevels].
func LogLevelsFromEnv() config.Reader[string] {
	return config.Env("CAPSULE_LOG_LEVELS")
}

// ParseLogLevels parses a comma separated list of name=level pairs.
// Levels are debug, info, warn or error; anything else allows every record.
// Entries without a "=" are ignored.
func ParseLogLevels(s string) map[string]log.Severity {
	levels := make(map[string]log.Severity)
	for _, entry := range strings.Split(s, ",") {
		name, level, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok || name == "" {
			continue
		}
		levels[name] = parseLogLevel(level)
	}
	return levels
}

func parseLogLevel(level string) log.Severity {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return log.SeverityDebug
	case "info":
		return log.SeverityInfo
	case "warn", "warning":
		return log.SeverityWarn
	case "error":
		return log.SeverityError
	default:
		return log.SeverityDebug
	}
}

// levelFilter drops records below the minimum level configured for their
// instrumentation scope. A scope matches its own name exactly or, failing
// that, the longest configured prefix. Unmatched scopes are not filtered.
type levelFilter struct {
	sdklog.Processor

	levels   map[string]log.Severity
	prefixes []string
}

func newLevelFilter(inner sdklog.Processor, levels map[string]log.Severity) *levelFilter {
	prefixes := make([]string, 0, len(levels))
	for name := range levels {
		prefixes = append(prefixes, name)
	}
	slices.SortFunc(prefixes, func(a, b string) int {
		return len(b) - len(a)
	})

	return &levelFilter{
		Processor: inner,
		levels:    levels,
		prefixes:  prefixes,
	}
}

func (f *levelFilter) OnEmit(ctx context.Context, record *sdklog.Record) error {
	minSev, ok := f.minimum(record.InstrumentationScope().Name)
	if ok && record.Severity() < minSev {
		return nil
	}
	return f.Processor.OnEmit(ctx, record)
}

func (f *levelFilter) minimum(scope string) (log.Severity, bool) {
	if sev, ok := f.levels[scope]; ok {
		return sev, true
	}
	for _, prefix := range f.prefixes {
		if strings.HasPrefix(scope, prefix) {
			return f.levels[prefix], true
		}
	}
	return 0, false
}

// JSONLogExporter is a [config.Reader] for an exporter which writes every
// record as a line of JSON to Writer, or stdout when Writer is nil.
// It keeps logs visible when no OTLP log endpoint is configured.
type JSONLogExporter struct {
	Writer io.Writer
}

// Read implements the [config.Reader] interface.
func (e JSONLogExporter) Read(ctx context.Context) (config.Value[sdklog.Exporter], error) {
	w := e.Writer
	if w == nil {
		w = os.Stdout
	}
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	return config.ValueOf[sdklog.Exporter](&slogExporter{handler: h}), nil
}

// slogExporter hands OpenTelemetry log records back to a [slog.Handler].
type slogExporter struct {
	handler slog.Handler
}

func (s *slogExporter) Export(ctx context.Context, records []sdklog.Record) error {
	// slog levels are offset from otel severities: SeverityDebug(5) is LevelDebug(-4).
	const offset = log.SeverityDebug - log.Severity(slog.LevelDebug)

	for _, record := range records {
		sr := slog.NewRecord(record.Timestamp(), slog.Level(record.Severity()-offset), record.Body().AsString(), 0)
		sr.AddAttrs(slog.String("scope", record.InstrumentationScope().Name))

		record.WalkAttributes(func(kv log.KeyValue) bool {
			sr.AddAttrs(slog.Attr{Key: kv.Key, Value: slogValue(kv.Value)})
			return true
		})

		if tid := record.TraceID(); tid.IsValid() {
			sr.AddAttrs(slog.Group(
				"otel",
				slog.String("trace_id", tid.String()),
				slog.String("span_id", record.SpanID().String()),
			))
		}

		err := s.handler.Handle(ctx, sr)
		if err != nil {
			return err
		}
	}
	return nil
}

func slogValue(v log.Value) slog.Value {
	switch v.Kind() {
	case log.KindBool:
		return slog.BoolValue(v.AsBool())
	case log.KindBytes:
		return slog.AnyValue(v.AsBytes())
	case log.KindFloat64:
		return slog.Float64Value(v.AsFloat64())
	case log.KindInt64:
		return slog.Int64Value(v.AsInt64())
	case log.KindString:
		return slog.StringValue(v.AsString())
	case log.KindMap:
		kvs := v.AsMap()
		attrs := make([]slog.Attr, len(kvs))
		for i, kv := range kvs {
			attrs[i] = slog.Attr{Key: kv.Key, Value: slogValue(kv.Value)}
		}
		return slog.GroupValue(attrs...)
	case log.KindSlice:
		vs := v.AsSlice()
		vals := make([]any, len(vs))
		for i := range vs {
			vals[i] = slogValue(vs[i]).Any()
		}
		return slog.AnyValue(vals)
	default:
		return slog.StringValue(v.String())
	}
}

func (s *slogExporter) ForceFlush(ctx context.Context) error {
	return nil
}

func (s *slogExporter) Shutdown(ctx context.Context) error {
	return nil
}
