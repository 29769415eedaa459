// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package capsule provides the shared logging entry point for a Gemini
// capsule and the modules attached to it.
package capsule

import (
	"log/slog"

	"go.opentelemetry.io/contrib/bridges/otelslog"
)

// Logger returns a [slog.Logger] whose records are sent to the global
// OpenTelemetry LoggerProvider under the instrumentation scope name.
func Logger(name string) *slog.Logger {
	return otelslog.NewLogger(name)
}

// LogHandler is like [Logger] but returns the bare [slog.Handler].
func LogHandler(name string) slog.Handler {
	return otelslog.NewHandler(name)
}
