// Package telemetry wires structured logging, Prometheus metrics, and
// OpenTelemetry tracing — the ambient observability stack every component
// shares, grounded on the teacher's log/slog usage throughout
// internal/gateway and internal/channels, and on wisbric-nightowl's
// telemetry package for the metrics-registry and tracer-init shape.
package telemetry

import (
	"log/slog"
	"os"
)

// NewLogger returns a JSON slog.Logger at the given level ("debug", "info",
// "warn", "error"). Unknown levels default to info.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(h)
}
