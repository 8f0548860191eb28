// Package logging builds the slog loggers shared by the binaries.
package logging

import (
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/go-chi/httplog/v2"
	"github.com/lmittmann/tint"
)

// ParseLevel maps debug, info, warn and error to slog levels. Anything else
// is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New returns a logger writing to w in the given format: text, json or tint.
func New(w io.Writer, level, format string) *slog.Logger {
	lvl := ParseLevel(level)
	switch strings.ToLower(format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
	case "tint":
		return slog.New(tint.NewHandler(w, &tint.Options{Level: lvl, TimeFormat: time.Kitchen}))
	default:
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
	}
}

// NewHTTPLogger returns the request logger for the HTTP surface. Health and
// metrics scrapes are quieted.
func NewHTTPLogger(service string, w io.Writer, level, format string) *httplog.Logger {
	return httplog.NewLogger(service, httplog.Options{
		LogLevel:        ParseLevel(level),
		JSON:            strings.EqualFold(format, "json"),
		Concise:         true,
		Writer:          w,
		QuietDownRoutes: []string{"/health", "/metrics"},
		QuietDownPeriod: 10 * time.Second,
	})
}
