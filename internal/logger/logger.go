// Package logger builds the process-wide slog.Logger.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New returns a JSON logger when format is "json", or when format is empty and
// the process runs in Kubernetes or a non-local env. Otherwise it logs text.
func New(env, format, level string) *slog.Logger {
	return newWithWriter(os.Stdout, env, format, level)
}

func newWithWriter(w io.Writer, env, format, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if useJSON(env, format) {
		opts.AddSource = true
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler).With(
		slog.String("service", "student-data-vault"),
		slog.String("environment", env),
	)
}

func useJSON(env, format string) bool {
	switch strings.ToLower(format) {
	case "json":
		return true
	case "text":
		return false
	}
	_, inK8s := os.LookupEnv("KUBERNETES_SERVICE_HOST")
	return inK8s || env == "prod" || env == "dev"
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
