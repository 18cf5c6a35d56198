// Package telemetry provides structured logging, correlation ids and metric
// instruments for the directory.
package telemetry

import (
	"io"
	"log/slog"
	"strings"
)

const redacted = "[REDACTED]"

// NewLogger returns a JSON logger writing to w. Attributes whose key names
// credential or payload material are redacted.
func NewLogger(w io.Writer, level string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Key = "timestamp"
			}
			if shouldRedactKey(a.Key) {
				return slog.String(a.Key, redacted)
			}
			if a.Value.Kind() == slog.KindString && isCredentialValue(a.Value.String()) {
				return slog.String(a.Key, redacted)
			}
			return a
		},
	})
	return slog.New(handler).With("component", "agentdir")
}

var sensitiveKeys = []string{
	"token",
	"secret",
	"password",
	"authorization",
	"certificate",
	"fingerprint",
	"signing_key",
	"context",
}

func shouldRedactKey(key string) bool {
	lower := strings.ToLower(strings.TrimSpace(key))
	if lower == "" {
		return false
	}
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

func isCredentialValue(v string) bool {
	lower := strings.ToLower(v)
	return strings.Contains(lower, "bearer ") || strings.Contains(lower, "authorization:")
}

// ParseLevel maps a level name to slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
