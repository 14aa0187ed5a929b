// Package logging builds the slog logger used by the simulation and formats
// money for log lines.
package logging

import (
	"io"
	"log/slog"
	"strings"

	"github.com/dustin/go-humanize"
)

// ParseLevel maps a level name to a slog.Level. Unknown names map to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

// NewLogger creates a leveled slog.Logger writing text or JSON to w.
func NewLogger(level, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Price renders a currency amount with thousands separators, e.g. "4,800,000".
func Price(v int64) string {
	return humanize.Comma(v)
}

// Ratio renders a fraction as a percentage with at most one decimal, e.g. "25%".
func Ratio(v float64) string {
	return humanize.FtoaWithDigits(v*100, 1) + "%"
}
