// Package observability provides structured logging, metrics, and
// distributed tracing for the run engine.
package observability

import (
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// EnvLogLevel selects the process log level ("debug", "info", "warn",
// "error").
const EnvLogLevel = "NEXOUS_LOG_LEVEL"

// LogConfig configures structured logging.
type LogConfig struct {
	// Level sets the minimum log level: "debug", "info", "warn", "error".
	Level string

	// Format is "json" or "text". JSON for production, text for development.
	Format string

	// Output is the writer for log output (defaults to os.Stderr).
	Output io.Writer

	// RedactPatterns are additional regex patterns for sensitive data
	// redaction on top of the built-in provider key patterns.
	RedactPatterns []string
}

// defaultRedactPatterns covers the provider credentials this process
// handles. Anything matching is replaced before a record is written.
var defaultRedactPatterns = []string{
	`sk-ant-[a-zA-Z0-9_-]{20,}`,
	`sk-[a-zA-Z0-9]{20,}`,
	`AIza[a-zA-Z0-9_-]{30,}`,
	`(?i)(api[_-]?key|token|secret)[\s:=]+["']?[a-zA-Z0-9_\-\.]{16,}["']?`,
}

// NewLogger creates a slog.Logger with level/format from cfg and automatic
// redaction of provider credentials in attribute values.
func NewLogger(cfg LogConfig) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	redacts := make([]*regexp.Regexp, 0, len(defaultRedactPatterns)+len(cfg.RedactPatterns))
	for _, p := range append(append([]string{}, defaultRedactPatterns...), cfg.RedactPatterns...) {
		if re, err := regexp.Compile(p); err == nil {
			redacts = append(redacts, re)
		}
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Value.Kind() == slog.KindString {
				a.Value = slog.StringValue(redact(a.Value.String(), redacts))
			}
			return a
		},
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	return slog.New(handler)
}

func redact(s string, patterns []*regexp.Regexp) string {
	for _, re := range patterns {
		s = re.ReplaceAllString(s, "[REDACTED]")
	}
	return s
}
