package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Format selects the handler encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

type options struct {
	out    io.Writer
	format Format
}

// Option configures New.
type Option func(*options)

// WithOutput replaces the default Stderr writer.
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.out = w }
}

// WithFormat selects text or JSON output.
func WithFormat(f Format) Option {
	return func(o *options) { o.format = f }
}

// New creates a configured application logger.
// It writes to Stderr (to separate from the chat UI and MCP stdio on Stdout).
// It standardizes common keys (e.g., "error" -> "err").
func New(level slog.Level, opts ...Option) *slog.Logger {
	o := options{out: os.Stderr, format: FormatText}
	for _, opt := range opts {
		opt(&o)
	}

	handlerOpts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == "error" {
				a.Key = "err"
			}
			return a
		},
	}
	if o.format == FormatJSON {
		return slog.New(slog.NewJSONHandler(o.out, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(o.out, handlerOpts))
}

// NewNop returns a no-op logger.
func NewNop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// ParseLevel maps debug, info, warn and error (case-insensitive) to a level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatText, FormatJSON:
		return f, nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("invalid log format %q", s)
	}
}
