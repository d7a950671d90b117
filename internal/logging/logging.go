// Package logging builds the process-wide slog logger.
//
// The handler encoding, level and destination come from configuration.
// The returned LevelVar allows runtime level changes without rebuilding
// the logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Format selects the slog handler encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

type options struct {
	level     slog.Level
	format    Format
	output    io.Writer
	addSource bool
}

// Option configures New.
type Option func(*options)

func defaultOptions() *options {
	return &options{
		level:  slog.LevelInfo,
		format: FormatText,
		output: os.Stderr,
	}
}

// WithLevel sets the initial log level.
func WithLevel(level slog.Level) Option {
	return func(o *options) {
		o.level = level
	}
}

// WithFormat sets the handler encoding. Unknown values keep the default.
func WithFormat(format Format) Option {
	return func(o *options) {
		if format == FormatText || format == FormatJSON {
			o.format = format
		}
	}
}

// WithOutput redirects log output.
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		if w != nil {
			o.output = w
		}
	}
}

// WithRotatingFile writes logs to path with size-based rotation.
// Overrides WithOutput.
func WithRotatingFile(path string, maxSizeMB, maxBackups, maxAgeDays int) Option {
	return func(o *options) {
		if path == "" {
			return
		}
		o.output = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			MaxAge:     maxAgeDays,
		}
	}
}

// WithSource includes source positions in log records.
func WithSource(enabled bool) Option {
	return func(o *options) {
		o.addSource = enabled
	}
}

// New builds a logger and the level variable controlling it.
func New(opts ...Option) (*slog.Logger, *slog.LevelVar) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	level := new(slog.LevelVar)
	level.Set(o.level)

	hopts := &slog.HandlerOptions{
		Level:     level,
		AddSource: o.addSource,
	}

	var handler slog.Handler
	switch o.format {
	case FormatJSON:
		handler = slog.NewJSONHandler(o.output, hopts)
	default:
		handler = slog.NewTextHandler(o.output, hopts)
	}

	return slog.New(handler), level
}

// ParseLevel maps a config string to a slog level.
// Unknown strings fall back to Info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseFormat maps a config string to a handler format.
func ParseFormat(s string) Format {
	if strings.EqualFold(strings.TrimSpace(s), string(FormatJSON)) {
		return FormatJSON
	}
	return FormatText
}
