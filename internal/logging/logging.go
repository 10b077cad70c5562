// Package logging builds the structured loggers used across the host.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// DefaultPrefix is prepended to every host log line.
const DefaultPrefix = "exthost"

// Format selects the log line encoding.
type Format string

// Supported formats.
const (
	FormatText   Format = "text"
	FormatJSON   Format = "json"
	FormatLogfmt Format = "logfmt"
)

// Options configures a logger.
type Options struct {
	// Level is one of debug, info, warn, error. Unknown values mean info.
	Level string
	// Format is text, json or logfmt. Empty means text.
	Format Format
	// Output defaults to os.Stderr.
	Output io.Writer
	// Prefix defaults to DefaultPrefix.
	Prefix string
	// ReportTimestamp adds a timestamp to each line.
	ReportTimestamp bool
}

// New creates a logger from options.
func New(opts Options) *log.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}

	logger := log.NewWithOptions(out, log.Options{
		Prefix:          prefix,
		Level:           ParseLevel(opts.Level),
		ReportTimestamp: opts.ReportTimestamp,
	})

	switch opts.Format {
	case FormatJSON:
		logger.SetFormatter(log.JSONFormatter)
	case FormatLogfmt:
		logger.SetFormatter(log.LogfmtFormatter)
	default:
		logger.SetFormatter(log.TextFormatter)
	}
	return logger
}

// ParseLevel parses a level name. Unknown names map to info.
func ParseLevel(s string) log.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// Discard returns a logger that writes nowhere.
func Discard() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}
