// Package common holds process-wide identity and logging setup shared by
// all binaries.
package common

import (
	"log/slog"
	"os"
)

// PackageName tags logs and metrics emitted by this service.
const PackageName = "secret-sharing-backend"

// Version is stamped at build time via -ldflags.
var Version = "dev"

// LoggingOpts configures SetupLogger.
type LoggingOpts struct {
	// Debug enables debug-level messages.
	Debug bool

	// JSON switches from text to JSON output.
	JSON bool

	// Service, if set, is added as a "service" attribute to every record.
	Service string

	// Version, if set, is added as a "version" attribute to every record.
	Version string
}

// SetupLogger builds the process logger. Handlers write to stdout; level
// and format follow the options.
func SetupLogger(opts *LoggingOpts) *slog.Logger {
	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}

	logger := slog.New(handler)
	if opts.Service != "" {
		logger = logger.With("service", opts.Service)
	}
	if opts.Version != "" {
		logger = logger.With("version", opts.Version)
	}
	return logger
}
