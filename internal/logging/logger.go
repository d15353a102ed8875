// Copyright 2025 Certen Protocol
//
// Package logging provides structured logging for the ledger subsystem.
// It wraps log/slog with the field-attaching conventions the rest of the
// module uses (component, digest, tx_id, ...).
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog.Logger with a few convenience constructors.
type Logger struct {
	*slog.Logger
	config *Config
}

// Config controls how a Logger is built.
type Config struct {
	Level     slog.Level
	Format    string // "json" or "text"
	Output    string // "stdout", "stderr", or a file path
	AddSource bool
}

// Field is a single structured logging field.
type Field struct {
	Key   string
	Value interface{}
}

// DefaultConfig returns the module's default logging configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:  slog.LevelInfo,
		Format: "text",
		Output: "stdout",
	}
}

// New creates a Logger from config. A nil config uses DefaultConfig().
func New(config *Config) (*Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	var output io.Writer
	switch config.Output {
	case "stdout", "":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		file, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("logging: opening %s: %w", config.Output, err)
		}
		output = file
	}

	handlerOpts := &slog.HandlerOptions{Level: config.Level, AddSource: config.AddSource}

	var handler slog.Handler
	if config.Format == "json" {
		handler = slog.NewJSONHandler(output, handlerOpts)
	} else {
		handler = slog.NewTextHandler(output, handlerOpts)
	}

	return &Logger{Logger: slog.New(handler), config: config}, nil
}

// Default returns a Logger built from DefaultConfig(). Panics only if
// stdout cannot be opened, which does not happen in practice.
func Default() *Logger {
	l, err := New(DefaultConfig())
	if err != nil {
		panic(err)
	}
	return l
}

// WithFields returns a Logger with additional fields attached to every
// subsequent record.
func (l *Logger) WithFields(fields ...Field) *Logger {
	if len(fields) == 0 {
		return l
	}
	args := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		args = append(args, f.Key, f.Value)
	}
	return &Logger{Logger: l.Logger.With(args...), config: l.config}
}

// WithComponent returns a Logger tagged with a component name.
func (l *Logger) WithComponent(component string) *Logger {
	return l.WithFields(Field{Key: "component", Value: component})
}

// WithError returns a Logger with an error field attached.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithFields(Field{Key: "error", Value: err.Error()})
}

// ParseLevel parses a case-insensitive level name.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("logging: unknown level %q", level)
	}
}
