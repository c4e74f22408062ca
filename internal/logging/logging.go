// Package logging is the structured logger used across aerostab: a small
// Logger interface over log/slog, plus request-scoped helpers.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the logging surface components depend on.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Field)
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)
	With(fields ...Field) Logger
}

// Config selects level, encoding and destination.
type Config struct {
	Level     string // debug, info, warn or error
	Format    string // json or text
	AddSource bool

	// Component, when set, is attached to every line.
	Component string

	// File switches output from stdout to a rotating file.
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// ParseLevel accepts the level names Config understands. An empty string is
// info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// New builds a Logger writing to stdout, or to cfg.File when set.
func New(cfg Config) Logger {
	if cfg.File != "" {
		return NewWithWriter(cfg, rotatingFile(cfg))
	}
	return NewWithWriter(cfg, os.Stdout)
}

// NewWithWriter builds a Logger writing to w. Unknown levels fall back to info.
func NewWithWriter(cfg Config, w io.Writer) Logger {
	level, _ := ParseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level, AddSource: cfg.AddSource}

	var h slog.Handler = slog.NewTextHandler(w, opts)
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(w, opts)
	}
	l := slog.New(h)
	if cfg.Component != "" {
		l = l.With(slog.String("component", cfg.Component))
	}
	return &slogger{l: l}
}

// NewFromEnv reads LOG_LEVEL, LOG_FORMAT and LOG_FILE.
func NewFromEnv() Logger {
	return New(Config{
		Level:     os.Getenv("LOG_LEVEL"),
		Format:    os.Getenv("LOG_FORMAT"),
		File:      os.Getenv("LOG_FILE"),
		AddSource: true,
	})
}

func rotatingFile(cfg Config) *lumberjack.Logger {
	w := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    32, // MB
		MaxBackups: 3,
		Compress:   true,
	}
	if cfg.MaxSizeMB > 0 {
		w.MaxSize = cfg.MaxSizeMB
	}
	if cfg.MaxBackups > 0 {
		w.MaxBackups = cfg.MaxBackups
	}
	return w
}

type slogger struct {
	l *slog.Logger
}

func (s *slogger) log(ctx context.Context, level slog.Level, msg string, fields []Field) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.l.LogAttrs(ctx, level, msg, attrs(fields)...)
}

func (s *slogger) Debug(ctx context.Context, msg string, fields ...Field) {
	s.log(ctx, slog.LevelDebug, msg, fields)
}

func (s *slogger) Info(ctx context.Context, msg string, fields ...Field) {
	s.log(ctx, slog.LevelInfo, msg, fields)
}

func (s *slogger) Warn(ctx context.Context, msg string, fields ...Field) {
	s.log(ctx, slog.LevelWarn, msg, fields)
}

func (s *slogger) Error(ctx context.Context, msg string, fields ...Field) {
	s.log(ctx, slog.LevelError, msg, fields)
}

func (s *slogger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return s
	}
	args := make([]any, len(fields))
	for i, f := range fields {
		args[i] = f.attr()
	}
	return &slogger{l: s.l.With(args...)}
}

// Noop discards everything.
func Noop() Logger { return noopLogger{} }

type noopLogger struct{}

func (noopLogger) Debug(context.Context, string, ...Field) {}
func (noopLogger) Info(context.Context, string, ...Field)  {}
func (noopLogger) Warn(context.Context, string, ...Field)  {}
func (noopLogger) Error(context.Context, string, ...Field) {}
func (n noopLogger) With(...Field) Logger                  { return n }
