package utils

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger keeps the Printf/Errorf call style used across handlers and stores
// while emitting structured records through slog.
type Logger struct {
	base *slog.Logger
}

func NewLogger() *Logger {
	return NewLoggerWithOptions(os.Stdout, "info", false)
}

func NewLoggerWithOptions(w io.Writer, level string, json bool) *Logger {
	handlerLevel := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		handlerLevel = slog.LevelDebug
	case "warn", "warning":
		handlerLevel = slog.LevelWarn
	case "error":
		handlerLevel = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: handlerLevel}
	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return &Logger{base: slog.New(handler)}
}

func (l *Logger) Printf(format string, args ...any) {
	if l == nil || l.base == nil {
		return
	}
	l.base.Info(fmt.Sprintf(format, args...))
}

func (l *Logger) Debugf(format string, args ...any) {
	if l == nil || l.base == nil {
		return
	}
	l.base.Debug(fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(format string, args ...any) {
	if l == nil || l.base == nil {
		return
	}
	l.base.Warn(fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...any) {
	if l == nil || l.base == nil {
		return
	}
	l.base.Error(fmt.Sprintf(format, args...))
}

// With returns a logger that attaches the given key/value pairs to every record.
func (l *Logger) With(args ...any) *Logger {
	if l == nil || l.base == nil {
		return l
	}
	return &Logger{base: l.base.With(args...)}
}

func (l *Logger) Slog() *slog.Logger {
	if l == nil || l.base == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return l.base
}
