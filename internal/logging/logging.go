package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/lmittmann/tint"
)

var (
	disabled atomic.Bool
	level    = new(slog.LevelVar)
	logger   atomic.Pointer[slog.Logger]
)

func init() {
	logger.Store(slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      level,
		TimeFormat: time.DateTime,
	})))
}

// Setup installs the process logger. format is "text" (colored console)
// or "json".
func Setup(w io.Writer, format, lvl string) error {
	if err := SetLevel(lvl); err != nil {
		return err
	}

	var h slog.Handler
	switch strings.ToLower(format) {
	case "", "text", "console":
		h = tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.DateTime,
			NoColor:    !isTerminal(w),
		})
	case "json":
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	default:
		return fmt.Errorf("unknown log format %q", format)
	}

	logger.Store(slog.New(h))
	return nil
}

// SetLevel changes the minimum level at runtime.
func SetLevel(lvl string) error {
	if lvl == "" {
		level.Set(slog.LevelInfo)
		return nil
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(lvl)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", lvl, err)
	}
	level.Set(l)
	return nil
}

// Level returns the current minimum level.
func Level() slog.Level {
	return level.Level()
}

// Slog returns the underlying structured logger.
func Slog() *slog.Logger {
	return logger.Load()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// Disable turns off all logging
func Disable() {
	disabled.Store(true)
}

// Enable turns logging back on
func Enable() {
	disabled.Store(false)
}

func log(l slog.Level, msg string) {
	if disabled.Load() {
		return
	}
	logger.Load().Log(context.Background(), l, msg)
}

// Info logs an info message
func Info(v ...any) {
	log(slog.LevelInfo, strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

// Infof logs a formatted info message
func Infof(format string, v ...any) {
	log(slog.LevelInfo, fmt.Sprintf(format, v...))
}

// Error logs an error message
func Error(v ...any) {
	log(slog.LevelError, strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

// Errorf logs a formatted error message
func Errorf(format string, v ...any) {
	log(slog.LevelError, fmt.Sprintf(format, v...))
}

// Warn logs a warning message
func Warn(v ...any) {
	log(slog.LevelWarn, strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

// Warnf logs a formatted warning message
func Warnf(format string, v ...any) {
	log(slog.LevelWarn, fmt.Sprintf(format, v...))
}

// Debug logs a debug message
func Debug(v ...any) {
	log(slog.LevelDebug, strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

// Debugf logs a formatted debug message
func Debugf(format string, v ...any) {
	log(slog.LevelDebug, fmt.Sprintf(format, v...))
}

// Truncate shortens s for log previews.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
