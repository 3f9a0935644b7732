package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Log is the process-wide logger. Nil until Init is called; the helpers
// below are no-ops until then so packages can log from tests freely.
var Log *slog.Logger

var level slog.LevelVar

// Init configures Log to write to stdout. format is "text" or "json".
func Init(levelStr, format string) {
	InitWriter(os.Stdout, levelStr, format)
}

// InitWriter configures Log to write to w.
func InitWriter(w io.Writer, levelStr, format string) {
	SetLevel(levelStr)
	opts := &slog.HandlerOptions{Level: &level}

	var h slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	Log = slog.New(h).With("service", "subsai")
}

// SetLevel accepts debug, info, warn(ing) or error; anything else means info.
func SetLevel(levelStr string) {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn", "warning":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}
}

// With returns a logger carrying args on every record, e.g. a job id.
// Before Init it discards everything.
func With(args ...any) *slog.Logger {
	if Log == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return Log.With(args...)
}

func Debug(msg string, args ...any) { emit(slog.LevelDebug, msg, args) }
func Info(msg string, args ...any)  { emit(slog.LevelInfo, msg, args) }
func Warn(msg string, args ...any)  { emit(slog.LevelWarn, msg, args) }
func Error(msg string, args ...any) { emit(slog.LevelError, msg, args) }

func emit(lvl slog.Level, msg string, args []any) {
	if Log != nil {
		Log.Log(context.Background(), lvl, msg, args...)
	}
}
