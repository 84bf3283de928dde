package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

var (
	mu       sync.RWMutex
	levelVar = new(slog.LevelVar)
	logger   = newLogger(os.Stderr)
)

func newLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: levelVar}))
}

// ParseLevel maps a config string to a Level. Unknown values fall back to
// INFO.
func ParseLevel(s string) Level {
	switch Level(strings.ToUpper(strings.TrimSpace(s))) {
	case LevelDebug:
		return LevelDebug
	case LevelWarn, "WARNING":
		return LevelWarn
	case LevelError:
		return LevelError
	default:
		return LevelInfo
	}
}

func SetLevel(l Level) {
	levelVar.Set(toSlog(l))
}

// SetOutput redirects log output. Tests use it to capture lines.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger = newLogger(w)
}

// Logger exposes the underlying slog logger for libraries that accept one.
func Logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func Debug(msg string, kv ...any) {
	logWithLevel(slog.LevelDebug, msg, kv...)
}

func Info(msg string, kv ...any) {
	logWithLevel(slog.LevelInfo, msg, kv...)
}

func Warn(msg string, kv ...any) {
	logWithLevel(slog.LevelWarn, msg, kv...)
}

func Error(msg string, err error, kv ...any) {
	// error goes first so it lines up across call sites
	extended := append([]any{"err", err}, kv...)
	logWithLevel(slog.LevelError, msg, extended...)
}

func logWithLevel(level slog.Level, msg string, kv ...any) {
	l := Logger()
	if !l.Enabled(context.Background(), level) {
		return
	}
	// an odd trailing key has no value and is dropped
	if len(kv)%2 == 1 {
		kv = kv[:len(kv)-1]
	}
	l.Log(context.Background(), level, msg, kv...)
}

func toSlog(l Level) slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
