package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger returns a structured JSON slog.Logger at the given level. With a
// log dir, output is also written to a rotated worktimer.log there.
func NewLogger(level string, logDir string) (*slog.Logger, io.Closer) {
	var w io.Writer = os.Stdout
	var closer io.Closer = io.NopCloser(nil)
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0o755); err == nil {
			lj := &lumberjack.Logger{
				Filename:   filepath.Join(logDir, "worktimer.log"),
				MaxSize:    10,
				MaxBackups: 3,
				MaxAge:     14,
				Compress:   true,
			}
			w = io.MultiWriter(os.Stdout, lj)
			closer = lj
		}
	}
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(level)})
	return slog.New(h), closer
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
