package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/untoldecay/mission-control/internal/config"
)

// daemonLogger wraps slog for the serve loop. log() keeps the printf style
// used for operator-facing messages; the leveled methods take key/values.
type daemonLogger struct {
	logger *slog.Logger
}

func (d *daemonLogger) log(format string, args ...interface{}) {
	d.logger.Info(fmt.Sprintf(format, args...))
}

func (d *daemonLogger) Info(msg string, args ...any)  { d.logger.Info(msg, args...) }
func (d *daemonLogger) Warn(msg string, args ...any)  { d.logger.Warn(msg, args...) }
func (d *daemonLogger) Error(msg string, args ...any) { d.logger.Error(msg, args...) }
func (d *daemonLogger) Debug(msg string, args ...any) { d.logger.Debug(msg, args...) }

type closeFunc func() error

func (f closeFunc) Close() error { return f() }

// parseLogLevel maps a config value to a slog level, defaulting to info.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newDaemonLogger builds the serve logger. A configured log file is rotated
// by lumberjack; otherwise output goes to stderr. The returned closer must
// be called on shutdown.
func newDaemonLogger(cfg config.LogSettings) (daemonLogger, io.Closer, error) {
	var out io.Writer = os.Stderr
	var closer io.Closer = closeFunc(func() error { return nil })

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return daemonLogger{}, nil, fmt.Errorf("creating log directory: %w", err)
		}
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		out = rotator
		closer = rotator
	}

	return daemonLogger{logger: slog.New(newHandler(out, cfg))}, closer, nil
}

func newHandler(w io.Writer, cfg config.LogSettings) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// newTestLogger returns a discard logger for tests.
func newTestLogger() daemonLogger {
	return daemonLogger{logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo}))}
}
