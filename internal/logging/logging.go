// Package logging provides the daemon's structured logger, built the way
// a single long-running process interleaving many concurrent sessions
// needs: key-value fields instead of interpolated strings, so a session id
// or terminal sequence number can be grepped or filtered independent of
// message wording.
package logging

import (
	"io"
	"log/slog"
	"os"
)

var log *slog.Logger

// Init sets up the package-level logger. logFile may be empty, in which
// case output goes to stdout only.
func Init(level string, logFile string) error {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	writers := []io.Writer{os.Stdout}
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		writers = append(writers, f)
	}

	handler := slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String("time", a.Value.Time().Format("15:04:05.000"))
			}
			return a
		},
	})

	log = slog.New(handler)
	slog.SetDefault(log)
	return nil
}

// L returns the package logger, falling back to slog's default (stderr
// text handler) if Init was never called — useful in tests.
func L() *slog.Logger {
	if log == nil {
		return slog.Default()
	}
	return log
}

func Debug(msg string, args ...any) { L().Debug(msg, args...) }
func Info(msg string, args ...any)  { L().Info(msg, args...) }
func Warn(msg string, args ...any)  { L().Warn(msg, args...) }
func Error(msg string, args ...any) { L().Error(msg, args...) }
