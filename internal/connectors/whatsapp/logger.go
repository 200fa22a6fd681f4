package whatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	waLog "go.mau.fi/whatsmeow/util/log"
)

// slogAdapter routes whatsmeow's printf-style logging into slog.
type slogAdapter struct {
	logger *slog.Logger
	module string
	min    slog.Level
}

var _ waLog.Logger = (*slogAdapter)(nil)

func newLogger(logger *slog.Logger, module, level string) waLog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &slogAdapter{
		logger: logger,
		module: module,
		min:    parseLevel(level),
	}
}

func (a *slogAdapter) Debugf(msg string, args ...any) { a.log(slog.LevelDebug, msg, args) }
func (a *slogAdapter) Infof(msg string, args ...any)  { a.log(slog.LevelInfo, msg, args) }
func (a *slogAdapter) Warnf(msg string, args ...any)  { a.log(slog.LevelWarn, msg, args) }
func (a *slogAdapter) Errorf(msg string, args ...any) { a.log(slog.LevelError, msg, args) }

func (a *slogAdapter) Sub(module string) waLog.Logger {
	name := module
	if a.module != "" {
		name = a.module + "/" + module
	}
	return &slogAdapter{
		logger: a.logger,
		module: name,
		min:    a.min,
	}
}

func (a *slogAdapter) log(level slog.Level, msg string, args []any) {
	if level < a.min {
		return
	}
	a.logger.Log(context.Background(), level, fmt.Sprintf(msg, args...), "module", a.module)
}

func parseLevel(raw string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}
