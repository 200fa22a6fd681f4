package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/dwizi/wabot/internal/cli"
)

func main() {
	level := slog.LevelInfo
	if strings.EqualFold(strings.TrimSpace(os.Getenv("WABOT_LOG_LEVEL")), "debug") {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	if err := cli.NewRoot(logger).Execute(); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}
