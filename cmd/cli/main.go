package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clintharrison/gempm/pkg/config"
	"github.com/lmittmann/tint"
)

// logLevel is raised to debug by --verbose, the config file or GEMPM_DEBUG.
var logLevel = new(slog.LevelVar)

func initLogger() {
	logLevel.Set(slog.LevelInfo)
	if on, _ := config.DebugFromEnv(); on {
		logLevel.Set(slog.LevelDebug)
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      logLevel,
		TimeFormat: time.Kitchen,
		NoColor:    !isTerminal(os.Stderr),
	}))
	slog.SetDefault(logger)
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}

func main() {
	initLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		slog.Debug("command failed", "error", err)
		os.Exit(1)
	}
}
