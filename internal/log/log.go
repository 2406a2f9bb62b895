// Package log wires up the default slog logger and allows passing
// loggers through contexts.
package log

import (
	"context"
	"log/slog"
	"os"
)

// Debug needs to be set before InitializeDefaultLogger is called. It
// also gates the persisting of debug artifacts such as screenshots and
// page dumps throughout the application.
var Debug bool

type loggerCtxKey struct{}

func InitializeDefaultLogger() {
	level := slog.LevelInfo
	if Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerCtxKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}
