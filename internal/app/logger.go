package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the process logger. JSON in production pipelines,
// text for local development.
func NewLogger(cfg Config) *slog.Logger {
	level := slog.LevelInfo
	if !cfg.IsProduction() {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	logger := slog.New(handler).With(slog.String("env", cfg.Env))
	slog.SetDefault(logger)
	return logger
}
