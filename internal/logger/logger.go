// Package logger configures the process-wide zerolog.Logger, matching
// the teacher gateway's console-writer-in-dev, level-from-env shape.
package logger

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/AnkushSinghGandhi/DeltaStream-OptionAnalysis2-sub001/internal/config"
)

// New returns a configured base logger. Callers derive component
// loggers from it with .With().Str("component", name).Logger().
func New(cfg *config.Config) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	if cfg.IsDevelopment() && lvl > zerolog.DebugLevel {
		lvl = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var out zerolog.ConsoleWriter
	if cfg.IsDevelopment() {
		out = zerolog.ConsoleWriter{Out: os.Stderr}
		return zerolog.New(out).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}
