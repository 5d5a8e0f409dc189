// Package logging builds the zerolog loggers used across the host.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/vrsandeep/mango-runner/internal/config"
)

// New returns the root logger described by cfg. A log file, when set,
// is rotated by lumberjack and written alongside the console output.
func New(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Log.Level))
	if err != nil || cfg.Log.Level == "" {
		level = zerolog.InfoLevel
	}

	var out io.Writer = os.Stdout
	if cfg.Log.Format == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	if cfg.Log.File != "" {
		out = zerolog.MultiLevelWriter(out, &lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    20,
			MaxBackups: 5,
			MaxAge:     28,
		})
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// ForRunner derives the logger every runner-scoped component writes to.
func ForRunner(logger zerolog.Logger, runnerID string) zerolog.Logger {
	return logger.With().Str("runner", runnerID).Logger()
}

// Nop is a disabled logger for tests and tools that want no output.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
