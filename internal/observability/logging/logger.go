// Package logging provides structured logging with zerolog.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logging configuration.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	TimeFormat string
}

// DefaultConfig returns the default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "console",
		TimeFormat: time.RFC3339,
	}
}

// Init initializes the global zerolog logger. Output goes to stderr so that
// stdout stays free for command results.
func Init(cfg Config) {
	InitTo(os.Stderr, cfg)
}

// InitTo initializes the global logger on the given writer.
func InitTo(out io.Writer, cfg Config) {
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339
	}
	zerolog.TimeFieldFormat = cfg.TimeFormat

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := out
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.Kitchen,
		}
	}

	log.Logger = zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()
}

// WithComponent returns a logger with a component tag.
func WithComponent(component string) zerolog.Logger {
	return log.With().
		Str("component", component).
		Logger()
}

// WithAttempt returns a logger scoped to one recording attempt.
func WithAttempt(attemptID, userID string) zerolog.Logger {
	return log.With().
		Str("component", "recording").
		Str("attemptId", attemptID).
		Str("userId", userID).
		Logger()
}

// WithStream returns a logger scoped to one physio streaming session.
func WithStream(sessionID, userID string) zerolog.Logger {
	return log.With().
		Str("component", "streaming").
		Str("sessionId", sessionID).
		Str("userId", userID).
		Logger()
}
