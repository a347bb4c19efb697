package logging

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logging configuration
type Config struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Logger wraps zerolog.Logger for easier use
type Logger = zerolog.Logger

// shortCallerMarshalFunc formats caller to show only filename and line number
func shortCallerMarshalFunc(pc uintptr, file string, line int) string {
	return filepath.Base(file) + ":" + strconv.Itoa(line)
}

// New creates a new logger with the given configuration
func New(config Config) zerolog.Logger {
	level := parseLogLevel(config.Level)
	zerolog.SetGlobalLevel(level)

	zerolog.CallerMarshalFunc = shortCallerMarshalFunc

	var output io.Writer = os.Stdout
	if config.Output == "stderr" {
		output = os.Stderr
	}

	if config.Format == "pretty" || config.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	logger := zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()

	log.Logger = logger

	return logger
}

// NewDefault creates a logger with default settings
func NewDefault() zerolog.Logger {
	return New(Config{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	})
}

// parseLogLevel converts string log level to zerolog.Level
func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithTraceID adds trace_id to logger context
func WithTraceID(logger zerolog.Logger, traceID string) zerolog.Logger {
	return logger.With().Str("trace_id", traceID).Logger()
}

// WithSessionID adds session_id to logger context
func WithSessionID(logger zerolog.Logger, sessionID uint64) zerolog.Logger {
	return logger.With().Uint64("session_id", sessionID).Logger()
}

// WithPlayerID adds player_id to logger context
func WithPlayerID(logger zerolog.Logger, playerID string) zerolog.Logger {
	return logger.With().Str("player_id", playerID).Logger()
}

// WithComponent adds component name to logger context
func WithComponent(logger zerolog.Logger, component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}

// WithFields adds multiple fields to logger context
func WithFields(logger zerolog.Logger, fields map[string]interface{}) zerolog.Logger {
	ctx := logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return ctx.Logger()
}
