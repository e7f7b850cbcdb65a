// Package logging configures the process-wide zerolog logger for the
// listing report and hands out component loggers.
//
// Components tag their events with a "component" field (rate-limiter,
// listing-client, pagination, store, metrics). Ingestion events also carry
// run_id, query and page; retries carry attempt, backoff and error_class.
// Upstream URLs are logged with the API key replaced by "***".
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel is a level name as written in configuration.
type LogLevel string

// Known levels.
const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

var levels = map[string]zerolog.Level{
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
}

// Valid reports whether the level name is known. Case is ignored.
func (l LogLevel) Valid() bool {
	_, ok := levels[strings.ToLower(string(l))]
	return ok
}

// zerologLevel maps the name to a zerolog level; unknown names mean info.
func (l LogLevel) zerologLevel() zerolog.Level {
	if lvl, ok := levels[strings.ToLower(string(l))]; ok {
		return lvl
	}
	return zerolog.InfoLevel
}

// Config is the logging section of the configuration file.
type Config struct {
	Level  LogLevel  `yaml:"level"`
	Pretty bool      `yaml:"pretty"`
	Output io.Writer `yaml:"-"` // nil means stderr
}

// DefaultConfig logs JSON at info level to stderr.
func DefaultConfig() Config {
	return Config{Level: LevelInfo, Output: os.Stderr}
}

// Setup applies cfg to the global level and log.Logger and returns the
// resulting root logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(cfg.Level.zerologLevel())

	var out io.Writer = os.Stderr
	if cfg.Output != nil {
		out = cfg.Output
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out}
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return log.Logger
}

// NewLogger derives a logger for component from the global logger.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}
