// Package logging provides structured logging functionality.
package logging

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string
	Console    bool
	File       bool
	FilePath   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	home, _ := os.UserHomeDir()
	return LogConfig{
		Level:      "info",
		Console:    true,
		File:       false,
		FilePath:   filepath.Join(home, ".config", "greeks-simulator", "logs", "greeks.log"),
		MaxSize:    50,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	}
}

// NewLogger creates a new logger with default configuration.
func NewLogger() zerolog.Logger {
	return NewLoggerWithConfig(DefaultLogConfig())
}

// NewLoggerWithConfig creates a new logger with the specified configuration.
// Console output goes to stderr so command results on stdout stay parseable.
func NewLoggerWithConfig(cfg LogConfig) zerolog.Logger {
	return newLogger(cfg, os.Stderr)
}

func newLogger(cfg LogConfig, console io.Writer) zerolog.Logger {
	var writers []io.Writer

	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:         console,
			TimeFormat:  time.RFC3339,
			FormatLevel: formatLevel,
		})
	}

	// File writer with rotation
	if cfg.File && cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err == nil {
			writers = append(writers, &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   cfg.Compress,
			})
		}
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = io.Discard
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	return zerolog.New(writer).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Logger()
}

type levelTag struct {
	text  string
	color *color.Color
}

var levelTags = map[string]levelTag{
	"debug": {"DBG", color.New(color.FgCyan)},
	"info":  {"INF", color.New(color.FgGreen)},
	"warn":  {"WRN", color.New(color.FgYellow)},
	"error": {"ERR", color.New(color.FgRed)},
}

// formatLevel renders the console level column as a coloured three-letter tag.
func formatLevel(i interface{}) string {
	ll, ok := i.(string)
	if !ok {
		return "???"
	}
	tag, ok := levelTags[ll]
	if !ok {
		return ll
	}
	return tag.color.Sprint(tag.text)
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// ValidLevel reports whether level is a recognised level name.
func ValidLevel(level string) bool {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "info", "warn", "warning", "error", "disabled", "off":
		return true
	}
	return false
}

// ContextKey is the type for context keys.
type ContextKey string

// LoggerKey is the context key for the logger.
const LoggerKey ContextKey = "logger"

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// FromContext retrieves the logger from context.
func FromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(LoggerKey).(zerolog.Logger); ok {
		return logger
	}
	return zerolog.Nop()
}

// WithTicker adds a ticker to the logger context.
func WithTicker(logger zerolog.Logger, ticker string) zerolog.Logger {
	return logger.With().Str("ticker", ticker).Logger()
}

// WithStrategy adds a strategy name to the logger context.
func WithStrategy(logger zerolog.Logger, strategy string) zerolog.Logger {
	return logger.With().Str("strategy", strategy).Logger()
}

// WithOperation adds an operation name to the logger context.
func WithOperation(logger zerolog.Logger, operation string) zerolog.Logger {
	return logger.With().Str("operation", operation).Logger()
}

// LogBacktest logs the summary of a finished backtest run.
func LogBacktest(logger zerolog.Logger, ticker, strategy string, totalReturn, sharpe, maxDrawdown float64, trades int) {
	logger.Info().
		Str("event", "backtest").
		Str("ticker", ticker).
		Str("strategy", strategy).
		Float64("total_return", totalReturn).
		Float64("sharpe_ratio", sharpe).
		Float64("max_drawdown", maxDrawdown).
		Int("trades", trades).
		Msg("Backtest completed")
}

// LogTrade logs a closed round-trip trade.
func LogTrade(logger zerolog.Logger, strategy, reason string, entry, exit, pnl float64) {
	logger.Debug().
		Str("event", "trade").
		Str("strategy", strategy).
		Str("reason", reason).
		Float64("entry_value", entry).
		Float64("exit_value", exit).
		Float64("pnl", pnl).
		Msg("Position closed")
}

// LogHedge logs a hedge recommendation.
func LogHedge(logger zerolog.Logger, greek string, current, shares float64) {
	logger.Info().
		Str("event", "hedge").
		Str("greek", greek).
		Float64("current_value", current).
		Float64("hedge_shares", shares).
		Msg("Hedge computed")
}

// LogDataLoad logs a price-series load.
func LogDataLoad(logger zerolog.Logger, source, ticker string, samples int, duration time.Duration, err error) {
	event := logger.Debug().
		Str("event", "data_load").
		Str("source", source).
		Str("ticker", ticker).
		Int("samples", samples).
		Dur("duration", duration)

	if err != nil {
		event.Err(err).Msg("Price series load failed")
	} else {
		event.Msg("Price series loaded")
	}
}
