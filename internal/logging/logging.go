// Package logging builds the zap loggers used across the client.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Output formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Options configures New.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // console or json
	// File enables a rotating JSON log file in addition to the console.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	// Console receives console output; os.Stderr when nil.
	Console io.Writer
}

// DefaultOptions returns console logging at info level.
func DefaultOptions() Options {
	return Options{
		Level:      "info",
		Format:     FormatConsole,
		MaxSizeMB:  50,
		MaxBackups: 3,
		MaxAgeDays: 14,
		Compress:   true,
	}
}

// ParseLevel parses a level name.
func ParseLevel(s string) (zapcore.Level, error) {
	if s == "" {
		return zapcore.InfoLevel, nil
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return level, fmt.Errorf("log level %q: %w", s, err)
	}
	return level, nil
}

// New creates a logger from opts.
func New(opts Options) (*zap.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var consoleEncoder zapcore.Encoder
	switch opts.Format {
	case "", FormatConsole:
		consoleCfg := encCfg
		consoleCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		consoleEncoder = zapcore.NewConsoleEncoder(consoleCfg)
	case FormatJSON:
		consoleEncoder = zapcore.NewJSONEncoder(encCfg)
	default:
		return nil, fmt.Errorf("log format %q: want %s or %s", opts.Format, FormatConsole, FormatJSON)
	}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	atom := zap.NewAtomicLevelAt(level)
	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.AddSync(console), atom),
	}

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		writer := zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB, // megabytes
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays, // days
			Compress:   opts.Compress,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), writer, atom))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}
