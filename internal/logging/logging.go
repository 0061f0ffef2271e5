// Package logging initialises the global zerolog logger.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config represents logger configuration
type Config struct {
	Level string // "trace", "debug", "info", "warn", "error"
	// File, when set, additionally receives JSON logs rotated by size
	File string
	// Console receives human-readable output; nil means stderr
	Console io.Writer

	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Init initializes the global zerolog logger. The returned closer flushes and
// closes the log file, if any.
func Init(cfg Config) (io.Closer, error) {
	level := ParseLevel(cfg.Level)

	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.CallerMarshalFunc = func(pc uintptr, file string, line int) string {
		parts := strings.Split(file, string(filepath.Separator))
		if len(parts) > 1 {
			return filepath.Join(parts[len(parts)-2:]...) + ":" + strconv.Itoa(line)
		}
		return filepath.Base(file) + ":" + strconv.Itoa(line)
	}

	console := cfg.Console
	noColor := false
	if console == nil {
		console = os.Stderr
		noColor = !term.IsTerminal(int(os.Stderr.Fd()))
	}

	writers := []io.Writer{zerolog.ConsoleWriter{
		Out:        console,
		NoColor:    noColor,
		TimeFormat: time.TimeOnly,
		PartsOrder: []string{"time", "level", "message", "caller"},
		FormatCaller: func(i interface{}) string {
			if s, ok := i.(string); ok && s != "" {
				return "(" + s + ")"
			}
			return ""
		},
	}}

	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, errors.Wrap(err, "failed to create log directory")
		}
		// JSON output for files
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    orDefault(cfg.MaxSizeMB, 10),
			MaxBackups: orDefault(cfg.MaxBackups, 3),
			MaxAge:     orDefault(cfg.MaxAgeDays, 28),
		}
		writers = append(writers, file)
		closer = file
	}

	ctx := zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp()
	// Caller only for debug and below
	if level <= zerolog.DebugLevel {
		ctx = ctx.Caller()
	}
	logger := ctx.Logger()

	zerolog.DefaultContextLogger = &logger
	zlog.Logger = logger
	return closer, nil
}

// ParseLevel parses the log level string, defaulting to info
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
