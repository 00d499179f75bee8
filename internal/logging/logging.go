// Package logging builds the structured logger shared by the PALS runtime.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	charmlog "github.com/charmbracelet/log"
)

// Logger is the structured logging surface used across the runtime.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
	With(keyvals ...any) Logger
}

// Config controls logger construction.
type Config struct {
	// Level is debug, info, warning or error in any capitalization.
	Level string
	// JSON selects the JSON formatter instead of logfmt-style text.
	JSON bool
	// FilePath is the directory of the log file. Relative paths resolve
	// against the working directory.
	FilePath string
	// FileName enables file logging when set.
	FileName string
	// FileMode is "a" to append (default) or "w" to truncate.
	FileMode string
	// TimeFormat is the timestamp layout.
	TimeFormat string
	// Output receives log lines when no file is configured. Defaults to stderr.
	Output io.Writer
}

// DefaultConfig returns text logging at info level to stderr.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		FileMode:   "a",
		TimeFormat: "2006-01-02 15:04:05",
	}
}

var levelAliases = map[string]charmlog.Level{
	"debug":   charmlog.DebugLevel,
	"info":    charmlog.InfoLevel,
	"warn":    charmlog.WarnLevel,
	"warning": charmlog.WarnLevel,
	"error":   charmlog.ErrorLevel,
}

// ParseLevel resolves a level name. Empty means info.
func ParseLevel(s string) (charmlog.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return charmlog.InfoLevel, nil
	}
	if lvl, ok := levelAliases[s]; ok {
		return lvl, nil
	}
	return charmlog.InfoLevel, fmt.Errorf("unknown log level %q", s)
}

type charmLogger struct {
	l *charmlog.Logger
}

func (c *charmLogger) Debug(msg string, keyvals ...any) { c.l.Debug(msg, keyvals...) }
func (c *charmLogger) Info(msg string, keyvals ...any)  { c.l.Info(msg, keyvals...) }
func (c *charmLogger) Warn(msg string, keyvals ...any)  { c.l.Warn(msg, keyvals...) }
func (c *charmLogger) Error(msg string, keyvals ...any) { c.l.Error(msg, keyvals...) }

func (c *charmLogger) With(keyvals ...any) Logger {
	return &charmLogger{l: c.l.With(keyvals...)}
}

// New builds a logger from cfg. The returned closer releases the log file,
// if any, and is never nil.
func New(cfg Config) (Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	var (
		out    io.Writer = cfg.Output
		closer io.Closer = nopCloser{}
	)
	if out == nil {
		out = os.Stderr
	}
	if cfg.FileName != "" {
		f, err := openLogFile(cfg)
		if err != nil {
			return nil, nil, err
		}
		out, closer = f, f
	}

	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = DefaultConfig().TimeFormat
	}

	l := charmlog.NewWithOptions(out, charmlog.Options{
		ReportTimestamp: true,
		TimeFormat:      timeFormat,
		Level:           level,
	})
	if cfg.JSON {
		l.SetFormatter(charmlog.JSONFormatter)
	} else {
		l.SetFormatter(charmlog.TextFormatter)
	}
	return &charmLogger{l: l}, closer, nil
}

func openLogFile(cfg Config) (*os.File, error) {
	dir := cfg.FilePath
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("unable to create log directory %s: %w", dir, err)
	}

	flags := os.O_WRONLY | os.O_CREATE
	switch cfg.FileMode {
	case "", "a":
		flags |= os.O_APPEND
	case "w":
		flags |= os.O_TRUNC
	default:
		return nil, fmt.Errorf("unknown log file mode %q", cfg.FileMode)
	}

	f, err := os.OpenFile(filepath.Join(dir, cfg.FileName), flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// Nop returns a logger that discards everything.
func Nop() Logger {
	return &charmLogger{l: charmlog.NewWithOptions(io.Discard, charmlog.Options{Level: charmlog.FatalLevel})}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
