package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	charmlog "github.com/charmbracelet/log"
)

// #region config

// Config controls diagnostic log output.
type Config struct {
	Level      string
	JSON       bool
	Output     io.Writer
	TimeFormat string
}

// DefaultConfig logs info and above to stderr in text form.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Output:     os.Stderr,
		TimeFormat: "15:04:05",
	}
}

// #endregion config

// #region constructor

// New builds a charm logger from cfg.
func New(cfg Config) *charmlog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	tf := cfg.TimeFormat
	if tf == "" {
		tf = "15:04:05"
	}
	l := charmlog.NewWithOptions(out, charmlog.Options{
		ReportTimestamp: true,
		TimeFormat:      tf,
		Level:           ParseLevel(cfg.Level),
	})
	if cfg.JSON {
		l.SetFormatter(charmlog.JSONFormatter)
	} else {
		l.SetFormatter(charmlog.TextFormatter)
	}
	return l
}

// ParseLevel maps a level name to a charm level, defaulting to info.
func ParseLevel(s string) charmlog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return charmlog.DebugLevel
	case "warn", "warning":
		return charmlog.WarnLevel
	case "error":
		return charmlog.ErrorLevel
	default:
		return charmlog.InfoLevel
	}
}

// #endregion constructor

// #region default

var (
	mu         sync.RWMutex
	defaultLog = New(DefaultConfig())
)

// SetDefault replaces the process-wide fallback logger.
func SetDefault(l *charmlog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLog = l
}

// Default returns the process-wide fallback logger.
func Default() *charmlog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return defaultLog
}

// Nop discards everything. Used by tests.
func Nop() *charmlog.Logger {
	return charmlog.NewWithOptions(io.Discard, charmlog.Options{Level: charmlog.FatalLevel})
}

// Component returns l (or the default when nil) tagged with a component prefix.
func Component(l *charmlog.Logger, name string) *charmlog.Logger {
	if l == nil {
		l = Default()
	}
	return l.WithPrefix(name)
}

// #endregion default
