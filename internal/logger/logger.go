package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default logging configuration constants
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days

	// ManagerFile is the daemon's own log inside the log directory.
	ManagerFile = "module_manager.log"
	// ManagerTag tags records that do not belong to a module.
	ManagerTag = "Module Manager"
	// ModuleKey is the attribute carrying the module name or ManagerTag.
	ModuleKey = "module"
)

// Config describes the manager log sink. Rotation parameters follow
// lumberjack semantics.
type Config struct {
	Dir        string // log directory (required)
	Level      string // debug, info, warn, error
	MaxSizeMB  int    // megabytes before rotation (default 10)
	MaxBackups int    // number of backups to keep (default 3)
	MaxAgeDays int    // days to keep (default 7)
	Compress   bool   // gzip rotated files
	Console    bool   // also log to stdout/stderr
}

// ConsoleAttached reports whether stdout is a terminal.
func ConsoleAttached() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// ManagerWriter opens the rotating manager log. It rotates immediately so each
// daemon run starts a fresh file; a failure here means the sink is unusable.
func (c Config) ManagerWriter() (*lj.Logger, error) {
	if strings.TrimSpace(c.Dir) == "" {
		return nil, fmt.Errorf("log directory is empty")
	}
	if err := os.MkdirAll(c.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create log directory %s: %w", c.Dir, err)
	}
	w := &lj.Logger{
		Filename:   filepath.Join(c.Dir, ManagerFile),
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}
	if err := w.Rotate(); err != nil {
		return nil, fmt.Errorf("open manager log %s: %w", w.Filename, err)
	}
	return w, nil
}

// New builds the daemon's base logger: the manager file sink plus, when Console
// is set, colored output on stdout (WARN and above on stderr). Records are tagged
// through Manager or Module.
func New(c Config) (*slog.Logger, io.Closer, error) {
	w, err := c.ManagerWriter()
	if err != nil {
		return nil, nil, err
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(c.Level)}
	handlers := []slog.Handler{slog.NewTextHandler(w, opts)}
	if c.Console {
		handlers = append(handlers, &LevelSplitHandler{
			Low:       NewColorTextHandler(os.Stdout, opts, true),
			High:      NewColorTextHandler(os.Stderr, opts, true),
			Threshold: slog.LevelWarn,
		})
	}
	return slog.New(NewMulti(handlers...)), w, nil
}

// Manager returns a logger tagged as the manager itself.
func Manager(l *slog.Logger) *slog.Logger {
	return l.With(ModuleKey, ManagerTag)
}

// Module returns a logger tagged with the module name.
func Module(l *slog.Logger, name string) *slog.Logger {
	return l.With(ModuleKey, name)
}

// Discard is a logger that drops everything, for tests and embedding.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel maps a level name to slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
