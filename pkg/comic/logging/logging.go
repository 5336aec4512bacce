// Package logging hands out named, leveled loggers for comicarc components.
// The archive, loader and library packages call Get once and never configure
// output themselves; the CLI calls Init with the user's settings.
//
//	if err := logging.Init(logging.Config{Level: "info"}); err != nil {
//	    return err
//	}
//	defer logging.Close()
//
//	logging.Get("archive").Info("opened container", "path", path, "kind", kind)
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/charmbracelet/log"
)

// Level is a logging severity.
type Level = log.Level

// Supported levels.
const (
	LevelDebug = log.DebugLevel
	LevelInfo  = log.InfoLevel
	LevelWarn  = log.WarnLevel
	LevelError = log.ErrorLevel
)

// ConsoleOnly is the Config.Path value that disables the log file.
const ConsoleOnly = "-"

// ErrInvalidLevel is returned for an unrecognized level name.
var ErrInvalidLevel = errors.New("invalid log level")

var levelNames = map[string]Level{
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
}

// ParseLevel parses a case-insensitive level name.
func ParseLevel(s string) (Level, error) {
	if lvl, ok := levelNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return lvl, nil
	}
	return LevelInfo, fmt.Errorf("%w: %q", ErrInvalidLevel, s)
}

// Config configures the logging system.
type Config struct {
	// Level is the default file level (debug, info, warn, error).
	Level string

	// Path is the log file. Empty uses DefaultLogPath; ConsoleOnly skips
	// the file.
	Path string

	Rotation RotationConfig

	// Components overrides the file level per component name.
	Components map[string]string

	// ConsoleLevel mirrors records at or above this level to Console.
	// Empty disables console output.
	ConsoleLevel string

	// Console is the console destination, os.Stderr when nil.
	Console io.Writer
}

// Logger writes a component's records to every configured sink.
type Logger struct {
	component string
	sinks     []*log.Logger
}

func (l *Logger) emit(level Level, msg string, kv []any) {
	mu.RLock()
	sinks := l.sinks
	mu.RUnlock()
	for _, s := range sinks {
		s.Log(level, msg, kv...)
	}
}

func (l *Logger) Debug(msg string, kv ...any) { l.emit(LevelDebug, msg, kv) }
func (l *Logger) Info(msg string, kv ...any)  { l.emit(LevelInfo, msg, kv) }
func (l *Logger) Warn(msg string, kv ...any)  { l.emit(LevelWarn, msg, kv) }
func (l *Logger) Error(msg string, kv ...any) { l.emit(LevelError, msg, kv) }

// Component returns the name the logger was created with.
func (l *Logger) Component() string { return l.component }

// With returns a logger that adds kv to every record. The result is a
// snapshot: a later Init does not reconfigure it.
func (l *Logger) With(kv ...any) *Logger {
	mu.RLock()
	defer mu.RUnlock()
	derived := &Logger{component: l.component, sinks: make([]*log.Logger, len(l.sinks))}
	for i, s := range l.sinks {
		derived.sinks[i] = s.With(kv...)
	}
	return derived
}

// settings is what Init resolved from a Config.
type settings struct {
	level      Level
	components map[string]Level
	file       *RotatingWriter
	console    io.Writer // nil when console output is off
	consoleLvl Level
}

var (
	mu      sync.RWMutex
	active  *settings // nil until Init and after Close
	loggers = map[string]*Logger{}
)

// Init applies cfg. It may be called again; the previous log file is closed
// and loggers already handed out switch to the new sinks.
func Init(cfg Config) error {
	next, err := resolve(cfg)
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()

	if err := closeFileLocked(); err != nil {
		if next.file != nil {
			_ = next.file.Close()
		}
		return err
	}
	active = next
	rebuildLocked()
	return nil
}

func resolve(cfg Config) (*settings, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}
	s := &settings{level: level, components: make(map[string]Level, len(cfg.Components))}

	for comp, name := range cfg.Components {
		lvl, err := ParseLevel(name)
		if err != nil {
			return nil, fmt.Errorf("parsing level for component %s: %w", comp, err)
		}
		s.components[comp] = lvl
	}

	if cfg.ConsoleLevel != "" {
		if s.consoleLvl, err = ParseLevel(cfg.ConsoleLevel); err != nil {
			return nil, fmt.Errorf("parsing console level: %w", err)
		}
		s.console = cfg.Console
		if s.console == nil {
			s.console = os.Stderr
		}
	}

	path := cfg.Path
	if path == "" {
		path = DefaultLogPath()
	}
	if path != ConsoleOnly {
		if s.file, err = NewRotatingWriter(path, cfg.Rotation); err != nil {
			return nil, fmt.Errorf("creating log writer: %w", err)
		}
	}
	return s, nil
}

// Get returns the logger for component, creating it on first use.
func Get(component string) *Logger {
	mu.RLock()
	l, ok := loggers[component]
	mu.RUnlock()
	if ok {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[component]; ok {
		return l
	}
	l = &Logger{component: component, sinks: sinksFor(component)}
	loggers[component] = l
	return l
}

// rebuildLocked points every handed-out logger at the active sinks.
func rebuildLocked() {
	for component, l := range loggers {
		l.sinks = sinksFor(component)
	}
}

// sinksFor must be called with mu held.
func sinksFor(component string) []*log.Logger {
	if active == nil {
		return nil
	}

	var sinks []*log.Logger
	if active.file != nil {
		level := active.level
		if lvl, ok := active.components[component]; ok {
			level = lvl
		}
		sinks = append(sinks, log.NewWithOptions(active.file, log.Options{
			Level:           level,
			Prefix:          component,
			ReportTimestamp: true,
			TimeFormat:      time.RFC3339,
		}))
	}
	if active.console != nil {
		sinks = append(sinks, log.NewWithOptions(active.console, log.Options{
			Level:           active.consoleLvl,
			Prefix:          component,
			ReportTimestamp: true,
			TimeFormat:      time.TimeOnly,
		}))
	}
	return sinks
}

func closeFileLocked() error {
	if active == nil || active.file == nil {
		return nil
	}
	err := active.file.Close()
	active.file = nil
	if err != nil {
		return fmt.Errorf("closing log writer: %w", err)
	}
	return nil
}

// Close closes the log file. Loggers discard until the next Init.
func Close() error {
	mu.Lock()
	defer mu.Unlock()

	err := closeFileLocked()
	active = nil
	rebuildLocked()
	return err
}

// DefaultLogPath returns $XDG_STATE_HOME/comicarc/comicarc.log.
func DefaultLogPath() string {
	return filepath.Join(xdg.StateHome, "comicarc", "comicarc.log")
}
