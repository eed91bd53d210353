package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

const defaultBufferSize = 1000

// Logger is satisfied by *slog.Logger. Library packages accept it so callers
// can hand in a module logger, a discard logger or a test double.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config represents logging configuration.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

type registry struct {
	mu          sync.RWMutex
	config      Config
	initialized bool
	global      *slog.LevelVar
	loggers     map[string]*slog.Logger
	levels      map[string]*slog.LevelVar
	buffer      *RingBuffer
	callback    LogCallback
	stdout      io.Writer
}

func newRegistry() *registry {
	return &registry{
		global:  &slog.LevelVar{},
		loggers: make(map[string]*slog.Logger),
		levels:  make(map[string]*slog.LevelVar),
		buffer:  NewRingBuffer(defaultBufferSize),
		stdout:  os.Stdout,
	}
}

var std = newRegistry()

// Initialize sets up the logging system. Loggers handed out before the call
// keep their identity; their levels and handlers are updated in place.
func Initialize(config Config) {
	std.mu.Lock()
	defer std.mu.Unlock()

	std.config = config
	std.initialized = true

	globalLevel := slog.LevelInfo
	if parsed := parseLevel(config.Level); parsed != nil {
		globalLevel = *parsed
	}
	std.global.Set(globalLevel)

	for module, levelVar := range std.levels {
		levelVar.Set(std.moduleLevel(module))
		std.loggers[module] = slog.New(std.handler(levelVar)).With("module", module)
	}

	slog.SetDefault(slog.New(std.handler(std.global)))
}

// GetLogger returns a logger for the specified module, creating it if needed.
func GetLogger(module string) *slog.Logger {
	std.mu.RLock()
	if logger, ok := std.loggers[module]; ok {
		std.mu.RUnlock()
		return logger
	}
	std.mu.RUnlock()

	std.mu.Lock()
	defer std.mu.Unlock()

	if logger, ok := std.loggers[module]; ok {
		return logger
	}

	levelVar := &slog.LevelVar{}
	levelVar.Set(std.moduleLevel(module))

	logger := slog.New(std.handler(levelVar)).With("module", module)
	std.loggers[module] = logger
	std.levels[module] = levelVar
	return logger
}

// SetModuleLevel changes the level of one module at runtime.
func SetModuleLevel(module, level string) bool {
	parsed := parseLevel(level)
	if parsed == nil {
		return false
	}
	GetLogger(module)

	std.mu.Lock()
	defer std.mu.Unlock()
	std.levels[module].Set(*parsed)
	return true
}

// GetBuffer returns the ring buffer holding recent log entries.
func GetBuffer() *RingBuffer {
	std.mu.RLock()
	defer std.mu.RUnlock()
	return std.buffer
}

// SetLogCallback registers a function called for every buffered entry.
func SetLogCallback(callback LogCallback) {
	std.mu.Lock()
	defer std.mu.Unlock()
	std.callback = callback
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// moduleLevel must be called with mu held.
func (r *registry) moduleLevel(module string) slog.Level {
	level := slog.LevelInfo
	if !r.initialized {
		return level
	}
	if parsed := parseLevel(r.config.Level); parsed != nil {
		level = *parsed
	}
	if s, ok := r.config.Modules[module]; ok {
		if parsed := parseLevel(s); parsed != nil {
			level = *parsed
		}
	}
	return level
}

// handler builds the handler chain: stdout, journal when available, and the
// ring buffer. Must be called with mu held.
func (r *registry) handler(level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	var stdoutHandler slog.Handler
	if r.initialized && r.config.Format == "json" {
		stdoutHandler = slog.NewJSONHandler(r.stdout, opts)
	} else {
		stdoutHandler = slog.NewTextHandler(r.stdout, opts)
	}

	var handlers []slog.Handler
	if isStdoutAvailable() {
		handlers = append(handlers, stdoutHandler)
	}
	if r.initialized && IsJournalAvailable() {
		handlers = append(handlers, NewJournalHandler(level))
	}
	handlers = append(handlers, NewBufferHandler(r.buffer, level, r.dispatch))

	if len(handlers) == 1 {
		return handlers[0]
	}
	return NewMultiHandler(handlers...)
}

func (r *registry) dispatch(entry LogEntry) {
	r.mu.RLock()
	cb := r.callback
	r.mu.RUnlock()
	if cb != nil {
		cb(entry)
	}
}

// isStdoutAvailable checks if stdout is connected to a terminal, pipe, socket, or file.
func isStdoutAvailable() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return (mode&os.ModeCharDevice) != 0 || (mode&os.ModeNamedPipe) != 0 || (mode&os.ModeSocket) != 0 || mode.IsRegular()
}

func parseLevel(level string) *slog.Level {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		return nil
	}
	return &l
}
