// Package logging provides structured logging for badgesync: JSON files under
// the state directory by default, or human readable lines on a console.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	clog "github.com/charmbracelet/log"
	"github.com/cristianoliveira/badgesync/internal/colors"
)

// Logger is the structured logging interface.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	// With returns a new logger with additional key-value pairs.
	With(args ...any) Logger
	// Shutdown flushes any buffered logs and releases resources.
	Shutdown() error
}

// sink is shared by a logger and every child created with With.
type sink struct {
	mu       sync.Mutex
	clogger  *clog.Logger
	file     *os.File
	path     string
	redactor *redactor
	closed   bool
}

type loggerImpl struct {
	sink   *sink
	fields []any
}

// Init builds a Logger from cfg. A disabled config yields the no-op logger.
// With cfg.Console set, text lines go there; otherwise a rotated JSON file
// is opened under LogDir.
func Init(cfg Config) (Logger, error) {
	if !cfg.Enabled && cfg.Console == nil {
		return Nop(), nil
	}

	s := &sink{redactor: newRedactor()}
	if cfg.Console != nil {
		s.clogger = clog.NewWithOptions(cfg.Console, clog.Options{
			ReportTimestamp: true,
			TimeFormat:      time.TimeOnly,
			Level:           parseLevel(cfg.Level),
		})
		return &loggerImpl{sink: s}, nil
	}

	logDir, err := LogDir()
	if err != nil {
		return nil, fmt.Errorf("logging: resolve log dir: %w", err)
	}
	if err := rotate(logDir, cfg.MaxFiles); err != nil {
		fmt.Fprintf(os.Stderr, "log rotation failed: %v\n", err)
	}
	fname := fmt.Sprintf("%s%s_PID%d_%s.log",
		filePrefix,
		time.Now().Format("20060102_150405"),
		cfg.PID,
		strings.ReplaceAll(cfg.Command, " ", "_"))
	path := filepath.Join(logDir, fname)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("logging: open log file: %w", err)
	}
	s.file = f
	s.path = path
	s.clogger = clog.NewWithOptions(f, clog.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339Nano,
		Level:           parseLevel(cfg.Level),
		Formatter:       clog.JSONFormatter,
	}).With("pid", cfg.PID, "command", cfg.Command)
	return &loggerImpl{sink: s}, nil
}

// parseLevel converts a string level to clog.Level.
func parseLevel(level string) clog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return clog.DebugLevel
	case "warn", "warning":
		return clog.WarnLevel
	case "error":
		return clog.ErrorLevel
	default:
		return clog.InfoLevel
	}
}

func (l *loggerImpl) Debug(msg string, args ...any) { l.log(clog.DebugLevel, msg, args) }
func (l *loggerImpl) Info(msg string, args ...any)  { l.log(clog.InfoLevel, msg, args) }
func (l *loggerImpl) Warn(msg string, args ...any)  { l.log(clog.WarnLevel, msg, args) }
func (l *loggerImpl) Error(msg string, args ...any) { l.log(clog.ErrorLevel, msg, args) }

func (l *loggerImpl) log(level clog.Level, msg string, args []any) {
	all := make([]any, 0, len(l.fields)+len(args))
	all = append(all, l.fields...)
	all = append(all, args...)

	s := l.sink
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.clogger.Log(level, msg, s.redactor.redact(all)...)
}

func (l *loggerImpl) With(args ...any) Logger {
	if len(args)%2 == 1 {
		args = args[:len(args)-1]
	}
	fields := make([]any, 0, len(l.fields)+len(args))
	fields = append(fields, l.fields...)
	fields = append(fields, args...)
	return &loggerImpl{sink: l.sink, fields: fields}
}

// Shutdown closes the log file. Children created with With stop logging too.
func (l *loggerImpl) Shutdown() error {
	s := l.sink
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}

func (l *loggerImpl) filePath() string {
	return l.sink.path
}

// noopLogger discards all output.
type noopLogger struct{}

func (n noopLogger) Debug(msg string, args ...any) {}
func (n noopLogger) Info(msg string, args ...any)  {}
func (n noopLogger) Warn(msg string, args ...any)  {}
func (n noopLogger) Error(msg string, args ...any) {}
func (n noopLogger) With(args ...any) Logger       { return n }
func (n noopLogger) Shutdown() error               { return nil }

// Nop returns a logger that discards everything.
func Nop() Logger { return noopLogger{} }

var (
	globalLogger   Logger
	globalLoggerMu sync.RWMutex
)

// InitGlobal initializes the global logger from the global configuration and
// mirrors console messages into it. A later call replaces the previous
// logger after shutting it down.
func InitGlobal() error {
	return SetGlobalConfig(FromGlobalConfig())
}

// SetGlobalConfig installs a global logger built from cfg.
func SetGlobalConfig(cfg Config) error {
	l, err := Init(cfg)
	if err != nil {
		return err
	}
	globalLoggerMu.Lock()
	prev := globalLogger
	globalLogger = l
	globalLoggerMu.Unlock()
	if prev != nil {
		prev.Shutdown()
	}

	if _, isNop := l.(noopLogger); !isNop {
		colors.SetLogger(l)
	}
	if path := CurrentLogFile(); path != "" {
		colors.Debug("Logging to file:", path)
	}
	return nil
}

// GetGlobal returns the global logger, or a no-op logger if not initialized.
func GetGlobal() Logger {
	globalLoggerMu.RLock()
	defer globalLoggerMu.RUnlock()
	if globalLogger == nil {
		return noopLogger{}
	}
	return globalLogger
}

// Debug logs a debug message using the global logger.
func Debug(msg string, args ...any) { GetGlobal().Debug(msg, args...) }

// Info logs an info message using the global logger.
func Info(msg string, args ...any) { GetGlobal().Info(msg, args...) }

// Warn logs a warning message using the global logger.
func Warn(msg string, args ...any) { GetGlobal().Warn(msg, args...) }

// Error logs an error message using the global logger.
func Error(msg string, args ...any) { GetGlobal().Error(msg, args...) }

// ShutdownGlobal shuts down the global logger and detaches it from the console.
func ShutdownGlobal() error {
	globalLoggerMu.Lock()
	l := globalLogger
	globalLogger = nil
	globalLoggerMu.Unlock()
	colors.SetLogger(nil)
	if l == nil {
		return nil
	}
	return l.Shutdown()
}

// CurrentLogFile returns the path of the active log file, or "" when logging
// is disabled or goes to a console.
func CurrentLogFile() string {
	globalLoggerMu.RLock()
	defer globalLoggerMu.RUnlock()
	if impl, ok := globalLogger.(*loggerImpl); ok {
		return impl.filePath()
	}
	return ""
}
