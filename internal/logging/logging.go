// Package logging provides the process-wide structured logger used by
// every component of the tunnel lifecycle engine.
package logging

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger wraps the standard library logger with a rotating file writer
// and leveled helper methods.
type Logger struct {
	*log.Logger
	writer *lumberjack.Logger
}

// NewLogger builds a logger from the given configuration, creating the
// log directory and rotation writer.
func NewLogger(cfg *Config) (*Logger, error) {
	logFile := cfg.File
	if strings.HasPrefix(logFile, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		logFile = filepath.Join(homeDir, logFile[2:])
	}

	if logFile != "" && logFile != "stdout" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	writer := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   true,
	}

	out := log.New(writer, "", log.LstdFlags|log.Lshortfile)
	if logFile == "" || logFile == "stdout" {
		out = log.New(os.Stdout, "", log.LstdFlags|log.Lshortfile)
	}

	return &Logger{
		Logger: out,
		writer: writer,
	}, nil
}

// Close flushes and closes the underlying rotation writer.
func (l *Logger) Close() error {
	if l.writer == nil {
		return nil
	}
	return l.writer.Close()
}

// Log levels recognized by Config.Level.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

func (l *Logger) Debug(format string, v ...interface{}) {
	l.Printf("[DEBUG] "+format, v...)
}

func (l *Logger) Info(format string, v ...interface{}) {
	l.Printf("[INFO] "+format, v...)
}

func (l *Logger) Warn(format string, v ...interface{}) {
	l.Printf("[WARN] "+format, v...)
}

func (l *Logger) Error(format string, v ...interface{}) {
	l.Printf("[ERROR] "+format, v...)
}

// ErrorWithContext annotates an error with the operation that produced it.
type ErrorWithContext struct {
	Err     error
	Context string
}

func (e *ErrorWithContext) Error() string {
	return fmt.Sprintf("%s: %v", e.Context, e.Err)
}

func (e *ErrorWithContext) Unwrap() error {
	return e.Err
}

// WrapError annotates err with context, or returns nil if err is nil.
func WrapError(err error, context string) error {
	if err == nil {
		return nil
	}
	return &ErrorWithContext{Err: err, Context: context}
}

// Common infrastructure-level errors shared across packages.
var (
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrConnection    = errors.New("connection error")
)
