package types

import (
	"context"
	"strings"
	"time"
)

// LogLevel represents the severity level of a log entry
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	case FatalLevel:
		return "fatal"
	default:
		return "info"
	}
}

// ParseLogLevel parses a level name; unknown names map to InfoLevel.
func ParseLogLevel(levelStr string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	case "fatal":
		return FatalLevel
	default:
		return InfoLevel
	}
}

// LogEntry represents a single log entry
type LogEntry struct {
	Level     LogLevel               `json:"level"`
	Message   string                 `json:"message"`
	Timestamp time.Time              `json:"timestamp"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Context   context.Context        `json:"-"`
}

// LogAdapter writes entries to one destination
type LogAdapter interface {
	Write(entry *LogEntry) error
	Close() error
	Health() error
	Name() string
}

// Logger is the logging interface handed to every component
type Logger interface {
	Debug(message string, fields ...map[string]interface{})
	Info(message string, fields ...map[string]interface{})
	Warn(message string, fields ...map[string]interface{})
	Error(message string, fields ...map[string]interface{})
	Fatal(message string, fields ...map[string]interface{})

	WithContext(ctx context.Context) Logger
	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger

	Log(level LogLevel, message string, fields ...map[string]interface{})

	SetLevel(level LogLevel)
	GetLevel() LogLevel

	AddAdapter(adapter LogAdapter) error
	RemoveAdapter(adapterName string) error

	Close() error
}

// AdapterConfig represents configuration for a specific adapter
type AdapterConfig struct {
	Name    string                 `yaml:"name"`
	Type    string                 `yaml:"type"`
	Enabled bool                   `yaml:"enabled"`
	Options map[string]interface{} `yaml:"options"`
}

// nopLogger drops everything. Used by tests and as a constructor fallback.
type nopLogger struct{}

// NewNopLogger returns a Logger that discards all entries.
func NewNopLogger() Logger { return nopLogger{} }

func (nopLogger) Debug(string, ...map[string]interface{})         {}
func (nopLogger) Info(string, ...map[string]interface{})          {}
func (nopLogger) Warn(string, ...map[string]interface{})          {}
func (nopLogger) Error(string, ...map[string]interface{})         {}
func (nopLogger) Fatal(string, ...map[string]interface{})         {}
func (n nopLogger) WithContext(context.Context) Logger            { return n }
func (n nopLogger) WithField(string, interface{}) Logger          { return n }
func (n nopLogger) WithFields(map[string]interface{}) Logger      { return n }
func (nopLogger) Log(LogLevel, string, ...map[string]interface{}) {}
func (nopLogger) SetLevel(LogLevel)                               {}
func (nopLogger) GetLevel() LogLevel                              { return FatalLevel }
func (nopLogger) AddAdapter(LogAdapter) error                     { return nil }
func (nopLogger) RemoveAdapter(string) error                      { return nil }
func (nopLogger) Close() error                                    { return nil }
