package logging

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"jobpilot/internal/logging/types"
)

// adapterSet is shared by a logger and every child derived from it, so an
// adapter added at startup is visible to loggers created earlier.
type adapterSet struct {
	mu       sync.RWMutex
	level    LogLevel
	adapters map[string]types.LogAdapter
}

// MultiLogger fans each entry out to all registered adapters
type MultiLogger struct {
	set     *adapterSet
	context context.Context
	fields  map[string]interface{}
}

// NewMultiLogger creates a new MultiLogger instance
func NewMultiLogger() *MultiLogger {
	return &MultiLogger{
		set: &adapterSet{
			level:    InfoLevel,
			adapters: make(map[string]types.LogAdapter),
		},
		context: context.Background(),
		fields:  map[string]interface{}{},
	}
}

func (l *MultiLogger) Debug(message string, fields ...map[string]interface{}) {
	l.Log(DebugLevel, message, fields...)
}

func (l *MultiLogger) Info(message string, fields ...map[string]interface{}) {
	l.Log(InfoLevel, message, fields...)
}

func (l *MultiLogger) Warn(message string, fields ...map[string]interface{}) {
	l.Log(WarnLevel, message, fields...)
}

func (l *MultiLogger) Error(message string, fields ...map[string]interface{}) {
	l.Log(ErrorLevel, message, fields...)
}

// Fatal logs, flushes adapters and exits the process
func (l *MultiLogger) Fatal(message string, fields ...map[string]interface{}) {
	l.Log(FatalLevel, message, fields...)
	_ = l.Close()
	os.Exit(1)
}

// Log writes an entry at the given level to every adapter
func (l *MultiLogger) Log(level LogLevel, message string, fields ...map[string]interface{}) {
	l.set.mu.RLock()
	defer l.set.mu.RUnlock()

	if level < l.set.level {
		return
	}

	entry := &types.LogEntry{
		Level:     level,
		Message:   message,
		Timestamp: time.Now(),
		Context:   l.context,
		Fields:    l.merged(fields),
	}

	for name, adapter := range l.set.adapters {
		if err := adapter.Write(entry); err != nil {
			// stderr, so a broken adapter cannot recurse into the logger
			fmt.Fprintf(os.Stderr, "logging adapter %s error: %v\n", name, err)
		}
	}
}

func (l *MultiLogger) WithContext(ctx context.Context) Logger {
	return &MultiLogger{set: l.set, context: ctx, fields: l.merged(nil)}
}

func (l *MultiLogger) WithField(key string, value interface{}) Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

func (l *MultiLogger) WithFields(fields map[string]interface{}) Logger {
	return &MultiLogger{set: l.set, context: l.context, fields: l.merged([]map[string]interface{}{fields})}
}

func (l *MultiLogger) SetLevel(level LogLevel) {
	l.set.mu.Lock()
	defer l.set.mu.Unlock()
	l.set.level = level
}

func (l *MultiLogger) GetLevel() LogLevel {
	l.set.mu.RLock()
	defer l.set.mu.RUnlock()
	return l.set.level
}

// AddAdapter registers an adapter; names must be unique
func (l *MultiLogger) AddAdapter(adapter types.LogAdapter) error {
	l.set.mu.Lock()
	defer l.set.mu.Unlock()

	name := adapter.Name()
	if _, exists := l.set.adapters[name]; exists {
		return fmt.Errorf("adapter %s already exists", name)
	}
	l.set.adapters[name] = adapter
	return nil
}

// RemoveAdapter closes and unregisters the named adapter
func (l *MultiLogger) RemoveAdapter(adapterName string) error {
	l.set.mu.Lock()
	defer l.set.mu.Unlock()

	adapter, exists := l.set.adapters[adapterName]
	if !exists {
		return fmt.Errorf("adapter %s not found", adapterName)
	}
	delete(l.set.adapters, adapterName)

	if err := adapter.Close(); err != nil {
		return fmt.Errorf("failed to close adapter %s: %w", adapterName, err)
	}
	return nil
}

// AdapterNames lists registered adapters in name order
func (l *MultiLogger) AdapterNames() []string {
	l.set.mu.RLock()
	defer l.set.mu.RUnlock()

	names := make([]string, 0, len(l.set.adapters))
	for name := range l.set.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close closes all adapters
func (l *MultiLogger) Close() error {
	l.set.mu.Lock()
	defer l.set.mu.Unlock()

	var failures []string
	for name, adapter := range l.set.adapters {
		if err := adapter.Close(); err != nil {
			failures = append(failures, fmt.Sprintf("adapter %s: %v", name, err))
		}
	}

	if len(failures) > 0 {
		return fmt.Errorf("failed to close adapters: %s", strings.Join(failures, ", "))
	}
	return nil
}

func (l *MultiLogger) merged(extra []map[string]interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(l.fields))
	for k, v := range l.fields {
		fields[k] = v
	}
	for _, m := range extra {
		for k, v := range m {
			fields[k] = v
		}
	}
	return fields
}
