package logging

import (
	"fmt"
	"os"
	"sync"

	"jobpilot/internal/config"
	"jobpilot/internal/logging/adapters"
)

// Manager builds the process logger from configuration
type Manager struct {
	factory *AdapterFactory
	logger  *MultiLogger
}

// NewManager creates a new logging manager
func NewManager() *Manager {
	return &Manager{
		factory: NewAdapterFactory(),
		logger:  NewMultiLogger(),
	}
}

// Initialize registers the configured adapters. With no adapters configured a
// single stdout adapter in the configured format is used.
func (m *Manager) Initialize(cfg *config.Config) error {
	m.logger.SetLevel(ParseLogLevel(cfg.Logging.Level))

	enabled := 0
	for _, ac := range cfg.Logging.Adapters {
		if !ac.Enabled {
			continue
		}
		adapter, err := m.factory.CreateAdapter(AdapterConfig{
			Name:    ac.Name,
			Type:    ac.Type,
			Enabled: ac.Enabled,
			Options: ac.Options,
		})
		if err != nil {
			return fmt.Errorf("failed to create adapter %s: %w", ac.Name, err)
		}
		if err := m.logger.AddAdapter(adapter); err != nil {
			return fmt.Errorf("failed to add adapter %s: %w", ac.Name, err)
		}
		enabled++
	}

	if enabled > 0 {
		return nil
	}

	adapter, err := adapters.NewZerologAdapter("stdout", adapters.ZerologConfig{
		Format:  cfg.Logging.Format,
		Output:  "stdout",
		NoColor: true,
	})
	if err != nil {
		return err
	}
	return m.logger.AddAdapter(adapter)
}

// GetLogger returns the initialized logger
func (m *Manager) GetLogger() Logger {
	return m.logger
}

func (m *Manager) Close() error {
	return m.logger.Close()
}

var (
	globalMu      sync.Mutex
	globalManager *Manager
)

// InitializeLogging initializes the global logging system
func InitializeLogging(cfg *config.Config) error {
	m := NewManager()
	if err := m.Initialize(cfg); err != nil {
		return err
	}

	globalMu.Lock()
	globalManager = m
	globalMu.Unlock()
	return nil
}

// GetGlobalLogger returns the global logger, falling back to JSON on stdout
// when InitializeLogging has not run.
func GetGlobalLogger() Logger {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalManager == nil {
		m := NewManager()
		adapter := adapters.NewZerologWriterAdapter("fallback_stdout", os.Stdout, adapters.ZerologConfig{Format: "json"})
		_ = m.logger.AddAdapter(adapter)
		globalManager = m
	}
	return globalManager.GetLogger()
}

// CloseLogging closes the global logging system
func CloseLogging() error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalManager != nil {
		return globalManager.Close()
	}
	return nil
}

// LogWithRequestID creates a logger carrying a request ID
func LogWithRequestID(requestID string) Logger {
	return GetGlobalLogger().WithField("request_id", requestID)
}
