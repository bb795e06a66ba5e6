package logging

import (
	"fmt"

	"jobpilot/internal/logging/adapters"
	"jobpilot/internal/logging/types"
)

// AdapterFactory creates logging adapters based on configuration
type AdapterFactory struct{}

// NewAdapterFactory creates a new adapter factory
func NewAdapterFactory() *AdapterFactory {
	return &AdapterFactory{}
}

// CreateAdapter creates a logging adapter based on the provided configuration
func (f *AdapterFactory) CreateAdapter(adapterConfig types.AdapterConfig) (types.LogAdapter, error) {
	switch adapterConfig.Type {
	case "stdout", "stderr":
		return adapters.NewZerologAdapter(adapterConfig.Name, adapters.ZerologConfig{
			Format:  getStringOption(adapterConfig.Options, "format", "json"),
			Output:  adapterConfig.Type,
			NoColor: !getBoolOption(adapterConfig.Options, "colorized", false),
		})
	case "file":
		path := getStringOption(adapterConfig.Options, "file_path", "")
		if path == "" {
			return nil, fmt.Errorf("file_path is required for file adapter")
		}
		return adapters.NewZerologAdapter(adapterConfig.Name, adapters.ZerologConfig{
			Format:   getStringOption(adapterConfig.Options, "format", "json"),
			Output:   path,
			NoColor:  true,
			MkdirAll: getBoolOption(adapterConfig.Options, "create_dirs", true),
		})
	case "memory":
		return adapters.NewMemoryAdapter(adapterConfig.Name), nil
	default:
		return nil, fmt.Errorf("unsupported adapter type: %s", adapterConfig.Type)
	}
}

func getStringOption(options map[string]interface{}, key string, defaultValue string) string {
	if value, ok := options[key]; ok {
		if s, ok := value.(string); ok {
			return s
		}
	}
	return defaultValue
}

func getBoolOption(options map[string]interface{}, key string, defaultValue bool) bool {
	if value, ok := options[key]; ok {
		if b, ok := value.(bool); ok {
			return b
		}
	}
	return defaultValue
}
