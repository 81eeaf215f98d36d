package config

import (
	"path/filepath"

	"github.com/coral-mesh/devprof/internal/constants"
	"github.com/coral-mesh/devprof/internal/retry"
)

// DefaultConfig returns a config with sensible defaults. homeDir anchors the
// default store directory.
func DefaultConfig(homeDir string) *Config {
	return &Config{
		Version: SchemaVersion,
		Agent: AgentConfig{
			Endpoint:    constants.DefaultAgentEndpoint,
			DialTimeout: constants.DefaultDialTimeout,
			CallTimeout: constants.DefaultCallTimeout,
			Retry: retry.Config{
				MaxRetries:     constants.DefaultDialRetries,
				InitialBackoff: constants.DefaultDialBackoff,
				MaxBackoff:     constants.DefaultDialMaxBackoff,
				Jitter:         0.1,
			},
		},
		Target: TargetConfig{
			EngineType: constants.DefaultEngineType,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: true,
		},
		Store: StoreConfig{
			Dir: filepath.Join(homeDir, constants.DefaultStoreDir),
		},
		Stats: StatsConfig{
			Enabled: false,
		},
	}
}
