// Package config provides configuration loading and management.
package config

import (
	"time"

	"github.com/coral-mesh/devprof/internal/retry"
)

// SchemaVersion is the configuration schema version.
const SchemaVersion = "1"

// Config represents ~/.devprof/config.yaml.
type Config struct {
	Version string        `yaml:"version"`
	Agent   AgentConfig   `yaml:"agent"`
	Target  TargetConfig  `yaml:"target"`
	Logging LoggingConfig `yaml:"logging"`
	Store   StoreConfig   `yaml:"store"`
	Stats   StatsConfig   `yaml:"stats"`
}

// AgentConfig describes how to reach the remote profiler agent.
type AgentConfig struct {
	Endpoint    string        `yaml:"endpoint" env:"DEVPROF_AGENT_ENDPOINT"`
	DialTimeout time.Duration `yaml:"dial_timeout" env:"DEVPROF_DIAL_TIMEOUT"`
	// CallTimeout bounds each protocol call.
	CallTimeout time.Duration `yaml:"call_timeout" env:"DEVPROF_CALL_TIMEOUT"`
	Retry       retry.Config  `yaml:"retry"`
}

// TargetConfig describes the debugged target.
type TargetConfig struct {
	// ID qualifies profile ids. Empty means a random id per run.
	ID         string `yaml:"id,omitempty" env:"DEVPROF_TARGET_ID"`
	EngineType string `yaml:"engine_type" env:"DEVPROF_ENGINE_TYPE"`
	Runtime    string `yaml:"runtime,omitempty" env:"DEVPROF_RUNTIME"`
}

// LoggingConfig configures the zerolog logger.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"DEVPROF_LOG_LEVEL"`
	Pretty bool   `yaml:"pretty" env:"DEVPROF_LOG_PRETTY"`
}

// StoreConfig configures the on-disk profile store.
type StoreConfig struct {
	Dir string `yaml:"dir" env:"DEVPROF_STORE_DIR"`
}

// StatsConfig configures usage statistics.
type StatsConfig struct {
	Enabled bool `yaml:"enabled" env:"DEVPROF_STATS_ENABLED"`
	// Extra is merged into every statistics record.
	Extra map[string]string `yaml:"extra,omitempty" env:"DEVPROF_STATS_EXTRA"`
}
