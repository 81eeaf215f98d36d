package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/coral-mesh/devprof/internal/constants"
)

// Loader handles loading and saving the configuration file.
type Loader struct {
	homeDir string
	path    string
}

// NewLoader creates a new config loader.
// The config file is resolved in this order:
//  1. DEVPROF_CONFIG environment variable (a file path).
//  2. ~/.devprof/config.yaml.
//  3. /tmp/devprof-fallback/.devprof/config.yaml when there is no home
//     directory (minimal containers).
func NewLoader() *Loader {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "/tmp/devprof-fallback"
	}

	path := os.Getenv("DEVPROF_CONFIG")
	if path == "" {
		path = filepath.Join(homeDir, constants.DefaultDir, constants.ConfigFile)
	}

	return &Loader{homeDir: homeDir, path: path}
}

// NewLoaderAt creates a loader for an explicit file and home directory.
func NewLoaderAt(homeDir, path string) *Loader {
	return &Loader{homeDir: homeDir, path: path}
}

// Path returns the config file path.
func (l *Loader) Path() string {
	return l.path
}

// Load loads the configuration.
// Returns defaults if the file doesn't exist, then applies environment
// variable overrides and validates the result.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig(l.homeDir)

	//nolint:gosec // G304: Path is from trusted config location.
	data, err := os.ReadFile(l.path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", l.path, err)
		}
	}

	if err := MergeFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration file.
func (l *Loader) Save(cfg *Config) error {
	//nolint:gosec // G301: Directory needs standard permissions for traversal.
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	//nolint:gosec // G306: Config file is not sensitive.
	if err := os.WriteFile(l.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
