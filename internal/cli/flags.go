package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/coral-mesh/devprof/internal/config"
	"github.com/coral-mesh/devprof/internal/logging"
)

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	configPath  string
	endpoint    string
	targetID    string
	logLevel    string
	callTimeout time.Duration

	flags *pflag.FlagSet
}

func (o *rootOptions) register(fs *pflag.FlagSet) {
	fs.StringVar(&o.configPath, "config", "", "Config file (default ~/.devprof/config.yaml or $DEVPROF_CONFIG)")
	fs.StringVarP(&o.endpoint, "endpoint", "e", "", "Agent websocket endpoint (e.g. ws://127.0.0.1:9229/<id>)")
	fs.StringVar(&o.targetID, "target-id", "", "Target id used to qualify profile ids (default random)")
	fs.StringVar(&o.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.DurationVar(&o.callTimeout, "call-timeout", 0, "Timeout of each protocol call")
	o.flags = fs
}

// load reads the config file and environment, then applies the flags that
// were set explicitly.
func (o *rootOptions) load() (*config.Config, error) {
	loader := config.NewLoader()
	if o.configPath != "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			homeDir = "/tmp/devprof-fallback"
		}
		loader = config.NewLoaderAt(homeDir, o.configPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if o.changed("endpoint") {
		cfg.Agent.Endpoint = o.endpoint
	}
	if o.changed("target-id") {
		cfg.Target.ID = o.targetID
	}
	if o.changed("log-level") {
		cfg.Logging.Level = o.logLevel
	}
	if o.changed("call-timeout") {
		cfg.Agent.CallTimeout = o.callTimeout
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (o *rootOptions) changed(name string) bool {
	return o.flags != nil && o.flags.Changed(name)
}

func newLogger(cfg *config.Config) zerolog.Logger {
	return logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Pretty: cfg.Logging.Pretty,
		Output: os.Stderr,
	})
}
