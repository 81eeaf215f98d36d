// Package constants defines shared configuration constants.
package constants

import "time"

var (
	ConfigFile = "config.yaml"

	DefaultDir = ".devprof"

	// DefaultStoreDir is relative to the user's home directory.
	DefaultStoreDir = DefaultDir + "/" + "profiles"

	// DefaultAgentEndpoint is the websocket endpoint of a local inspector.
	DefaultAgentEndpoint = "ws://127.0.0.1:9229"

	DefaultEngineType = "v8"
)

const (
	DefaultDialTimeout = 5 * time.Second

	DefaultCallTimeout = 30 * time.Second

	DefaultDialRetries = 3

	DefaultDialBackoff = 200 * time.Millisecond

	DefaultDialMaxBackoff = 2 * time.Second

	DefaultRecordDuration = 5 * time.Second
)
