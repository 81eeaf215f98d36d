package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/devprof/internal/constants"
)

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	home := t.TempDir()
	l := NewLoaderAt(home, filepath.Join(home, "nope.yaml"))

	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, constants.DefaultAgentEndpoint, cfg.Agent.Endpoint)
	assert.Equal(t, constants.DefaultCallTimeout, cfg.Agent.CallTimeout)
	assert.Equal(t, filepath.Join(home, ".devprof", "profiles"), cfg.Store.Dir)
	assert.Equal(t, "v8", cfg.Target.EngineType)
}

func TestLoader_FileOverridesDefaults(t *testing.T) {
	home := t.TempDir()
	path := filepath.Join(home, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
agent:
  endpoint: wss://device.local:9222/devtools/page/1
  call_timeout: 2s
  retry:
    max_retries: 7
target:
  id: phone-1
  engine_type: quickjs
logging:
  level: debug
stats:
  enabled: true
  extra:
    host: ci
`), 0644))

	cfg, err := NewLoaderAt(home, path).Load()
	require.NoError(t, err)
	assert.Equal(t, "wss://device.local:9222/devtools/page/1", cfg.Agent.Endpoint)
	assert.Equal(t, 2*time.Second, cfg.Agent.CallTimeout)
	assert.Equal(t, constants.DefaultDialTimeout, cfg.Agent.DialTimeout, "unset fields keep defaults")
	assert.Equal(t, 7, cfg.Agent.Retry.MaxRetries)
	assert.Equal(t, "phone-1", cfg.Target.ID)
	assert.Equal(t, "quickjs", cfg.Target.EngineType)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Stats.Enabled)
	assert.Equal(t, map[string]string{"host": "ci"}, cfg.Stats.Extra)
}

func TestLoader_EnvOverridesFile(t *testing.T) {
	home := t.TempDir()
	path := filepath.Join(home, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("target:\n  engine_type: quickjs\n"), 0644))

	t.Setenv("DEVPROF_ENGINE_TYPE", "v8")
	t.Setenv("DEVPROF_CALL_TIMEOUT", "750ms")
	t.Setenv("DEVPROF_DIAL_RETRIES", "1")
	t.Setenv("DEVPROF_STATS_ENABLED", "true")

	cfg, err := NewLoaderAt(home, path).Load()
	require.NoError(t, err)
	assert.Equal(t, "v8", cfg.Target.EngineType)
	assert.Equal(t, 750*time.Millisecond, cfg.Agent.CallTimeout)
	assert.Equal(t, 1, cfg.Agent.Retry.MaxRetries)
	assert.True(t, cfg.Stats.Enabled)
}

func TestLoader_InvalidEnv(t *testing.T) {
	home := t.TempDir()
	t.Setenv("DEVPROF_CALL_TIMEOUT", "soon")

	_, err := NewLoaderAt(home, filepath.Join(home, "config.yaml")).Load()
	assert.ErrorContains(t, err, "invalid duration")
}

func TestLoader_ParseError(t *testing.T) {
	home := t.TempDir()
	path := filepath.Join(home, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agent: [\n"), 0644))

	_, err := NewLoaderAt(home, path).Load()
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestLoader_SaveRoundTrip(t *testing.T) {
	home := t.TempDir()
	l := NewLoaderAt(home, filepath.Join(home, "nested", "config.yaml"))

	cfg := DefaultConfig(home)
	cfg.Target.ID = "saved"
	cfg.Agent.DialTimeout = 9 * time.Second
	require.NoError(t, l.Save(cfg))

	loaded, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestNewLoader_EnvPath(t *testing.T) {
	t.Setenv("DEVPROF_CONFIG", "/etc/devprof.yaml")
	assert.Equal(t, "/etc/devprof.yaml", NewLoader().Path())
}

func TestMergeFromEnv_Collections(t *testing.T) {
	type nested struct {
		Tags  []string          `env:"DEVPROF_TEST_TAGS"`
		Extra map[string]string `env:"DEVPROF_TEST_EXTRA"`
		Ratio float64           `env:"DEVPROF_TEST_RATIO"`
	}
	type sample struct {
		Nested nested
	}

	t.Setenv("DEVPROF_TEST_TAGS", " a, b ,,c")
	t.Setenv("DEVPROF_TEST_EXTRA", "host=ci, run = 7")
	t.Setenv("DEVPROF_TEST_RATIO", "0.25")

	var s sample
	require.NoError(t, MergeFromEnv(&s))
	assert.Equal(t, []string{"a", "b", "c"}, s.Nested.Tags)
	assert.Equal(t, map[string]string{"host": "ci", "run": "7"}, s.Nested.Extra)
	assert.Equal(t, 0.25, s.Nested.Ratio)

	t.Setenv("DEVPROF_TEST_EXTRA", "novalue")
	assert.ErrorContains(t, MergeFromEnv(&s), "DEVPROF_TEST_EXTRA")

	assert.Error(t, MergeFromEnv(s), "non-pointer is rejected")
}
