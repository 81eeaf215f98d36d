package stats

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogReporter(t *testing.T) {
	var buf bytes.Buffer
	r := NewLogReporter(zerolog.New(&buf), map[string]any{"host": "ci", "version": "1"})

	r.Record(Event{
		Category:   CategoryCPUProfiler,
		Type:       TypeProfilerStart,
		EngineType: "v8",
		Fields:     map[string]any{"version": "2"},
	})

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, CategoryCPUProfiler, line["category"])
	assert.Equal(t, TypeProfilerStart, line["type"])
	assert.Equal(t, "v8", line["engine_type"])
	assert.Equal(t, "ci", line["host"])
	assert.Equal(t, "2", line["version"], "record fields override extras")
	assert.Equal(t, "stats", line["component"])
}

func TestRecorderAndMulti(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	m := Multi{a, b, Nop{}}

	m.Record(Event{Type: TypeProfilerStart})
	m.Record(Event{Type: TypeProfilerFail})
	m.Record(Event{Type: TypeProfilerFail})

	assert.Equal(t, 1, a.Count(TypeProfilerStart))
	assert.Equal(t, 2, b.Count(TypeProfilerFail))
	assert.Equal(t, 0, b.Count(TypeProfilerSuccess))
	assert.Len(t, a.Events(), 3)
}
