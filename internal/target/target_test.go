package target

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/devprof/internal/debugger"
	"github.com/coral-mesh/devprof/internal/protocol"
)

type countingDispatcher struct {
	started, finished, deltas int
}

func (d *countingDispatcher) ConsoleProfileStarted(protocol.ConsoleProfileStartedEvent) { d.started++ }
func (d *countingDispatcher) ConsoleProfileFinished(protocol.ConsoleProfileFinishedEvent) {
	d.finished++
}
func (d *countingDispatcher) PreciseCoverageDeltaUpdate(protocol.PreciseCoverageDeltaUpdateEvent) {
	d.deltas++
}

func TestTarget_ModelTable(t *testing.T) {
	tgt := New("page-1", nil)

	_, ok := tgt.Model(CapabilityDebugger)
	assert.False(t, ok)

	require.NoError(t, tgt.Register(CapabilityDebugger, "dbg"))
	err := tgt.Register(CapabilityDebugger, "other")
	assert.ErrorIs(t, err, ErrCapabilityTaken)

	m, ok := ModelAs[string](tgt, CapabilityDebugger)
	require.True(t, ok)
	assert.Equal(t, "dbg", m)

	_, ok = ModelAs[int](tgt, CapabilityDebugger)
	assert.False(t, ok, "wrong type must not match")

	tgt.Unregister(CapabilityDebugger)
	_, ok = tgt.Model(CapabilityDebugger)
	assert.False(t, ok)
}

func TestTarget_ForwardsEvents(t *testing.T) {
	tgt := New("page-1", nil)

	// No dispatcher yet: events are dropped.
	tgt.ConsoleProfileStarted(protocol.ConsoleProfileStartedEvent{ID: "1"})

	d := &countingDispatcher{}
	tgt.RegisterProfilerDispatcher(d)
	tgt.ConsoleProfileStarted(protocol.ConsoleProfileStartedEvent{ID: "1"})
	tgt.ConsoleProfileFinished(protocol.ConsoleProfileFinishedEvent{ID: "1"})
	tgt.PreciseCoverageDeltaUpdate(protocol.PreciseCoverageDeltaUpdateEvent{})
	tgt.PreciseCoverageDeltaUpdate(protocol.PreciseCoverageDeltaUpdateEvent{})

	assert.Equal(t, 1, d.started)
	assert.Equal(t, 1, d.finished)
	assert.Equal(t, 2, d.deltas)
}

func TestTarget_ScriptParsed(t *testing.T) {
	tgt := New("page-1", nil)

	// No debugger model yet: nothing to announce to.
	tgt.ScriptParsed(protocol.ScriptParsedEvent{ScriptID: "7", URL: "early.js"})

	dbg := debugger.NewContext("page-1", "v8", debugger.Runtime{})
	require.NoError(t, tgt.Register(CapabilityDebugger, dbg))
	tgt.ScriptParsed(protocol.ScriptParsedEvent{ScriptID: "7", URL: "app.js"})

	loc := dbg.Resolve(protocol.Location{ScriptID: "7", LineNumber: 4})
	assert.Equal(t, "app.js", loc.URL)
}
