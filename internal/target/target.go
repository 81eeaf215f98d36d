// Package target models one debugged target: its id, the profiler agent
// connected to it, and the capability-keyed table of models built on it.
package target

import (
	"errors"
	"fmt"
	"sync"

	"github.com/coral-mesh/devprof/internal/agent"
	"github.com/coral-mesh/devprof/internal/protocol"
)

// Capability keys a model in a target's model table.
type Capability string

const (
	CapabilityDebugger Capability = "debugger"
	CapabilityProfiler Capability = "profiler"
)

// ErrCapabilityTaken is returned when a capability already has a model.
var ErrCapabilityTaken = errors.New("capability already registered")

// Target is one debugged target. It is the inbound event sink of its agent
// connection and forwards Profiler events to the registered dispatcher.
type Target struct {
	id       string
	profiler agent.Profiler

	mu         sync.RWMutex
	models     map[Capability]any
	dispatcher agent.Dispatcher
}

// New creates a target with an empty model table.
func New(id string, profiler agent.Profiler) *Target {
	return &Target{
		id:       id,
		profiler: profiler,
		models:   make(map[Capability]any),
	}
}

// ID returns the target id.
func (t *Target) ID() string { return t.id }

// ProfilerAgent returns the agent's Profiler domain.
func (t *Target) ProfilerAgent() agent.Profiler { return t.profiler }

// Register stores model under capability. Each capability holds one model.
func (t *Target) Register(capability Capability, model any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.models[capability]; ok {
		return fmt.Errorf("%w: %s", ErrCapabilityTaken, capability)
	}
	t.models[capability] = model
	return nil
}

// Unregister removes the model stored under capability.
func (t *Target) Unregister(capability Capability) {
	t.mu.Lock()
	delete(t.models, capability)
	t.mu.Unlock()
}

// Model returns the model registered under capability.
func (t *Target) Model(capability Capability) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m, ok := t.models[capability]
	return m, ok
}

// ModelAs returns the model registered under capability if it has type M.
func ModelAs[M any](t *Target, capability Capability) (M, bool) {
	var zero M
	m, ok := t.Model(capability)
	if !ok {
		return zero, false
	}
	typed, ok := m.(M)
	if !ok {
		return zero, false
	}
	return typed, true
}

// RegisterProfilerDispatcher sets the receiver of Profiler events. A later
// registration replaces the earlier one.
func (t *Target) RegisterProfilerDispatcher(d agent.Dispatcher) {
	t.mu.Lock()
	t.dispatcher = d
	t.mu.Unlock()
}

func (t *Target) profilerDispatcher() agent.Dispatcher {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.dispatcher
}

// ConsoleProfileStarted implements agent.Dispatcher.
func (t *Target) ConsoleProfileStarted(event protocol.ConsoleProfileStartedEvent) {
	if d := t.profilerDispatcher(); d != nil {
		d.ConsoleProfileStarted(event)
	}
}

// ConsoleProfileFinished implements agent.Dispatcher.
func (t *Target) ConsoleProfileFinished(event protocol.ConsoleProfileFinishedEvent) {
	if d := t.profilerDispatcher(); d != nil {
		d.ConsoleProfileFinished(event)
	}
}

// PreciseCoverageDeltaUpdate implements agent.Dispatcher.
func (t *Target) PreciseCoverageDeltaUpdate(event protocol.PreciseCoverageDeltaUpdateEvent) {
	if d := t.profilerDispatcher(); d != nil {
		d.PreciseCoverageDeltaUpdate(event)
	}
}

// ScriptParsed implements agent.ScriptListener by announcing the script to
// the registered debugger model.
func (t *Target) ScriptParsed(event protocol.ScriptParsedEvent) {
	type scriptRegistry interface {
		ScriptParsed(id protocol.ScriptID, url string)
	}
	if r, ok := ModelAs[scriptRegistry](t, CapabilityDebugger); ok {
		r.ScriptParsed(event.ScriptID, event.URL)
	}
}
