// Package debugger holds the per-target debugger context that the profiler
// relies on to turn raw backend positions into debuggable locations.
package debugger

import (
	"sync"

	"github.com/coral-mesh/devprof/internal/protocol"
)

// Runtime describes the runtime hosting the debugged program.
type Runtime struct {
	Name    string
	Version string
}

// Location is a script position resolved against a debugger context.
// URL is empty when the script has not been announced to the context.
type Location struct {
	Debugger     *Context
	ScriptID     protocol.ScriptID
	URL          string
	LineNumber   int
	ColumnNumber int
}

// Context is the debugger state of one target.
type Context struct {
	targetID   string
	engineType string
	runtime    Runtime

	mu      sync.RWMutex
	scripts map[protocol.ScriptID]string
}

// NewContext creates the debugger context of a target. engineType names the
// script engine (for example "v8" or "quickjs") and is attached to
// statistics records.
func NewContext(targetID, engineType string, runtime Runtime) *Context {
	return &Context{
		targetID:   targetID,
		engineType: engineType,
		runtime:    runtime,
		scripts:    make(map[protocol.ScriptID]string),
	}
}

// TargetID returns the id of the owning target.
func (c *Context) TargetID() string { return c.targetID }

// EngineType returns the script engine name.
func (c *Context) EngineType() string { return c.engineType }

// Runtime returns the runtime description.
func (c *Context) Runtime() Runtime { return c.runtime }

// ScriptParsed records the URL of a script so later locations in it resolve
// with a URL.
func (c *Context) ScriptParsed(id protocol.ScriptID, url string) {
	c.mu.Lock()
	c.scripts[id] = url
	c.mu.Unlock()
}

// Resolve maps a raw backend location to a Location bound to c. A missing
// column resolves to column 0.
func (c *Context) Resolve(raw protocol.Location) Location {
	loc := Location{
		Debugger:   c,
		ScriptID:   raw.ScriptID,
		LineNumber: raw.LineNumber,
	}
	if raw.ColumnNumber != nil {
		loc.ColumnNumber = *raw.ColumnNumber
	}

	c.mu.RLock()
	loc.URL = c.scripts[raw.ScriptID]
	c.mu.RUnlock()

	return loc
}
