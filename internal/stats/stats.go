// Package stats is the reporting port for usage statistics.
//
// Records are best effort: a Reporter never returns an error and callers do
// not depend on anything it does.
package stats

import (
	"maps"
	"sync"

	"github.com/rs/zerolog"
)

// CategoryCPUProfiler is the category of every CPU profiler record.
const CategoryCPUProfiler = "devtool_cpu_profiler_model"

// Record types of the CPU profiler.
const (
	TypeProfilerStart   = "profiler_start"
	TypeProfilerSuccess = "profiler_success"
	TypeProfilerFail    = "profiler_fail"
)

// Event is one statistics record.
type Event struct {
	Category   string
	Type       string
	EngineType string
	// Fields holds environment-dependent extras.
	Fields map[string]any
}

// Reporter receives statistics records.
type Reporter interface {
	Record(event Event)
}

// Nop drops every record.
type Nop struct{}

// Record implements Reporter.
func (Nop) Record(Event) {}

// LogReporter writes records to a zerolog logger. Extra fields are merged
// into every record; keys already set on the record win.
type LogReporter struct {
	logger zerolog.Logger
	extra  map[string]any
}

// NewLogReporter creates a reporter that logs at info level.
func NewLogReporter(logger zerolog.Logger, extra map[string]any) *LogReporter {
	return &LogReporter{
		logger: logger.With().Str("component", "stats").Logger(),
		extra:  extra,
	}
}

// Record implements Reporter.
func (r *LogReporter) Record(event Event) {
	fields := make(map[string]any, len(r.extra)+len(event.Fields))
	maps.Copy(fields, r.extra)
	maps.Copy(fields, event.Fields)

	r.logger.Info().
		Str("category", event.Category).
		Str("type", event.Type).
		Str("engine_type", event.EngineType).
		Fields(fields).
		Msg("Statistics")
}

// Recorder keeps records in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Record implements Reporter.
func (r *Recorder) Record(event Event) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

// Events returns a copy of the records seen so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Count returns how many records of the given type were seen.
func (r *Recorder) Count(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

// Multi fans a record out to several reporters.
type Multi []Reporter

// Record implements Reporter.
func (m Multi) Record(event Event) {
	for _, r := range m {
		r.Record(event)
	}
}
