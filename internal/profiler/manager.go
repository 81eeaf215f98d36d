package profiler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/devprof/internal/agent"
	"github.com/coral-mesh/devprof/internal/debugger"
	"github.com/coral-mesh/devprof/internal/eventbus"
	"github.com/coral-mesh/devprof/internal/modgate"
	"github.com/coral-mesh/devprof/internal/protocol"
	"github.com/coral-mesh/devprof/internal/stats"
	"github.com/coral-mesh/devprof/internal/target"
)

const (
	// SamplingIntervalUs is the sampling interval used for recordings.
	SamplingIntervalUs = 100

	// ProfilerModule is the host module that must be ready before finished
	// console profiles are republished.
	ProfilerModule = "profiler"
)

// Events published on the manager's bus.
const (
	EventConsoleProfileStarted  = "ConsoleProfileStarted"
	EventConsoleProfileFinished = "ConsoleProfileFinished"
)

var _ agent.Dispatcher = (*Manager)(nil)

// ErrNoDebugger is returned when the target has no debugger context.
var ErrNoDebugger = errors.New("target has no debugger context")

// EventData is the payload of console profile events.
type EventData struct {
	// ID is the global profile id, see GlobalID.
	ID             string
	ScriptLocation debugger.Location
	// Title is empty when a finished anonymous profile could not be matched
	// to its start.
	Title string
	// CPUProfile is set on EventConsoleProfileFinished only.
	CPUProfile *protocol.Profile
	Manager    *Manager
}

// DeltaFunc receives precise coverage deltas pushed by the agent.
type DeltaFunc func(timestamp float64, occasion string, entries []protocol.ScriptCoverage)

// CoverageSnapshot is the result of TakePreciseCoverage.
type CoverageSnapshot struct {
	Timestamp float64                   `json:"timestamp"`
	Entries   []protocol.ScriptCoverage `json:"result"`
}

// TitleFunc produces the title of the n-th anonymous console profile.
type TitleFunc func(n int) string

// DefaultTitle formats anonymous profile titles as "Profile N".
func DefaultTitle(n int) string {
	return fmt.Sprintf("Profile %d", n)
}

// GlobalID returns the profile id qualified by its target id.
func GlobalID(targetID, profileID string) string {
	return targetID + "." + profileID
}

// Options configures a Manager. Zero fields take defaults.
type Options struct {
	Logger   zerolog.Logger
	Reporter stats.Reporter
	Gate     modgate.Gate
	Title    TitleFunc
}

// Manager is the profiling session manager of one target.
type Manager struct {
	target   *target.Target
	agent    agent.Profiler
	debugger *debugger.Context
	logger   zerolog.Logger
	reporter stats.Reporter
	gate     modgate.Gate
	title    TitleFunc
	bus      *eventbus.Bus[EventData]

	mu              sync.Mutex
	recording       bool
	nextAnonymous   int
	anonymousTitles map[string]string
	onCoverageDelta DeltaFunc

	// queue holds gated events in arrival order. A single worker drains it,
	// so gated events are delivered one at a time and never reordered among
	// themselves.
	queue      []queuedEvent
	queued     *sync.Cond
	closing    bool
	workerDone chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

type queuedEvent struct {
	name string
	data EventData
}

// New creates the manager of tgt, registers it as the target's profiler
// model and event dispatcher, and enables the agent's Profiler domain. The
// target must already carry a debugger context.
//
// A failing enable call is logged and otherwise ignored: later calls on the
// manager fail on their own.
func New(ctx context.Context, tgt *target.Target, opts Options) (*Manager, error) {
	dbg, ok := target.ModelAs[*debugger.Context](tgt, target.CapabilityDebugger)
	if !ok {
		return nil, fmt.Errorf("new profiler for target %s: %w", tgt.ID(), ErrNoDebugger)
	}

	if opts.Reporter == nil {
		opts.Reporter = stats.Nop{}
	}
	if opts.Gate == nil {
		opts.Gate = modgate.AlwaysReady{}
	}
	if opts.Title == nil {
		opts.Title = DefaultTitle
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		target:          tgt,
		agent:           tgt.ProfilerAgent(),
		debugger:        dbg,
		logger:          opts.Logger.With().Str("component", "cpu_profiler").Str("target", tgt.ID()).Logger(),
		reporter:        opts.Reporter,
		gate:            opts.Gate,
		title:           opts.Title,
		bus:             eventbus.New[EventData](),
		nextAnonymous:   1,
		anonymousTitles: make(map[string]string),
		workerDone:      make(chan struct{}),
		ctx:             baseCtx,
		cancel:          cancel,
	}
	m.queued = sync.NewCond(&m.mu)

	if err := tgt.Register(target.CapabilityProfiler, m); err != nil {
		cancel()
		return nil, fmt.Errorf("new profiler for target %s: %w", tgt.ID(), err)
	}
	tgt.RegisterProfilerDispatcher(m)
	go m.deliverLoop()

	if err := m.agent.Enable(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to enable profiler agent")
	}

	return m, nil
}

// Target returns the target the manager is bound to.
func (m *Manager) Target() *target.Target { return m.target }

// DebuggerContext returns the target's debugger context.
func (m *Manager) DebuggerContext() *debugger.Context { return m.debugger }

// Runtime returns the runtime of the target.
func (m *Manager) Runtime() debugger.Runtime { return m.debugger.Runtime() }

// On subscribes fn to EventConsoleProfileStarted or
// EventConsoleProfileFinished.
func (m *Manager) On(event string, fn func(EventData)) *eventbus.Subscription {
	return m.bus.On(event, fn)
}

// Close stops accepting events, waits for queued finished events to be
// delivered, then releases the manager. If ctx ends first, the remaining
// deliveries are abandoned. Close may be called more than once.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	first := !m.closing
	m.closing = true
	m.queued.Broadcast()
	m.mu.Unlock()

	if first {
		m.target.RegisterProfilerDispatcher(nil)
	}

	var err error
	select {
	case <-m.workerDone:
	case <-ctx.Done():
		err = ctx.Err()
	}

	m.cancel()
	if first {
		m.target.Unregister(target.CapabilityProfiler)
	}
	return err
}

func (m *Manager) record(eventType string) {
	m.reporter.Record(stats.Event{
		Category:   stats.CategoryCPUProfiler,
		Type:       eventType,
		EngineType: m.debugger.EngineType(),
	})
}
