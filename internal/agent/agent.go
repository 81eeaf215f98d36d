package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/coral-mesh/devprof/internal/protocol"
)

// ErrClosed is returned by calls issued on, or pending when, a closed client.
var ErrClosed = errors.New("agent connection closed")

// ResponseError is an error response returned by the remote agent.
type ResponseError struct {
	Method  string
	Code    int
	Message string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s failed: %s (code %d)", e.Method, e.Message, e.Code)
}

// Profiler is the RPC surface of the remote agent's Profiler domain.
type Profiler interface {
	Enable(ctx context.Context) error
	SetSamplingInterval(ctx context.Context, intervalUs int) error
	Start(ctx context.Context) error
	// Stop returns a nil profile when the backend produced none.
	Stop(ctx context.Context) (*protocol.Profile, error)
	StartPreciseCoverage(ctx context.Context, params protocol.StartPreciseCoverageParams) error
	TakePreciseCoverage(ctx context.Context) (*protocol.TakePreciseCoverageResult, error)
	StopPreciseCoverage(ctx context.Context) error
}

// Dispatcher receives inbound Profiler domain events.
type Dispatcher interface {
	ConsoleProfileStarted(event protocol.ConsoleProfileStartedEvent)
	ConsoleProfileFinished(event protocol.ConsoleProfileFinishedEvent)
	PreciseCoverageDeltaUpdate(event protocol.PreciseCoverageDeltaUpdateEvent)
}

// ScriptListener receives Debugger.scriptParsed events. A Dispatcher that
// also implements it is handed those events by Dispatch.
type ScriptListener interface {
	ScriptParsed(event protocol.ScriptParsedEvent)
}

// Caller issues one protocol method call and decodes its result into result.
// A nil result discards the response body.
type Caller interface {
	Call(ctx context.Context, method string, params any, result any) error
}

// ProfilerAPI implements Profiler on top of a Caller.
type ProfilerAPI struct {
	caller Caller
}

// NewProfilerAPI creates a Profiler that issues calls through caller.
func NewProfilerAPI(caller Caller) *ProfilerAPI {
	return &ProfilerAPI{caller: caller}
}

// Enable enables the Profiler domain.
func (p *ProfilerAPI) Enable(ctx context.Context) error {
	return p.caller.Call(ctx, protocol.MethodEnable, nil, nil)
}

// SetSamplingInterval sets the sampling interval in microseconds.
func (p *ProfilerAPI) SetSamplingInterval(ctx context.Context, intervalUs int) error {
	return p.caller.Call(ctx, protocol.MethodSetSamplingInterval,
		protocol.SetSamplingIntervalParams{Interval: intervalUs}, nil)
}

// Start starts sampling.
func (p *ProfilerAPI) Start(ctx context.Context) error {
	return p.caller.Call(ctx, protocol.MethodStart, nil, nil)
}

// Stop stops sampling and returns the recorded profile, if any.
func (p *ProfilerAPI) Stop(ctx context.Context) (*protocol.Profile, error) {
	var res protocol.StopResult
	if err := p.caller.Call(ctx, protocol.MethodStop, nil, &res); err != nil {
		return nil, err
	}
	return res.Profile, nil
}

// StartPreciseCoverage enables precise coverage collection.
func (p *ProfilerAPI) StartPreciseCoverage(ctx context.Context, params protocol.StartPreciseCoverageParams) error {
	return p.caller.Call(ctx, protocol.MethodStartPreciseCoverage, params, nil)
}

// TakePreciseCoverage collects coverage accumulated since the last take.
func (p *ProfilerAPI) TakePreciseCoverage(ctx context.Context) (*protocol.TakePreciseCoverageResult, error) {
	var res protocol.TakePreciseCoverageResult
	if err := p.caller.Call(ctx, protocol.MethodTakePreciseCoverage, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// StopPreciseCoverage disables precise coverage collection.
func (p *ProfilerAPI) StopPreciseCoverage(ctx context.Context) error {
	return p.caller.Call(ctx, protocol.MethodStopPreciseCoverage, nil, nil)
}

// EnableDebugger enables the Debugger domain so the agent announces parsed
// scripts.
func EnableDebugger(ctx context.Context, caller Caller) error {
	return caller.Call(ctx, protocol.MethodDebuggerEnable, nil, nil)
}

// Dispatch decodes an inbound event and hands it to d. Events outside the
// Profiler domain, other than scriptParsed for a ScriptListener, are ignored
// and reported as handled=false.
func Dispatch(d Dispatcher, method string, params json.RawMessage) (handled bool, err error) {
	switch method {
	case protocol.EventConsoleProfileStarted:
		var ev protocol.ConsoleProfileStartedEvent
		if err := decodeParams(params, &ev); err != nil {
			return true, fmt.Errorf("decode %s: %w", method, err)
		}
		d.ConsoleProfileStarted(ev)
	case protocol.EventConsoleProfileFinished:
		var ev protocol.ConsoleProfileFinishedEvent
		if err := decodeParams(params, &ev); err != nil {
			return true, fmt.Errorf("decode %s: %w", method, err)
		}
		d.ConsoleProfileFinished(ev)
	case protocol.EventPreciseCoverageDeltaUpdate:
		var ev protocol.PreciseCoverageDeltaUpdateEvent
		if err := decodeParams(params, &ev); err != nil {
			return true, fmt.Errorf("decode %s: %w", method, err)
		}
		d.PreciseCoverageDeltaUpdate(ev)
	case protocol.EventScriptParsed:
		l, ok := d.(ScriptListener)
		if !ok {
			return false, nil
		}
		var ev protocol.ScriptParsedEvent
		if err := decodeParams(params, &ev); err != nil {
			return true, fmt.Errorf("decode %s: %w", method, err)
		}
		l.ScriptParsed(ev)
	default:
		return false, nil
	}
	return true, nil
}

func decodeParams(params json.RawMessage, v any) error {
	if len(params) == 0 {
		return nil
	}
	return json.Unmarshal(params, v)
}
