package protocol

import "encoding/json"

// ScriptID identifies a parsed script within one debugger context.
type ScriptID string

// Location is a raw backend script position. Line and column are zero-based.
type Location struct {
	ScriptID     ScriptID `json:"scriptId"`
	LineNumber   int      `json:"lineNumber"`
	ColumnNumber *int     `json:"columnNumber,omitempty"`
}

// CallFrame is a stack entry of a profile node.
type CallFrame struct {
	FunctionName string   `json:"functionName"`
	ScriptID     ScriptID `json:"scriptId"`
	URL          string   `json:"url"`
	LineNumber   int      `json:"lineNumber"`
	ColumnNumber int      `json:"columnNumber"`
}

// PositionTickInfo is the number of samples attributed to a source line.
type PositionTickInfo struct {
	Line  int `json:"line"`
	Ticks int `json:"ticks"`
}

// ProfileNode is one node of the sampled call tree.
type ProfileNode struct {
	ID            int                `json:"id"`
	CallFrame     CallFrame          `json:"callFrame"`
	HitCount      int                `json:"hitCount,omitempty"`
	Children      []int              `json:"children,omitempty"`
	DeoptReason   string             `json:"deoptReason,omitempty"`
	PositionTicks []PositionTickInfo `json:"positionTicks,omitempty"`
}

// Profile is a CPU profile. StartTime and EndTime are in microseconds.
// Samples holds node ids; TimeDeltas holds the microseconds elapsed before
// each sample.
type Profile struct {
	Nodes      []ProfileNode `json:"nodes"`
	StartTime  float64       `json:"startTime"`
	EndTime    float64       `json:"endTime"`
	Samples    []int         `json:"samples,omitempty"`
	TimeDeltas []int         `json:"timeDeltas,omitempty"`
}

// Duration returns the wall time covered by the profile in microseconds.
func (p *Profile) Duration() float64 {
	if p == nil || p.EndTime < p.StartTime {
		return 0
	}
	return p.EndTime - p.StartTime
}

// CoverageRange is a source range with its execution count.
type CoverageRange struct {
	StartOffset int `json:"startOffset"`
	EndOffset   int `json:"endOffset"`
	Count       int `json:"count"`
}

// FunctionCoverage holds the coverage ranges of one function.
type FunctionCoverage struct {
	FunctionName    string          `json:"functionName"`
	Ranges          []CoverageRange `json:"ranges"`
	IsBlockCoverage bool            `json:"isBlockCoverage"`
}

// ScriptCoverage holds the coverage of every function in one script.
type ScriptCoverage struct {
	ScriptID  ScriptID           `json:"scriptId"`
	URL       string             `json:"url"`
	Functions []FunctionCoverage `json:"functions"`
}

// ConsoleProfileStartedEvent is sent when console.profile() is called in
// the debugged program. Title is empty for anonymous profiles.
type ConsoleProfileStartedEvent struct {
	ID       string   `json:"id"`
	Location Location `json:"location"`
	Title    string   `json:"title,omitempty"`
}

// ConsoleProfileFinishedEvent is sent when console.profileEnd() completes.
type ConsoleProfileFinishedEvent struct {
	ID       string   `json:"id"`
	Location Location `json:"location"`
	Profile  *Profile `json:"profile"`
	Title    string   `json:"title,omitempty"`
}

// PreciseCoverageDeltaUpdateEvent carries coverage collected since the last
// update. Occasion names what triggered the push.
type PreciseCoverageDeltaUpdateEvent struct {
	Timestamp float64          `json:"timestamp"`
	Occasion  string           `json:"occasion"`
	Result    []ScriptCoverage `json:"result"`
}

// ScriptParsedEvent is sent by the Debugger domain for every script the
// engine compiles.
type ScriptParsedEvent struct {
	ScriptID ScriptID `json:"scriptId"`
	URL      string   `json:"url"`
}

// SetSamplingIntervalParams configures the sampling interval in microseconds.
type SetSamplingIntervalParams struct {
	Interval int `json:"interval"`
}

// StartPreciseCoverageParams configures precise coverage collection.
type StartPreciseCoverageParams struct {
	CallCount             bool `json:"callCount"`
	Detailed              bool `json:"detailed"`
	AllowTriggeredUpdates bool `json:"allowTriggeredUpdates"`
}

// StopResult is the response of Profiler.stop. Profile is nil when the
// backend returned nothing.
type StopResult struct {
	Profile *Profile `json:"profile,omitempty"`
}

// TakePreciseCoverageResult is the response of Profiler.takePreciseCoverage.
// Fields may be absent in the response.
type TakePreciseCoverageResult struct {
	Result    []ScriptCoverage `json:"result,omitempty"`
	Timestamp float64          `json:"timestamp,omitempty"`
}

// Method names of the Profiler domain.
const (
	MethodEnable               = "Profiler.enable"
	MethodSetSamplingInterval  = "Profiler.setSamplingInterval"
	MethodStart                = "Profiler.start"
	MethodStop                 = "Profiler.stop"
	MethodStartPreciseCoverage = "Profiler.startPreciseCoverage"
	MethodTakePreciseCoverage  = "Profiler.takePreciseCoverage"
	MethodStopPreciseCoverage  = "Profiler.stopPreciseCoverage"

	EventConsoleProfileStarted      = "Profiler.consoleProfileStarted"
	EventConsoleProfileFinished     = "Profiler.consoleProfileFinished"
	EventPreciseCoverageDeltaUpdate = "Profiler.preciseCoverageDeltaUpdate"
)

// Debugger domain names used to resolve script URLs.
const (
	MethodDebuggerEnable = "Debugger.enable"
	EventScriptParsed    = "Debugger.scriptParsed"
)

// Message is a single frame on the wire. Requests carry ID, Method and
// Params; responses carry ID and Result or Error; events carry Method and
// Params without ID.
type Message struct {
	ID     int64           `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorPayload   `json:"error,omitempty"`
}

// ErrorPayload is the error object of a failed response.
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}
