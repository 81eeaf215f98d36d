// Package protocol defines the devtools protocol payloads exchanged with a
// remote profiler agent.
//
// Only the Profiler and Debugger domain shapes that the session manager
// consumes are modeled here. Field names follow the protocol's JSON names so
// the types can be decoded directly from agent messages.
package protocol
