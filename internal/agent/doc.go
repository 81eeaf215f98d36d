// Package agent connects to a remote profiler agent.
//
// The Profiler interface is the outbound RPC surface of the agent's
// Profiler domain and Dispatcher receives its inbound events. Client speaks
// the devtools JSON protocol over a websocket and implements both sides:
// calls block until the matching response arrives, and events are handed to
// the registered Dispatcher from a single reader goroutine in the order the
// transport delivered them.
package agent
