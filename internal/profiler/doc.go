// Package profiler implements the CPU profiling session manager of a target.
//
// A Manager sits between the remote profiler agent of one target and the
// consumers of profiling data. It drives three flows:
//
//   - Recording: StartRecording and StopRecording wrap the agent's sampling
//     profiler. IsRecording reflects the caller's intent; it flips before
//     the agent call is sent and is never rolled back when the call fails.
//
//   - Console profiles: profiles started by console.profile() in the
//     debugged program arrive as agent events. Anonymous profiles get a
//     "Profile N" title when they start, which is carried over to the
//     matching finish event. Both events are republished on the manager's
//     event bus as EventConsoleProfileStarted and
//     EventConsoleProfileFinished. The finished event waits for the host's
//     profiler module to be ready, so it may be delivered after started
//     events that arrived later. Finished events are delivered one at a
//     time in arrival order.
//
//   - Precise coverage: StartPreciseCoverage installs a single delta
//     callback, TakePreciseCoverage pulls a snapshot and
//     StopPreciseCoverage clears the callback. Deltas pushed by the agent
//     while no callback is installed are dropped.
//
// Agent calls block until the agent responds or ctx ends. Errors from the
// agent are returned to the caller wrapped; nothing is retried.
package profiler
