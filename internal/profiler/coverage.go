package profiler

import (
	"context"
	"fmt"

	"github.com/coral-mesh/devprof/internal/protocol"
)

// StartPreciseCoverage starts precise coverage collection and installs
// onDelta as the receiver of backend-pushed deltas, replacing any earlier
// receiver. detailed selects block-level instead of function-level
// granularity. onDelta may be nil.
func (m *Manager) StartPreciseCoverage(ctx context.Context, detailed bool, onDelta DeltaFunc) error {
	m.mu.Lock()
	m.onCoverageDelta = onDelta
	m.mu.Unlock()

	params := protocol.StartPreciseCoverageParams{
		CallCount:             false,
		Detailed:              detailed,
		AllowTriggeredUpdates: true,
	}
	if err := m.agent.StartPreciseCoverage(ctx, params); err != nil {
		return fmt.Errorf("start precise coverage: %w", err)
	}
	return nil
}

// TakePreciseCoverage pulls the coverage collected since the last take. An
// empty response yields a zero timestamp and no entries.
func (m *Manager) TakePreciseCoverage(ctx context.Context) (CoverageSnapshot, error) {
	res, err := m.agent.TakePreciseCoverage(ctx)
	if err != nil {
		return CoverageSnapshot{}, fmt.Errorf("take precise coverage: %w", err)
	}

	snap := CoverageSnapshot{Entries: []protocol.ScriptCoverage{}}
	if res != nil {
		snap.Timestamp = res.Timestamp
		if len(res.Result) > 0 {
			snap.Entries = res.Result
		}
	}
	return snap, nil
}

// StopPreciseCoverage removes the delta receiver and stops coverage
// collection. The receiver is removed before the agent call is sent.
func (m *Manager) StopPreciseCoverage(ctx context.Context) error {
	m.mu.Lock()
	m.onCoverageDelta = nil
	m.mu.Unlock()

	if err := m.agent.StopPreciseCoverage(ctx); err != nil {
		return fmt.Errorf("stop precise coverage: %w", err)
	}
	return nil
}

// PreciseCoverageDeltaUpdate implements agent.Dispatcher.
func (m *Manager) PreciseCoverageDeltaUpdate(event protocol.PreciseCoverageDeltaUpdateEvent) {
	m.mu.Lock()
	fn := m.onCoverageDelta
	m.mu.Unlock()

	if fn == nil {
		return
	}
	fn(event.Timestamp, event.Occasion, event.Result)
}
