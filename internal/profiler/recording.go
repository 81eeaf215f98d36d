package profiler

import (
	"context"
	"fmt"

	"github.com/coral-mesh/devprof/internal/protocol"
	"github.com/coral-mesh/devprof/internal/stats"
)

// IsRecording reports whether a recording has been requested and not yet
// stopped.
func (m *Manager) IsRecording() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recording
}

// StartRecording starts sampling at SamplingIntervalUs. IsRecording is true
// as soon as it is called, and stays true if the agent call fails.
//
// Starting while already recording is not prevented and opens a second
// agent-level session.
func (m *Manager) StartRecording(ctx context.Context) error {
	m.mu.Lock()
	m.recording = true
	m.mu.Unlock()

	if err := m.agent.SetSamplingInterval(ctx, SamplingIntervalUs); err != nil {
		m.logger.Warn().Err(err).Int("interval_us", SamplingIntervalUs).Msg("Failed to set sampling interval")
	}

	m.record(stats.TypeProfilerStart)

	if err := m.agent.Start(ctx); err != nil {
		return fmt.Errorf("start recording: %w", err)
	}
	return nil
}

// StopRecording stops sampling and returns the recorded profile. A nil
// profile with a nil error means the agent had nothing to return.
// IsRecording is false as soon as it is called.
func (m *Manager) StopRecording(ctx context.Context) (*protocol.Profile, error) {
	m.mu.Lock()
	m.recording = false
	m.mu.Unlock()

	profile, err := m.agent.Stop(ctx)
	if err != nil {
		return nil, fmt.Errorf("stop recording: %w", err)
	}

	if profile == nil {
		m.record(stats.TypeProfilerFail)
		return nil, nil
	}

	m.record(stats.TypeProfilerSuccess)
	return profile, nil
}
