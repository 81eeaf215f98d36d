package profiler

import (
	"github.com/coral-mesh/devprof/internal/protocol"
)

// ConsoleProfileStarted implements agent.Dispatcher. Untitled profiles are
// named with the next anonymous number, remembered until they finish.
func (m *Manager) ConsoleProfileStarted(event protocol.ConsoleProfileStartedEvent) {
	title := event.Title
	if title == "" {
		m.mu.Lock()
		n := m.nextAnonymous
		m.nextAnonymous++
		title = m.title(n)
		m.anonymousTitles[event.ID] = title
		m.mu.Unlock()
	}

	m.logger.Debug().Str("profile_id", event.ID).Str("title", title).Msg("Console profile started")

	m.bus.Emit(EventConsoleProfileStarted, m.eventData(event.ID, event.Location, title, nil))
}

// ConsoleProfileFinished implements agent.Dispatcher. An untitled profile
// takes the title assigned when it started; if its start was never seen the
// title stays empty. Events arriving after Close are dropped.
func (m *Manager) ConsoleProfileFinished(event protocol.ConsoleProfileFinishedEvent) {
	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		m.logger.Debug().Str("profile_id", event.ID).Msg("Manager closing, dropping finished console profile")
		return
	}
	title := event.Title
	if title == "" {
		title = m.anonymousTitles[event.ID]
		delete(m.anonymousTitles, event.ID)
	}
	m.mu.Unlock()

	if title == "" {
		m.logger.Debug().Str("profile_id", event.ID).Msg("Console profile finished without a known title")
	}

	m.enqueue(EventConsoleProfileFinished, m.eventData(event.ID, event.Location, title, event.Profile))
}

// enqueue schedules event for delivery once the profiler module is ready.
// It returns immediately.
func (m *Manager) enqueue(event string, data EventData) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closing {
		return
	}
	m.queue = append(m.queue, queuedEvent{name: event, data: data})
	m.queued.Signal()
}

// deliverLoop delivers queued events in order until the manager is closing
// and the queue is empty.
func (m *Manager) deliverLoop() {
	defer close(m.workerDone)

	for {
		m.mu.Lock()
		for len(m.queue) == 0 && !m.closing {
			m.queued.Wait()
		}
		if len(m.queue) == 0 {
			m.mu.Unlock()
			return
		}
		next := m.queue[0]
		m.queue[0] = queuedEvent{}
		m.queue = m.queue[1:]
		m.mu.Unlock()

		m.deliver(next)
	}
}

func (m *Manager) deliver(ev queuedEvent) {
	err := m.gate.Ready(m.ctx, ProfilerModule)
	// Gates are not required to honor ctx.
	if err == nil {
		err = m.ctx.Err()
	}
	if err != nil {
		m.logger.Warn().Err(err).
			Str("event", ev.name).
			Str("profile_id", ev.data.ID).
			Msg("Profiler module not ready, dropping event")
		return
	}
	m.bus.Emit(ev.name, ev.data)
}

// pendingAnonymous returns how many anonymous profiles have started but not
// finished.
func (m *Manager) pendingAnonymous() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.anonymousTitles)
}

func (m *Manager) eventData(id string, loc protocol.Location, title string, profile *protocol.Profile) EventData {
	return EventData{
		ID:             GlobalID(m.target.ID(), id),
		ScriptLocation: m.debugger.Resolve(loc),
		Title:          title,
		CPUProfile:     profile,
		Manager:        m,
	}
}
