package session

import (
	"context"

	"github.com/resume-services/questionnaire-hub/internal/domain/questionnaire"
	"github.com/resume-services/questionnaire-hub/internal/qsync/retry"
)

// State returns a copy of the current in-memory state.
func (m *Manager) State() questionnaire.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone()
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Subscribe registers fn for change notifications and returns a function that
// removes it.
func (m *Manager) Subscribe(fn Observer) func() {
	m.mu.Lock()
	id := m.nextObserver
	m.nextObserver++
	m.observers[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.observers, id)
		m.mu.Unlock()
	}
}

// UpdateState merges p into the current state and returns immediately.
// Persistence and sync are scheduled behind their coalescers.
func (m *Manager) UpdateState(p questionnaire.Partial) {
	m.mu.Lock()
	if m.unloaded {
		m.mu.Unlock()
		return
	}
	m.state = m.state.Merge(p)
	m.editSeq++
	seq := m.editSeq
	if m.status.IsLoading {
		m.editedDuringLoad = true
	}
	if m.status.Phase == PhaseIdle {
		m.status.Phase = PhaseDebouncing
	}
	epoch := m.epoch
	state, status := m.snapshotLocked()
	m.mu.Unlock()

	m.notify(state, status)
	m.localSave.Schedule(state)
	m.netSync.Schedule(pendingSync{state: state, epoch: epoch, seq: seq})
}

// ForceSync cancels the debounced sync and pushes the current state now,
// returning once the attempt and its retries have settled.
func (m *Manager) ForceSync(ctx context.Context) (retry.Report, error) {
	reply := make(chan retry.Report, 1)
	if err := m.send(ctx, event{kind: evForce, reply: reply}); err != nil {
		return retry.Report{}, err
	}
	select {
	case r := <-reply:
		return r, nil
	case <-ctx.Done():
		return retry.Report{}, ctx.Err()
	case <-m.done:
		return retry.Report{}, ErrClosed
	}
}

// WentOnline handles the connectivity signal: the current state is synced
// directly rather than through the debounce.
func (m *Manager) WentOnline() {
	m.mu.Lock()
	if m.unloaded {
		m.mu.Unlock()
		return
	}
	m.status.IsOnline = true
	state, status := m.snapshotLocked()
	m.mu.Unlock()

	m.notify(state, status)
	m.netSync.Cancel()
	go m.enqueue(event{kind: evOnline})
}

// WentOffline only flips the indicator; editing keeps working locally.
func (m *Manager) WentOffline() {
	m.mu.Lock()
	m.status.IsOnline = false
	state, status := m.snapshotLocked()
	m.mu.Unlock()
	m.notify(state, status)
}

// send hands ev to the running loop, cancelling the debounced sync first.
func (m *Manager) send(ctx context.Context, ev event) error {
	m.mu.Lock()
	unloaded, started := m.unloaded, m.started
	m.mu.Unlock()
	switch {
	case unloaded:
		return ErrClosed
	case !started:
		return ErrNotStarted
	}
	m.netSync.Cancel()
	select {
	case m.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.ctx.Done():
		return ErrClosed
	}
}
