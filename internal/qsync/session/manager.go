// Package session runs one questionnaire session on a device: startup
// reconciliation, debounced persistence and sync, connectivity changes and
// teardown. Manager is the only type the UI layer talks to.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/resume-services/questionnaire-hub/internal/domain/questionnaire"
	"github.com/resume-services/questionnaire-hub/internal/qsync/coalesce"
	"github.com/resume-services/questionnaire-hub/internal/qsync/reconcile"
	"github.com/resume-services/questionnaire-hub/internal/qsync/retry"
	"github.com/resume-services/questionnaire-hub/internal/qsync/transport"
)

const (
	DefaultLocalSaveDelay = 500 * time.Millisecond
	DefaultSyncDelay      = 2 * time.Second
	eventBuffer           = 16
)

var (
	ErrClosed     = errors.New("session closed")
	ErrNotStarted = errors.New("session not started")
)

// LocalStore is the device-local copy of the session.
type LocalStore interface {
	Save(st questionnaire.State)
	Load() (questionnaire.State, error)
}

// Remote is the server side of the session.
type Remote interface {
	retry.Pusher
	Fetch(ctx context.Context) (transport.Snapshot, error)
	Beacon(st questionnaire.State)
}

// Options configures a Manager. Zero delays fall back to the defaults.
type Options struct {
	Key            questionnaire.Key
	Local          LocalStore
	Remote         Remote
	Clock          clockwork.Clock
	LocalSaveDelay time.Duration
	SyncDelay      time.Duration
	Retry          retry.Config
	Logger         zerolog.Logger
}

type eventKind int

const (
	evDebounced eventKind = iota
	evForce
	evOnline
)

type event struct {
	kind  eventKind
	state questionnaire.State
	epoch uint64
	seq   uint64
	reply chan retry.Report
}

// pendingSync is what the network coalescer holds: the state to send, the
// reconciliation epoch it was produced in and the edit it includes.
type pendingSync struct {
	state questionnaire.State
	epoch uint64
	seq   uint64
}

// Observer receives a copy of the state and status after every change.
type Observer func(questionnaire.State, Status)

// Manager owns one (clientId, questionnaireId) session. All counters and
// timers live on the instance, so independent sessions never interfere.
type Manager struct {
	key    questionnaire.Key
	local  LocalStore
	remote Remote
	clock  clockwork.Clock
	retry  *retry.Controller
	logger zerolog.Logger

	localSave *coalesce.Coalescer[questionnaire.State]
	netSync   *coalesce.Coalescer[pendingSync]

	events chan event
	ready  chan struct{}
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	mu               sync.Mutex
	state            questionnaire.State
	status           Status
	epoch            uint64
	editSeq          uint64
	sentSeq          uint64
	hadLocal         bool
	editedDuringLoad bool
	lastSyncOK       bool
	started          bool
	unloaded         bool
	observers        map[int]Observer
	nextObserver     int
}

func New(opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.LocalSaveDelay <= 0 {
		opts.LocalSaveDelay = DefaultLocalSaveDelay
	}
	if opts.SyncDelay <= 0 {
		opts.SyncDelay = DefaultSyncDelay
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		key:        opts.Key,
		local:      opts.Local,
		remote:     opts.Remote,
		clock:      opts.Clock,
		logger:     opts.Logger.With().Str("component", "session").Str("session", opts.Key.String()).Logger(),
		events:     make(chan event, eventBuffer),
		ready:      make(chan struct{}),
		done:       make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
		state:      questionnaire.Default(),
		status:     Status{IsLoading: true, IsOnline: true, Phase: PhaseIdle},
		lastSyncOK: true,
		observers:  map[int]Observer{},
	}
	m.retry = retry.NewController(opts.Remote, opts.Clock, opts.Retry, opts.Logger, retry.WithAttemptHook(m.onAttempt))
	m.localSave = coalesce.New(opts.Clock, opts.LocalSaveDelay, m.local.Save)
	m.netSync = coalesce.New(opts.Clock, opts.SyncDelay, func(p pendingSync) {
		m.enqueue(event{kind: evDebounced, state: p.state, epoch: p.epoch, seq: p.seq})
	})
	return m
}

// Start seeds the session from the device copy right away and reads the
// server copy in the background. Ready is closed once that read resolved.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.started || m.unloaded {
		m.mu.Unlock()
		return
	}
	m.started = true
	if st, err := m.local.Load(); err == nil {
		m.state = st
		m.hadLocal = true
	}
	state, status := m.snapshotLocked()
	m.mu.Unlock()

	m.notify(state, status)
	go m.run()
}

// Ready is closed when startup loading has finished, successfully or not.
func (m *Manager) Ready() <-chan struct{} {
	return m.ready
}

func (m *Manager) run() {
	defer close(m.done)

	push := m.load()
	close(m.ready)
	if push != nil && m.ctx.Err() == nil {
		m.sync(*push)
	}

	for {
		select {
		case <-m.ctx.Done():
			return
		case ev := <-m.events:
			m.handle(ev)
		}
	}
}

// load reconciles the in-memory copy (device state plus any edits made while
// loading) with the server copy. It returns the state to push when the local
// side won.
func (m *Manager) load() *questionnaire.State {
	snap, err := m.remote.Fetch(m.ctx)

	m.mu.Lock()
	var local *questionnaire.State
	if m.hadLocal || m.editedDuringLoad {
		cp := m.state.Clone()
		local = &cp
	}

	var push *questionnaire.State
	persist := false
	switch {
	case err != nil:
		m.logger.Warn().Err(err).Msg("failed to fetch server state, continuing offline")
		m.status.IsOnline = false
	case snap.Fallback:
		m.logger.Info().Msg("server has no durable storage, using local state")
		m.status.IsOnline = true
	default:
		d := reconcile.Decide(local, snap.State)
		m.state = d.State
		m.epoch++
		// edits made while loading are either superseded or part of the push
		m.sentSeq = m.editSeq
		m.status.IsOnline = true
		if snap.State != nil {
			m.status.LastSyncedAt = m.clock.Now()
		}
		if d.PushToServer {
			cp := d.State.Clone()
			push = &cp
			m.status.IsSyncing = true
		}
		persist = true
		m.logger.Info().Str("source", string(d.Source)).Bool("push", d.PushToServer).Msg("session reconciled")
	}
	m.status.IsLoading = false
	state, status := m.snapshotLocked()
	m.mu.Unlock()

	if persist {
		m.localSave.Cancel()
		m.local.Save(state)
	}
	m.notify(state, status)
	return push
}

func (m *Manager) handle(ev event) {
	if m.ctx.Err() != nil {
		return
	}
	var st questionnaire.State
	m.mu.Lock()
	switch ev.kind {
	case evDebounced:
		if ev.epoch != m.epoch {
			if m.status.Phase == PhaseDebouncing {
				m.status.Phase = m.restingPhaseLocked()
			}
			m.mu.Unlock()
			m.logger.Debug().Msg("dropping debounced sync queued before reconciliation")
			return
		}
		st = ev.state
		if ev.seq > m.sentSeq {
			m.sentSeq = ev.seq
		}
	default:
		st = m.state.Clone()
		m.sentSeq = m.editSeq
	}
	// marked before the attempt starts so an unload in between still beacons
	m.status.IsSyncing = true
	m.mu.Unlock()
	report := m.sync(st)
	if ev.reply != nil {
		ev.reply <- report
	}
}

func (m *Manager) sync(st questionnaire.State) retry.Report {
	report := m.retry.Sync(m.ctx, st)

	m.mu.Lock()
	m.status.IsSyncing = false
	switch report.Status {
	case retry.StatusOnline:
		m.status.IsOnline = true
		m.status.Error = ""
		m.status.LastSyncedAt = report.SyncedAt
		m.lastSyncOK = true
	case retry.StatusTransient:
		m.status.Error = ""
		m.lastSyncOK = false
	case retry.StatusOffline:
		m.status.IsOnline = false
		m.status.Error = PendingMessage
		m.lastSyncOK = false
	case retry.StatusCanceled:
		m.lastSyncOK = false
	}
	m.status.Phase = m.restingPhaseLocked()
	state, status := m.snapshotLocked()
	m.mu.Unlock()

	m.notify(state, status)
	return report
}

func (m *Manager) onAttempt(attempt int) {
	m.mu.Lock()
	m.status.IsSyncing = true
	if attempt == 1 {
		m.status.Phase = PhaseSyncing
	} else {
		m.status.Phase = PhaseRetrying
	}
	state, status := m.snapshotLocked()
	m.mu.Unlock()
	m.notify(state, status)
}

func (m *Manager) restingPhaseLocked() Phase {
	switch {
	case m.status.Error != "":
		return PhaseOfflinePending
	case m.netSync.Pending():
		return PhaseDebouncing
	default:
		return PhaseIdle
	}
}

func (m *Manager) enqueue(ev event) bool {
	select {
	case m.events <- ev:
		return true
	case <-m.ctx.Done():
		return false
	}
}

// Unload is the page-teardown hook. It never blocks on the network: pending
// local writes are flushed, the debounced sync is cancelled, and the current
// state goes out once as a fire-and-forget beacon when any edit has not been
// handed to a push yet, a push is running, or the last one failed.
// A push already on the wire finishes under the transport timeout; queued
// syncs and retry waits are dropped in favour of the beacon.
func (m *Manager) Unload() {
	m.mu.Lock()
	if m.unloaded {
		m.mu.Unlock()
		return
	}
	m.unloaded = true
	m.mu.Unlock()

	m.localSave.Flush()
	pending := m.netSync.Cancel()

	m.mu.Lock()
	st := m.state.Clone()
	needsBeacon := pending || m.sentSeq < m.editSeq || m.status.IsSyncing || !m.lastSyncOK
	m.mu.Unlock()

	if needsBeacon {
		m.remote.Beacon(st)
	}
	m.cancel()
}

// Close unloads the session and waits for its loop to exit.
func (m *Manager) Close() {
	m.Unload()
	m.mu.Lock()
	started := m.started
	m.mu.Unlock()
	if started {
		<-m.done
	}
}

func (m *Manager) snapshotLocked() (questionnaire.State, Status) {
	return m.state.Clone(), m.status
}

func (m *Manager) notify(st questionnaire.State, status Status) {
	m.mu.Lock()
	observers := make([]Observer, 0, len(m.observers))
	for _, o := range m.observers {
		observers = append(observers, o)
	}
	m.mu.Unlock()
	for _, o := range observers {
		o(st, status)
	}
}
