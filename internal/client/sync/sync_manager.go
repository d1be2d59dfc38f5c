package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/openmined/trackd/internal/stream"
	"github.com/openmined/trackd/internal/trackapi"
)

// lifecycle is the one-way active -> frozen latch of a Manager.
type lifecycle interface {
	nextState(queue SyncStateQueue) SyncState
	isFrozen() bool
}

type activeLifecycle struct{}

func (activeLifecycle) nextState(queue SyncStateQueue) SyncState { return queue.Dequeue() }
func (activeLifecycle) isFrozen() bool                          { return false }

// frozenLifecycle never yields a state to run. Queued intents are kept but
// are never dequeued.
type frozenLifecycle struct{}

func (frozenLifecycle) nextState(SyncStateQueue) SyncState { return SyncStateSleep }
func (frozenLifecycle) isFrozen() bool                     { return true }

// Manager coordinates push, pull and freeze requests over a single
// Orchestrator and publishes the resulting SyncProgress.
//
// Every request, as well as the handling of run results, happens under one
// mutex. The runs themselves execute on the orchestrator's goroutine.
type Manager struct {
	mu            sync.Mutex
	queue         SyncStateQueue
	orchestrator  Orchestrator
	lifecycle     lifecycle
	isRunningSync bool

	progress    *stream.Subject[SyncProgress]
	completions stream.Stream[SyncResult]

	cancel context.CancelFunc
	done   chan struct{}
}

func NewManager(queue SyncStateQueue, orchestrator Orchestrator) (*Manager, error) {
	if queue == nil {
		return nil, errors.New("sync queue is required")
	}
	if orchestrator == nil {
		return nil, errors.New("sync orchestrator is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		queue:        queue,
		orchestrator: orchestrator,
		lifecycle:    activeLifecycle{},
		progress:     stream.NewBehaviorSubject(SyncProgressUnknown),
		completions:  orchestrator.Completions(),
		cancel:       cancel,
		done:         make(chan struct{}),
	}

	go m.handleCompletions(ctx)
	return m, nil
}

// State returns the orchestrator's current state
func (m *Manager) State() SyncState {
	return m.orchestrator.State()
}

func (m *Manager) IsRunningSync() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isRunningSync
}

func (m *Manager) IsFrozen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lifecycle.isFrozen()
}

// Progress subscribes to sync progress. The latest value is delivered
// immediately. The stream fails with the causing error once the session hits
// a fatal error.
func (m *Manager) Progress() stream.Stream[SyncProgress] {
	return m.progress.Subscribe()
}

// PushSync queues an upload of local changes. The returned stream yields the
// states of the current (or newly started) run through sleep.
func (m *Manager) PushSync() stream.Stream[SyncState] {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queue.QueuePushSync()
	return m.startSyncIfNeededAndObserve()
}

// ForceFullSync queues a full reconciliation. The returned stream yields the
// states of the current (or newly started) run through sleep.
func (m *Manager) ForceFullSync() stream.Stream[SyncState] {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queue.QueuePullSync()
	return m.startSyncIfNeededAndObserve()
}

// Freeze stops any new run from starting. The returned stream yields a single
// sleep once the in-flight run, if any, has finished.
func (m *Manager) Freeze() stream.Stream[SyncState] {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.freeze()
}

// Close stops consuming run results. It does not wait for an in-flight run.
func (m *Manager) Close() {
	m.cancel()
	<-m.done
}

// caller holds m.mu
func (m *Manager) freeze() stream.Stream[SyncState] {
	if !m.lifecycle.isFrozen() {
		m.lifecycle = frozenLifecycle{}
		m.orchestrator.Freeze()
		slog.Info("sync manager frozen", "running", m.isRunningSync)
	}

	if m.isRunningSync {
		return stream.Last(m.statesUntilSleep(m.orchestrator.States()))
	}
	return stream.Just(SyncStateSleep)
}

// caller holds m.mu
func (m *Manager) startSyncIfNeededAndObserve() stream.Stream[SyncState] {
	states, started := m.startSyncIfNeeded()
	if started {
		m.progress.Next(SyncProgressSyncing)
		return m.statesUntilSleep(states)
	}

	if m.isRunningSync {
		return m.statesUntilSleep(m.orchestrator.States())
	}
	return stream.Just(SyncStateSleep)
}

// startSyncIfNeeded hands the next queued state to the orchestrator unless a
// run is already in flight. When a run is started, the returned stream
// yields that run's states from its first one.
//
// caller holds m.mu
func (m *Manager) startSyncIfNeeded() (stream.Stream[SyncState], bool) {
	if m.isRunningSync {
		return nil, false
	}

	state := m.lifecycle.nextState(m.queue)
	if !state.IsActive() {
		return nil, false
	}

	// subscribe before starting so no transition of the new run is missed,
	// and skip the replayed idle state
	states := m.orchestrator.States()
	if err := m.orchestrator.Start(state); err != nil {
		states.Close()
		m.requeue(state)
		slog.Error("sync start", "state", state, "error", err)
		return nil, false
	}

	m.isRunningSync = true
	slog.Debug("sync started", "state", state)
	return stream.Skip(states, 1), true
}

// requeue puts back the intent a failed start took from the queue
//
// caller holds m.mu
func (m *Manager) requeue(state SyncState) {
	switch state {
	case SyncStatePull:
		m.queue.QueuePullSync()
	case SyncStatePush:
		m.queue.QueuePushSync()
	}
}

func (m *Manager) statesUntilSleep(states stream.Stream[SyncState]) stream.Stream[SyncState] {
	return stream.TakeThrough(states, func(s SyncState) bool {
		return !s.IsActive()
	})
}

func (m *Manager) handleCompletions(ctx context.Context) {
	defer close(m.done)
	defer m.completions.Close()

	for {
		result, err := m.completions.Next(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				slog.Warn("sync completions ended", "error", err)
			}
			return
		}
		m.syncOperationCompleted(result)
	}
}

func (m *Manager) syncOperationCompleted(result SyncResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.isRunningSync = false

	switch r := result.(type) {
	case Success:
		states, started := m.startSyncIfNeeded()
		if started {
			// nobody asked for this run, so nobody observes it through here
			states.Close()
			return
		}
		m.progress.Next(SyncProgressSynced)

	case Failure:
		m.processError(r.Err)

	default:
		panic(fmt.Sprintf("sync: unexpected sync result %T", result))
	}
}

// caller holds m.mu
func (m *Manager) processError(err error) {
	m.queue.Clear()
	if startErr := m.orchestrator.Start(SyncStateSleep); startErr != nil {
		slog.Warn("sync sleep", "error", startErr)
	}

	if trackapi.IsOffline(err) {
		slog.Warn("sync offline", "error", err)
		m.progress.Next(SyncProgressOfflineModeDetected)
	} else {
		slog.Error("sync failed", "error", err)
		m.progress.Next(SyncProgressFailed)
	}

	if trackapi.IsSessionFatal(err) {
		m.freeze().Close()
		m.progress.Fail(err)
	}
}
