package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/openmined/trackd/internal/stream"
)

var (
	ErrSyncAlreadyRunning = errors.New("sync already running")
	ErrNoStateHandler     = errors.New("no handler for sync state")
)

// Orchestrator runs the sync state machine. The Manager is its only client.
type Orchestrator interface {
	// State returns the current state.
	State() SyncState

	// States subscribes to state transitions. The current state is delivered
	// first, followed by every later transition in order.
	States() stream.Stream[SyncState]

	// Completions subscribes to run results. Exactly one result is emitted per
	// run, after that run's final transition to sleep.
	Completions() stream.Stream[SyncResult]

	// Start begins a run from state. Starting sleep while idle emits a sleep
	// transition and no result; while a run is in flight it does nothing.
	// Starting an active state while a run is in flight fails with
	// ErrSyncAlreadyRunning.
	Start(state SyncState) error

	// Freeze makes every later Start run straight to sleep. An in-flight run
	// is not affected.
	Freeze()
}

// StateHandler performs the work of one state and returns the state to
// transition to. Returning SyncStateSleep ends the run successfully.
type StateHandler func(ctx context.Context) (SyncState, error)

// StateMachineOrchestrator executes runs over a table of state handlers on its
// own goroutine.
type StateMachineOrchestrator struct {
	handlers    map[SyncState]StateHandler
	states      *stream.Subject[SyncState]
	completions *stream.Subject[SyncResult]

	mu      sync.Mutex
	running bool
	frozen  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewOrchestrator(handlers map[SyncState]StateHandler) *StateMachineOrchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	return &StateMachineOrchestrator{
		handlers:    handlers,
		states:      stream.NewBehaviorSubject(SyncStateSleep),
		completions: stream.NewSubject[SyncResult](),
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (o *StateMachineOrchestrator) State() SyncState {
	state, _ := o.states.Value()
	return state
}

func (o *StateMachineOrchestrator) States() stream.Stream[SyncState] {
	return o.states.Subscribe()
}

func (o *StateMachineOrchestrator) Completions() stream.Stream[SyncResult] {
	return o.completions.Subscribe()
}

func (o *StateMachineOrchestrator) isRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

func (o *StateMachineOrchestrator) Start(state SyncState) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.frozen {
		state = SyncStateSleep
	}

	if !state.IsActive() {
		if !o.running {
			o.states.Next(SyncStateSleep)
		}
		return nil
	}

	if o.running {
		return ErrSyncAlreadyRunning
	}

	if o.ctx.Err() != nil {
		return fmt.Errorf("orchestrator closed: %w", o.ctx.Err())
	}

	runID := uuid.New().String()
	o.running = true
	o.states.Next(state)

	o.wg.Add(1)
	go o.run(runID, state)
	return nil
}

func (o *StateMachineOrchestrator) Freeze() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.frozen {
		slog.Info("sync orchestrator frozen", "running", o.running)
	}
	o.frozen = true
}

// Close cancels the context handed to state handlers and waits for the
// in-flight run to finish.
func (o *StateMachineOrchestrator) Close() {
	o.cancel()
	o.wg.Wait()
}

func (o *StateMachineOrchestrator) run(runID string, state SyncState) {
	defer o.wg.Done()

	tStart := time.Now()
	slog.Debug("sync run start", "run", runID, "state", state)

	for {
		handler, ok := o.handlers[state]
		if !ok {
			o.finish(runID, Failure{Err: fmt.Errorf("%w: %s", ErrNoStateHandler, state)}, tStart)
			return
		}

		tState := time.Now()
		next, err := handler(o.ctx)
		if err != nil {
			slog.Debug("sync state failed", "run", runID, "state", state, "took", time.Since(tState), "error", err)
			o.finish(runID, Failure{Err: err}, tStart)
			return
		}
		slog.Debug("sync state done", "run", runID, "state", state, "next", next, "took", time.Since(tState))

		if !next.IsActive() {
			o.finish(runID, Success{}, tStart)
			return
		}

		o.mu.Lock()
		o.states.Next(next)
		o.mu.Unlock()
		state = next
	}
}

// finish emits the final sleep transition before the run result, so that
// observers of the result have already seen the whole run.
func (o *StateMachineOrchestrator) finish(runID string, result SyncResult, tStart time.Time) {
	o.mu.Lock()
	o.running = false
	o.states.Next(SyncStateSleep)
	o.mu.Unlock()

	slog.Info("sync run complete", "run", runID, "result", result, "took", time.Since(tStart))
	o.completions.Next(result)
}

var _ Orchestrator = (*StateMachineOrchestrator)(nil)
