package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openmined/trackd/internal/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// drain returns every value already buffered in sub without blocking
func drain[T any](t *testing.T, sub stream.Stream[T]) []T {
	t.Helper()
	var values []T
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		v, err := sub.Next(ctx)
		cancel()
		if err != nil {
			return values
		}
		values = append(values, v)
	}
}

func pullPushHandlers() map[SyncState]StateHandler {
	return map[SyncState]StateHandler{
		SyncStatePull: func(ctx context.Context) (SyncState, error) { return SyncStatePush, nil },
		SyncStatePush: func(ctx context.Context) (SyncState, error) { return SyncStateSleep, nil },
	}
}

func TestOrchestrator_RunEmitsTransitionsBeforeResult(t *testing.T) {
	ctx := testContext(t)
	o := NewOrchestrator(pullPushHandlers())
	defer o.Close()

	states := o.States()
	defer states.Close()
	completions := o.Completions()
	defer completions.Close()

	require.NoError(t, o.Start(SyncStatePull))

	result, err := completions.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, Success{}, result)

	// the whole run is already buffered once the result arrives
	assert.Equal(t, []SyncState{SyncStateSleep, SyncStatePull, SyncStatePush, SyncStateSleep}, drain(t, states))
	assert.Equal(t, SyncStateSleep, o.State())
	assert.False(t, o.isRunning())
}

func TestOrchestrator_StartWhileRunning(t *testing.T) {
	ctx := testContext(t)
	release := make(chan struct{})
	o := NewOrchestrator(map[SyncState]StateHandler{
		SyncStatePush: func(ctx context.Context) (SyncState, error) {
			<-release
			return SyncStateSleep, nil
		},
	})
	defer o.Close()

	completions := o.Completions()
	defer completions.Close()

	require.NoError(t, o.Start(SyncStatePush))
	assert.Equal(t, SyncStatePush, o.State())

	assert.ErrorIs(t, o.Start(SyncStatePull), ErrSyncAlreadyRunning)
	assert.ErrorIs(t, o.Start(SyncStatePush), ErrSyncAlreadyRunning)

	// sleep while running is ignored
	assert.NoError(t, o.Start(SyncStateSleep))
	assert.Equal(t, SyncStatePush, o.State())

	close(release)
	result, err := completions.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, Success{}, result)
}

func TestOrchestrator_StartSleepWhileIdle(t *testing.T) {
	o := NewOrchestrator(pullPushHandlers())
	defer o.Close()

	states := o.States()
	defer states.Close()
	completions := o.Completions()
	defer completions.Close()

	require.NoError(t, o.Start(SyncStateSleep))
	assert.Equal(t, []SyncState{SyncStateSleep, SyncStateSleep}, drain(t, states))
	assert.Empty(t, drain(t, completions))
}

func TestOrchestrator_HandlerError(t *testing.T) {
	ctx := testContext(t)
	boom := errors.New("boom")
	o := NewOrchestrator(map[SyncState]StateHandler{
		SyncStatePull: func(ctx context.Context) (SyncState, error) { return SyncStatePush, nil },
		SyncStatePush: func(ctx context.Context) (SyncState, error) { return SyncStatePush, boom },
	})
	defer o.Close()

	states := o.States()
	defer states.Close()
	completions := o.Completions()
	defer completions.Close()

	require.NoError(t, o.Start(SyncStatePull))

	result, err := completions.Next(ctx)
	require.NoError(t, err)
	failure, ok := result.(Failure)
	require.True(t, ok)
	assert.ErrorIs(t, failure.Err, boom)

	assert.Equal(t, []SyncState{SyncStateSleep, SyncStatePull, SyncStatePush, SyncStateSleep}, drain(t, states))
}

func TestOrchestrator_MissingHandler(t *testing.T) {
	ctx := testContext(t)
	o := NewOrchestrator(map[SyncState]StateHandler{})
	defer o.Close()

	completions := o.Completions()
	defer completions.Close()

	require.NoError(t, o.Start(SyncStatePush))

	result, err := completions.Next(ctx)
	require.NoError(t, err)
	failure, ok := result.(Failure)
	require.True(t, ok)
	assert.ErrorIs(t, failure.Err, ErrNoStateHandler)
}

func TestOrchestrator_Freeze(t *testing.T) {
	o := NewOrchestrator(pullPushHandlers())
	defer o.Close()

	states := o.States()
	defer states.Close()
	completions := o.Completions()
	defer completions.Close()

	o.Freeze()
	require.NoError(t, o.Start(SyncStatePull))

	assert.Equal(t, []SyncState{SyncStateSleep, SyncStateSleep}, drain(t, states))
	assert.Empty(t, drain(t, completions))
	assert.False(t, o.isRunning())
}

func TestOrchestrator_CloseCancelsHandlers(t *testing.T) {
	ctx := testContext(t)
	entered := make(chan struct{})
	o := NewOrchestrator(map[SyncState]StateHandler{
		SyncStatePull: func(ctx context.Context) (SyncState, error) {
			close(entered)
			<-ctx.Done()
			return SyncStateSleep, ctx.Err()
		},
	})

	completions := o.Completions()
	defer completions.Close()

	require.NoError(t, o.Start(SyncStatePull))
	<-entered
	o.Close()

	result, err := completions.Next(ctx)
	require.NoError(t, err)
	failure, ok := result.(Failure)
	require.True(t, ok)
	assert.ErrorIs(t, failure.Err, context.Canceled)

	assert.Error(t, o.Start(SyncStatePull))
}
