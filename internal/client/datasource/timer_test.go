package datasource

import (
	"context"
	"testing"
	"time"

	"github.com/openmined/trackd/internal/client/store"
	"github.com/openmined/trackd/internal/models"
	"github.com/openmined/trackd/internal/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	csync "github.com/openmined/trackd/internal/client/sync"
)

func newTestTimer(t *testing.T) (*Timer, *store.Store, *time.Time) {
	t.Helper()
	st := newTestStore(t)
	require.NoError(t, st.Users.Upsert(context.Background(), models.User{
		ID:                 7,
		Email:              "alice@example.com",
		DefaultWorkspaceID: 3,
		SyncMeta:           models.InSync(),
	}))

	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	timer := NewTimer(st.Users, st.TimeEntries)
	timer.now = func() time.Time { return now }
	return timer, st, &now
}

func TestTimer_StartStop(t *testing.T) {
	ctx := context.Background()
	timer, st, now := newTestTimer(t)

	entry, err := timer.Start(ctx, "  write tests ")
	require.NoError(t, err)
	assert.Equal(t, int64(-1), entry.ID)
	assert.Equal(t, int64(3), entry.WorkspaceID)
	assert.Equal(t, int64(7), entry.UserID)
	assert.Equal(t, "write tests", entry.Description)
	assert.True(t, entry.IsRunning())
	assert.Equal(t, models.SyncStatusSyncNeeded, entry.SyncStatus)

	running, err := timer.Running(ctx)
	require.NoError(t, err)
	assert.Equal(t, entry.ID, running.ID)

	*now = now.Add(90 * time.Minute)
	stopped, err := timer.Stop(ctx)
	require.NoError(t, err)
	require.NotNil(t, stopped.Duration)
	assert.Equal(t, int64(5400), *stopped.Duration)
	assert.Equal(t, models.SyncStatusSyncNeeded, stopped.SyncStatus)

	_, err = timer.Stop(ctx)
	assert.ErrorIs(t, err, ErrNoRunningEntry)

	all, err := st.TimeEntries.GetAll(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestTimer_StartStopsRunningEntry(t *testing.T) {
	ctx := context.Background()
	timer, st, now := newTestTimer(t)

	first, err := timer.Start(ctx, "first")
	require.NoError(t, err)

	*now = now.Add(time.Minute)
	second, err := timer.Start(ctx, "second")
	require.NoError(t, err)
	assert.Equal(t, int64(-2), second.ID)

	stopped, err := st.TimeEntries.GetByID(ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, stopped.Duration)
	assert.Equal(t, int64(60), *stopped.Duration)

	running, err := timer.Running(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, running.ID)
}

func TestTimer_Discard(t *testing.T) {
	ctx := context.Background()
	timer, st, _ := newTestTimer(t)

	_, err := timer.Discard(ctx)
	assert.ErrorIs(t, err, ErrNoRunningEntry)

	_, err = timer.Start(ctx, "oops")
	require.NoError(t, err)
	discarded, err := timer.Discard(ctx)
	require.NoError(t, err)
	assert.Equal(t, "oops", discarded.Description)

	all, err := st.TimeEntries.GetAll(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, all)

	// entries known to the server stay
	require.NoError(t, st.TimeEntries.Upsert(ctx, models.TimeEntry{ID: 40, Description: "pushed", SyncMeta: models.InSync()}))
	_, err = timer.Discard(ctx)
	assert.ErrorIs(t, err, ErrEntryPushed)
}

func TestTimer_NoUser(t *testing.T) {
	st := newTestStore(t)
	timer := NewTimer(st.Users, st.TimeEntries)
	_, err := timer.Start(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNoUser)
}

func TestEngine_TimerEntryIsPushed(t *testing.T) {
	srv := fakeService(t, nil)
	engine := newTestEngine(t, srv.URL)
	ctx := testContext(t)

	require.NoError(t, engine.store.Users.Upsert(ctx, models.User{ID: 1, DefaultWorkspaceID: 1, SyncMeta: models.InSync()}))
	entry, err := engine.Timer.Start(ctx, "pushed by the engine")
	require.NoError(t, err)

	unsynced, err := engine.DataSource.HasUnsyncedData(ctx)
	require.NoError(t, err)
	assert.True(t, unsynced)

	states, err := stream.Collect(ctx, engine.Manager.PushSync())
	require.NoError(t, err)
	assert.Equal(t, csync.SyncStateSleep, states[len(states)-1])

	_, err = engine.store.TimeEntries.GetByID(ctx, entry.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	pushed, err := engine.store.TimeEntries.GetByID(ctx, 500)
	require.NoError(t, err)
	assert.Equal(t, "pushed by the engine", pushed.Description)
	assert.True(t, pushed.IsSynced())

	unsynced, err = engine.DataSource.HasUnsyncedData(ctx)
	require.NoError(t, err)
	assert.False(t, unsynced)
}
