package datasource

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openmined/trackd/internal/models"
	"github.com/openmined/trackd/internal/stream"
	"github.com/openmined/trackd/internal/trackapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	csync "github.com/openmined/trackd/internal/client/sync"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// fakeRepo answers GetAll with records, or blocks until released
type fakeRepo[T models.Entity[T]] struct {
	records []T
	err     error
	block   chan struct{}
}

func (r *fakeRepo[T]) GetAll(ctx context.Context, predicate func(T) bool) ([]T, error) {
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	var out []T
	for _, record := range r.records {
		if predicate(record) {
			out = append(out, record)
		}
	}
	return out, nil
}

type fakeRepos struct {
	users       *fakeRepo[models.User]
	workspaces  *fakeRepo[models.Workspace]
	clients     *fakeRepo[models.Client]
	projects    *fakeRepo[models.Project]
	tasks       *fakeRepo[models.Task]
	tags        *fakeRepo[models.Tag]
	timeEntries *fakeRepo[models.TimeEntry]
}

func newFakeRepos() *fakeRepos {
	return &fakeRepos{
		users:       &fakeRepo[models.User]{records: []models.User{{ID: 1, SyncMeta: models.InSync()}}},
		workspaces:  &fakeRepo[models.Workspace]{records: []models.Workspace{{ID: 1, SyncMeta: models.InSync()}}},
		clients:     &fakeRepo[models.Client]{},
		projects:    &fakeRepo[models.Project]{},
		tasks:       &fakeRepo[models.Task]{},
		tags:        &fakeRepo[models.Tag]{},
		timeEntries: &fakeRepo[models.TimeEntry]{},
	}
}

func (r *fakeRepos) repositories() Repositories {
	return Repositories{
		Users:       r.users,
		Workspaces:  r.workspaces,
		Clients:     r.clients,
		Projects:    r.projects,
		Tasks:       r.tasks,
		Tags:        r.tags,
		TimeEntries: r.timeEntries,
	}
}

type fakeStore struct {
	cleared atomic.Int32
	err     error
}

func (s *fakeStore) Clear(ctx context.Context) error {
	s.cleared.Add(1)
	return s.err
}

type fakeManager struct {
	mu        sync.Mutex
	fullSyncs int
	freeze    *stream.Subject[csync.SyncState]
	frozen    chan struct{}
	progress  *stream.Subject[csync.SyncProgress]
}

func newFakeManager() *fakeManager {
	return &fakeManager{
		freeze:   stream.NewSubject[csync.SyncState](),
		frozen:   make(chan struct{}),
		progress: stream.NewBehaviorSubject(csync.SyncProgressUnknown),
	}
}

func (m *fakeManager) PushSync() stream.Stream[csync.SyncState] {
	return stream.Just(csync.SyncStatePush, csync.SyncStateSleep)
}

func (m *fakeManager) ForceFullSync() stream.Stream[csync.SyncState] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fullSyncs++
	return stream.Just(csync.SyncStatePull, csync.SyncStatePush, csync.SyncStateSleep)
}

func (m *fakeManager) Freeze() stream.Stream[csync.SyncState] {
	sub := m.freeze.Subscribe()
	close(m.frozen)
	return sub
}

func (m *fakeManager) Progress() stream.Stream[csync.SyncProgress] {
	return m.progress.Subscribe()
}

func (m *fakeManager) fullSyncCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fullSyncs
}

type fakeTrigger struct {
	signals *stream.Subject[struct{}]
}

func (t *fakeTrigger) AppBecameActive() stream.Stream[struct{}] {
	return t.signals.Subscribe()
}

type fakeErrorHandler struct {
	mu           sync.Mutex
	deprecation  []error
	unauthorized []error
}

func (h *fakeErrorHandler) TryHandleDeprecationError(ctx context.Context, err error) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deprecation = append(h.deprecation, err)
	return trackapi.IsDeprecation(err)
}

func (h *fakeErrorHandler) TryHandleUnauthorizedError(ctx context.Context, err error) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unauthorized = append(h.unauthorized, err)
	return trackapi.IsUnauthorized(err)
}

func (h *fakeErrorHandler) calls() (int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.deprecation), len(h.unauthorized)
}

type fixture struct {
	ds      *DataSource
	repos   *fakeRepos
	store   *fakeStore
	manager *fakeManager
	trigger *fakeTrigger
	errors  *fakeErrorHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repos:   newFakeRepos(),
		store:   &fakeStore{},
		manager: newFakeManager(),
		trigger: &fakeTrigger{signals: stream.NewSubject[struct{}]()},
		errors:  &fakeErrorHandler{},
	}

	ds, err := New(Deps{
		Repositories: f.repos.repositories(),
		Store:        f.store,
		Manager:      f.manager,
		Trigger:      f.trigger,
		ErrorHandler: f.errors,
	})
	require.NoError(t, err)
	t.Cleanup(ds.Close)
	f.ds = ds
	return f
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)

	repos := newFakeRepos().repositories()
	repos.Tags = nil
	_, err = New(Deps{
		Repositories: repos,
		Store:        &fakeStore{},
		Manager:      newFakeManager(),
		Trigger:      &fakeTrigger{signals: stream.NewSubject[struct{}]()},
		ErrorHandler: &fakeErrorHandler{},
	})
	assert.Error(t, err)
}

func TestStartSyncing(t *testing.T) {
	f := newFixture(t)

	done, err := f.ds.StartSyncing()
	require.NoError(t, err)
	assert.Equal(t, 1, f.manager.fullSyncCount())

	// a single completion signal once the run reaches sleep
	got, err := stream.Collect(testContext(t), done)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	f.trigger.signals.Next(struct{}{})
	assert.Eventually(t, func() bool { return f.manager.fullSyncCount() == 2 }, time.Second, 5*time.Millisecond)

	f.trigger.signals.Next(struct{}{})
	assert.Eventually(t, func() bool { return f.manager.fullSyncCount() == 3 }, time.Second, 5*time.Millisecond)
}

func TestStartSyncing_ResubscribesToTrigger(t *testing.T) {
	f := newFixture(t)

	_, err := f.ds.StartSyncing()
	require.NoError(t, err)
	_, err = f.ds.StartSyncing()
	require.NoError(t, err)
	assert.Equal(t, 2, f.manager.fullSyncCount())

	// only one trigger subscription is alive
	f.trigger.signals.Next(struct{}{})
	assert.Eventually(t, func() bool { return f.manager.fullSyncCount() == 3 }, time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool { return f.manager.fullSyncCount() > 3 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestLogout_ClearsStoreOnlyAfterFreeze(t *testing.T) {
	f := newFixture(t)
	_, err := f.ds.StartSyncing()
	require.NoError(t, err)
	assert.True(t, f.ds.isSyncingOnSignal())

	result := make(chan error, 1)
	go func() {
		result <- f.ds.Logout(testContext(t))
	}()

	<-f.manager.frozen
	assert.Never(t, func() bool { return f.store.cleared.Load() > 0 }, 100*time.Millisecond, 10*time.Millisecond)
	assert.True(t, f.ds.IsLoggedIn())

	f.manager.freeze.Next(csync.SyncStateSleep)

	select {
	case err := <-result:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("logout did not complete")
	}
	assert.Equal(t, int32(1), f.store.cleared.Load())
	assert.False(t, f.ds.IsLoggedIn())

	_, err = f.ds.StartSyncing()
	assert.ErrorIs(t, err, ErrLoggedOut)

	// the trigger no longer syncs
	f.trigger.signals.Next(struct{}{})
	assert.Never(t, func() bool { return f.manager.fullSyncCount() > 1 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestLogout_ClearError(t *testing.T) {
	f := newFixture(t)
	f.store.err = errors.New("disk full")

	result := make(chan error, 1)
	go func() {
		result <- f.ds.Logout(testContext(t))
	}()
	<-f.manager.frozen
	f.manager.freeze.Next(csync.SyncStateSleep)

	err := <-result
	assert.ErrorIs(t, err, f.store.err)
}

func TestHasUnsyncedData(t *testing.T) {
	t.Run("everything synced", func(t *testing.T) {
		f := newFixture(t)
		unsynced, err := f.ds.HasUnsyncedData(testContext(t))
		require.NoError(t, err)
		assert.False(t, unsynced)
	})

	t.Run("one dirty record", func(t *testing.T) {
		f := newFixture(t)
		f.repos.tags.records = []models.Tag{{ID: -1, SyncMeta: models.Dirty()}}
		unsynced, err := f.ds.HasUnsyncedData(testContext(t))
		require.NoError(t, err)
		assert.True(t, unsynced)
	})

	t.Run("refused record", func(t *testing.T) {
		f := newFixture(t)
		f.repos.users.records = []models.User{{ID: 1, SyncMeta: models.Unsyncable("nope")}}
		unsynced, err := f.ds.HasUnsyncedData(testContext(t))
		require.NoError(t, err)
		assert.True(t, unsynced)
	})

	t.Run("does not wait for the other repositories", func(t *testing.T) {
		f := newFixture(t)
		never := make(chan struct{})
		f.repos.timeEntries.block = never
		f.repos.projects.block = never
		f.repos.workspaces.records = []models.Workspace{{ID: 2, SyncMeta: models.Dirty()}}

		unsynced, err := f.ds.HasUnsyncedData(testContext(t))
		require.NoError(t, err)
		assert.True(t, unsynced)
	})

	t.Run("waits for every repository before answering false", func(t *testing.T) {
		f := newFixture(t)
		release := make(chan struct{})
		f.repos.clients.block = release

		answered := make(chan bool, 1)
		go func() {
			unsynced, _ := f.ds.HasUnsyncedData(testContext(t))
			answered <- unsynced
		}()

		select {
		case <-answered:
			t.Fatal("answered before every repository did")
		case <-time.After(50 * time.Millisecond):
		}

		close(release)
		assert.False(t, <-answered)
	})

	t.Run("repository error", func(t *testing.T) {
		f := newFixture(t)
		boom := errors.New("boom")
		f.repos.tasks.err = boom

		_, err := f.ds.HasUnsyncedData(testContext(t))
		assert.ErrorIs(t, err, boom)
	})

	t.Run("dirty record wins over an error", func(t *testing.T) {
		f := newFixture(t)
		f.repos.tasks.err = errors.New("boom")
		f.repos.tags.records = []models.Tag{{ID: -1, SyncMeta: models.Dirty()}}

		unsynced, err := f.ds.HasUnsyncedData(testContext(t))
		require.NoError(t, err)
		assert.True(t, unsynced)
	})

	t.Run("context canceled", func(t *testing.T) {
		f := newFixture(t)
		f.repos.tags.block = make(chan struct{})

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := f.ds.HasUnsyncedData(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestSyncErrorRouting(t *testing.T) {
	tests := []struct {
		name             string
		err              error
		wantUnauthorized int
	}{
		{"client deprecated", &trackapi.ClientDeprecatedError{RequestError: trackapi.RequestError{StatusCode: 418}}, 0},
		{"api deprecated", &trackapi.ApiDeprecatedError{RequestError: trackapi.RequestError{StatusCode: 410}}, 0},
		{"unauthorized", &trackapi.UnauthorizedError{RequestError: trackapi.RequestError{StatusCode: 401}}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.ds.StartSyncing()
			require.NoError(t, err)

			f.manager.progress.Next(csync.SyncProgressFailed)
			f.manager.progress.Fail(tt.err)

			assert.Eventually(t, func() bool {
				deprecation, _ := f.errors.calls()
				return deprecation == 1
			}, time.Second, 5*time.Millisecond)
			assert.Eventually(t, func() bool { return !f.ds.isSyncingOnSignal() }, time.Second, 5*time.Millisecond)
			_, unauthorized := f.errors.calls()
			assert.Equal(t, tt.wantUnauthorized, unauthorized)

			f.trigger.signals.Next(struct{}{})
			assert.Never(t, func() bool { return f.manager.fullSyncCount() > 1 }, 100*time.Millisecond, 10*time.Millisecond)
		})
	}
}

func TestOnSyncError_UnknownErrorPanics(t *testing.T) {
	f := newFixture(t)
	assert.Panics(t, func() {
		f.ds.onSyncError(context.Background(), errors.New("unexpected"))
	})
}
