// Package datasource is the facade the rest of the client talks to: the local
// repositories, the sync manager driving them, and the trigger that syncs when
// the client becomes active again.
package datasource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/openmined/trackd/internal/models"
	"github.com/openmined/trackd/internal/stream"

	csync "github.com/openmined/trackd/internal/client/sync"
)

var ErrLoggedOut = errors.New("cannot start syncing after the user logged out")

// Repository is the read side of a local record repository
type Repository[T models.Entity[T]] interface {
	GetAll(ctx context.Context, predicate func(T) bool) ([]T, error)
}

type Repositories struct {
	Users       Repository[models.User]
	Workspaces  Repository[models.Workspace]
	Clients     Repository[models.Client]
	Projects    Repository[models.Project]
	Tasks       Repository[models.Task]
	Tags        Repository[models.Tag]
	TimeEntries Repository[models.TimeEntry]
}

func (r Repositories) validate() error {
	if r.Users == nil || r.Workspaces == nil || r.Clients == nil || r.Projects == nil ||
		r.Tasks == nil || r.Tags == nil || r.TimeEntries == nil {
		return errors.New("every repository is required")
	}
	return nil
}

// Store is the local storage wiped on logout
type Store interface {
	Clear(ctx context.Context) error
}

type SyncManager interface {
	PushSync() stream.Stream[csync.SyncState]
	ForceFullSync() stream.Stream[csync.SyncState]
	Freeze() stream.Stream[csync.SyncState]
	Progress() stream.Stream[csync.SyncProgress]
}

// Trigger signals when the client became active again
type Trigger interface {
	AppBecameActive() stream.Stream[struct{}]
}

// ErrorHandler records the consequences of a session ending api error
type ErrorHandler interface {
	TryHandleDeprecationError(ctx context.Context, err error) bool
	TryHandleUnauthorizedError(ctx context.Context, err error) bool
}

type Deps struct {
	Repositories Repositories
	Store        Store
	Manager      SyncManager
	Trigger      Trigger
	ErrorHandler ErrorHandler
}

type DataSource struct {
	repos   Repositories
	store   Store
	manager SyncManager
	trigger Trigger
	errors  ErrorHandler

	mu         sync.Mutex
	loggedIn   bool
	stopSignal func()

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates the facade and starts routing fatal sync errors to the error handler
func New(deps Deps) (*DataSource, error) {
	if err := deps.Repositories.validate(); err != nil {
		return nil, err
	}
	if deps.Store == nil || deps.Manager == nil || deps.Trigger == nil || deps.ErrorHandler == nil {
		return nil, errors.New("store, sync manager, trigger and error handler are required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &DataSource{
		repos:    deps.Repositories,
		store:    deps.Store,
		manager:  deps.Manager,
		trigger:  deps.Trigger,
		errors:   deps.ErrorHandler,
		loggedIn: true,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go d.routeSyncErrors(ctx, deps.Manager.Progress())
	return d, nil
}

func (d *DataSource) Repositories() Repositories {
	return d.repos
}

func (d *DataSource) SyncManager() SyncManager {
	return d.manager
}

func (d *DataSource) IsLoggedIn() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loggedIn
}

// StartSyncing runs a full sync now and every time the client becomes active
// again. The returned stream yields once the full sync reached sleep.
func (d *DataSource) StartSyncing() (stream.Stream[struct{}], error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.loggedIn {
		return nil, ErrLoggedOut
	}

	d.stopSyncingOnSignal()
	d.stopSignal = d.syncOnSignal(d.trigger.AppBecameActive())

	return stream.Map(stream.Last(d.manager.ForceFullSync()), func(csync.SyncState) struct{} {
		return struct{}{}
	}), nil
}

// HasUnsyncedData reports whether any local record still has to be pushed. It
// returns as soon as one repository reports one, without waiting for the rest.
func (d *DataSource) HasUnsyncedData(ctx context.Context) (bool, error) {
	checks := []func(context.Context) (bool, error){
		hasUnsynced(d.repos.TimeEntries),
		hasUnsynced(d.repos.Projects),
		hasUnsynced(d.repos.Users),
		hasUnsynced(d.repos.Tasks),
		hasUnsynced(d.repos.Clients),
		hasUnsynced(d.repos.Tags),
		hasUnsynced(d.repos.Workspaces),
	}

	ctx, cancel := context.WithCancel(ctx)
	type answer struct {
		unsynced bool
		err      error
	}
	// buffered so abandoned checks never block
	answers := make(chan answer, len(checks))
	for _, check := range checks {
		go func() {
			unsynced, err := check(ctx)
			answers <- answer{unsynced, err}
		}()
	}

	var firstErr error
	for range checks {
		select {
		case a := <-answers:
			if a.unsynced {
				cancel()
				return true, nil
			}
			if a.err != nil && firstErr == nil {
				firstErr = a.err
			}
		case <-ctx.Done():
			cancel()
			return false, ctx.Err()
		}
	}
	cancel()

	if firstErr != nil {
		return false, fmt.Errorf("check unsynced data: %w", firstErr)
	}
	return false, nil
}

// Logout freezes syncing and, once no run is in flight, wipes the local store.
// StartSyncing fails from then on.
func (d *DataSource) Logout(ctx context.Context) error {
	if _, err := stream.First(ctx, d.manager.Freeze()); err != nil {
		return fmt.Errorf("freeze sync: %w", err)
	}

	d.mu.Lock()
	d.loggedIn = false
	d.stopSyncingOnSignal()
	d.mu.Unlock()

	if err := d.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear store: %w", err)
	}

	slog.Info("logged out")
	return nil
}

// Close stops the background goroutines. It does not freeze syncing.
func (d *DataSource) Close() {
	d.mu.Lock()
	d.stopSyncingOnSignal()
	d.mu.Unlock()

	d.cancel()
	<-d.done
}

// caller holds d.mu
func (d *DataSource) syncOnSignal(signals stream.Stream[struct{}]) func() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		err := stream.Each(ctx, signals, func(struct{}) {
			slog.Debug("client became active, syncing")
			d.manager.ForceFullSync().Close()
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("sync trigger ended", "error", err)
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func (d *DataSource) isSyncingOnSignal() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopSignal != nil
}

// caller holds d.mu
func (d *DataSource) stopSyncingOnSignal() {
	if d.stopSignal != nil {
		d.stopSignal()
		d.stopSignal = nil
	}
}

func (d *DataSource) routeSyncErrors(ctx context.Context, progress stream.Stream[csync.SyncProgress]) {
	defer close(d.done)

	err := stream.Each(ctx, progress, func(p csync.SyncProgress) {
		slog.Debug("sync progress", "progress", p)
	})
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) || errors.Is(err, stream.ErrClosed) {
		return
	}
	// a fatal error already buffered is still recorded while closing
	d.onSyncError(context.WithoutCancel(ctx), err)
}

// onSyncError handles the error that ended the sync progress. Only session
// ending errors end it, so anything else is a bug.
func (d *DataSource) onSyncError(ctx context.Context, err error) {
	if !d.errors.TryHandleDeprecationError(ctx, err) && !d.errors.TryHandleUnauthorizedError(ctx, err) {
		panic(fmt.Sprintf("datasource: unhandled sync error %T: %v", err, err))
	}

	d.mu.Lock()
	d.stopSyncingOnSignal()
	d.mu.Unlock()
}

func hasUnsynced[T models.Entity[T]](repo Repository[T]) func(context.Context) (bool, error) {
	return func(ctx context.Context) (bool, error) {
		unsynced, err := repo.GetAll(ctx, func(entity T) bool {
			return !entity.Sync().IsSynced()
		})
		if err != nil {
			return false, err
		}
		return len(unsynced) > 0, nil
	}
}
