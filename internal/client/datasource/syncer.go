package datasource

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openmined/trackd/internal/models"
	"github.com/openmined/trackd/internal/trackapi"
	"golang.org/x/sync/errgroup"

	csync "github.com/openmined/trackd/internal/client/sync"
)

const (
	keyLastSynced    = "sync.last_synced"
	maxParallelPulls = 4
)

// Remote is the server side of one kind of record
type Remote[T models.Entity[T]] interface {
	List(ctx context.Context) ([]T, error)
	Push(ctx context.Context, entity T) (T, error)
}

// Local is the writable local side of one kind of record. Writes made by the
// syncer never overwrite a local change they did not read.
type Local[T models.Entity[T]] interface {
	Repository[T]
	Merge(ctx context.Context, entities []T) (int, error)
	CompareAndReplace(ctx context.Context, snapshot, entity T) (bool, error)
}

// TimeSettings persists timestamps
type TimeSettings interface {
	GetTime(ctx context.Context, key string) (time.Time, error)
	SetTime(ctx context.Context, key string, t time.Time) error
}

// KindSyncer pulls and pushes one kind of record. Create one with Bind.
type KindSyncer interface {
	kind() models.Kind
	pull(ctx context.Context) (int, error)
	push(ctx context.Context) (pushStats, error)
}

type pushStats struct {
	pushed  int
	failed  int
	changed int
}

// entitySyncer moves one kind of record between the server and the local store
type entitySyncer[T models.Entity[T]] struct {
	remote Remote[T]
	local  Local[T]
}

// Bind pairs the remote and local side of one kind of record
func Bind[T models.Entity[T]](remote Remote[T], local Local[T]) KindSyncer {
	return &entitySyncer[T]{remote: remote, local: local}
}

func (e *entitySyncer[T]) kind() models.Kind {
	var zero T
	return zero.Kind()
}

// pull stores the server copy of every record, except records with local
// changes that have not been pushed yet.
func (e *entitySyncer[T]) pull(ctx context.Context) (int, error) {
	remote, err := e.remote.List(ctx)
	if err != nil {
		return 0, err
	}
	return e.local.Merge(ctx, remote)
}

// push uploads every record waiting to be synced. A record the server refuses
// is marked unsyncable and skipped; any other error aborts the push. A record
// edited while its upload was in flight stays dirty for the next push.
func (e *entitySyncer[T]) push(ctx context.Context) (pushStats, error) {
	var stats pushStats

	dirty, err := e.local.GetAll(ctx, func(entity T) bool {
		return entity.Sync().SyncStatus == models.SyncStatusSyncNeeded
	})
	if err != nil {
		return stats, err
	}

	for _, entity := range dirty {
		synced, err := e.remote.Push(ctx, entity)
		if trackapi.IsClientError(err) {
			slog.Warn("record refused by the server", "kind", entity.Kind(), "id", entity.EntityID(), "error", err)
			marked, markErr := e.local.CompareAndReplace(ctx, entity, entity.WithSync(models.Unsyncable(err.Error())))
			if markErr != nil {
				return stats, markErr
			}
			if !marked {
				stats.changed++
			}
			stats.failed++
			continue
		}
		if err != nil {
			return stats, err
		}

		replaced, err := e.local.CompareAndReplace(ctx, entity, synced.WithSync(models.InSync()))
		if err != nil {
			return stats, err
		}
		if !replaced {
			slog.Debug("record changed during push", "kind", entity.Kind(), "id", entity.EntityID())
			stats.changed++
		}
		stats.pushed++
	}
	return stats, nil
}

// Syncer implements the pull and push states of the sync state machine
type Syncer struct {
	kinds    []KindSyncer
	settings TimeSettings
	now      func() time.Time
}

// NewSyncer syncs kinds in the given order. Push follows that order, so
// records should come after the records they reference.
func NewSyncer(settings TimeSettings, kinds ...KindSyncer) *Syncer {
	return &Syncer{
		kinds:    kinds,
		settings: settings,
		now:      time.Now,
	}
}

// Handlers returns the state table for the orchestrator
func (s *Syncer) Handlers() map[csync.SyncState]csync.StateHandler {
	return map[csync.SyncState]csync.StateHandler{
		csync.SyncStatePull: s.Pull,
		csync.SyncStatePush: s.Push,
	}
}

// Pull fetches every kind concurrently and continues with a push
func (s *Syncer) Pull(ctx context.Context) (csync.SyncState, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelPulls)

	for _, k := range s.kinds {
		g.Go(func() error {
			tStart := time.Now()
			n, err := k.pull(ctx)
			if err != nil {
				return fmt.Errorf("pull %s: %w", k.kind(), err)
			}
			slog.Debug("pulled", "kind", k.kind(), "records", n, "took", time.Since(tStart))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return csync.SyncStatePull, err
	}
	return csync.SyncStatePush, nil
}

// Push uploads local changes kind by kind and ends the run
func (s *Syncer) Push(ctx context.Context) (csync.SyncState, error) {
	var total pushStats
	for _, k := range s.kinds {
		stats, err := k.push(ctx)
		total.pushed += stats.pushed
		total.failed += stats.failed
		total.changed += stats.changed
		if err != nil {
			return csync.SyncStatePush, fmt.Errorf("push %s: %w", k.kind(), err)
		}
	}

	if err := s.settings.SetTime(ctx, keyLastSynced, s.now()); err != nil {
		return csync.SyncStatePush, err
	}

	if total.pushed > 0 || total.failed > 0 {
		slog.Info("pushed local changes", "pushed", total.pushed, "refused", total.failed, "changed", total.changed)
	}
	return csync.SyncStateSleep, nil
}

// LastSynced returns when a run last completed, or the zero time
func (s *Syncer) LastSynced(ctx context.Context) (time.Time, error) {
	return s.settings.GetTime(ctx, keyLastSynced)
}
