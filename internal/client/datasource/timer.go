package datasource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openmined/trackd/internal/models"
)

var (
	ErrNoUser         = errors.New("no user in the local store, sync first")
	ErrNoRunningEntry = errors.New("no time entry is running")
	ErrEntryPushed    = errors.New("the running time entry was already pushed, stop it instead")
)

// TimeEntryStore is the local side of time entries the timer writes to
type TimeEntryStore interface {
	Repository[models.TimeEntry]
	GetByID(ctx context.Context, id int64) (models.TimeEntry, error)
	NextLocalID(ctx context.Context) (int64, error)
	Upsert(ctx context.Context, entry models.TimeEntry) error
	Delete(ctx context.Context, id int64) error
}

// Timer tracks time locally. Every change is stored as a record waiting to be
// pushed; the server learns about it with the next push.
type Timer struct {
	users   Repository[models.User]
	entries TimeEntryStore
	now     func() time.Time
}

func NewTimer(users Repository[models.User], entries TimeEntryStore) *Timer {
	return &Timer{
		users:   users,
		entries: entries,
		now:     time.Now,
	}
}

// Start stops the running entry, if any, and starts a new one in the user's
// default workspace.
func (t *Timer) Start(ctx context.Context, description string) (models.TimeEntry, error) {
	users, err := t.users.GetAll(ctx, nil)
	if err != nil {
		return models.TimeEntry{}, err
	}
	if len(users) == 0 {
		return models.TimeEntry{}, ErrNoUser
	}
	user := users[0]

	if _, err := t.Stop(ctx); err != nil && !errors.Is(err, ErrNoRunningEntry) {
		return models.TimeEntry{}, err
	}

	id, err := t.entries.NextLocalID(ctx)
	if err != nil {
		return models.TimeEntry{}, err
	}

	now := t.now().UTC().Truncate(time.Second)
	entry := models.TimeEntry{
		ID:          id,
		WorkspaceID: user.DefaultWorkspaceID,
		UserID:      user.ID,
		Start:       now,
		Description: strings.TrimSpace(description),
		At:          now,
		SyncMeta:    models.Dirty(),
	}
	if err := t.entries.Upsert(ctx, entry); err != nil {
		return models.TimeEntry{}, err
	}

	slog.Info("time entry started", "id", id, "workspace", entry.WorkspaceID)
	return t.entries.GetByID(ctx, id)
}

// Stop ends the most recently started running entry
func (t *Timer) Stop(ctx context.Context) (models.TimeEntry, error) {
	entry, err := t.Running(ctx)
	if err != nil {
		return models.TimeEntry{}, err
	}

	now := t.now().UTC().Truncate(time.Second)
	duration := int64(now.Sub(entry.Start) / time.Second)
	if duration < 0 {
		duration = 0
	}
	entry.Duration = &duration
	entry.At = now
	entry.SyncMeta = models.Dirty()
	if err := t.entries.Upsert(ctx, entry); err != nil {
		return models.TimeEntry{}, err
	}

	slog.Info("time entry stopped", "id", entry.ID, "seconds", duration)
	return t.entries.GetByID(ctx, entry.ID)
}

// Discard drops the running entry. Only entries the server has not seen yet can
// be discarded.
func (t *Timer) Discard(ctx context.Context) (models.TimeEntry, error) {
	entry, err := t.Running(ctx)
	if err != nil {
		return models.TimeEntry{}, err
	}
	if entry.ID >= 0 {
		return models.TimeEntry{}, ErrEntryPushed
	}
	if err := t.entries.Delete(ctx, entry.ID); err != nil {
		return models.TimeEntry{}, err
	}
	return entry, nil
}

// Running returns the most recently started running entry
func (t *Timer) Running(ctx context.Context) (models.TimeEntry, error) {
	running, err := t.entries.GetAll(ctx, func(e models.TimeEntry) bool {
		return e.IsRunning() && e.DeletedAt == nil
	})
	if err != nil {
		return models.TimeEntry{}, fmt.Errorf("running time entries: %w", err)
	}
	if len(running) == 0 {
		return models.TimeEntry{}, ErrNoRunningEntry
	}

	latest := running[0]
	for _, e := range running[1:] {
		if e.Start.After(latest.Start) {
			latest = e
		}
	}
	return latest, nil
}
