// Package models holds the records synced between the local store and the
// remote service.
package models

import "time"

// SyncStatus tracks whether a local record matches the server copy
type SyncStatus string

const (
	SyncStatusInSync     SyncStatus = "in_sync"
	SyncStatusSyncNeeded SyncStatus = "sync_needed"
	SyncStatusSyncFailed SyncStatus = "sync_failed"
)

// Kind names a type of synced record
type Kind string

const (
	KindTimeEntry Kind = "time_entries"
	KindProject   Kind = "projects"
	KindTask      Kind = "tasks"
	KindClient    Kind = "clients"
	KindTag       Kind = "tags"
	KindWorkspace Kind = "workspaces"
	KindUser      Kind = "user"
)

// AllKinds lists every kind in the order a pull applies them
var AllKinds = []Kind{
	KindUser,
	KindWorkspace,
	KindClient,
	KindProject,
	KindTask,
	KindTag,
	KindTimeEntry,
}

// SyncMeta is the local sync bookkeeping of a record. It never goes over the wire.
type SyncMeta struct {
	SyncStatus           SyncStatus `json:"-"`
	LastSyncErrorMessage string     `json:"-"`

	// Revision is set by the local store and grows with every write of the record.
	Revision int64 `json:"-"`
}

func (m SyncMeta) IsSynced() bool {
	return m.SyncStatus == SyncStatusInSync
}

// InSync is the meta of a record that matches the server.
func InSync() SyncMeta {
	return SyncMeta{SyncStatus: SyncStatusInSync}
}

// Dirty is the meta of a record with local changes waiting to be pushed.
func Dirty() SyncMeta {
	return SyncMeta{SyncStatus: SyncStatusSyncNeeded}
}

// Unsyncable is the meta of a record the server refused.
func Unsyncable(reason string) SyncMeta {
	return SyncMeta{SyncStatus: SyncStatusSyncFailed, LastSyncErrorMessage: reason}
}

// Entity is implemented by every synced record. T is the record type itself.
//
// Records created locally carry a negative ID until the server assigns one.
type Entity[T any] interface {
	Kind() Kind
	EntityID() int64
	Sync() SyncMeta
	WithSync(meta SyncMeta) T
	WithID(id int64) T
}

type Workspace struct {
	ID    int64     `json:"id"`
	Name  string    `json:"name"`
	Admin bool      `json:"admin"`
	At    time.Time `json:"at"`
	SyncMeta
}

type User struct {
	ID                 int64     `json:"id"`
	APIToken           string    `json:"api_token"`
	Email              string    `json:"email"`
	Fullname           string    `json:"fullname"`
	DefaultWorkspaceID int64     `json:"default_workspace_id"`
	At                 time.Time `json:"at"`
	SyncMeta
}

type Client struct {
	ID          int64     `json:"id"`
	WorkspaceID int64     `json:"workspace_id"`
	Name        string    `json:"name"`
	At          time.Time `json:"at"`
	SyncMeta
}

type Project struct {
	ID          int64     `json:"id"`
	WorkspaceID int64     `json:"workspace_id"`
	ClientID    *int64    `json:"client_id,omitempty"`
	Name        string    `json:"name"`
	Color       string    `json:"color"`
	Active      bool      `json:"active"`
	Billable    *bool     `json:"billable,omitempty"`
	At          time.Time `json:"at"`
	SyncMeta
}

type Task struct {
	ID               int64     `json:"id"`
	WorkspaceID      int64     `json:"workspace_id"`
	ProjectID        int64     `json:"project_id"`
	UserID           *int64    `json:"user_id,omitempty"`
	Name             string    `json:"name"`
	Active           bool      `json:"active"`
	EstimatedSeconds int64     `json:"estimated_seconds"`
	TrackedSeconds   int64     `json:"tracked_seconds"`
	At               time.Time `json:"at"`
	SyncMeta
}

type Tag struct {
	ID          int64     `json:"id"`
	WorkspaceID int64     `json:"workspace_id"`
	Name        string    `json:"name"`
	At          time.Time `json:"at"`
	SyncMeta
}

// TimeEntry is a tracked span of time. A nil Duration marks a running entry.
type TimeEntry struct {
	ID          int64      `json:"id"`
	WorkspaceID int64      `json:"workspace_id"`
	ProjectID   *int64     `json:"project_id,omitempty"`
	TaskID      *int64     `json:"task_id,omitempty"`
	UserID      int64      `json:"user_id"`
	Billable    bool       `json:"billable"`
	Start       time.Time  `json:"start"`
	Duration    *int64     `json:"duration,omitempty"`
	Description string     `json:"description"`
	TagIDs      []int64    `json:"tag_ids,omitempty"`
	At          time.Time  `json:"at"`
	DeletedAt   *time.Time `json:"server_deleted_at,omitempty"`
	SyncMeta
}

// IsRunning reports whether the entry is still being tracked
func (t TimeEntry) IsRunning() bool {
	return t.Duration == nil
}
