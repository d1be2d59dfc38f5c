package models

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncMeta(t *testing.T) {
	assert.True(t, InSync().IsSynced())
	assert.False(t, Dirty().IsSynced())

	failed := Unsyncable("name taken")
	assert.False(t, failed.IsSynced())
	assert.Equal(t, SyncStatusSyncFailed, failed.SyncStatus)
	assert.Equal(t, "name taken", failed.LastSyncErrorMessage)
}

func TestEntity_WithIDKeepsFields(t *testing.T) {
	tag := Tag{ID: -3, WorkspaceID: 1, Name: "go", SyncMeta: Dirty()}

	synced := tag.WithID(42).WithSync(InSync())
	assert.Equal(t, int64(42), synced.EntityID())
	assert.Equal(t, "go", synced.Name)
	assert.True(t, synced.Sync().IsSynced())

	// the receiver is a copy
	assert.Equal(t, int64(-3), tag.ID)
	assert.False(t, tag.IsSynced())
}

func TestSyncMeta_NotSerialized(t *testing.T) {
	data, err := json.Marshal(Project{ID: 1, Name: "trackd", SyncMeta: Unsyncable("boom")})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "boom")
	assert.NotContains(t, string(data), "sync_failed")
}

func TestTimeEntry_IsRunning(t *testing.T) {
	d := int64(60)
	assert.True(t, TimeEntry{}.IsRunning())
	assert.False(t, TimeEntry{Duration: &d}.IsRunning())
}

func TestAllKinds(t *testing.T) {
	kinds := map[Kind]bool{}
	for _, k := range AllKinds {
		kinds[k] = true
	}
	assert.Len(t, kinds, 7)
	assert.Equal(t, KindUser, AllKinds[0])
}
