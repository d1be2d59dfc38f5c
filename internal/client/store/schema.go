package store

import (
	"fmt"
	"strings"

	"github.com/openmined/trackd/internal/models"
)

const recordTable = `
CREATE TABLE IF NOT EXISTS %[1]s (
    id INTEGER PRIMARY KEY,
    sync_status TEXT NOT NULL,
    sync_error TEXT NOT NULL DEFAULT '',
    payload BLOB NOT NULL,
    updated_at INTEGER NOT NULL, -- unix millis
    revision INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_%[1]s_sync_status ON %[1]s(sync_status);
`

const settingsTable = `
CREATE TABLE IF NOT EXISTS %s (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

const (
	// sessionSettingsTable is wiped together with the records on logout
	sessionSettingsTable = "settings"
	// deviceSettingsTable outlives sessions
	deviceSettingsTable = "device_settings"
)

// schema creates one record table per kind plus the settings tables
func schema() string {
	var b strings.Builder
	for _, kind := range models.AllKinds {
		fmt.Fprintf(&b, recordTable, tableName(kind))
	}
	fmt.Fprintf(&b, settingsTable, sessionSettingsTable)
	fmt.Fprintf(&b, settingsTable, deviceSettingsTable)
	return b.String()
}

func tableName(kind models.Kind) string {
	return "records_" + string(kind)
}
