package sync

import "fmt"

// SyncState identifies a node in the sync state machine
type SyncState string

const (
	// SyncStateSleep is the idle state. Every run ends here.
	SyncStateSleep SyncState = "sleep"
	// SyncStatePull fetches the remote state and merges it into the local store.
	SyncStatePull SyncState = "pull"
	// SyncStatePush uploads locally modified records.
	SyncStatePush SyncState = "push"
)

func (s SyncState) IsActive() bool {
	return s != SyncStateSleep
}

// SyncIntent is a queued request for a kind of sync
type SyncIntent string

const (
	IntentPushRequested SyncIntent = "push_requested"
	IntentPullRequested SyncIntent = "pull_requested"
)

// SyncProgress is the observer facing projection of the engine state
type SyncProgress string

const (
	SyncProgressUnknown             SyncProgress = "unknown"
	SyncProgressSyncing             SyncProgress = "syncing"
	SyncProgressSynced              SyncProgress = "synced"
	SyncProgressFailed              SyncProgress = "failed"
	SyncProgressOfflineModeDetected SyncProgress = "offline"
)

// SyncResult is the outcome of a single orchestrator run. It is either
// Success or Failure.
type SyncResult interface {
	isSyncResult()
	fmt.Stringer
}

// Success reports a run that reached sleep without errors.
type Success struct{}

func (Success) isSyncResult()  {}
func (Success) String() string { return "success" }

// Failure reports a run aborted by Err.
type Failure struct {
	Err error
}

func (Failure) isSyncResult() {}
func (f Failure) String() string {
	return fmt.Sprintf("failure: %v", f.Err)
}
