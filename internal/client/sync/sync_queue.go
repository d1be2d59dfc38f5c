package sync

import (
	mapset "github.com/deckarep/golang-set/v2"
)

// SyncStateQueue holds pending sync intents and decides which state runs next.
// Implementations are not safe for concurrent use; the Manager serializes access.
type SyncStateQueue interface {
	QueuePushSync()
	QueuePullSync()
	Dequeue() SyncState
	Clear()
}

// StateQueue keeps at most one pending intent of each kind.
//
// A queued pull always wins: a pull run continues into a push phase, so
// dequeuing a pull also consumes any queued push. A push queued while a pull
// run is already in flight stays queued and runs after it.
type StateQueue struct {
	intents mapset.Set[SyncIntent]
}

func NewStateQueue() *StateQueue {
	return &StateQueue{
		intents: mapset.NewThreadUnsafeSet[SyncIntent](),
	}
}

func (q *StateQueue) QueuePushSync() {
	q.intents.Add(IntentPushRequested)
}

func (q *StateQueue) QueuePullSync() {
	q.intents.Add(IntentPullRequested)
}

// Dequeue returns the state the next run should start from and removes the
// intents it covers. It returns SyncStateSleep when nothing is queued.
func (q *StateQueue) Dequeue() SyncState {
	if q.intents.Contains(IntentPullRequested) {
		q.intents.Clear()
		return SyncStatePull
	}

	if q.intents.Contains(IntentPushRequested) {
		q.intents.Remove(IntentPushRequested)
		return SyncStatePush
	}

	return SyncStateSleep
}

func (q *StateQueue) Clear() {
	q.intents.Clear()
}

// pending returns the queued intents
func (q *StateQueue) pending() []SyncIntent {
	return q.intents.ToSlice()
}

func (q *StateQueue) isEmpty() bool {
	return q.intents.Cardinality() == 0
}

var _ SyncStateQueue = (*StateQueue)(nil)
