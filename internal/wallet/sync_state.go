package wallet

import (
	"errors"
	"fmt"
)

// ErrNotStarted is the error carried by the initial sync state, before the
// first sync has been triggered.
var ErrNotStarted = errors.New("sync not started")

type SyncStatus string

const (
	SyncStatusNotSynced SyncStatus = "not_synced"
	SyncStatusSyncing   SyncStatus = "syncing"
	SyncStatusSynced    SyncStatus = "synced"
)

// SyncState is the tri-state machine of a synchronizer:
// notSynced(err) -> syncing -> synced. There is no queued or retry state;
// the next external trigger decides whether syncing re-enters.
type SyncState struct {
	Status SyncStatus
	Err    error
}

func NotSyncedState(err error) SyncState {
	return SyncState{Status: SyncStatusNotSynced, Err: err}
}

func SyncingState() SyncState {
	return SyncState{Status: SyncStatusSyncing}
}

func SyncedState() SyncState {
	return SyncState{Status: SyncStatusSynced}
}

func (s SyncState) Syncing() bool {
	return s.Status == SyncStatusSyncing
}

func (s SyncState) Synced() bool {
	return s.Status == SyncStatusSynced
}

// Equal compares states by status and error message, so distinct-value
// publishers do not re-notify on an identical state.
func (s SyncState) Equal(other SyncState) bool {
	if s.Status != other.Status {
		return false
	}
	if (s.Err == nil) != (other.Err == nil) {
		return false
	}
	return s.Err == nil || s.Err.Error() == other.Err.Error()
}

func (s SyncState) String() string {
	if s.Status == SyncStatusNotSynced && s.Err != nil {
		return fmt.Sprintf("%s (%s)", s.Status, s.Err)
	}
	return string(s.Status)
}
