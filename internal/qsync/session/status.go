package session

import "time"

// PendingMessage is the only error text the UI ever sees from syncing.
const PendingMessage = "Sync pending - changes saved locally"

// Phase is where the session's sync state machine currently is.
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseDebouncing     Phase = "debouncing"
	PhaseSyncing        Phase = "syncing"
	PhaseRetrying       Phase = "retrying"
	PhaseOfflinePending Phase = "offline_pending"
)

// Status is derived by the manager; callers can only read it.
type Status struct {
	IsLoading    bool
	IsOnline     bool
	IsSyncing    bool
	LastSyncedAt time.Time
	Error        string
	Phase        Phase
}
