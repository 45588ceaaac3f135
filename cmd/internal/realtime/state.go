package realtime

import "fleetdash/cmd/internal/auth/session"

// State is the connection state.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosed     State = "closed"
	StateError      State = "error"
)

// Status is what subscribers and callers observe.
type Status struct {
	State   State
	Attempt int
	ConnID  string
}

// SessionSource is the read-only view of the session the client needs.
// *session.Store satisfies it.
type SessionSource interface {
	Snapshot() session.State
	Subscribe(fn func(session.State)) (unsubscribe func())
}

// Invalidator receives cache keys made stale by push events.
type Invalidator interface {
	Invalidate(keys ...string)
}

// eligible is the session half of the entry condition.
func eligible(st session.State) bool {
	return st.IsAuthenticated && st.AccessToken != ""
}
