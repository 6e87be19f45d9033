package session

import "time"

// State is a position in the conversation state machine.
type State string

const (
	StateIdle            State = "idle"
	StateWakeDetected    State = "wake_detected"
	StateAwaitingCommand State = "awaiting_command"
	StateResponding      State = "responding"
)

// EndReason records why a session returned to Idle.
type EndReason string

const (
	EndStop      EndReason = "stop"
	EndEmpty     EndReason = "empty"
	EndMaxTurns  EndReason = "max_turns"
	EndCancelled EndReason = "cancelled"
	EndError     EndReason = "error"
)

// Session is one wake-initiated conversation. It exists from wake
// detection until the machine returns to Idle.
type Session struct {
	ID        string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	TurnCount int       `json:"turn_count"`
	Active    bool      `json:"active"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
	EndReason EndReason `json:"end_reason,omitempty"`
}

// Status is a point-in-time view of the machine for diagnostics.
type Status struct {
	State       State    `json:"state"`
	Current     *Session `json:"current,omitempty"`
	LastSession *Session `json:"last_session,omitempty"`
	Sessions    int      `json:"sessions"`
}
