package models

// SessionStatus is the in-store state of an agent run
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionIdle      SessionStatus = "idle"
	SessionCompleted SessionStatus = "completed"
	SessionError     SessionStatus = "error"
)

// SessionInfo is one entry of StatusDocument.ActiveSessions
type SessionInfo struct {
	SessionID              string        `json:"sessionId"`
	Role                   string        `json:"role"`
	Tool                   string        `json:"tool"`
	StartedAt              string        `json:"startedAt"`
	Status                 SessionStatus `json:"status"`
	PID                    int           `json:"pid,omitempty"`                    // Spawned agent process, used for liveness
	LastUpdate             string        `json:"lastUpdate,omitempty"`             // Stamped by every update
	CurrentTask            string        `json:"currentTask,omitempty"`            // Task id being worked on
	CurrentTaskDescription string        `json:"currentTaskDescription,omitempty"` // Free text
}

// SessionDetails is a partial update applied by UpdateSessionDetails.
// Nil fields are left untouched.
type SessionDetails struct {
	Status                 *SessionStatus
	PID                    *int
	CurrentTask            *string
	CurrentTaskDescription *string
}

// Apply merges the non-nil fields into info
func (d SessionDetails) Apply(info *SessionInfo) {
	if d.Status != nil {
		info.Status = *d.Status
	}
	if d.PID != nil {
		info.PID = *d.PID
	}
	if d.CurrentTask != nil {
		info.CurrentTask = *d.CurrentTask
	}
	if d.CurrentTaskDescription != nil {
		info.CurrentTaskDescription = *d.CurrentTaskDescription
	}
}

// SessionFile is the durable session.json record kept in the session directory.
// It survives after the session leaves the status document.
type SessionFile struct {
	SessionID string        `json:"session_id"`
	Role      string        `json:"role"`
	Tool      string        `json:"tool"`
	Template  string        `json:"template,omitempty"`
	StartedAt string        `json:"started_at"`
	EndedAt   string        `json:"ended_at,omitempty"`
	Status    SessionStatus `json:"status"`
	Error     string        `json:"error,omitempty"`
	Output    string        `json:"output,omitempty"`
}
