package models

import "time"

// SessionState represents the lifecycle state of a dispatched agent session.
type SessionState string

const (
	SessionStateCreated    SessionState = "created"
	SessionStateDispatched SessionState = "dispatched"
	SessionStateRunning    SessionState = "running"
	SessionStateIdle       SessionState = "idle"
	SessionStateCompleted  SessionState = "completed"
	SessionStateFailed     SessionState = "failed"
)

// IsTerminal reports whether the state permits no further transitions.
func (s SessionState) IsTerminal() bool {
	return s == SessionStateCompleted || s == SessionStateFailed
}

// Session is the tracked record for one dispatch to the remote agent.
// The registry owns the canonical copy; other components treat retrieved
// records as read-only snapshots.
type Session struct {
	ID          string       `json:"id"`
	IssueNumber int          `json:"issue_number"`
	Context     AgentContext `json:"context"`
	State       SessionState `json:"state"`
	Error       string       `json:"error,omitempty"`
	PRNumber    int          `json:"pr_number,omitempty"`
	Branch      string       `json:"branch,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// Clone returns a copy safe to hand across an asynchronous boundary.
func (s *Session) Clone() *Session {
	c := *s
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	c.Context.Issue.Labels = append([]string(nil), s.Context.Issue.Labels...)
	return &c
}
