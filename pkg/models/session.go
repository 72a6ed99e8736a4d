package models

import (
	"time"
)

// SessionStatus represents the status of a session
type SessionStatus string

const (
	SessionStatusCreated      SessionStatus = "created"
	SessionStatusRunning      SessionStatus = "running"
	SessionStatusPaused       SessionStatus = "paused"       // waiting on human intervention
	SessionStatusCheckpointed SessionStatus = "checkpointed" // stopped cleanly with backlog remaining
	SessionStatusCompleted    SessionStatus = "completed"    // backlog exhausted
	SessionStatusFailed       SessionStatus = "failed"
	SessionStatusInterrupted  SessionStatus = "interrupted" // abandoned by a dead process
)

// SessionType distinguishes the project-setup session from regular ones
type SessionType string

const (
	SessionTypeInitializer SessionType = "initializer"
	SessionTypeCoding      SessionType = "coding"
)

// SessionTypeFor returns the type for a given session number.
// The first session of a project initializes it; every later one codes.
func SessionTypeFor(number int) SessionType {
	if number <= 1 {
		return SessionTypeInitializer
	}
	return SessionTypeCoding
}

// Session is one execution-service invocation against a project backlog.
// Number is monotonically increasing per project, assigned at creation
// and never reused.
type Session struct {
	ID             string            `json:"id"`
	ProjectID      string            `json:"project_id"`
	Number         int               `json:"session_number"`
	Type           SessionType       `json:"session_type"`
	Status         SessionStatus     `json:"status"`
	StartedAt      time.Time         `json:"started_at"`
	EndedAt        *time.Time        `json:"ended_at,omitempty"`
	UnitsCompleted int               `json:"units_completed"`
	Error          string            `json:"error,omitempty"`
	Transitions    []StateTransition `json:"transitions,omitempty"`
}

// StateTransition records one session status change with its reason
type StateTransition struct {
	From      SessionStatus `json:"from"`
	To        SessionStatus `json:"to"`
	Timestamp time.Time     `json:"timestamp"`
	Reason    string        `json:"reason,omitempty"`
}

// QualityCheck is a review result written by the review subsystem and
// read back when deciding whether another deep review is due.
type QualityCheck struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"session_id"`
	ProjectID     string    `json:"project_id"`
	SessionNumber int       `json:"session_number"`
	CheckType     string    `json:"check_type"` // "quick" or "deep"
	Rating        int       `json:"rating"`     // 1-10
	CreatedAt     time.Time `json:"created_at"`
}
