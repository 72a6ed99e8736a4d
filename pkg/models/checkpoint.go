package models

import (
	"fmt"
	"time"
)

// Checkpoint is a durable snapshot of backlog progress for one session.
// Checkpoints are never mutated, only superseded; the most recently
// created one is authoritative for resume.
type Checkpoint struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	ProjectID string `json:"project_id"`

	// CurrentOrdinal is the ordinal of the task being worked when the
	// snapshot was taken, nil when between tasks.
	CurrentOrdinal *int `json:"current_ordinal,omitempty"`

	// LastCompletedOrdinal is the ordinal of the most recently completed
	// task, nil when nothing has completed yet.
	LastCompletedOrdinal *int `json:"last_completed_ordinal,omitempty"`

	// Context carries opaque resume data (model selection, service
	// conversation handles, etc.)
	Context map[string]interface{} `json:"context,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Validate enforces checkpoint consistency: when both ordinals are set,
// the completed task must order strictly before the in-progress one.
func (c *Checkpoint) Validate() error {
	if c.SessionID == "" {
		return fmt.Errorf("checkpoint missing session id")
	}
	if c.ProjectID == "" {
		return fmt.Errorf("checkpoint missing project id")
	}
	if c.CurrentOrdinal != nil && c.LastCompletedOrdinal != nil {
		if *c.LastCompletedOrdinal >= *c.CurrentOrdinal {
			return fmt.Errorf("last completed ordinal %d must be less than current ordinal %d",
				*c.LastCompletedOrdinal, *c.CurrentOrdinal)
		}
	}
	return nil
}

// ResumeOrdinal returns the ordinal work should resume at: the task after
// the last completed one, or the in-progress task when nothing completed.
// ok is false when the checkpoint carries no position at all.
func (c *Checkpoint) ResumeOrdinal() (ordinal int, ok bool) {
	if c.LastCompletedOrdinal != nil {
		return *c.LastCompletedOrdinal + 1, true
	}
	if c.CurrentOrdinal != nil {
		return *c.CurrentOrdinal, true
	}
	return 0, false
}
