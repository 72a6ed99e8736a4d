package models

import (
	"fmt"
)

// validTransitions maps from-status to allowed to-statuses
var validTransitions = map[SessionStatus]map[SessionStatus]bool{
	SessionStatusCreated: {
		SessionStatusRunning:     true, // Created → Running (orchestrator starts the loop)
		SessionStatusFailed:      true, // Created → Failed (startup preflight failed)
		SessionStatusInterrupted: true, // Created → Interrupted (process died before starting)
	},
	SessionStatusRunning: {
		SessionStatusPaused:       true, // Running → Paused (escalated to human intervention)
		SessionStatusCheckpointed: true, // Running → Checkpointed (budget reached or canceled)
		SessionStatusCompleted:    true, // Running → Completed (backlog exhausted)
		SessionStatusFailed:       true, // Running → Failed (non-recoverable, no pause raised)
		SessionStatusInterrupted:  true, // Running → Interrupted (process died mid-loop)
	},
	// Terminal statuses. A paused session resumes as a new session in a
	// later invocation, never in-process.
	SessionStatusPaused:       {},
	SessionStatusCheckpointed: {},
	SessionStatusCompleted:    {},
	SessionStatusFailed:       {},
	SessionStatusInterrupted:  {},
}

// ValidateTransition checks if a session status transition is valid
func ValidateTransition(from, to SessionStatus) error {
	allowed, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("unknown source status: %s", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	return nil
}

// IsTerminalStatus returns true if no further transitions are allowed
func IsTerminalStatus(status SessionStatus) bool {
	allowed, exists := validTransitions[status]
	return exists && len(allowed) == 0
}

// IsActiveStatus returns true if the session belongs to a live invocation
func IsActiveStatus(status SessionStatus) bool {
	return status == SessionStatusCreated || status == SessionStatusRunning
}
