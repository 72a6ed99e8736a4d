package models

import (
	"time"
)

// PauseRecord is a durable human-intervention request against a session.
// At most one unresolved record may exist per session at any time.
type PauseRecord struct {
	ID         string                 `json:"id"`
	SessionID  string                 `json:"session_id"`
	ProjectID  string                 `json:"project_id"`
	Reason     string                 `json:"reason"`
	Context    map[string]interface{} `json:"context,omitempty"`
	Resolved   bool                   `json:"resolved"`
	CreatedAt  time.Time              `json:"created_at"`
	ResolvedAt *time.Time             `json:"resolved_at,omitempty"`
}
