// Package runner executes units of work. The orchestrator hands each
// backlog task to a Runner and inspects the result; the reference
// implementation delegates over HTTP to an execution service.
package runner

import (
	"context"

	"github.com/overseerd/overseer/pkg/models"
)

// UnitRequest describes one task execution
type UnitRequest struct {
	ProjectID     string       `json:"project_id"`
	SessionID     string       `json:"session_id"`
	SessionNumber int          `json:"session_number"`
	Task          *models.Task `json:"task"`

	// Resume carries checkpoint context when the session picked up
	// partially finished work
	Resume map[string]interface{} `json:"resume,omitempty"`
}

// UnitResult is what a runner reports back for one unit
type UnitResult struct {
	// Checks maps verification check names to pass/fail
	Checks map[string]bool `json:"checks"`

	// Summary is a short human-readable account of what was done
	Summary string `json:"summary"`

	// Context is opaque state worth carrying into the next checkpoint
	Context map[string]interface{} `json:"context,omitempty"`
}

// Passed reports whether every check passed. A result with no checks
// counts as passing.
func (r *UnitResult) Passed() bool {
	for _, ok := range r.Checks {
		if !ok {
			return false
		}
	}
	return true
}

// FailedChecks returns the names of failing checks
func (r *UnitResult) FailedChecks() []string {
	var failed []string
	for name, ok := range r.Checks {
		if !ok {
			failed = append(failed, name)
		}
	}
	return failed
}

// Runner executes a single unit of work
type Runner interface {
	RunUnit(ctx context.Context, req *UnitRequest) (*UnitResult, error)
}
