// Package gate coordinates human intervention pauses. A session that
// hits a condition it cannot resolve on its own records a pause and
// waits here until an operator clears it.
package gate

import (
	"context"
	"time"

	"github.com/overseerd/overseer/pkg/logging"
	"github.com/overseerd/overseer/pkg/models"
	"github.com/overseerd/overseer/pkg/store"
)

// DefaultPollInterval is how often Wait re-checks for resolution
const DefaultPollInterval = 1 * time.Second

// Gate manages pause records for sessions awaiting intervention
type Gate struct {
	store        store.Store
	log          *logging.Logger
	PollInterval time.Duration
}

// New creates a gate backed by the given store
func New(st store.Store, log *logging.Logger) *Gate {
	return &Gate{
		store:        st,
		log:          log,
		PollInterval: DefaultPollInterval,
	}
}

// RequestPause records an intervention request for a session. The store
// enforces at most one unresolved pause per session.
func (g *Gate) RequestPause(sessionID, projectID, reason string, context map[string]interface{}) (*models.PauseRecord, error) {
	p := &models.PauseRecord{
		SessionID: sessionID,
		ProjectID: projectID,
		Reason:    reason,
		Context:   context,
	}
	if err := g.store.CreatePause(p); err != nil {
		return nil, err
	}
	g.log.Warn("session paused for intervention", map[string]interface{}{
		"session_id": sessionID,
		"project_id": projectID,
		"reason":     reason,
	})
	return p, nil
}

// Resolve clears the unresolved pause for a session. Resolving a
// session with no pending pause is not an error; the record is nil.
func (g *Gate) Resolve(sessionID string) (*models.PauseRecord, error) {
	p, err := g.store.ResolvePause(sessionID)
	if err != nil {
		return nil, err
	}
	if p != nil {
		g.log.Info("pause resolved", map[string]interface{}{
			"session_id": sessionID,
			"reason":     p.Reason,
		})
	}
	return p, nil
}

// ActivePauses lists unresolved pauses, optionally filtered by project
func (g *Gate) ActivePauses(projectID string) ([]*models.PauseRecord, error) {
	return g.store.ActivePauses(projectID)
}

// Wait blocks until the session's unresolved pause is cleared. It
// returns (true, nil) once resolved, (true, nil) immediately if no
// pause is pending, and (false, nil) when ctx is cancelled first.
func (g *Gate) Wait(ctx context.Context, sessionID string) (bool, error) {
	interval := g.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	pending, err := g.store.UnresolvedPause(sessionID)
	if err != nil {
		return false, err
	}
	if pending == nil {
		return true, nil
	}

	g.log.Info("waiting for pause resolution", map[string]interface{}{
		"session_id": sessionID,
		"reason":     pending.Reason,
	})

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false, nil
		case <-ticker.C:
			pending, err := g.store.UnresolvedPause(sessionID)
			if err != nil {
				return false, err
			}
			if pending == nil {
				return true, nil
			}
		}
	}
}
