// Package orchestrator drives work sessions against a project backlog.
// Each session claims the next incomplete tasks in order, executes them
// through a runner with retry, checkpoints progress after every unit,
// and ends in exactly one of the terminal session states.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/overseerd/overseer/pkg/faults"
	"github.com/overseerd/overseer/pkg/gate"
	"github.com/overseerd/overseer/pkg/logging"
	"github.com/overseerd/overseer/pkg/models"
	"github.com/overseerd/overseer/pkg/preflight"
	"github.com/overseerd/overseer/pkg/retry"
	"github.com/overseerd/overseer/pkg/review"
	"github.com/overseerd/overseer/pkg/runner"
	"github.com/overseerd/overseer/pkg/store"
)

// Config tunes a session run
type Config struct {
	// MaxUnits caps how many units one session completes before it
	// checkpoints and yields; 0 means unlimited
	MaxUnits int

	// StopOnPhaseChange checkpoints at phase boundaries instead of
	// crossing into the next phase mid-session
	StopOnPhaseChange bool

	// Retry governs per-unit execution retries
	Retry retry.Policy

	// Preflight holds resource thresholds checked before each session;
	// nil skips the check
	Preflight *preflight.Config
}

// DefaultConfig returns the standard session configuration
func DefaultConfig() Config {
	return Config{
		MaxUnits:          0,
		StopOnPhaseChange: false,
		Retry:             retry.DefaultPolicy(),
	}
}

// Orchestrator runs sessions for projects
type Orchestrator struct {
	store     store.Store
	runner    runner.Runner
	gate      *gate.Gate
	reviews   *review.Scheduler
	log       *logging.Logger
	cfg       Config
	connector *retry.Connector
}

// New creates an orchestrator
func New(st store.Store, run runner.Runner, g *gate.Gate, reviews *review.Scheduler, log *logging.Logger, cfg Config) *Orchestrator {
	return &Orchestrator{
		store:     st,
		runner:    run,
		gate:      g,
		reviews:   reviews,
		log:       log,
		cfg:       cfg,
		connector: retry.New(cfg.Retry),
	}
}

// RunSession executes one session against the project's backlog and
// returns the session in its terminal state. A prior session's
// unresolved pause blocks the start until an operator clears it.
func (o *Orchestrator) RunSession(ctx context.Context, projectID string) (*models.Session, error) {
	project, err := o.store.GetProject(projectID)
	if err != nil {
		return nil, err
	}
	if project.Status != models.ProjectStatusActive {
		return nil, faults.New(faults.CategoryValidation, "project_not_active",
			fmt.Sprintf("project %s is %s, sessions require an active project", projectID, project.Status), false)
	}

	ok, err := o.waitForPauses(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !ok || ctx.Err() != nil {
		// Shutdown before a session exists is a normal exit, not a failure
		o.log.WithField("project_id", projectID).Info("shutdown requested before session start")
		return nil, nil
	}

	if o.cfg.Preflight != nil {
		if err := preflight.Check(*o.cfg.Preflight); err != nil {
			return nil, err
		}
	}

	sess := &models.Session{ProjectID: projectID}
	if err := o.store.CreateSession(sess); err != nil {
		return nil, err
	}
	log := o.log.WithField("session_id", sess.ID).WithField("project_id", projectID)
	log.Info("session created", map[string]interface{}{
		"session_number": sess.Number,
		"session_type":   string(sess.Type),
	})

	if err := o.store.UpdateSessionStatus(sess.ID, models.SessionStatusCreated,
		models.SessionStatusRunning, "session started"); err != nil {
		return nil, err
	}
	sess.Status = models.SessionStatusRunning

	final, runErr := o.runLoop(ctx, sess, log)
	if runErr != nil && final != models.SessionStatusFailed {
		return sess, runErr
	}

	// Initializer sessions and interventions skip the quality pass
	if o.reviews != nil && (final == models.SessionStatusCompleted ||
		final == models.SessionStatusCheckpointed ||
		final == models.SessionStatusFailed) {
		backlogDone := final == models.SessionStatusCompleted
		if err := o.reviews.Run(ctx, sess, backlogDone); err != nil {
			log.Error("quality review failed", map[string]interface{}{"error": err.Error()})
		}
	}

	if runErr != nil {
		return sess, runErr
	}
	return o.store.GetSession(sess.ID)
}

// runLoop is the unit execution loop. It returns the terminal status it
// left the session in.
func (o *Orchestrator) runLoop(ctx context.Context, sess *models.Session, log *logging.Logger) (models.SessionStatus, error) {
	startOrdinal := 0
	var resumeContext map[string]interface{}
	var lastCompleted *int

	// unitContext holds the latest runner resume context. Every
	// checkpoint this loop writes carries it.
	var unitContext map[string]interface{}

	cp, err := o.store.LatestProjectCheckpoint(sess.ProjectID)
	if err != nil && !errors.Is(err, store.ErrCheckpointNotFound) {
		return "", err
	}
	if cp != nil {
		if ordinal, ok := cp.ResumeOrdinal(); ok {
			startOrdinal = ordinal
		}
		resumeContext = cp.Context
		unitContext = cp.Context
		lastCompleted = cp.LastCompletedOrdinal
		log.Info("resuming from checkpoint", map[string]interface{}{
			"checkpoint_id": cp.ID,
			"start_ordinal": startOrdinal,
		})
	}

	units := 0
	prevPhase := ""

	for {
		if ctx.Err() != nil {
			return o.yield(sess, lastCompleted, nil, unitContext, units, "shutdown requested", log)
		}

		if o.cfg.MaxUnits > 0 && units >= o.cfg.MaxUnits {
			return o.yield(sess, lastCompleted, nil, unitContext, units, "unit budget reached", log)
		}

		task, err := o.store.NextIncompleteTask(sess.ProjectID, startOrdinal)
		if errors.Is(err, store.ErrTaskNotFound) {
			return o.complete(sess, units, log)
		}
		if err != nil {
			return o.fail(sess, units, err, log)
		}

		if o.cfg.StopOnPhaseChange && units > 0 && prevPhase != "" && task.Phase != prevPhase {
			return o.yield(sess, lastCompleted, &task.Ordinal, unitContext, units,
				fmt.Sprintf("phase boundary: %s -> %s", prevPhase, task.Phase), log)
		}
		prevPhase = task.Phase

		req := &runner.UnitRequest{
			ProjectID:     sess.ProjectID,
			SessionID:     sess.ID,
			SessionNumber: sess.Number,
			Task:          task,
			Resume:        resumeContext,
		}
		resumeContext = nil

		var result *runner.UnitResult
		err = o.connector.Attempt(ctx, func() error {
			r, runErr := o.runner.RunUnit(ctx, req)
			if runErr != nil {
				return runErr
			}
			result = r
			return nil
		})

		if err != nil {
			if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
				return o.yield(sess, lastCompleted, &task.Ordinal, unitContext, units, "shutdown requested", log)
			}
			cerr := faults.Classify(err)
			if cerr.Category == faults.CategoryValidation {
				return o.fail(sess, units, cerr, log)
			}
			return o.pause(sess, task, lastCompleted, unitContext, units, cerr, log)
		}

		for name, passed := range result.Checks {
			if err := o.store.SetCheckResult(task.ID, name, passed); err != nil {
				return o.fail(sess, units, err, log)
			}
		}

		if !result.Passed() {
			cerr := faults.New(faults.CategoryToolExecution, "checks_failing",
				fmt.Sprintf("verification checks failing for task %d: %v", task.Ordinal, result.FailedChecks()), false).
				WithContext("task_id", task.ID).
				WithContext("failed_checks", result.FailedChecks())
			return o.pause(sess, task, lastCompleted, unitContext, units, cerr, log)
		}

		if err := o.store.CompleteTask(task.ID); err != nil {
			return o.fail(sess, units, err, log)
		}

		units++
		done := task.Ordinal
		lastCompleted = &done
		startOrdinal = task.Ordinal + 1
		unitContext = result.Context

		// Durable progress before the next unit starts
		var current *int
		if next, err := o.store.NextIncompleteTask(sess.ProjectID, startOrdinal); err == nil {
			current = &next.Ordinal
		} else if !errors.Is(err, store.ErrTaskNotFound) {
			return o.fail(sess, units, err, log)
		}
		if err := o.saveCheckpoint(sess, lastCompleted, current, unitContext); err != nil {
			return o.fail(sess, units, err, log)
		}

		log.Info("unit completed", map[string]interface{}{
			"ordinal":         task.Ordinal,
			"units_completed": units,
		})
	}
}

// waitForPauses blocks while any session of the project has an
// unresolved pause. It reports whether the run may proceed; a
// cancellation during the wait returns (false, nil), never an error.
func (o *Orchestrator) waitForPauses(ctx context.Context, projectID string) (bool, error) {
	for {
		pauses, err := o.gate.ActivePauses(projectID)
		if err != nil {
			return false, err
		}
		if len(pauses) == 0 {
			return true, nil
		}

		resolved, err := o.gate.Wait(ctx, pauses[0].SessionID)
		if err != nil {
			return false, err
		}
		if !resolved {
			return false, nil
		}
	}
}

func (o *Orchestrator) saveCheckpoint(sess *models.Session, lastCompleted, current *int, context map[string]interface{}) error {
	return o.store.SaveCheckpoint(&models.Checkpoint{
		SessionID:            sess.ID,
		ProjectID:            sess.ProjectID,
		CurrentOrdinal:       current,
		LastCompletedOrdinal: lastCompleted,
		Context:              context,
	})
}

// yield saves a checkpoint and leaves the session checkpointed. The
// checkpoint write happens first; a session marked checkpointed always
// has durable resume state behind it.
func (o *Orchestrator) yield(sess *models.Session, lastCompleted, current *int, context map[string]interface{}, units int, reason string, log *logging.Logger) (models.SessionStatus, error) {
	if err := o.saveCheckpoint(sess, lastCompleted, current, context); err != nil {
		return o.fail(sess, units, err, log)
	}
	if err := o.transition(sess, models.SessionStatusCheckpointed, reason, units, ""); err != nil {
		return "", err
	}
	log.Info("session checkpointed", map[string]interface{}{
		"reason":          reason,
		"units_completed": units,
	})
	return models.SessionStatusCheckpointed, nil
}

// pause records an intervention request, checkpoints, and leaves the
// session paused. A later session picks the work up once an operator
// resolves the pause.
func (o *Orchestrator) pause(sess *models.Session, task *models.Task, lastCompleted *int, cpContext map[string]interface{}, units int, cause *faults.ClassifiedError, log *logging.Logger) (models.SessionStatus, error) {
	log.Warn("escalating to intervention", map[string]interface{}{
		"category": string(cause.Category),
		"code":     cause.Code,
		"error":    cause.Message,
	})

	pauseContext := map[string]interface{}{
		"category": string(cause.Category),
		"code":     cause.Code,
		"ordinal":  task.Ordinal,
	}
	if _, err := o.gate.RequestPause(sess.ID, sess.ProjectID, cause.Message, pauseContext); err != nil {
		return o.fail(sess, units, err, log)
	}

	if err := o.saveCheckpoint(sess, lastCompleted, &task.Ordinal, cpContext); err != nil {
		return o.fail(sess, units, err, log)
	}
	if err := o.transition(sess, models.SessionStatusPaused, cause.Message, units, cause.Error()); err != nil {
		return "", err
	}
	return models.SessionStatusPaused, nil
}

func (o *Orchestrator) complete(sess *models.Session, units int, log *logging.Logger) (models.SessionStatus, error) {
	if err := o.transition(sess, models.SessionStatusCompleted, "backlog exhausted", units, ""); err != nil {
		return "", err
	}
	if err := o.store.UpdateProjectStatus(sess.ProjectID, models.ProjectStatusCompleted); err != nil {
		return "", err
	}
	log.Info("project completed", map[string]interface{}{
		"units_completed": units,
	})
	return models.SessionStatusCompleted, nil
}

func (o *Orchestrator) fail(sess *models.Session, units int, cause error, log *logging.Logger) (models.SessionStatus, error) {
	log.Error("session failed", map[string]interface{}{"error": cause.Error()})
	if err := o.transition(sess, models.SessionStatusFailed, "unrecoverable error", units, cause.Error()); err != nil {
		return models.SessionStatusFailed, err
	}
	return models.SessionStatusFailed, cause
}

// transition records the state change with history, then finalizes the
// session row with its end time and unit count.
func (o *Orchestrator) transition(sess *models.Session, to models.SessionStatus, reason string, units int, errMsg string) error {
	if err := o.store.UpdateSessionStatus(sess.ID, sess.Status, to, reason); err != nil {
		return err
	}
	sess.Status = to
	return o.store.FinishSession(sess.ID, to, units, errMsg)
}

// CleanupStale flags sessions left in an active status by a dead
// process. Run at startup before accepting new work.
func (o *Orchestrator) CleanupStale(olderThan time.Duration) (int, error) {
	n, err := o.store.MarkStaleSessions(olderThan)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		o.log.Warn("marked stale sessions interrupted", map[string]interface{}{
			"count": n,
		})
	}
	return n, nil
}
