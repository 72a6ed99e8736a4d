package store

import (
	"errors"
	"time"

	"github.com/overseerd/overseer/pkg/models"
)

// Sentinel errors shared by all store implementations
var (
	ErrProjectNotFound    = errors.New("project not found")
	ErrTaskNotFound       = errors.New("task not found")
	ErrSessionNotFound    = errors.New("session not found")
	ErrCheckpointNotFound = errors.New("checkpoint not found")
	ErrCheckNotFound      = errors.New("task check not found")
)

// Store is the durable source of truth for projects, backlogs, sessions,
// checkpoints, pause records, and quality checks. All writes are atomic
// per row. "At most one orchestrator per project" is an operational
// invariant of the deployment, not a lock taken here; the UNIQUE
// constraint on (project, session number) makes a violation surface as a
// storage error instead of silent double work.
type Store interface {
	// Projects
	CreateProject(p *models.Project) error
	GetProject(id string) (*models.Project, error)
	ListProjects() ([]*models.Project, error)
	UpdateProjectStatus(id string, status models.ProjectStatus) error

	// Tasks. CompleteTask fails with a validation error while any check
	// on the task is not passing.
	CreateTask(t *models.Task) error
	GetTask(projectID string, ordinal int) (*models.Task, error)
	ListTasks(projectID string) ([]*models.Task, error)
	NextIncompleteTask(projectID string, fromOrdinal int) (*models.Task, error)
	SetCheckResult(taskID, name string, passed bool) error
	CompleteTask(taskID string) error

	// Sessions. CreateSession assigns the next session number for the
	// project; numbers are never reused.
	CreateSession(s *models.Session) error
	GetSession(id string) (*models.Session, error)
	ListSessions(projectID string) ([]*models.Session, error)
	UpdateSessionStatus(id string, from, to models.SessionStatus, reason string) error
	FinishSession(id string, status models.SessionStatus, unitsCompleted int, errMsg string) error
	// MarkStaleSessions flags sessions abandoned in an active status by a
	// dead process as interrupted; returns how many were flagged.
	MarkStaleSessions(olderThan time.Duration) (int, error)

	// Checkpoints. SaveCheckpoint validates ordering before writing and
	// must be durable before returning.
	SaveCheckpoint(c *models.Checkpoint) error
	LatestCheckpoint(sessionID string) (*models.Checkpoint, error)
	LatestProjectCheckpoint(projectID string) (*models.Checkpoint, error)

	// Pause records. CreatePause fails with a validation error while an
	// unresolved record exists for the session. ResolvePause is
	// idempotent: it returns (nil, nil) when nothing is unresolved.
	CreatePause(p *models.PauseRecord) error
	UnresolvedPause(sessionID string) (*models.PauseRecord, error)
	ActivePauses(projectID string) ([]*models.PauseRecord, error)
	ResolvePause(sessionID string) (*models.PauseRecord, error)

	// Quality checks, written by the review subsystem and read back to
	// build the deep-review trigger signal.
	RecordQualityCheck(q *models.QualityCheck) error
	LatestQualityRating(projectID string) (rating int, ok bool, err error)
	LastDeepReviewSession(projectID string) (sessionNumber int, ok bool, err error)

	// SessionCounts returns session totals by status for metrics export
	SessionCounts() (map[models.SessionStatus]int, error)

	Close() error
}
