package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/overseerd/overseer/pkg/faults"
	"github.com/overseerd/overseer/pkg/models"
)

// SQLiteStore is a SQLite-based implementation of the data store
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// WAL mode and a generous busy timeout let the API server and an
// orchestrator share one file; a single open connection serializes
// writes to avoid SQLITE_BUSY.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=10000&_synchronous=NORMAL&_txlock=immediate", dbPath)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the database schema
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		completed_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		ordinal INTEGER NOT NULL,
		description TEXT NOT NULL,
		phase TEXT,
		completed BOOLEAN NOT NULL DEFAULT 0,
		completed_at DATETIME,
		UNIQUE(project_id, ordinal)
	);

	CREATE TABLE IF NOT EXISTS task_checks (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		name TEXT NOT NULL,
		passed BOOLEAN NOT NULL DEFAULT 0,
		UNIQUE(task_id, name)
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		session_number INTEGER NOT NULL,
		session_type TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		ended_at DATETIME,
		units_completed INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		transitions TEXT,
		UNIQUE(project_id, session_number)
	);

	CREATE TABLE IF NOT EXISTS checkpoints (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		project_id TEXT NOT NULL,
		current_ordinal INTEGER,
		last_completed_ordinal INTEGER,
		context TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS pauses (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		project_id TEXT NOT NULL,
		reason TEXT NOT NULL,
		context TEXT,
		resolved BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		resolved_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS quality_checks (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		project_id TEXT NOT NULL,
		session_number INTEGER NOT NULL,
		check_type TEXT NOT NULL,
		rating INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id, ordinal);
	CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project_id, session_number);
	CREATE INDEX IF NOT EXISTS idx_checkpoints_session ON checkpoints(session_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_checkpoints_project ON checkpoints(project_id, created_at);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_pauses_unresolved ON pauses(session_id) WHERE resolved = 0;
	CREATE INDEX IF NOT EXISTS idx_quality_project ON quality_checks(project_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) CreateProject(p *models.Project) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = models.ProjectStatusActive
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	_, err := s.db.Exec(`
		INSERT INTO projects (id, name, status, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?)
	`, p.ID, p.Name, p.Status, p.CreatedAt, p.CompletedAt)
	return err
}

func (s *SQLiteStore) GetProject(id string) (*models.Project, error) {
	var p models.Project
	var completedAt sql.NullTime

	err := s.db.QueryRow(`
		SELECT id, name, status, created_at, completed_at
		FROM projects WHERE id = ?
	`, id).Scan(&p.ID, &p.Name, &p.Status, &p.CreatedAt, &completedAt)

	if err == sql.ErrNoRows {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		p.CompletedAt = &completedAt.Time
	}
	return &p, nil
}

func (s *SQLiteStore) ListProjects() ([]*models.Project, error) {
	rows, err := s.db.Query(`
		SELECT id, name, status, created_at, completed_at
		FROM projects ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []*models.Project
	for rows.Next() {
		var p models.Project
		var completedAt sql.NullTime
		if err := rows.Scan(&p.ID, &p.Name, &p.Status, &p.CreatedAt, &completedAt); err != nil {
			return nil, err
		}
		if completedAt.Valid {
			p.CompletedAt = &completedAt.Time
		}
		projects = append(projects, &p)
	}
	return projects, rows.Err()
}

func (s *SQLiteStore) UpdateProjectStatus(id string, status models.ProjectStatus) error {
	var result sql.Result
	var err error
	if status == models.ProjectStatusCompleted {
		result, err = s.db.Exec(`
			UPDATE projects SET status = ?, completed_at = ? WHERE id = ?
		`, status, time.Now(), id)
	} else {
		result, err = s.db.Exec(`
			UPDATE projects SET status = ? WHERE id = ?
		`, status, id)
	}
	if err != nil {
		return err
	}
	return requireRow(result, ErrProjectNotFound)
}

func (s *SQLiteStore) CreateTask(t *models.Task) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO tasks (id, project_id, ordinal, description, phase, completed, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.ProjectID, t.Ordinal, t.Description, t.Phase, t.Completed, t.CompletedAt)
	if err != nil {
		return err
	}

	for i := range t.Checks {
		if t.Checks[i].ID == "" {
			t.Checks[i].ID = uuid.NewString()
		}
		t.Checks[i].TaskID = t.ID
		_, err = tx.Exec(`
			INSERT INTO task_checks (id, task_id, name, passed)
			VALUES (?, ?, ?, ?)
		`, t.Checks[i].ID, t.ID, t.Checks[i].Name, t.Checks[i].Passed)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) GetTask(projectID string, ordinal int) (*models.Task, error) {
	var t models.Task
	var completedAt sql.NullTime

	err := s.db.QueryRow(`
		SELECT id, project_id, ordinal, description, phase, completed, completed_at
		FROM tasks WHERE project_id = ? AND ordinal = ?
	`, projectID, ordinal).Scan(&t.ID, &t.ProjectID, &t.Ordinal, &t.Description,
		&t.Phase, &t.Completed, &completedAt)

	if err == sql.ErrNoRows {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	if err := s.loadChecks(&t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *SQLiteStore) ListTasks(projectID string) ([]*models.Task, error) {
	rows, err := s.db.Query(`
		SELECT id, project_id, ordinal, description, phase, completed, completed_at
		FROM tasks WHERE project_id = ? ORDER BY ordinal ASC
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		var t models.Task
		var completedAt sql.NullTime
		if err := rows.Scan(&t.ID, &t.ProjectID, &t.Ordinal, &t.Description,
			&t.Phase, &t.Completed, &completedAt); err != nil {
			return nil, err
		}
		if completedAt.Valid {
			t.CompletedAt = &completedAt.Time
		}
		tasks = append(tasks, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, t := range tasks {
		if err := s.loadChecks(t); err != nil {
			return nil, err
		}
	}
	return tasks, nil
}

func (s *SQLiteStore) NextIncompleteTask(projectID string, fromOrdinal int) (*models.Task, error) {
	var ordinal int
	err := s.db.QueryRow(`
		SELECT ordinal FROM tasks
		WHERE project_id = ? AND completed = 0 AND ordinal >= ?
		ORDER BY ordinal ASC LIMIT 1
	`, projectID, fromOrdinal).Scan(&ordinal)

	if err == sql.ErrNoRows {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.GetTask(projectID, ordinal)
}

func (s *SQLiteStore) loadChecks(t *models.Task) error {
	rows, err := s.db.Query(`
		SELECT id, task_id, name, passed FROM task_checks WHERE task_id = ? ORDER BY name
	`, t.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var c models.TaskCheck
		if err := rows.Scan(&c.ID, &c.TaskID, &c.Name, &c.Passed); err != nil {
			return err
		}
		t.Checks = append(t.Checks, c)
	}
	return rows.Err()
}

func (s *SQLiteStore) SetCheckResult(taskID, name string, passed bool) error {
	result, err := s.db.Exec(`
		UPDATE task_checks SET passed = ? WHERE task_id = ? AND name = ?
	`, passed, taskID, name)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}

	// Unknown checks are recorded rather than rejected
	_, err = s.db.Exec(`
		INSERT INTO task_checks (id, task_id, name, passed) VALUES (?, ?, ?, ?)
	`, uuid.NewString(), taskID, name, passed)
	return err
}

func (s *SQLiteStore) CompleteTask(taskID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM tasks WHERE id = ?`, taskID).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return ErrTaskNotFound
	}

	var failing int
	err = tx.QueryRow(`
		SELECT COUNT(*) FROM task_checks WHERE task_id = ? AND passed = 0
	`, taskID).Scan(&failing)
	if err != nil {
		return err
	}
	if failing > 0 {
		return faults.New(faults.CategoryValidation, "checks_not_passing",
			"task cannot complete while verification checks are failing", false).
			WithContext("task_id", taskID).
			WithContext("failing_checks", failing)
	}

	_, err = tx.Exec(`
		UPDATE tasks SET completed = 1, completed_at = ? WHERE id = ?
	`, time.Now(), taskID)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) CreateSession(sess *models.Session) error {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.Status == "" {
		sess.Status = models.SessionStatusCreated
	}
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM projects WHERE id = ?`, sess.ProjectID).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return ErrProjectNotFound
	}

	var next int
	err = tx.QueryRow(`
		SELECT COALESCE(MAX(session_number), 0) + 1 FROM sessions WHERE project_id = ?
	`, sess.ProjectID).Scan(&next)
	if err != nil {
		return err
	}
	sess.Number = next
	sess.Type = models.SessionTypeFor(next)

	transitions, err := json.Marshal(sess.Transitions)
	if err != nil {
		return fmt.Errorf("failed to marshal transitions: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO sessions
		(id, project_id, session_number, session_type, status, started_at, ended_at,
		 units_completed, error, transitions)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sess.ID, sess.ProjectID, sess.Number, sess.Type, sess.Status, sess.StartedAt,
		sess.EndedAt, sess.UnitsCompleted, sess.Error, string(transitions))
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) scanSession(scan func(dest ...interface{}) error) (*models.Session, error) {
	var sess models.Session
	var endedAt sql.NullTime
	var errMsg, transitionsJSON sql.NullString

	err := scan(&sess.ID, &sess.ProjectID, &sess.Number, &sess.Type, &sess.Status,
		&sess.StartedAt, &endedAt, &sess.UnitsCompleted, &errMsg, &transitionsJSON)
	if err != nil {
		return nil, err
	}
	if endedAt.Valid {
		sess.EndedAt = &endedAt.Time
	}
	if errMsg.Valid {
		sess.Error = errMsg.String
	}
	if transitionsJSON.Valid && transitionsJSON.String != "" && transitionsJSON.String != "null" {
		if err := json.Unmarshal([]byte(transitionsJSON.String), &sess.Transitions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal transitions: %w", err)
		}
	}
	return &sess, nil
}

const sessionColumns = `id, project_id, session_number, session_type, status,
	started_at, ended_at, units_completed, error, transitions`

func (s *SQLiteStore) GetSession(id string) (*models.Session, error) {
	row := s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := s.scanSession(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	return sess, err
}

func (s *SQLiteStore) ListSessions(projectID string) ([]*models.Session, error) {
	rows, err := s.db.Query(`
		SELECT `+sessionColumns+` FROM sessions
		WHERE project_id = ? ORDER BY session_number ASC
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		sess, err := s.scanSession(rows.Scan)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (s *SQLiteStore) UpdateSessionStatus(id string, from, to models.SessionStatus, reason string) error {
	if err := models.ValidateTransition(from, to); err != nil {
		return faults.Wrap(err, faults.CategorySession, "invalid_transition", err.Error(), false)
	}

	sess, err := s.GetSession(id)
	if err != nil {
		return err
	}
	sess.Transitions = append(sess.Transitions, models.StateTransition{
		From: from, To: to, Timestamp: time.Now(), Reason: reason,
	})
	transitions, err := json.Marshal(sess.Transitions)
	if err != nil {
		return fmt.Errorf("failed to marshal transitions: %w", err)
	}

	result, err := s.db.Exec(`
		UPDATE sessions SET status = ?, transitions = ? WHERE id = ?
	`, to, string(transitions), id)
	if err != nil {
		return err
	}
	return requireRow(result, ErrSessionNotFound)
}

func (s *SQLiteStore) FinishSession(id string, status models.SessionStatus, unitsCompleted int, errMsg string) error {
	result, err := s.db.Exec(`
		UPDATE sessions SET status = ?, ended_at = ?, units_completed = ?, error = ?
		WHERE id = ?
	`, status, time.Now(), unitsCompleted, errMsg, id)
	if err != nil {
		return err
	}
	return requireRow(result, ErrSessionNotFound)
}

func (s *SQLiteStore) MarkStaleSessions(olderThan time.Duration) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	cutoff := time.Now().Add(-olderThan)
	rows, err := tx.Query(`
		SELECT id, status, transitions FROM sessions
		WHERE status IN (?, ?) AND started_at < ?
	`, models.SessionStatusCreated, models.SessionStatusRunning, cutoff)
	if err != nil {
		return 0, err
	}

	stale, err := collectStale(rows)
	if err != nil {
		return 0, err
	}

	for _, sess := range stale {
		transitions := append(sess.transitions, models.StateTransition{
			From: sess.status, To: models.SessionStatusInterrupted,
			Timestamp: time.Now(), Reason: "stale session cleanup",
		})
		transitionsJSON, err := json.Marshal(transitions)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal transitions: %w", err)
		}
		if _, err := tx.Exec(`
			UPDATE sessions SET status = ?, transitions = ? WHERE id = ?
		`, models.SessionStatusInterrupted, string(transitionsJSON), sess.id); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(stale), nil
}

// staleSession is the slice of a session row needed to interrupt it
// with its transition history intact
type staleSession struct {
	id          string
	status      models.SessionStatus
	transitions []models.StateTransition
}

func collectStale(rows *sql.Rows) ([]staleSession, error) {
	defer rows.Close()

	var stale []staleSession
	for rows.Next() {
		var sess staleSession
		var transitionsJSON sql.NullString
		if err := rows.Scan(&sess.id, &sess.status, &transitionsJSON); err != nil {
			return nil, err
		}
		if transitionsJSON.Valid && transitionsJSON.String != "" {
			if err := json.Unmarshal([]byte(transitionsJSON.String), &sess.transitions); err != nil {
				return nil, fmt.Errorf("failed to unmarshal transitions: %w", err)
			}
		}
		stale = append(stale, sess)
	}
	return stale, rows.Err()
}

func (s *SQLiteStore) SaveCheckpoint(c *models.Checkpoint) error {
	if err := c.Validate(); err != nil {
		return faults.Wrap(err, faults.CategoryValidation, "invalid_checkpoint", err.Error(), false)
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	contextJSON, err := json.Marshal(c.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal context: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO checkpoints
		(id, session_id, project_id, current_ordinal, last_completed_ordinal, context, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.SessionID, c.ProjectID, c.CurrentOrdinal, c.LastCompletedOrdinal,
		string(contextJSON), c.CreatedAt)
	return err
}

func (s *SQLiteStore) scanCheckpoint(scan func(dest ...interface{}) error) (*models.Checkpoint, error) {
	var c models.Checkpoint
	var current, lastCompleted sql.NullInt64
	var contextJSON sql.NullString

	err := scan(&c.ID, &c.SessionID, &c.ProjectID, &current, &lastCompleted,
		&contextJSON, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	if current.Valid {
		v := int(current.Int64)
		c.CurrentOrdinal = &v
	}
	if lastCompleted.Valid {
		v := int(lastCompleted.Int64)
		c.LastCompletedOrdinal = &v
	}
	if contextJSON.Valid && contextJSON.String != "" && contextJSON.String != "null" {
		if err := json.Unmarshal([]byte(contextJSON.String), &c.Context); err != nil {
			return nil, fmt.Errorf("failed to unmarshal context: %w", err)
		}
	}
	return &c, nil
}

const checkpointColumns = `id, session_id, project_id, current_ordinal,
	last_completed_ordinal, context, created_at`

func (s *SQLiteStore) LatestCheckpoint(sessionID string) (*models.Checkpoint, error) {
	row := s.db.QueryRow(`
		SELECT `+checkpointColumns+` FROM checkpoints
		WHERE session_id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1
	`, sessionID)
	c, err := s.scanCheckpoint(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrCheckpointNotFound
	}
	return c, err
}

func (s *SQLiteStore) LatestProjectCheckpoint(projectID string) (*models.Checkpoint, error) {
	row := s.db.QueryRow(`
		SELECT `+checkpointColumns+` FROM checkpoints
		WHERE project_id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1
	`, projectID)
	c, err := s.scanCheckpoint(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrCheckpointNotFound
	}
	return c, err
}

func (s *SQLiteStore) CreatePause(p *models.PauseRecord) error {
	existing, err := s.UnresolvedPause(p.SessionID)
	if err != nil {
		return err
	}
	if existing != nil {
		return faults.New(faults.CategoryValidation, "pause_exists",
			"an unresolved pause already exists for this session", false).
			WithContext("session_id", p.SessionID)
	}

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	contextJSON, err := json.Marshal(p.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal context: %w", err)
	}

	// The partial unique index on unresolved pauses backstops the check
	// above against a concurrent writer.
	_, err = s.db.Exec(`
		INSERT INTO pauses (id, session_id, project_id, reason, context, resolved, created_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, NULL)
	`, p.ID, p.SessionID, p.ProjectID, p.Reason, string(contextJSON), p.CreatedAt)
	return err
}

func (s *SQLiteStore) scanPause(scan func(dest ...interface{}) error) (*models.PauseRecord, error) {
	var p models.PauseRecord
	var contextJSON sql.NullString
	var resolvedAt sql.NullTime

	err := scan(&p.ID, &p.SessionID, &p.ProjectID, &p.Reason, &contextJSON,
		&p.Resolved, &p.CreatedAt, &resolvedAt)
	if err != nil {
		return nil, err
	}
	if resolvedAt.Valid {
		p.ResolvedAt = &resolvedAt.Time
	}
	if contextJSON.Valid && contextJSON.String != "" && contextJSON.String != "null" {
		if err := json.Unmarshal([]byte(contextJSON.String), &p.Context); err != nil {
			return nil, fmt.Errorf("failed to unmarshal context: %w", err)
		}
	}
	return &p, nil
}

const pauseColumns = `id, session_id, project_id, reason, context, resolved, created_at, resolved_at`

func (s *SQLiteStore) UnresolvedPause(sessionID string) (*models.PauseRecord, error) {
	row := s.db.QueryRow(`
		SELECT `+pauseColumns+` FROM pauses
		WHERE session_id = ? AND resolved = 0
	`, sessionID)
	p, err := s.scanPause(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (s *SQLiteStore) ActivePauses(projectID string) ([]*models.PauseRecord, error) {
	query := `SELECT ` + pauseColumns + ` FROM pauses WHERE resolved = 0`
	args := []interface{}{}
	if projectID != "" {
		query += ` AND project_id = ?`
		args = append(args, projectID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pauses []*models.PauseRecord
	for rows.Next() {
		p, err := s.scanPause(rows.Scan)
		if err != nil {
			return nil, err
		}
		pauses = append(pauses, p)
	}
	return pauses, rows.Err()
}

func (s *SQLiteStore) ResolvePause(sessionID string) (*models.PauseRecord, error) {
	existing, err := s.UnresolvedPause(sessionID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}

	now := time.Now()
	_, err = s.db.Exec(`
		UPDATE pauses SET resolved = 1, resolved_at = ? WHERE id = ?
	`, now, existing.ID)
	if err != nil {
		return nil, err
	}
	existing.Resolved = true
	existing.ResolvedAt = &now
	return existing, nil
}

func (s *SQLiteStore) RecordQualityCheck(q *models.QualityCheck) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO quality_checks (id, session_id, project_id, session_number, check_type, rating, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, q.ID, q.SessionID, q.ProjectID, q.SessionNumber, q.CheckType, q.Rating, q.CreatedAt)
	return err
}

func (s *SQLiteStore) LatestQualityRating(projectID string) (int, bool, error) {
	var rating int
	err := s.db.QueryRow(`
		SELECT rating FROM quality_checks
		WHERE project_id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1
	`, projectID).Scan(&rating)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return rating, true, nil
}

func (s *SQLiteStore) LastDeepReviewSession(projectID string) (int, bool, error) {
	var number int
	err := s.db.QueryRow(`
		SELECT session_number FROM quality_checks
		WHERE project_id = ? AND check_type = 'deep'
		ORDER BY created_at DESC, rowid DESC LIMIT 1
	`, projectID).Scan(&number)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return number, true, nil
}

func (s *SQLiteStore) SessionCounts() (map[models.SessionStatus]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM sessions GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[models.SessionStatus]int)
	for rows.Next() {
		var status models.SessionStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// requireRow converts a zero-rows-affected result into notFound
func requireRow(result sql.Result, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

var _ Store = (*SQLiteStore)(nil)
