package store

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/overseerd/overseer/pkg/faults"
	"github.com/overseerd/overseer/pkg/models"
)

// MemoryStore is an in-memory implementation of the data store, used in
// tests and for ephemeral local runs.
type MemoryStore struct {
	mu          sync.RWMutex
	projects    map[string]*models.Project
	tasks       map[string]*models.Task // task id -> task
	sessions    map[string]*models.Session
	checkpoints []*models.Checkpoint
	pauses      []*models.PauseRecord
	quality     []*models.QualityCheck
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projects: make(map[string]*models.Project),
		tasks:    make(map[string]*models.Task),
		sessions: make(map[string]*models.Session),
	}
}

func (s *MemoryStore) CreateProject(p *models.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = models.ProjectStatusActive
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	cp := *p
	s.projects[p.ID] = &cp
	return nil
}

func (s *MemoryStore) GetProject(id string) (*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[id]
	if !ok {
		return nil, ErrProjectNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) ListProjects() ([]*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Project, 0, len(s.projects))
	for _, p := range s.projects {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) UpdateProjectStatus(id string, status models.ProjectStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[id]
	if !ok {
		return ErrProjectNotFound
	}
	p.Status = status
	if status == models.ProjectStatusCompleted {
		now := time.Now()
		p.CompletedAt = &now
	}
	return nil
}

func (s *MemoryStore) CreateTask(t *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[t.ProjectID]; !ok {
		return ErrProjectNotFound
	}
	for _, existing := range s.tasks {
		if existing.ProjectID == t.ProjectID && existing.Ordinal == t.Ordinal {
			return faults.New(faults.CategoryValidation, "duplicate_ordinal",
				"task ordinal already used in project", false)
		}
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	for i := range t.Checks {
		if t.Checks[i].ID == "" {
			t.Checks[i].ID = uuid.NewString()
		}
		t.Checks[i].TaskID = t.ID
	}
	cp := cloneTask(t)
	s.tasks[t.ID] = cp
	return nil
}

func (s *MemoryStore) GetTask(projectID string, ordinal int) (*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.tasks {
		if t.ProjectID == projectID && t.Ordinal == ordinal {
			return cloneTask(t), nil
		}
	}
	return nil, ErrTaskNotFound
}

func (s *MemoryStore) ListTasks(projectID string) ([]*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Task
	for _, t := range s.tasks {
		if t.ProjectID == projectID {
			out = append(out, cloneTask(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out, nil
}

func (s *MemoryStore) NextIncompleteTask(projectID string, fromOrdinal int) (*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *models.Task
	for _, t := range s.tasks {
		if t.ProjectID != projectID || t.Completed || t.Ordinal < fromOrdinal {
			continue
		}
		if best == nil || t.Ordinal < best.Ordinal {
			best = t
		}
	}
	if best == nil {
		return nil, ErrTaskNotFound
	}
	return cloneTask(best), nil
}

func (s *MemoryStore) SetCheckResult(taskID, name string, passed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	for i := range t.Checks {
		if t.Checks[i].Name == name {
			t.Checks[i].Passed = passed
			return nil
		}
	}
	// Unknown checks are recorded rather than rejected; the backlog may
	// not have enumerated every verification up front.
	t.Checks = append(t.Checks, models.TaskCheck{
		ID:     uuid.NewString(),
		TaskID: taskID,
		Name:   name,
		Passed: passed,
	})
	return nil
}

func (s *MemoryStore) CompleteTask(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	if !t.ChecksPassing() {
		return faults.New(faults.CategoryValidation, "checks_not_passing",
			"task cannot complete while verification checks are failing", false).
			WithContext("task_id", taskID)
	}
	now := time.Now()
	t.Completed = true
	t.CompletedAt = &now
	return nil
}

func (s *MemoryStore) CreateSession(sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[sess.ProjectID]; !ok {
		return ErrProjectNotFound
	}
	next := 1
	for _, existing := range s.sessions {
		if existing.ProjectID == sess.ProjectID && existing.Number >= next {
			next = existing.Number + 1
		}
	}
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	sess.Number = next
	sess.Type = models.SessionTypeFor(next)
	if sess.Status == "" {
		sess.Status = models.SessionStatusCreated
	}
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now()
	}
	cp := cloneSession(sess)
	s.sessions[sess.ID] = cp
	return nil
}

func (s *MemoryStore) GetSession(id string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return cloneSession(sess), nil
}

func (s *MemoryStore) ListSessions(projectID string) ([]*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Session
	for _, sess := range s.sessions {
		if sess.ProjectID == projectID {
			out = append(out, cloneSession(sess))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (s *MemoryStore) UpdateSessionStatus(id string, from, to models.SessionStatus, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if err := models.ValidateTransition(from, to); err != nil {
		return faults.Wrap(err, faults.CategorySession, "invalid_transition", err.Error(), false)
	}
	sess.Status = to
	sess.Transitions = append(sess.Transitions, models.StateTransition{
		From: from, To: to, Timestamp: time.Now(), Reason: reason,
	})
	return nil
}

func (s *MemoryStore) FinishSession(id string, status models.SessionStatus, unitsCompleted int, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	now := time.Now()
	sess.Status = status
	sess.EndedAt = &now
	sess.UnitsCompleted = unitsCompleted
	sess.Error = errMsg
	return nil
}

func (s *MemoryStore) MarkStaleSessions(olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	count := 0
	for _, sess := range s.sessions {
		if models.IsActiveStatus(sess.Status) && sess.StartedAt.Before(cutoff) {
			sess.Transitions = append(sess.Transitions, models.StateTransition{
				From: sess.Status, To: models.SessionStatusInterrupted,
				Timestamp: time.Now(), Reason: "stale session cleanup",
			})
			sess.Status = models.SessionStatusInterrupted
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) SaveCheckpoint(c *models.Checkpoint) error {
	if err := c.Validate(); err != nil {
		return faults.Wrap(err, faults.CategoryValidation, "invalid_checkpoint", err.Error(), false)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	cp := *c
	s.checkpoints = append(s.checkpoints, &cp)
	return nil
}

func (s *MemoryStore) LatestCheckpoint(sessionID string) (*models.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *models.Checkpoint
	for _, c := range s.checkpoints {
		if c.SessionID != sessionID {
			continue
		}
		// Ties on CreatedAt resolve to the most recently appended
		if latest == nil || !c.CreatedAt.Before(latest.CreatedAt) {
			latest = c
		}
	}
	if latest == nil {
		return nil, ErrCheckpointNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *MemoryStore) LatestProjectCheckpoint(projectID string) (*models.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *models.Checkpoint
	for _, c := range s.checkpoints {
		if c.ProjectID != projectID {
			continue
		}
		if latest == nil || !c.CreatedAt.Before(latest.CreatedAt) {
			latest = c
		}
	}
	if latest == nil {
		return nil, ErrCheckpointNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *MemoryStore) CreatePause(p *models.PauseRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.pauses {
		if existing.SessionID == p.SessionID && !existing.Resolved {
			return faults.New(faults.CategoryValidation, "pause_exists",
				"an unresolved pause already exists for this session", false).
				WithContext("session_id", p.SessionID)
		}
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	cp := *p
	s.pauses = append(s.pauses, &cp)
	return nil
}

func (s *MemoryStore) UnresolvedPause(sessionID string) (*models.PauseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.pauses {
		if p.SessionID == sessionID && !p.Resolved {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) ActivePauses(projectID string) ([]*models.PauseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.PauseRecord
	for _, p := range s.pauses {
		if p.Resolved {
			continue
		}
		if projectID != "" && p.ProjectID != projectID {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ResolvePause(sessionID string) (*models.PauseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.pauses {
		if p.SessionID == sessionID && !p.Resolved {
			now := time.Now()
			p.Resolved = true
			p.ResolvedAt = &now
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) RecordQualityCheck(q *models.QualityCheck) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now()
	}
	cp := *q
	s.quality = append(s.quality, &cp)
	return nil
}

func (s *MemoryStore) LatestQualityRating(projectID string) (int, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *models.QualityCheck
	for _, q := range s.quality {
		if q.ProjectID != projectID {
			continue
		}
		if latest == nil || !q.CreatedAt.Before(latest.CreatedAt) {
			latest = q
		}
	}
	if latest == nil {
		return 0, false, nil
	}
	return latest.Rating, true, nil
}

func (s *MemoryStore) LastDeepReviewSession(projectID string) (int, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *models.QualityCheck
	for _, q := range s.quality {
		if q.ProjectID != projectID || q.CheckType != "deep" {
			continue
		}
		if latest == nil || !q.CreatedAt.Before(latest.CreatedAt) {
			latest = q
		}
	}
	if latest == nil {
		return 0, false, nil
	}
	return latest.SessionNumber, true, nil
}

func (s *MemoryStore) SessionCounts() (map[models.SessionStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[models.SessionStatus]int)
	for _, sess := range s.sessions {
		counts[sess.Status]++
	}
	return counts, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func cloneTask(t *models.Task) *models.Task {
	cp := *t
	cp.Checks = append([]models.TaskCheck(nil), t.Checks...)
	return &cp
}

func cloneSession(sess *models.Session) *models.Session {
	cp := *sess
	cp.Transitions = append([]models.StateTransition(nil), sess.Transitions...)
	return &cp
}

var _ Store = (*MemoryStore)(nil)
