package orchestrator

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/overseerd/overseer/pkg/faults"
	"github.com/overseerd/overseer/pkg/gate"
	"github.com/overseerd/overseer/pkg/logging"
	"github.com/overseerd/overseer/pkg/models"
	"github.com/overseerd/overseer/pkg/retry"
	"github.com/overseerd/overseer/pkg/review"
	"github.com/overseerd/overseer/pkg/runner"
	"github.com/overseerd/overseer/pkg/store"
)

// fakeRunner executes units through a configurable function and records
// the ordinals it was asked to run
type fakeRunner struct {
	run      func(req *runner.UnitRequest) (*runner.UnitResult, error)
	ordinals []int
}

func (f *fakeRunner) RunUnit(ctx context.Context, req *runner.UnitRequest) (*runner.UnitResult, error) {
	f.ordinals = append(f.ordinals, req.Task.Ordinal)
	if f.run != nil {
		return f.run(req)
	}
	return passAll(req), nil
}

func passAll(req *runner.UnitRequest) *runner.UnitResult {
	checks := make(map[string]bool)
	for _, c := range req.Task.Checks {
		checks[c.Name] = true
	}
	return &runner.UnitResult{Checks: checks, Summary: "done"}
}

type fixture struct {
	store   store.Store
	runner  *fakeRunner
	gate    *gate.Gate
	orch    *Orchestrator
	project *models.Project
}

func testPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		Multiplier:     2.0,
	}
}

func newFixture(t *testing.T, cfg Config, taskCount int) *fixture {
	st := store.NewMemoryStore()
	t.Cleanup(func() { st.Close() })

	p := &models.Project{Name: "demo"}
	if err := st.CreateProject(p); err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	for i := 1; i <= taskCount; i++ {
		if err := st.CreateTask(&models.Task{
			ProjectID:   p.ID,
			Ordinal:     i,
			Description: "task",
			Checks:      []models.TaskCheck{{Name: "build"}},
		}); err != nil {
			t.Fatalf("CreateTask() error = %v", err)
		}
	}

	log := logging.NewLogger(logging.ERROR, false)
	log.SetOutput(io.Discard)

	fr := &fakeRunner{}
	g := gate.New(st, log)
	g.PollInterval = 10 * time.Millisecond

	return &fixture{
		store:   st,
		runner:  fr,
		gate:    g,
		orch:    New(st, fr, g, nil, log, cfg),
		project: p,
	}
}

func TestRunSessionCompletesBacklog(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retry = testPolicy()
	f := newFixture(t, cfg, 3)

	sess, err := f.orch.RunSession(context.Background(), f.project.ID)
	if err != nil {
		t.Fatalf("RunSession() error = %v", err)
	}

	if sess.Status != models.SessionStatusCompleted {
		t.Errorf("status = %s, want completed", sess.Status)
	}
	if sess.UnitsCompleted != 3 {
		t.Errorf("units = %d, want 3", sess.UnitsCompleted)
	}
	if sess.Number != 1 || sess.Type != models.SessionTypeInitializer {
		t.Errorf("session = #%d %s, want #1 initializer", sess.Number, sess.Type)
	}

	p, _ := f.store.GetProject(f.project.ID)
	if p.Status != models.ProjectStatusCompleted {
		t.Errorf("project status = %s, want completed", p.Status)
	}

	tasks, _ := f.store.ListTasks(f.project.ID)
	for _, task := range tasks {
		if !task.Completed {
			t.Errorf("task %d not completed", task.Ordinal)
		}
	}

	cp, err := f.store.LatestCheckpoint(sess.ID)
	if err != nil {
		t.Fatalf("LatestCheckpoint() error = %v", err)
	}
	if cp.LastCompletedOrdinal == nil || *cp.LastCompletedOrdinal != 3 {
		t.Errorf("last completed = %v, want 3", cp.LastCompletedOrdinal)
	}
	if cp.CurrentOrdinal != nil {
		t.Errorf("current = %v, want nil with backlog exhausted", *cp.CurrentOrdinal)
	}
}

func TestRunSessionResumesFromCheckpoint(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retry = testPolicy()
	f := newFixture(t, cfg, 13)

	prior := &models.Session{ProjectID: f.project.ID}
	if err := f.store.CreateSession(prior); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	for i := 1; i <= 11; i++ {
		task, _ := f.store.GetTask(f.project.ID, i)
		f.store.SetCheckResult(task.ID, "build", true)
		if err := f.store.CompleteTask(task.ID); err != nil {
			t.Fatalf("CompleteTask(%d) error = %v", i, err)
		}
	}

	eleven, twelve := 11, 12
	if err := f.store.SaveCheckpoint(&models.Checkpoint{
		SessionID:            prior.ID,
		ProjectID:            f.project.ID,
		CurrentOrdinal:       &twelve,
		LastCompletedOrdinal: &eleven,
		Context:              map[string]interface{}{"branch": "feature-x"},
	}); err != nil {
		t.Fatalf("SaveCheckpoint() error = %v", err)
	}

	var firstResume map[string]interface{}
	f.runner.run = func(req *runner.UnitRequest) (*runner.UnitResult, error) {
		if len(f.runner.ordinals) == 1 {
			firstResume = req.Resume
		}
		return passAll(req), nil
	}

	sess, err := f.orch.RunSession(context.Background(), f.project.ID)
	if err != nil {
		t.Fatalf("RunSession() error = %v", err)
	}

	if sess.Status != models.SessionStatusCompleted {
		t.Errorf("status = %s, want completed", sess.Status)
	}
	if len(f.runner.ordinals) == 0 || f.runner.ordinals[0] != 12 {
		t.Errorf("first ordinal run = %v, want 12", f.runner.ordinals)
	}
	if sess.UnitsCompleted != 2 {
		t.Errorf("units = %d, want 2", sess.UnitsCompleted)
	}
	if firstResume["branch"] != "feature-x" {
		t.Errorf("resume context = %v, want checkpoint context on first unit", firstResume)
	}
}

func TestResumeWithoutCurrentOrdinal(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retry = testPolicy()
	f := newFixture(t, cfg, 12)

	prior := &models.Session{ProjectID: f.project.ID}
	if err := f.store.CreateSession(prior); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	for i := 1; i <= 11; i++ {
		task, _ := f.store.GetTask(f.project.ID, i)
		f.store.SetCheckResult(task.ID, "build", true)
		f.store.CompleteTask(task.ID)
	}

	eleven := 11
	if err := f.store.SaveCheckpoint(&models.Checkpoint{
		SessionID:            prior.ID,
		ProjectID:            f.project.ID,
		LastCompletedOrdinal: &eleven,
	}); err != nil {
		t.Fatalf("SaveCheckpoint() error = %v", err)
	}

	if _, err := f.orch.RunSession(context.Background(), f.project.ID); err != nil {
		t.Fatalf("RunSession() error = %v", err)
	}
	if len(f.runner.ordinals) == 0 || f.runner.ordinals[0] != 12 {
		t.Errorf("first ordinal run = %v, want 12", f.runner.ordinals)
	}
}

func TestRunSessionUnitBudget(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retry = testPolicy()
	cfg.MaxUnits = 2
	f := newFixture(t, cfg, 5)

	sess, err := f.orch.RunSession(context.Background(), f.project.ID)
	if err != nil {
		t.Fatalf("RunSession() error = %v", err)
	}

	if sess.Status != models.SessionStatusCheckpointed {
		t.Errorf("status = %s, want checkpointed", sess.Status)
	}
	if sess.UnitsCompleted != 2 {
		t.Errorf("units = %d, want 2", sess.UnitsCompleted)
	}

	p, _ := f.store.GetProject(f.project.ID)
	if p.Status != models.ProjectStatusActive {
		t.Errorf("project status = %s, want still active", p.Status)
	}

	cp, err := f.store.LatestCheckpoint(sess.ID)
	if err != nil {
		t.Fatalf("LatestCheckpoint() error = %v", err)
	}
	if ordinal, ok := cp.ResumeOrdinal(); !ok || ordinal != 3 {
		t.Errorf("resume ordinal = (%d, %v), want (3, true)", ordinal, ok)
	}
}

func TestYieldingKeepsUnitResumeContext(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retry = testPolicy()
	cfg.MaxUnits = 1
	f := newFixture(t, cfg, 3)

	f.runner.run = func(req *runner.UnitRequest) (*runner.UnitResult, error) {
		res := passAll(req)
		res.Context = map[string]interface{}{"conversation": "handle-123"}
		return res, nil
	}

	sess, err := f.orch.RunSession(context.Background(), f.project.ID)
	if err != nil {
		t.Fatalf("RunSession() error = %v", err)
	}
	if sess.Status != models.SessionStatusCheckpointed {
		t.Fatalf("status = %s, want checkpointed", sess.Status)
	}

	// The budget yield writes the newest checkpoint; it must still carry
	// the last unit's resume context
	cp, err := f.store.LatestProjectCheckpoint(f.project.ID)
	if err != nil {
		t.Fatalf("LatestProjectCheckpoint() error = %v", err)
	}
	if cp.Context["conversation"] != "handle-123" {
		t.Errorf("authoritative checkpoint context = %v, want the last unit's resume context", cp.Context)
	}
}

func TestRunSessionStopsAtPhaseBoundary(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retry = testPolicy()
	cfg.StopOnPhaseChange = true
	f := newFixture(t, cfg, 0)

	phases := []string{"scaffold", "scaffold", "implement"}
	for i, phase := range phases {
		if err := f.store.CreateTask(&models.Task{
			ProjectID:   f.project.ID,
			Ordinal:     i + 1,
			Description: "task",
			Phase:       phase,
		}); err != nil {
			t.Fatalf("CreateTask() error = %v", err)
		}
	}

	sess, err := f.orch.RunSession(context.Background(), f.project.ID)
	if err != nil {
		t.Fatalf("RunSession() error = %v", err)
	}

	if sess.Status != models.SessionStatusCheckpointed {
		t.Errorf("status = %s, want checkpointed", sess.Status)
	}
	if sess.UnitsCompleted != 2 {
		t.Errorf("units = %d, want the scaffold phase only", sess.UnitsCompleted)
	}
}

func TestRunSessionPausesOnFailingChecks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retry = testPolicy()
	f := newFixture(t, cfg, 3)

	f.runner.run = func(req *runner.UnitRequest) (*runner.UnitResult, error) {
		if req.Task.Ordinal == 2 {
			return &runner.UnitResult{Checks: map[string]bool{"build": false}}, nil
		}
		res := passAll(req)
		res.Context = map[string]interface{}{"conversation": "handle-7"}
		return res, nil
	}

	sess, err := f.orch.RunSession(context.Background(), f.project.ID)
	if err != nil {
		t.Fatalf("RunSession() error = %v", err)
	}

	if sess.Status != models.SessionStatusPaused {
		t.Errorf("status = %s, want paused", sess.Status)
	}
	if sess.UnitsCompleted != 1 {
		t.Errorf("units = %d, want 1", sess.UnitsCompleted)
	}

	pending, err := f.store.UnresolvedPause(sess.ID)
	if err != nil {
		t.Fatalf("UnresolvedPause() error = %v", err)
	}
	if pending == nil {
		t.Fatal("paused session should have an unresolved pause record")
	}

	cp, err := f.store.LatestCheckpoint(sess.ID)
	if err != nil {
		t.Fatalf("LatestCheckpoint() error = %v", err)
	}
	if cp.CurrentOrdinal == nil || *cp.CurrentOrdinal != 2 {
		t.Errorf("current = %v, want the stuck ordinal 2", cp.CurrentOrdinal)
	}
	if cp.Context["conversation"] != "handle-7" {
		t.Errorf("pause checkpoint context = %v, want unit 1's resume context", cp.Context)
	}
}

func TestRunSessionFailsOnValidationError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retry = testPolicy()
	f := newFixture(t, cfg, 2)

	f.runner.run = func(req *runner.UnitRequest) (*runner.UnitResult, error) {
		return nil, faults.New(faults.CategoryValidation, "bad_task",
			"task description is malformed", false)
	}

	_, err := f.orch.RunSession(context.Background(), f.project.ID)
	if err == nil {
		t.Fatal("expected error")
	}
	if !faults.IsCategory(err, faults.CategoryValidation) {
		t.Errorf("error category = %v, want validation", faults.Classify(err).Category)
	}

	sessions, _ := f.store.ListSessions(f.project.ID)
	if len(sessions) != 1 || sessions[0].Status != models.SessionStatusFailed {
		t.Errorf("session status = %v, want failed", sessions)
	}
}

func TestRunSessionRetriesTransientFailures(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retry = testPolicy()
	f := newFixture(t, cfg, 1)

	failures := 0
	f.runner.run = func(req *runner.UnitRequest) (*runner.UnitResult, error) {
		if failures < 2 {
			failures++
			return nil, faults.New(faults.CategoryExternalService, "service_unavailable",
				"status 503", true)
		}
		return passAll(req), nil
	}

	sess, err := f.orch.RunSession(context.Background(), f.project.ID)
	if err != nil {
		t.Fatalf("RunSession() error = %v", err)
	}
	if sess.Status != models.SessionStatusCompleted {
		t.Errorf("status = %s, want completed after retries", sess.Status)
	}
	if len(f.runner.ordinals) != 3 {
		t.Errorf("attempts = %d, want 3", len(f.runner.ordinals))
	}
}

func TestRunSessionPausesOnRetryExhaustion(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retry = testPolicy()
	f := newFixture(t, cfg, 1)

	f.runner.run = func(req *runner.UnitRequest) (*runner.UnitResult, error) {
		return nil, faults.New(faults.CategoryExternalService, "service_unavailable",
			"status 503", true)
	}

	sess, err := f.orch.RunSession(context.Background(), f.project.ID)
	if err != nil {
		t.Fatalf("RunSession() error = %v", err)
	}
	if sess.Status != models.SessionStatusPaused {
		t.Errorf("status = %s, want paused after exhaustion", sess.Status)
	}
	if len(f.runner.ordinals) != 3 {
		t.Errorf("attempts = %d, want the full budget", len(f.runner.ordinals))
	}
}

func TestRunSessionCheckpointsOnCancellation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retry = testPolicy()
	f := newFixture(t, cfg, 5)

	ctx, cancel := context.WithCancel(context.Background())
	f.runner.run = func(req *runner.UnitRequest) (*runner.UnitResult, error) {
		if req.Task.Ordinal == 2 {
			cancel()
		}
		return passAll(req), nil
	}

	sess, err := f.orch.RunSession(ctx, f.project.ID)
	if err != nil {
		t.Fatalf("RunSession() error = %v", err)
	}

	if sess.Status != models.SessionStatusCheckpointed {
		t.Errorf("status = %s, want checkpointed", sess.Status)
	}

	cp, err := f.store.LatestCheckpoint(sess.ID)
	if err != nil {
		t.Fatal("cancelled session must leave a durable checkpoint")
	}
	if cp.LastCompletedOrdinal == nil || *cp.LastCompletedOrdinal != 2 {
		t.Errorf("last completed = %v, want 2", cp.LastCompletedOrdinal)
	}
}

func TestRunSessionBlockedByPriorPause(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retry = testPolicy()
	f := newFixture(t, cfg, 1)

	prior := &models.Session{ProjectID: f.project.ID}
	if err := f.store.CreateSession(prior); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if _, err := f.gate.RequestPause(prior.ID, f.project.ID, "stuck", nil); err != nil {
		t.Fatalf("RequestPause() error = %v", err)
	}

	started := make(chan *models.Session, 1)
	errCh := make(chan error, 1)
	go func() {
		sess, err := f.orch.RunSession(context.Background(), f.project.ID)
		errCh <- err
		started <- sess
	}()

	// Resolution unblocks the session start
	time.Sleep(30 * time.Millisecond)
	if _, err := f.gate.Resolve(prior.ID); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("RunSession() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("session never started after pause resolution")
	}

	sess := <-started
	if sess.Status != models.SessionStatusCompleted {
		t.Errorf("status = %s, want completed", sess.Status)
	}
}

func TestShutdownDuringPauseWaitIsNotAnError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retry = testPolicy()
	f := newFixture(t, cfg, 1)

	prior := &models.Session{ProjectID: f.project.ID}
	if err := f.store.CreateSession(prior); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if _, err := f.gate.RequestPause(prior.ID, f.project.ID, "stuck", nil); err != nil {
		t.Fatalf("RequestPause() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	sess, err := f.orch.RunSession(ctx, f.project.ID)
	if err != nil {
		t.Fatalf("RunSession() error = %v, want nil on shutdown during the intervention wait", err)
	}
	if sess != nil {
		t.Errorf("session = %+v, want none when the wait is interrupted", sess)
	}

	sessions, _ := f.store.ListSessions(f.project.ID)
	if len(sessions) != 1 {
		t.Errorf("sessions = %d, want only the paused one", len(sessions))
	}
}

func TestRunSessionRejectsInactiveProject(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retry = testPolicy()
	f := newFixture(t, cfg, 1)

	if err := f.store.UpdateProjectStatus(f.project.ID, models.ProjectStatusCompleted); err != nil {
		t.Fatalf("UpdateProjectStatus() error = %v", err)
	}

	_, err := f.orch.RunSession(context.Background(), f.project.ID)
	if err == nil {
		t.Fatal("expected error for completed project")
	}
	if !faults.IsCategory(err, faults.CategoryValidation) {
		t.Errorf("error category = %v, want validation", faults.Classify(err).Category)
	}
}

// fixedReviewer returns a constant rating and records calls
type fixedReviewer struct {
	rating int
	calls  []bool // deep flag per call
}

func (r *fixedReviewer) Review(ctx context.Context, projectID string, sessionNumber int, deep bool) (int, error) {
	r.calls = append(r.calls, deep)
	return r.rating, nil
}

func TestFinalSessionTriggersDeepReview(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retry = testPolicy()
	f := newFixture(t, cfg, 1)

	// A prior session so the run below is #2, past the initializer
	if err := f.store.CreateSession(&models.Session{ProjectID: f.project.ID}); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	log := logging.NewLogger(logging.ERROR, false)
	log.SetOutput(io.Discard)
	reviewer := &fixedReviewer{rating: 9}
	f.orch.reviews = review.NewScheduler(f.store, reviewer, log)

	sess, err := f.orch.RunSession(context.Background(), f.project.ID)
	if err != nil {
		t.Fatalf("RunSession() error = %v", err)
	}
	if sess.Status != models.SessionStatusCompleted {
		t.Fatalf("status = %s, want completed", sess.Status)
	}

	if len(reviewer.calls) != 2 {
		t.Fatalf("review calls = %v, want quick then deep", reviewer.calls)
	}
	if reviewer.calls[0] != false || reviewer.calls[1] != true {
		t.Errorf("review calls = %v, want [quick, deep]", reviewer.calls)
	}

	number, ok, err := f.store.LastDeepReviewSession(f.project.ID)
	if err != nil || !ok {
		t.Fatalf("LastDeepReviewSession() = (ok=%v, err=%v)", ok, err)
	}
	if number != sess.Number {
		t.Errorf("deep review recorded for session %d, want %d", number, sess.Number)
	}
}

func TestFailedSessionStillGetsQualityReview(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retry = testPolicy()
	f := newFixture(t, cfg, 1)

	// A prior session so the run below is #2, past the initializer
	if err := f.store.CreateSession(&models.Session{ProjectID: f.project.ID}); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	log := logging.NewLogger(logging.ERROR, false)
	log.SetOutput(io.Discard)
	reviewer := &fixedReviewer{rating: 4}
	f.orch.reviews = review.NewScheduler(f.store, reviewer, log)

	f.runner.run = func(req *runner.UnitRequest) (*runner.UnitResult, error) {
		return nil, faults.New(faults.CategoryValidation, "bad_task",
			"task description is malformed", false)
	}

	sess, err := f.orch.RunSession(context.Background(), f.project.ID)
	if err == nil {
		t.Fatal("expected the validation error back")
	}
	if sess.Status != models.SessionStatusFailed {
		t.Fatalf("status = %s, want failed", sess.Status)
	}

	if len(reviewer.calls) != 1 || reviewer.calls[0] != false {
		t.Errorf("review calls = %v, want one quick pass after the failure", reviewer.calls)
	}
}

func TestInitializerSessionSkipsReview(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retry = testPolicy()
	f := newFixture(t, cfg, 1)

	log := logging.NewLogger(logging.ERROR, false)
	log.SetOutput(io.Discard)
	reviewer := &fixedReviewer{rating: 9}
	f.orch.reviews = review.NewScheduler(f.store, reviewer, log)

	sess, err := f.orch.RunSession(context.Background(), f.project.ID)
	if err != nil {
		t.Fatalf("RunSession() error = %v", err)
	}
	if sess.Number != 1 {
		t.Fatalf("session number = %d, want 1", sess.Number)
	}
	if len(reviewer.calls) != 0 {
		t.Errorf("review calls = %v, want none for the initializer", reviewer.calls)
	}
}

func TestCleanupStale(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retry = testPolicy()
	f := newFixture(t, cfg, 0)

	stale := &models.Session{
		ProjectID: f.project.ID,
		StartedAt: time.Now().Add(-48 * time.Hour),
	}
	if err := f.store.CreateSession(stale); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	n, err := f.orch.CleanupStale(24 * time.Hour)
	if err != nil {
		t.Fatalf("CleanupStale() error = %v", err)
	}
	if n != 1 {
		t.Errorf("cleaned = %d, want 1", n)
	}
}
