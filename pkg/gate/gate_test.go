package gate

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/overseerd/overseer/pkg/faults"
	"github.com/overseerd/overseer/pkg/logging"
	"github.com/overseerd/overseer/pkg/models"
	"github.com/overseerd/overseer/pkg/store"
)

func newGate(t *testing.T) (*Gate, store.Store, *models.Session) {
	st := store.NewMemoryStore()
	t.Cleanup(func() { st.Close() })

	p := &models.Project{Name: "demo"}
	if err := st.CreateProject(p); err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	sess := &models.Session{ProjectID: p.ID}
	if err := st.CreateSession(sess); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	log := logging.NewLogger(logging.ERROR, false)
	log.SetOutput(io.Discard)

	g := New(st, log)
	g.PollInterval = 10 * time.Millisecond
	return g, st, sess
}

func TestRequestPauseOnlyOneUnresolved(t *testing.T) {
	g, _, sess := newGate(t)

	if _, err := g.RequestPause(sess.ID, sess.ProjectID, "stuck", nil); err != nil {
		t.Fatalf("RequestPause() error = %v", err)
	}

	_, err := g.RequestPause(sess.ID, sess.ProjectID, "still stuck", nil)
	if err == nil {
		t.Fatal("second unresolved pause must be rejected")
	}
	if !faults.IsCategory(err, faults.CategoryValidation) {
		t.Errorf("error category = %v, want validation", faults.Classify(err).Category)
	}
}

func TestResolveIdempotent(t *testing.T) {
	g, _, sess := newGate(t)

	if _, err := g.RequestPause(sess.ID, sess.ProjectID, "stuck", nil); err != nil {
		t.Fatalf("RequestPause() error = %v", err)
	}

	p, err := g.Resolve(sess.ID)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if p == nil || !p.Resolved {
		t.Fatalf("resolved = %+v, want resolved record", p)
	}

	p, err = g.Resolve(sess.ID)
	if err != nil {
		t.Fatalf("second Resolve() error = %v", err)
	}
	if p != nil {
		t.Errorf("second resolve = %+v, want nil", p)
	}
}

func TestWaitReturnsImmediatelyWithoutPause(t *testing.T) {
	g, _, sess := newGate(t)

	resolved, err := g.Wait(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if !resolved {
		t.Error("Wait() with no pending pause should report resolved")
	}
}

func TestWaitUnblocksOnResolve(t *testing.T) {
	g, _, sess := newGate(t)

	if _, err := g.RequestPause(sess.ID, sess.ProjectID, "stuck", nil); err != nil {
		t.Fatalf("RequestPause() error = %v", err)
	}

	done := make(chan struct{})
	var resolved bool
	var waitErr error
	go func() {
		resolved, waitErr = g.Wait(context.Background(), sess.ID)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	if _, err := g.Resolve(sess.ID); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait() did not unblock after resolution")
	}
	if waitErr != nil {
		t.Fatalf("Wait() error = %v", waitErr)
	}
	if !resolved {
		t.Error("Wait() should report resolved")
	}
}

func TestWaitStopsOnCancel(t *testing.T) {
	g, _, sess := newGate(t)

	if _, err := g.RequestPause(sess.ID, sess.ProjectID, "stuck", nil); err != nil {
		t.Fatalf("RequestPause() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	var resolved bool
	var waitErr error
	go func() {
		resolved, waitErr = g.Wait(ctx, sess.ID)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait() did not return after cancellation")
	}
	if waitErr != nil {
		t.Fatalf("Wait() error = %v", waitErr)
	}
	if resolved {
		t.Error("cancelled Wait() must not report resolved")
	}
}
