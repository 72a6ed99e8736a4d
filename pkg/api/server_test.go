package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/overseerd/overseer/pkg/gate"
	"github.com/overseerd/overseer/pkg/logging"
	"github.com/overseerd/overseer/pkg/models"
	"github.com/overseerd/overseer/pkg/store"
)

func newTestServer(t *testing.T) (*Server, store.Store) {
	st := store.NewMemoryStore()
	t.Cleanup(func() { st.Close() })

	log := logging.NewLogger(logging.ERROR, false)
	log.SetOutput(io.Discard)

	return NewServer(st, gate.New(st, log), log), st
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	w := doJSON(t, s.Router(), "GET", "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestCreateAndGetProject(t *testing.T) {
	s, _ := newTestServer(t)
	router := s.Router()

	w := doJSON(t, router, "POST", "/projects", map[string]string{"name": "demo"})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}

	var created models.Project
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID == "" || created.Name != "demo" {
		t.Fatalf("created = %+v", created)
	}

	w = doJSON(t, router, "GET", "/projects/"+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	w = doJSON(t, router, "GET", "/projects/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}

	w = doJSON(t, router, "POST", "/projects", map[string]string{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for missing name", w.Code)
	}
}

func TestCreateTaskAndList(t *testing.T) {
	s, st := newTestServer(t)
	router := s.Router()

	p := &models.Project{Name: "demo"}
	st.CreateProject(p)

	w := doJSON(t, router, "POST", "/projects/"+p.ID+"/tasks", map[string]interface{}{
		"ordinal":     1,
		"description": "build the scaffold",
		"phase":       "scaffold",
		"checks":      []string{"build", "tests"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, "GET", "/projects/"+p.ID+"/tasks", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var tasks []*models.Task
	if err := json.Unmarshal(w.Body.Bytes(), &tasks); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(tasks) != 1 || len(tasks[0].Checks) != 2 {
		t.Fatalf("tasks = %+v, want one task with two checks", tasks)
	}
}

func TestSessionsAndCheckpointEndpoints(t *testing.T) {
	s, st := newTestServer(t)
	router := s.Router()

	p := &models.Project{Name: "demo"}
	st.CreateProject(p)
	sess := &models.Session{ProjectID: p.ID}
	st.CreateSession(sess)

	seven := 7
	st.SaveCheckpoint(&models.Checkpoint{
		SessionID:            sess.ID,
		ProjectID:            p.ID,
		LastCompletedOrdinal: &seven,
	})

	w := doJSON(t, router, "GET", "/projects/"+p.ID+"/sessions", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var sessions []*models.Session
	json.Unmarshal(w.Body.Bytes(), &sessions)
	if len(sessions) != 1 || sessions[0].Number != 1 {
		t.Fatalf("sessions = %+v", sessions)
	}

	w = doJSON(t, router, "GET", "/sessions/"+sess.ID+"/checkpoint", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var cp models.Checkpoint
	json.Unmarshal(w.Body.Bytes(), &cp)
	if cp.LastCompletedOrdinal == nil || *cp.LastCompletedOrdinal != 7 {
		t.Errorf("checkpoint = %+v, want last completed 7", cp)
	}

	w = doJSON(t, router, "GET", "/sessions/"+sess.ID, nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestPauseResolutionEndpoint(t *testing.T) {
	s, st := newTestServer(t)
	router := s.Router()

	p := &models.Project{Name: "demo"}
	st.CreateProject(p)
	sess := &models.Session{ProjectID: p.ID}
	st.CreateSession(sess)
	st.CreatePause(&models.PauseRecord{
		SessionID: sess.ID,
		ProjectID: p.ID,
		Reason:    "stuck",
	})

	w := doJSON(t, router, "GET", "/projects/"+p.ID+"/pauses", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var pauses []*models.PauseRecord
	json.Unmarshal(w.Body.Bytes(), &pauses)
	if len(pauses) != 1 {
		t.Fatalf("pauses = %+v, want 1", pauses)
	}

	w = doJSON(t, router, "POST", "/sessions/"+sess.ID+"/resolve", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	var resolved models.PauseRecord
	json.Unmarshal(w.Body.Bytes(), &resolved)
	if !resolved.Resolved {
		t.Error("pause should be resolved")
	}

	// Second resolve is a no-op, not an error
	w = doJSON(t, router, "POST", "/sessions/"+sess.ID+"/resolve", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 for idempotent resolve", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, st := newTestServer(t)
	router := s.Router()

	p := &models.Project{Name: "demo"}
	st.CreateProject(p)
	st.CreateSession(&models.Session{ProjectID: p.ID})

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "overseer_sessions_total") {
		t.Errorf("metrics output missing session gauge:\n%s", body)
	}
	if !strings.Contains(body, "overseer_projects_total") {
		t.Errorf("metrics output missing project gauge:\n%s", body)
	}
}
