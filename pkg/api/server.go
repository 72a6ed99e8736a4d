// Package api exposes the orchestration state over HTTP for operators
// and tooling: project and session inspection, pause resolution, and
// metrics.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/overseerd/overseer/pkg/faults"
	"github.com/overseerd/overseer/pkg/gate"
	"github.com/overseerd/overseer/pkg/logging"
	"github.com/overseerd/overseer/pkg/metrics"
	"github.com/overseerd/overseer/pkg/models"
	"github.com/overseerd/overseer/pkg/store"
)

// Server handles the HTTP API
type Server struct {
	store store.Store
	gate  *gate.Gate
	log   *logging.Logger
}

// NewServer creates an API server
func NewServer(st store.Store, g *gate.Gate, log *logging.Logger) *Server {
	return &Server{store: st, gate: g, log: log}
}

// Router builds the HTTP routes
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.Handle("/metrics", metrics.Handler(s.store, s.log)).Methods("GET")

	r.HandleFunc("/projects", s.handleListProjects).Methods("GET")
	r.HandleFunc("/projects", s.handleCreateProject).Methods("POST")
	r.HandleFunc("/projects/{id}", s.handleGetProject).Methods("GET")
	r.HandleFunc("/projects/{id}/tasks", s.handleListTasks).Methods("GET")
	r.HandleFunc("/projects/{id}/tasks", s.handleCreateTask).Methods("POST")
	r.HandleFunc("/projects/{id}/sessions", s.handleListSessions).Methods("GET")
	r.HandleFunc("/projects/{id}/pauses", s.handleListPauses).Methods("GET")

	r.HandleFunc("/sessions/{id}", s.handleGetSession).Methods("GET")
	r.HandleFunc("/sessions/{id}/checkpoint", s.handleGetCheckpoint).Methods("GET")
	r.HandleFunc("/sessions/{id}/resolve", s.handleResolvePause).Methods("POST")

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.ListProjects()
	if err != nil {
		s.writeError(w, err)
		return
	}
	if projects == nil {
		projects = []*models.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	p := &models.Project{Name: req.Name}
	if err := s.store.CreateProject(p); err != nil {
		s.writeError(w, err)
		return
	}
	s.log.Info("project created", map[string]interface{}{
		"project_id": p.ID,
		"name":       p.Name,
	})
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetProject(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.store.ListTasks(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	if tasks == nil {
		tasks = []*models.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["id"]
	if _, err := s.store.GetProject(projectID); err != nil {
		s.writeError(w, err)
		return
	}

	var req struct {
		Ordinal     int      `json:"ordinal"`
		Description string   `json:"description"`
		Phase       string   `json:"phase"`
		Checks      []string `json:"checks"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Description == "" {
		http.Error(w, "description is required", http.StatusBadRequest)
		return
	}

	t := &models.Task{
		ProjectID:   projectID,
		Ordinal:     req.Ordinal,
		Description: req.Description,
		Phase:       req.Phase,
	}
	for _, name := range req.Checks {
		t.Checks = append(t.Checks, models.TaskCheck{Name: name})
	}
	if err := s.store.CreateTask(t); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.ListSessions(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	if sessions == nil {
		sessions = []*models.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleListPauses(w http.ResponseWriter, r *http.Request) {
	pauses, err := s.gate.ActivePauses(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	if pauses == nil {
		pauses = []*models.PauseRecord{}
	}
	writeJSON(w, http.StatusOK, pauses)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.GetSession(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleGetCheckpoint(w http.ResponseWriter, r *http.Request) {
	cp, err := s.store.LatestCheckpoint(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cp)
}

func (s *Server) handleResolvePause(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	p, err := s.gate.Resolve(sessionID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if p == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"session_id": sessionID,
			"resolved":   false,
			"message":    "no unresolved pause for session",
		})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrProjectNotFound),
		errors.Is(err, store.ErrTaskNotFound),
		errors.Is(err, store.ErrSessionNotFound),
		errors.Is(err, store.ErrCheckpointNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	var cerr *faults.ClassifiedError
	if errors.As(err, &cerr) && cerr.Category == faults.CategoryValidation {
		writeJSON(w, http.StatusConflict, cerr.Export())
		return
	}

	s.log.Error("request failed", map[string]interface{}{"error": err.Error()})
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
