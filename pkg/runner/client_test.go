package runner

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/overseerd/overseer/pkg/faults"
	"github.com/overseerd/overseer/pkg/models"
)

func testRequest() *UnitRequest {
	return &UnitRequest{
		ProjectID:     "proj-1",
		SessionID:     "sess-1",
		SessionNumber: 2,
		Task: &models.Task{
			ID:          "task-1",
			ProjectID:   "proj-1",
			Ordinal:     4,
			Description: "implement the widget",
		},
	}
}

func TestRunUnitSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/units" {
			t.Errorf("path = %s, want /units", r.URL.Path)
		}
		var req UnitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Task.Ordinal != 4 {
			t.Errorf("ordinal = %d, want 4", req.Task.Ordinal)
		}

		json.NewEncoder(w).Encode(UnitResult{
			Checks:  map[string]bool{"build": true, "tests": true},
			Summary: "widget implemented",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	result, err := client.RunUnit(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("RunUnit() error = %v", err)
	}
	if !result.Passed() {
		t.Error("result should pass with all checks true")
	}
	if result.Summary != "widget implemented" {
		t.Errorf("summary = %s", result.Summary)
	}
}

func TestRunUnitServerErrorIsRecoverable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.RunUnit(context.Background(), testRequest())
	if err == nil {
		t.Fatal("expected error")
	}

	var cerr *faults.ClassifiedError
	if !errors.As(err, &cerr) {
		t.Fatal("error should be classified")
	}
	if cerr.Category != faults.CategoryExternalService {
		t.Errorf("category = %s, want external_service", cerr.Category)
	}
	if !cerr.Recoverable {
		t.Error("5xx should be recoverable")
	}
}

func TestRunUnitClientErrorIsNotRecoverable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.RunUnit(context.Background(), testRequest())
	if err == nil {
		t.Fatal("expected error")
	}

	var cerr *faults.ClassifiedError
	if !errors.As(err, &cerr) {
		t.Fatal("error should be classified")
	}
	if cerr.Recoverable {
		t.Error("4xx must not be recoverable")
	}
}

func TestRunUnitUnreachableIsRecoverable(t *testing.T) {
	client := NewClient("http://127.0.0.1:1")
	_, err := client.RunUnit(context.Background(), testRequest())
	if err == nil {
		t.Fatal("expected error")
	}

	var cerr *faults.ClassifiedError
	if !errors.As(err, &cerr) {
		t.Fatal("error should be classified")
	}
	if !cerr.Recoverable {
		t.Error("transport failure should be recoverable")
	}
}

func TestUnitResultChecks(t *testing.T) {
	r := &UnitResult{Checks: map[string]bool{"build": true, "tests": false}}
	if r.Passed() {
		t.Error("result with a failing check must not pass")
	}
	failed := r.FailedChecks()
	if len(failed) != 1 || failed[0] != "tests" {
		t.Errorf("FailedChecks() = %v, want [tests]", failed)
	}

	empty := &UnitResult{}
	if !empty.Passed() {
		t.Error("result with no checks counts as passing")
	}
}
