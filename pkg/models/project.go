package models

import (
	"time"
)

// ProjectStatus represents the lifecycle state of a project
type ProjectStatus string

const (
	ProjectStatusActive    ProjectStatus = "active"
	ProjectStatusCompleted ProjectStatus = "completed"
	ProjectStatusDeleted   ProjectStatus = "deleted"
)

// Project owns an ordered backlog of tasks and all sessions run against it
type Project struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Status      ProjectStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// Task is one unit of work in a project backlog. Ordinal is the ordering
// key, unique within the project. A task cannot be completed while any of
// its checks is not passing.
type Task struct {
	ID          string      `json:"id"`
	ProjectID   string      `json:"project_id"`
	Ordinal     int         `json:"ordinal"`
	Description string      `json:"description"`
	Phase       string      `json:"phase,omitempty"` // e.g. "setup", "feature", "polish"
	Completed   bool        `json:"completed"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	Checks      []TaskCheck `json:"checks,omitempty"`
}

// TaskCheck is an individually markable verification check on a task
type TaskCheck struct {
	ID     string `json:"id"`
	TaskID string `json:"task_id"`
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
}

// ChecksPassing reports whether every check on the task has passed.
// A task with no checks is trivially passing.
func (t *Task) ChecksPassing() bool {
	for _, c := range t.Checks {
		if !c.Passed {
			return false
		}
	}
	return true
}
