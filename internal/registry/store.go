// Package registry is the durable store of projects, package snapshots and
// docset build records. It is the single owner of persisted state: the
// scheduler writes results exclusively through this API and no component
// touches the backing database directly.
package registry

import (
	"context"
	"errors"
	"time"

	"github.com/devildex/devildex/internal/docset"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("registry: not found")

// TaskState mirrors the scheduler's build task state machine in storage.
type TaskState string

const (
	TaskQueued    TaskState = "queued"
	TaskRunning   TaskState = "running"
	TaskSucceeded TaskState = "succeeded"
	TaskFailed    TaskState = "failed"
	TaskCancelled TaskState = "cancelled"
)

// Terminal reports whether the state is final for a task instance.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskSucceeded, TaskFailed, TaskCancelled:
		return true
	}
	return false
}

// Docset is the externally visible view of the latest build for one target.
type Docset struct {
	Target     docset.Target `json:"target"`
	BuildID    int64         `json:"build_id"`
	OutputPath string        `json:"output_path"`
	Status     string        `json:"status"`     // available|failed|unknown
	LastError  string        `json:"last_error"` // most recent failure reason, if any
	UpdatedAt  time.Time     `json:"updated_at"`
}

// BuildRecord is the persisted form of one build task attempt lineage.
// Terminal records are immutable; rebuilds append new records for the same
// fingerprint.
type BuildRecord struct {
	ID          string             `json:"id"`
	Fingerprint docset.Fingerprint `json:"fingerprint"`
	Target      docset.Target      `json:"target"`
	State       TaskState          `json:"state"`
	EnqueuedAt  time.Time          `json:"enqueued_at"`
	StartedAt   *time.Time         `json:"started_at,omitempty"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
	OutputPath  string             `json:"output_path,omitempty"`
	Error       string             `json:"error,omitempty"`
	Retries     int                `json:"retries"`
}

// Store is the registry contract. All write methods are transactional; a
// success record and its build id increment are observed together or not at
// all.
type Store interface {
	// Projects and package snapshots.
	RegisterProject(ctx context.Context, p docset.Project) (docset.Project, error)
	GetProject(ctx context.Context, name string) (docset.Project, error)
	ListProjects(ctx context.Context) ([]docset.Project, error)
	ReplacePackages(ctx context.Context, projectID int64, pkgs []docset.Package) error
	ListPackages(ctx context.Context, projectID int64) ([]docset.Package, error)
	FindPackage(ctx context.Context, name, version string) (docset.Package, error)

	// Build outcomes. RecordSuccess returns the new monotonic build id.
	RecordSuccess(ctx context.Context, rec BuildRecord) (int64, error)
	RecordFailure(ctx context.Context, rec BuildRecord) error
	SaveTask(ctx context.Context, rec BuildRecord) error

	// Docset views.
	GetDocset(ctx context.Context, target docset.Target) (Docset, error)
	ListDocsets(ctx context.Context) ([]Docset, error)
	ListProjectDocsets(ctx context.Context, projectID int64) ([]Docset, error)
	DeleteDocset(ctx context.Context, target docset.Target) error
	ListBuildHistory(ctx context.Context, target docset.Target, limit int) ([]BuildRecord, error)

	Close() error
}
