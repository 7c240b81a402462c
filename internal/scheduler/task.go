package scheduler

import (
	"context"
	"time"

	"github.com/devildex/devildex/internal/docset"
	"github.com/devildex/devildex/internal/registry"
)

// TriggerKind records what caused a build task to be enqueued.
type TriggerKind string

const (
	TriggerManual    TriggerKind = "manual"    // CLI or API request
	TriggerIngest    TriggerKind = "ingest"    // new package snapshot
	TriggerSignal    TriggerKind = "signal"    // rebuild trigger endpoint
	TriggerScheduled TriggerKind = "scheduled" // periodic refresh job
)

// Task is one build in flight: at most one task exists per fingerprint at any
// time. Mutable fields are guarded by the scheduler's mutex.
type Task struct {
	ID          string
	Fingerprint docset.Fingerprint
	Target      docset.Target
	Package     docset.Package
	Trigger     TriggerKind

	// pinned marks an explicit backend request: only that backend and the
	// fetch fallback are attempted.
	pinned bool

	State        registry.TaskState
	EnqueuedAt   time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	OutputPath   string
	BuildID      int64
	Error        string
	Retries      int
	BuiltBackend docset.BackendKind // backend that actually produced output

	cancel    context.CancelFunc
	cancelled bool
	done      chan struct{}
}

// record converts the task into its persisted form.
func (t *Task) record() registry.BuildRecord {
	return registry.BuildRecord{
		ID:          t.ID,
		Fingerprint: t.Fingerprint,
		Target:      t.Target,
		State:       t.State,
		EnqueuedAt:  t.EnqueuedAt,
		StartedAt:   t.StartedAt,
		CompletedAt: t.CompletedAt,
		OutputPath:  t.OutputPath,
		Error:       t.Error,
		Retries:     t.Retries,
	}
}

// Handle is the caller's view of an enqueued (or coalesced-into) task.
type Handle struct {
	TaskID      string
	Fingerprint docset.Fingerprint
	Target      docset.Target
	// Coalesced reports that the request joined an already in-flight build
	// instead of enqueuing a new one.
	Coalesced bool

	task *Task
	s    *Scheduler
}

// Done returns a channel closed when the task reaches a terminal state.
func (h *Handle) Done() <-chan struct{} { return h.task.done }

// Wait blocks until the task terminates or ctx expires, returning the final
// state.
func (h *Handle) Wait(ctx context.Context) (registry.TaskState, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-h.task.done:
		return h.Snapshot().State, nil
	}
}

// Snapshot returns a copy of the task's current record.
func (h *Handle) Snapshot() registry.BuildRecord {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	return h.task.record()
}
