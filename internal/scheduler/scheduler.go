// Package scheduler owns build execution: a bounded worker pool, at most one
// in-flight task per fingerprint, transient-failure retries and cooperative
// cancellation. All durable state goes through the registry.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/devildex/devildex/internal/backends"
	"github.com/devildex/devildex/internal/docset"
	dderrors "github.com/devildex/devildex/internal/errors"
	"github.com/devildex/devildex/internal/fetcher"
	"github.com/devildex/devildex/internal/metrics"
	"github.com/devildex/devildex/internal/registry"
	"github.com/devildex/devildex/internal/retry"
)

// AdapterProvider yields the backend attempt chain for a package. Satisfied
// by backends.Registry; tests substitute fakes.
type AdapterProvider interface {
	Candidates(pkg docset.Package, src backends.Source) []backends.Adapter
	PinnedCandidates(kind docset.BackendKind) []backends.Adapter
	Primary(pkg docset.Package) docset.BackendKind
}

// Options wires the scheduler's collaborators and bounds.
type Options struct {
	Store        registry.Store
	Adapters     AdapterProvider
	Sources      *fetcher.Resolver
	Fingerprints docset.Resolver
	Policy       retry.Policy
	Recorder     metrics.Recorder

	// DocsetDir is the root the finished docsets are moved under.
	DocsetDir string
	// WorkDir is the scratch root for per-task build directories.
	WorkDir string

	Workers      int
	HistorySize  int
	BuildTimeout time.Duration
}

// Scheduler runs build tasks on a bounded worker pool. The pending backlog
// is unbounded in count; concurrency is capped by the pool size alone.
type Scheduler struct {
	opts Options
	rec  metrics.Recorder

	// wake nudges an idle worker after a task lands in pending.
	wake chan struct{}

	mu       sync.Mutex
	pending  []*Task
	inflight map[docset.Fingerprint]*Task
	history  []*Task

	// onTerminal runs after a task's terminal state is durably recorded.
	onTerminal func(*Task)

	stop chan struct{}
	wg   sync.WaitGroup
}

// New builds a Scheduler. Zero bounds get sensible defaults.
func New(opts Options) *Scheduler {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = 50
	}
	if opts.BuildTimeout <= 0 {
		opts.BuildTimeout = 30 * time.Minute
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}
	return &Scheduler{
		opts:     opts,
		rec:      opts.Recorder,
		wake:     make(chan struct{}, 1),
		inflight: make(map[docset.Fingerprint]*Task),
		stop:     make(chan struct{}),
	}
}

// SetOnTerminal installs the terminal-task hook. Must be called before Start.
func (s *Scheduler) SetOnTerminal(fn func(*Task)) { s.onTerminal = fn }

// Start launches the worker pool.
func (s *Scheduler) Start(ctx context.Context) {
	slog.Info("Starting build scheduler", "workers", s.opts.Workers)
	for i := 0; i < s.opts.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx, fmt.Sprintf("worker-%d", i))
	}
}

// Stop cancels all running tasks and waits for the workers to drain.
func (s *Scheduler) Stop() {
	slog.Info("Stopping build scheduler")
	close(s.stop)

	s.mu.Lock()
	for _, t := range s.inflight {
		t.cancelled = true
		if t.cancel != nil {
			t.cancel()
		}
	}
	s.mu.Unlock()

	s.wg.Wait()
	slog.Info("Build scheduler stopped")
}

// Request enqueues a build for an explicit target. The package must be known
// to the registry. A request whose fingerprint is already in flight coalesces
// into the existing task.
func (s *Scheduler) Request(ctx context.Context, target docset.Target, trigger TriggerKind) (*Handle, error) {
	target.PackageName = docset.NormalizeName(target.PackageName)
	if err := target.Validate(); err != nil {
		return nil, dderrors.ValidationFailed("target", err.Error())
	}
	pkg, err := s.opts.Store.FindPackage(ctx, target.PackageName, target.Version)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, dderrors.UnknownTarget(target.String())
		}
		return nil, err
	}
	return s.enqueue(ctx, pkg, target, true, trigger)
}

// RequestPackage enqueues a build for a package, selecting the primary
// backend via the adapter registry's policy.
func (s *Scheduler) RequestPackage(ctx context.Context, pkg docset.Package, trigger TriggerKind) (*Handle, error) {
	target := docset.Target{
		PackageName: docset.NormalizeName(pkg.Name),
		Version:     pkg.Version,
		Backend:     s.opts.Adapters.Primary(pkg),
	}
	return s.enqueue(ctx, pkg, target, false, trigger)
}

func (s *Scheduler) enqueue(ctx context.Context, pkg docset.Package, target docset.Target, pinned bool, trigger TriggerKind) (*Handle, error) {
	fp := s.opts.Fingerprints.Fingerprint(target)

	s.mu.Lock()
	if existing, ok := s.inflight[fp]; ok {
		s.mu.Unlock()
		s.rec.IncCoalesced()
		slog.Debug("Build request coalesced", "target", target, "task_id", existing.ID, "trigger", trigger)
		return &Handle{TaskID: existing.ID, Fingerprint: fp, Target: target, Coalesced: true, task: existing, s: s}, nil
	}

	task := &Task{
		ID:          uuid.NewString(),
		Fingerprint: fp,
		Target:      target,
		Package:     pkg,
		Trigger:     trigger,
		pinned:      pinned,
		State:       registry.TaskQueued,
		EnqueuedAt:  time.Now(),
		done:        make(chan struct{}),
	}
	s.inflight[fp] = task
	s.mu.Unlock()

	// Persist the queued record before the task becomes visible to workers
	// so state transitions land in order.
	if err := s.opts.Store.SaveTask(ctx, task.record()); err != nil {
		slog.Warn("Persisting queued task failed", "task_id", task.ID, "error", err)
	}

	s.mu.Lock()
	s.pending = append(s.pending, task)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
	s.updateGauges()
	slog.Info("Build task enqueued", "task_id", task.ID, "target", target, "trigger", trigger)
	return &Handle{TaskID: task.ID, Fingerprint: fp, Target: target, task: task, s: s}, nil
}

// Cancel requests cancellation of the in-flight build for a target. Queued
// tasks are dropped before execution; running tasks get their process group
// killed.
func (s *Scheduler) Cancel(target docset.Target) error {
	target.PackageName = docset.NormalizeName(target.PackageName)
	fp := s.opts.Fingerprints.Fingerprint(target)

	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.inflight[fp]
	if !ok {
		return dderrors.UnknownTarget(target.String())
	}
	task.cancelled = true
	if task.cancel != nil {
		task.cancel()
	}
	slog.Info("Build task cancellation requested", "task_id", task.ID, "target", target)
	return nil
}

// InFlight returns a snapshot of all queued and running tasks.
func (s *Scheduler) InFlight() []registry.BuildRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]registry.BuildRecord, 0, len(s.inflight))
	for _, t := range s.inflight {
		out = append(out, t.record())
	}
	return out
}

// History returns the most recent terminal tasks, newest last.
func (s *Scheduler) History() []registry.BuildRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]registry.BuildRecord, 0, len(s.history))
	for _, t := range s.history {
		out = append(out, t.record())
	}
	return out
}

// QueueLength returns the number of tasks waiting for a worker.
func (s *Scheduler) QueueLength() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// nextTask pops the oldest pending task, nil when the backlog is empty. A
// further wake is queued when more tasks remain so idle workers keep draining.
func (s *Scheduler) nextTask() *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil
	}
	task := s.pending[0]
	s.pending = s.pending[1:]
	if len(s.pending) > 0 {
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
	return task
}

func (s *Scheduler) updateGauges() {
	s.mu.Lock()
	s.rec.SetQueueDepth(len(s.pending))
	s.rec.SetInFlight(len(s.inflight))
	s.mu.Unlock()
}

// addToHistory appends a terminal task, keeping the ring bounded. Caller
// holds s.mu.
func (s *Scheduler) addToHistory(t *Task) {
	s.history = append(s.history, t)
	if len(s.history) > s.opts.HistorySize {
		copy(s.history, s.history[len(s.history)-s.opts.HistorySize:])
		s.history = s.history[:s.opts.HistorySize]
	}
}
