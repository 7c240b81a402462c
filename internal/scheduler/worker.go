package scheduler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/devildex/devildex/internal/backends"
	"github.com/devildex/devildex/internal/docset"
	dderrors "github.com/devildex/devildex/internal/errors"
	"github.com/devildex/devildex/internal/registry"
)

func (s *Scheduler) worker(ctx context.Context, workerID string) {
	defer s.wg.Done()
	slog.Debug("Build worker started", "worker_id", workerID)

	for {
		if task := s.nextTask(); task != nil {
			s.process(ctx, task, workerID)
			continue
		}
		select {
		case <-ctx.Done():
			slog.Debug("Build worker stopped by context", "worker_id", workerID)
			return
		case <-s.stop:
			slog.Debug("Build worker stopped by stop signal", "worker_id", workerID)
			return
		case <-s.wake:
		}
	}
}

// process runs one task to a terminal state. Panics in adapter code must not
// take a worker down.
func (s *Scheduler) process(ctx context.Context, task *Task, workerID string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Build task panicked", "task_id", task.ID, "panic", r)
			s.finalize(ctx, task, registry.TaskFailed, "", fmt.Sprintf("internal panic: %v", r))
		}
	}()

	s.mu.Lock()
	if task.cancelled {
		s.mu.Unlock()
		s.finalize(ctx, task, registry.TaskCancelled, "", "cancelled before execution")
		return
	}
	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	task.cancel = cancel
	now := time.Now()
	task.StartedAt = &now
	task.State = registry.TaskRunning
	s.mu.Unlock()

	if err := s.opts.Store.SaveTask(ctx, task.record()); err != nil {
		slog.Warn("Persisting running task failed", "task_id", task.ID, "error", err)
	}
	slog.Info("Build task started", "task_id", task.ID, "target", task.Target, "worker", workerID)

	outputPath, builtBy, err := s.execute(taskCtx, task)

	switch {
	case err == nil:
		task.BuiltBackend = builtBy
		s.finalize(ctx, task, registry.TaskSucceeded, outputPath, "")
	case taskCtx.Err() != nil:
		s.finalize(ctx, task, registry.TaskCancelled, "", "cancelled")
	default:
		s.finalize(ctx, task, registry.TaskFailed, "", err.Error())
	}
}

// execute resolves the package source and walks the candidate adapter chain,
// retrying transient failures per the policy. It returns the raw adapter
// output path on success.
func (s *Scheduler) execute(ctx context.Context, task *Task) (string, docset.BackendKind, error) {
	src, err := s.resolveSource(ctx, task)
	if err != nil {
		return "", "", err
	}

	var candidates []backends.Adapter
	if task.pinned {
		candidates = s.opts.Adapters.PinnedCandidates(task.Target.Backend)
	} else {
		candidates = s.opts.Adapters.Candidates(task.Package, src)
	}
	if len(candidates) == 0 {
		return "", "", dderrors.NoAdapterAvailable(task.Target.String())
	}

	var lastFailure *backends.Failure
	for _, adapter := range candidates {
		kind := adapter.Kind()
		workdir := filepath.Join(s.opts.WorkDir, task.ID, string(kind))
		if err := os.MkdirAll(workdir, 0o755); err != nil {
			return "", "", dderrors.Wrap(err, dderrors.CategoryFileSystem, dderrors.SeverityError, "creating build workdir")
		}
		if err := adapter.Prepare(workdir); err != nil {
			return "", "", dderrors.Wrap(err, dderrors.CategoryAdapter, dderrors.SeverityError, "preparing build workdir")
		}

		attemptTarget := task.Target
		attemptTarget.Backend = kind

		for {
			started := time.Now()
			// Each invocation gets its own deadline so an expired attempt
			// stays retryable while the task context is alive.
			attemptCtx, cancelAttempt := context.WithTimeout(ctx, s.opts.BuildTimeout)
			res := adapter.Run(attemptCtx, attemptTarget, src, workdir)
			cancelAttempt()
			s.rec.ObserveBuildDuration(string(kind), time.Since(started))
			if res.OK() {
				return res.OutputPath, kind, nil
			}

			lastFailure = res.Failure
			s.rec.IncAdapterFailure(string(kind), string(res.Failure.Kind))
			if ctx.Err() != nil {
				return "", "", res.Failure
			}
			if !res.Failure.Kind.Transient() || task.Retries >= s.opts.Policy.MaxRetries {
				slog.Warn("Backend attempt failed",
					"task_id", task.ID, "backend", kind, "kind", res.Failure.Kind, "error", res.Failure.Message)
				break
			}

			s.mu.Lock()
			task.Retries++
			retries := task.Retries
			s.mu.Unlock()
			s.rec.IncBuildRetry(string(kind))
			delay := s.opts.Policy.Delay(retries)
			slog.Warn("Transient backend failure, retrying",
				"task_id", task.ID, "backend", kind, "attempt", retries, "delay", delay, "error", res.Failure.Message)
			if !sleepCtx(ctx, delay) {
				return "", "", res.Failure
			}
		}
	}
	return "", "", lastFailure
}

// resolveSource fetches the package source, retrying transient fetch errors.
func (s *Scheduler) resolveSource(ctx context.Context, task *Task) (backends.Source, error) {
	for {
		fetchCtx, cancelFetch := context.WithTimeout(ctx, s.opts.BuildTimeout)
		src, err := s.opts.Sources.Resolve(fetchCtx, task.Package)
		cancelFetch()
		if err == nil {
			return src, nil
		}
		if ctx.Err() != nil || !dderrors.IsRetryable(err) || task.Retries >= s.opts.Policy.MaxRetries {
			return backends.Source{}, err
		}
		s.mu.Lock()
		task.Retries++
		retries := task.Retries
		s.mu.Unlock()
		s.rec.IncBuildRetry("fetch")
		delay := s.opts.Policy.Delay(retries)
		slog.Warn("Source fetch failed, retrying",
			"task_id", task.ID, "package", task.Package.Name, "attempt", retries, "delay", delay, "error", err)
		if !sleepCtx(ctx, delay) {
			return backends.Source{}, err
		}
	}
}

// finalize records the terminal state, publishes the docset output on
// success and releases the fingerprint.
func (s *Scheduler) finalize(ctx context.Context, task *Task, state registry.TaskState, outputPath, errMsg string) {
	now := time.Now()

	if state == registry.TaskSucceeded {
		dest := s.docsetPath(task.Target)
		if err := installOutput(outputPath, dest); err != nil {
			state = registry.TaskFailed
			errMsg = "installing build output: " + err.Error()
			outputPath = ""
		} else {
			outputPath = dest
		}
	}

	s.mu.Lock()
	task.State = state
	task.CompletedAt = &now
	task.OutputPath = outputPath
	task.Error = errMsg
	delete(s.inflight, task.Fingerprint)
	s.addToHistory(task)
	s.mu.Unlock()

	// Persist and, on success, bump the docset's build id atomically. A
	// success the registry never recorded must not stand: no build id was
	// issued, so the task fails and no success signal goes out.
	switch state {
	case registry.TaskSucceeded:
		buildID, err := s.opts.Store.RecordSuccess(ctx, task.record())
		if err != nil {
			slog.Error("Recording build success failed", "task_id", task.ID, "error", err)
			state = registry.TaskFailed
			errMsg = "recording build success: " + err.Error()
			s.mu.Lock()
			task.State = state
			task.OutputPath = ""
			task.Error = errMsg
			s.mu.Unlock()
			if err := s.opts.Store.RecordFailure(ctx, task.record()); err != nil {
				slog.Error("Recording build failure failed", "task_id", task.ID, "error", err)
			}
		} else {
			s.mu.Lock()
			task.BuildID = buildID
			s.mu.Unlock()
		}
	default:
		if err := s.opts.Store.RecordFailure(ctx, task.record()); err != nil {
			slog.Error("Recording build failure failed", "task_id", task.ID, "error", err)
		}
	}

	os.RemoveAll(filepath.Join(s.opts.WorkDir, task.ID))
	s.rec.IncBuildOutcome(string(state))
	s.updateGauges()

	var duration time.Duration
	if task.StartedAt != nil {
		duration = now.Sub(*task.StartedAt)
	}
	switch state {
	case registry.TaskSucceeded:
		slog.Info("Build task completed",
			"task_id", task.ID, "target", task.Target, "build_id", task.BuildID,
			"backend", task.BuiltBackend, "duration", duration)
	case registry.TaskCancelled:
		slog.Info("Build task cancelled", "task_id", task.ID, "target", task.Target, "duration", duration)
	default:
		slog.Error("Build task failed",
			"task_id", task.ID, "target", task.Target, "duration", duration, "error", errMsg)
	}

	close(task.done)
	if s.onTerminal != nil {
		s.onTerminal(task)
	}
}

// docsetPath is the durable location of a target's published docset.
func (s *Scheduler) docsetPath(t docset.Target) string {
	return filepath.Join(s.opts.DocsetDir, docset.NormalizeName(t.PackageName), t.Version, string(t.Backend))
}

// installOutput moves the finished docset into place, replacing any previous
// build. Rename is preferred; a copy handles cross-device moves.
func installOutput(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	if err := os.RemoveAll(dest); err != nil {
		return err
	}
	if err := os.Rename(src, dest); err == nil {
		return nil
	}
	return copyTree(src, dest)
}

func copyTree(src, dest string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()
		out, err := os.Create(target)
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, in); err != nil {
			out.Close()
			return err
		}
		return out.Close()
	})
}

// sleepCtx sleeps for d, returning false when ctx expires first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
