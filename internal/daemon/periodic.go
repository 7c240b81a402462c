package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/devildex/devildex/internal/registry"
	"github.com/devildex/devildex/internal/scheduler"
)

// PeriodicRebuilder re-enqueues builds for every known docset on an
// interval, keeping documentation fresh as generator versions move.
type PeriodicRebuilder struct {
	cron  gocron.Scheduler
	store registry.Store
	sched *scheduler.Scheduler

	mu  sync.Mutex
	job gocron.Job
}

func NewPeriodicRebuilder(store registry.Store, sched *scheduler.Scheduler) (*PeriodicRebuilder, error) {
	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("creating cron scheduler: %w", err)
	}
	return &PeriodicRebuilder{cron: cron, store: store, sched: sched}, nil
}

// Start schedules the rebuild job. A non-positive interval disables it.
func (p *PeriodicRebuilder) Start(interval time.Duration) {
	p.Reschedule(interval)
	p.cron.Start()
}

// Reschedule replaces the rebuild job with a new interval. Zero removes it.
func (p *PeriodicRebuilder) Reschedule(interval time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.job != nil {
		if err := p.cron.RemoveJob(p.job.ID()); err != nil {
			slog.Warn("Removing rebuild job failed", "error", err)
		}
		p.job = nil
	}
	if interval <= 0 {
		slog.Info("Periodic rebuild disabled")
		return
	}

	job, err := p.cron.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(p.rebuildAll),
		gocron.WithName("periodic-rebuild"),
	)
	if err != nil {
		slog.Error("Scheduling periodic rebuild failed", "error", err)
		return
	}
	p.job = job
	slog.Info("Periodic rebuild scheduled", "interval", interval)
}

// Stop shuts the cron scheduler down.
func (p *PeriodicRebuilder) Stop() error {
	return p.cron.Shutdown()
}

// rebuildAll enqueues a refresh for every docset in the registry. Coalesced
// requests are expected: an in-flight build already covers the refresh.
func (p *PeriodicRebuilder) rebuildAll() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	docsets, err := p.store.ListDocsets(ctx)
	if err != nil {
		slog.Error("Listing docsets for periodic rebuild failed", "error", err)
		return
	}

	enqueued := 0
	for _, ds := range docsets {
		handle, err := p.sched.Request(ctx, ds.Target, scheduler.TriggerScheduled)
		if err != nil {
			slog.Warn("Periodic rebuild enqueue failed", "target", ds.Target, "error", err)
			continue
		}
		if !handle.Coalesced {
			enqueued++
		}
	}
	slog.Info("Periodic rebuild tick", "docsets", len(docsets), "enqueued", enqueued)
}
