// Package daemon wires the registry, adapter registry, scheduler and HTTP
// server into one long-running service.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/devildex/devildex/internal/backends"
	"github.com/devildex/devildex/internal/config"
	"github.com/devildex/devildex/internal/docset"
	"github.com/devildex/devildex/internal/fetcher"
	"github.com/devildex/devildex/internal/metrics"
	"github.com/devildex/devildex/internal/notify"
	"github.com/devildex/devildex/internal/registry"
	"github.com/devildex/devildex/internal/scanner"
	"github.com/devildex/devildex/internal/scheduler"
	"github.com/devildex/devildex/internal/server"
)

// Daemon owns the service lifecycle.
type Daemon struct {
	cfg   *config.Config
	store registry.Store
	sched *scheduler.Scheduler
	srv   *server.Server

	hub       *server.LiveReloadHub
	signals   *server.SignalWriter
	publisher *notify.Publisher
	periodic  *PeriodicRebuilder
	watcher   *ConfigWatcher

	startTime time.Time
}

// New assembles a daemon from configuration. configPath enables hot reload
// when non-empty.
func New(cfg *config.Config, configPath string) (*Daemon, error) {
	store, err := registry.NewSQLiteStore(filepath.Join(cfg.DataDir, "registry.db"))
	if err != nil {
		return nil, fmt.Errorf("opening registry: %w", err)
	}

	recorder := metrics.NewPrometheusRecorder(nil)
	adapters := backends.NewRegistry(cfg.Backends)
	sources := fetcher.New(cfg.Backends.FetchDir)

	sched := scheduler.New(scheduler.Options{
		Store:    store,
		Adapters: adapters,
		Sources:  sources,
		Fingerprints: docset.Resolver{
			AdapterVersion: backends.AdapterVersion,
			ThemeVersion:   cfg.Backends.ThemeVersion,
		},
		Policy:       cfg.Retry.Policy(),
		Recorder:     recorder,
		DocsetDir:    cfg.DocsetDir,
		WorkDir:      filepath.Join(cfg.DataDir, "work"),
		Workers:      cfg.Scheduler.Workers,
		HistorySize:  cfg.Scheduler.HistorySize,
		BuildTimeout: cfg.Scheduler.BuildTimeout.Std(),
	})

	publisher, err := notify.New(cfg.Notify)
	if err != nil {
		store.Close()
		return nil, err
	}

	hub := server.NewLiveReloadHub()
	signals := server.NewSignalWriter(cfg.DocsetDir)
	srv := server.New(cfg.Server, store, sched, hub, signals, recorder.Handler(), cfg.DocsetDir)

	d := &Daemon{
		cfg:       cfg,
		store:     store,
		sched:     sched,
		srv:       srv,
		hub:       hub,
		signals:   signals,
		publisher: publisher,
		startTime: time.Now(),
	}
	sched.SetOnTerminal(d.onTerminal)

	d.periodic, err = NewPeriodicRebuilder(store, sched)
	if err != nil {
		store.Close()
		return nil, err
	}

	if configPath != "" {
		d.watcher, err = NewConfigWatcher(configPath, d)
		if err != nil {
			store.Close()
			return nil, err
		}
	}
	return d, nil
}

// Run starts all components and blocks until ctx is cancelled, then shuts
// everything down in reverse order.
func (d *Daemon) Run(ctx context.Context) error {
	slog.Info("Starting devildex daemon", "data_dir", d.cfg.DataDir, "docset_dir", d.cfg.DocsetDir)

	d.sched.Start(ctx)
	if err := d.srv.Start(); err != nil {
		d.sched.Stop()
		return err
	}
	d.periodic.Start(d.cfg.Schedule.RebuildInterval.Std())
	if d.watcher != nil {
		if err := d.watcher.Start(ctx); err != nil {
			slog.Warn("Config watcher failed to start", "error", err)
		}
	}

	<-ctx.Done()
	slog.Info("Shutting down devildex daemon")

	if d.watcher != nil {
		d.watcher.Stop()
	}
	if err := d.periodic.Stop(); err != nil {
		slog.Warn("Stopping periodic rebuilder failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := d.srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown failed", "error", err)
	}
	d.sched.Stop()
	d.publisher.Close()
	if err := d.store.Close(); err != nil {
		slog.Warn("Closing registry failed", "error", err)
	}
	slog.Info("Daemon stopped", "uptime", time.Since(d.startTime).Round(time.Second))
	return nil
}

// onTerminal publishes the outcome of every finished build: signal artifact
// and livereload on success, a build event either way.
func (d *Daemon) onTerminal(task *scheduler.Task) {
	if task.State == registry.TaskSucceeded {
		if err := d.signals.Write(task.Target, task.BuildID); err != nil {
			slog.Warn("Writing signal artifact failed", "target", task.Target, "error", err)
		}
		d.hub.Broadcast(server.ReloadEvent{Target: task.Target, BuildID: task.BuildID})
	}

	var completed time.Time
	if task.CompletedAt != nil {
		completed = *task.CompletedAt
	}
	d.publisher.Publish(notify.BuildEvent{
		TaskID:      task.ID,
		Fingerprint: task.Fingerprint,
		Target:      task.Target,
		State:       task.State,
		BuildID:     task.BuildID,
		Error:       task.Error,
		CompletedAt: completed,
	})
}

// Ingest registers a project snapshot and enqueues builds for every package
// in it. Coalesced and queue-full outcomes are logged, not fatal.
func (d *Daemon) Ingest(ctx context.Context, result *scanner.ScanResult) (int, error) {
	project, err := d.store.RegisterProject(ctx, result.Project)
	if err != nil {
		return 0, err
	}
	if err := d.store.ReplacePackages(ctx, project.ID, result.Packages); err != nil {
		return 0, err
	}
	slog.Info("Project snapshot ingested",
		"project", project.Name, "packages", len(result.Packages))

	enqueued := 0
	for _, pkg := range result.Packages {
		handle, err := d.sched.RequestPackage(ctx, pkg, scheduler.TriggerIngest)
		if err != nil {
			slog.Warn("Enqueuing build failed", "package", pkg.Name, "version", pkg.Version, "error", err)
			continue
		}
		if !handle.Coalesced {
			enqueued++
		}
	}
	return enqueued, nil
}

// applyReload applies a successfully parsed new configuration. Only the
// hot-appliable parts take effect; bounds like worker count need a restart.
func (d *Daemon) applyReload(cfg *config.Config) {
	old := d.cfg
	d.cfg = cfg

	if old.Schedule.RebuildInterval != cfg.Schedule.RebuildInterval {
		d.periodic.Reschedule(cfg.Schedule.RebuildInterval.Std())
	}
	if old.Scheduler.Workers != cfg.Scheduler.Workers {
		slog.Warn("Worker count change requires a restart",
			"current", old.Scheduler.Workers, "new", cfg.Scheduler.Workers)
	}
	slog.Info("Configuration reloaded")
}
