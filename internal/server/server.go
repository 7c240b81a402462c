// Package server exposes the daemon's HTTP surface: the pollable build-id
// signal, the rebuild trigger, docset browsing, livereload SSE and the
// status page.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/devildex/devildex/internal/config"
	"github.com/devildex/devildex/internal/docset"
	dderrors "github.com/devildex/devildex/internal/errors"
	"github.com/devildex/devildex/internal/registry"
	"github.com/devildex/devildex/internal/scheduler"
)

// Server serves the HTTP API over one listener.
type Server struct {
	cfg       config.ServerConfig
	store     registry.Store
	sched     *scheduler.Scheduler
	hub       *LiveReloadHub
	signals   *SignalWriter
	metricsH  http.Handler
	docsetDir string
	startTime time.Time

	httpServer *http.Server
}

// New assembles the server. metricsHandler may be nil to disable /metrics.
func New(cfg config.ServerConfig, store registry.Store, sched *scheduler.Scheduler,
	hub *LiveReloadHub, signals *SignalWriter, metricsHandler http.Handler, docsetDir string) *Server {
	return &Server{
		cfg:       cfg,
		store:     store,
		sched:     sched,
		hub:       hub,
		signals:   signals,
		metricsH:  metricsHandler,
		docsetDir: docsetDir,
		startTime: time.Now(),
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.Handle("GET /livereload", s.hub)
	if s.metricsH != nil {
		mux.Handle("GET /metrics", s.metricsH)
	}

	mux.HandleFunc("GET /api/docsets", s.handleListDocsets)
	mux.HandleFunc("GET /api/docsets/{name}/{version}/{backend}/buildid", s.handleBuildID)
	// The trigger accepts GET so a viewer can fire it with a plain link.
	mux.HandleFunc("GET /api/docsets/{name}/{version}/{backend}/rebuild", s.handleRebuild)
	mux.HandleFunc("POST /api/docsets/{name}/{version}/{backend}/rebuild", s.handleRebuild)
	mux.HandleFunc("POST /api/docsets/{name}/{version}/{backend}/cancel", s.handleCancel)
	mux.HandleFunc("DELETE /api/docsets/{name}/{version}/{backend}", s.handleDelete)
	mux.HandleFunc("GET /api/tasks", s.handleTasks)

	mux.Handle("GET /docs/", http.StripPrefix("/docs/", http.FileServer(http.Dir(s.docsetDir))))

	return mux
}

// Start binds the listener and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("binding %s: %w", s.cfg.Addr(), err)
	}
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP server listening", "addr", ln.Addr().String())
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "error", err)
		}
	}()
	return nil
}

// Shutdown stops the SSE hub and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Shutdown()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"uptime":  time.Since(s.startTime).Round(time.Second).String(),
		"clients": s.hub.ClientCount(),
		"queue":   s.sched.QueueLength(),
	})
}

func (s *Server) handleListDocsets(w http.ResponseWriter, r *http.Request) {
	docsets, err := s.store.ListDocsets(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, docsets)
}

// handleBuildID serves the pollable signal: the current build id for one
// docset as plain text.
func (s *Server) handleBuildID(w http.ResponseWriter, r *http.Request) {
	target, err := pathTarget(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ds, err := s.store.GetDocset(r.Context(), target)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			writeError(w, dderrors.DocsetNotFound(target.String()))
			return
		}
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	fmt.Fprintf(w, "%d\n", ds.BuildID)
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	target, err := pathTarget(r)
	if err != nil {
		writeError(w, err)
		return
	}
	handle, err := s.sched.Request(r.Context(), target, scheduler.TriggerSignal)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"task_id":   handle.TaskID,
		"target":    target.String(),
		"coalesced": handle.Coalesced,
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	target, err := pathTarget(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.sched.Cancel(target); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"target": target.String(), "cancelled": true})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	target, err := pathTarget(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ds, err := s.store.GetDocset(r.Context(), target)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			writeError(w, dderrors.DocsetNotFound(target.String()))
			return
		}
		writeError(w, err)
		return
	}
	if err := s.store.DeleteDocset(r.Context(), target); err != nil {
		writeError(w, err)
		return
	}
	if ds.OutputPath != "" {
		if err := os.RemoveAll(ds.OutputPath); err != nil {
			slog.Warn("Removing docset output failed", "target", target, "error", err)
		}
	}
	if err := s.signals.Remove(target); err != nil {
		slog.Warn("Removing signal artifact failed", "target", target, "error", err)
	}
	slog.Info("Docset deleted", "target", target)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"in_flight": s.sched.InFlight(),
		"history":   s.sched.History(),
	})
}

// pathTarget extracts and validates the docset target from route wildcards.
func pathTarget(r *http.Request) (docset.Target, error) {
	backend, err := docset.ParseBackendKind(r.PathValue("backend"))
	if err != nil {
		return docset.Target{}, dderrors.ValidationFailed("backend", err.Error())
	}
	t := docset.Target{
		PackageName: docset.NormalizeName(r.PathValue("name")),
		Version:     r.PathValue("version"),
		Backend:     backend,
	}
	if err := t.Validate(); err != nil {
		return docset.Target{}, dderrors.ValidationFailed("target", err.Error())
	}
	return t, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Debug("Encoding response failed", "error", err)
	}
}

// writeError maps the structured error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if dde, ok := err.(*dderrors.DevilDexError); ok {
		switch {
		case dde.Category == dderrors.CategoryValidation, dde.Category == dderrors.CategoryScanInput:
			status = http.StatusBadRequest
		case dde.Category == dderrors.CategoryScheduler, dde.Category == dderrors.CategoryRegistry:
			status = http.StatusNotFound
		}
	}
	writeJSON(w, status, map[string]any{"error": err.Error()})
}
