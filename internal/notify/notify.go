// Package notify publishes docset build events over NATS, letting other
// systems react to fresh documentation without polling the signal server.
package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/devildex/devildex/internal/config"
	"github.com/devildex/devildex/internal/docset"
	"github.com/devildex/devildex/internal/registry"
)

// BuildEvent is the wire payload published per terminal build.
type BuildEvent struct {
	TaskID      string             `json:"task_id"`
	Fingerprint docset.Fingerprint `json:"fingerprint"`
	Target      docset.Target      `json:"target"`
	State       registry.TaskState `json:"state"`
	BuildID     int64              `json:"build_id,omitempty"`
	Error       string             `json:"error,omitempty"`
	CompletedAt time.Time          `json:"completed_at"`
}

// Publisher pushes build events to a NATS subject.
type Publisher struct {
	conn    *nats.Conn
	subject string
}

// New connects to NATS per config. Returns (nil, nil) when notification is
// disabled so callers can hold a nil publisher safely.
func New(cfg config.NotifyConfig) (*Publisher, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	conn, err := nats.Connect(cfg.URL,
		nats.Name("devildex"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	slog.Info("Build event publisher connected", "url", cfg.URL, "subject", cfg.Subject)
	return &Publisher{conn: conn, subject: cfg.Subject}, nil
}

// Publish sends one build event. Nil receivers and publish errors degrade to
// a log line; notification never fails a build.
func (p *Publisher) Publish(ev BuildEvent) {
	if p == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("Encoding build event failed", "task_id", ev.TaskID, "error", err)
		return
	}
	if err := p.conn.Publish(p.subject, payload); err != nil {
		slog.Warn("Publishing build event failed", "task_id", ev.TaskID, "error", err)
		return
	}
	slog.Debug("Build event published", "subject", p.subject, "task_id", ev.TaskID, "state", ev.State)
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
