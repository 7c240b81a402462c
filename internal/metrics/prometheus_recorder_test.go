package metrics

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.ObserveBuildDuration("sphinx", 1500*time.Millisecond)
	pr.IncBuildOutcome("succeeded")
	pr.IncAdapterFailure("mkdocs", "non_zero_exit")
	pr.IncBuildRetry("sphinx")
	pr.IncCoalesced()
	pr.SetQueueDepth(3)
	pr.SetInFlight(2)
	// Basic scrape to ensure metrics encode without panic
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(mfs) == 0 {
		t.Fatalf("expected metrics, got none")
	}
}

func TestNoopRecorderIsRecorder(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.ObserveBuildDuration("sphinx", time.Second)
	r.IncBuildOutcome("failed")
}
