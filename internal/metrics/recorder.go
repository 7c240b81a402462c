// Package metrics defines the observability hooks for the build scheduler
// and adapters. Components hold a Recorder; the noop implementation keeps
// metrics optional without nil checks at call sites.
package metrics

import "time"

// Recorder defines the scheduler and adapter metrics hooks. Implementations
// must be safe for concurrent use.
type Recorder interface {
	ObserveBuildDuration(backend string, d time.Duration)
	IncBuildOutcome(outcome string) // succeeded|failed|cancelled
	IncAdapterFailure(backend, kind string)
	IncBuildRetry(backend string)
	IncCoalesced()
	SetQueueDepth(n int)
	SetInFlight(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics are not
// configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveBuildDuration(string, time.Duration) {}
func (NoopRecorder) IncBuildOutcome(string)                     {}
func (NoopRecorder) IncAdapterFailure(string, string)           {}
func (NoopRecorder) IncBuildRetry(string)                       {}
func (NoopRecorder) IncCoalesced()                              {}
func (NoopRecorder) SetQueueDepth(int)                          {}
func (NoopRecorder) SetInFlight(int)                            {}
