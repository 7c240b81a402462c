package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	registry        *prom.Registry
	buildDuration   *prom.HistogramVec
	buildOutcomes   *prom.CounterVec
	adapterFailures *prom.CounterVec
	retries         *prom.CounterVec
	coalesced       prom.Counter
	queueDepth      prom.Gauge
	inFlight        prom.Gauge
}

// NewPrometheusRecorder constructs and registers the devildex metrics on reg.
// A nil reg gets a fresh registry.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		registry: reg,
		buildDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "devildex",
			Name:      "build_duration_seconds",
			Help:      "Duration of docset builds by backend",
			Buckets:   prom.ExponentialBuckets(0.5, 2, 12),
		}, []string{"backend"}),
		buildOutcomes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "devildex",
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by terminal state",
		}, []string{"outcome"}),
		adapterFailures: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "devildex",
			Name:      "adapter_failures_total",
			Help:      "Adapter attempt failures by backend and failure kind",
		}, []string{"backend", "kind"}),
		retries: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "devildex",
			Name:      "build_retries_total",
			Help:      "Transient-failure retries by backend",
		}, []string{"backend"}),
		coalesced: prom.NewCounter(prom.CounterOpts{
			Namespace: "devildex",
			Name:      "builds_coalesced_total",
			Help:      "Build requests coalesced into an in-flight task",
		}),
		queueDepth: prom.NewGauge(prom.GaugeOpts{
			Namespace: "devildex",
			Name:      "queue_depth",
			Help:      "Tasks waiting for a worker",
		}),
		inFlight: prom.NewGauge(prom.GaugeOpts{
			Namespace: "devildex",
			Name:      "builds_in_flight",
			Help:      "Tasks currently queued or running",
		}),
	}
	reg.MustRegister(
		pr.buildDuration, pr.buildOutcomes, pr.adapterFailures,
		pr.retries, pr.coalesced, pr.queueDepth, pr.inFlight,
	)
	return pr
}

// Handler serves the recorder's registry over HTTP.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (p *PrometheusRecorder) ObserveBuildDuration(backend string, d time.Duration) {
	if p == nil {
		return
	}
	p.buildDuration.WithLabelValues(backend).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncBuildOutcome(outcome string) {
	if p == nil {
		return
	}
	p.buildOutcomes.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) IncAdapterFailure(backend, kind string) {
	if p == nil {
		return
	}
	p.adapterFailures.WithLabelValues(backend, kind).Inc()
}

func (p *PrometheusRecorder) IncBuildRetry(backend string) {
	if p == nil {
		return
	}
	p.retries.WithLabelValues(backend).Inc()
}

func (p *PrometheusRecorder) IncCoalesced() {
	if p == nil {
		return
	}
	p.coalesced.Inc()
}

func (p *PrometheusRecorder) SetQueueDepth(n int) {
	if p == nil {
		return
	}
	p.queueDepth.Set(float64(n))
}

func (p *PrometheusRecorder) SetInFlight(n int) {
	if p == nil {
		return
	}
	p.inFlight.Set(float64(n))
}
