// Package metrics counts requests and findings with Prometheus collectors
// and writes them out in the node-exporter textfile format.
package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nao1215/surfacefuzz/internal/fetch"
	"github.com/nao1215/surfacefuzz/internal/model"
)

const namespace = "surfacefuzz"

// Recorder owns a private registry. It implements fetch.Observer and is
// safe for concurrent use.
type Recorder struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	findings *prometheus.CounterVec
	pages    *prometheus.GaugeVec
	attempts *prometheus.CounterVec
	runTime  *prometheus.GaugeVec
}

var _ fetch.Observer = (*Recorder)(nil)

// New creates a recorder with every collector registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests sent to targets, by operation and outcome.",
		}, []string{"op", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Request latency, by operation.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"op"}),
		findings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "findings_total",
			Help:      "Findings recorded, by site and kind.",
		}, []string{"site", "kind"}),
		pages: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pages",
			Help:      "Pages discovered in the last run of a site.",
		}, []string{"site"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credential_attempts_total",
			Help:      "Login attempts, by site and outcome.",
		}, []string{"site", "outcome"}),
		runTime: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of the last run of a site.",
		}, []string{"site"}),
	}
	r.registry.MustRegister(r.requests, r.latency, r.findings, r.pages, r.attempts, r.runTime)
	return r
}

// Registry exposes the registry, e.g. for promhttp.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveRequest implements fetch.Observer.
func (r *Recorder) ObserveRequest(op fetch.Operation, status int, err error, elapsed time.Duration) {
	r.requests.WithLabelValues(string(op), outcome(status, err)).Inc()
	r.latency.WithLabelValues(string(op)).Observe(elapsed.Seconds())
}

// RecordRun adds the totals of a finished run.
func (r *Recorder) RecordRun(run *model.Run) {
	site := run.SiteURL
	r.runTime.WithLabelValues(site).Set(run.Duration().Seconds())
	if run.Site == nil {
		return
	}

	r.pages.WithLabelValues(site).Set(float64(run.Site.PageCount()))
	for _, f := range run.Site.Findings() {
		r.findings.WithLabelValues(site, f.Kind.String()).Inc()
	}
	for _, a := range run.Site.Attempts() {
		r.attempts.WithLabelValues(site, string(a.Outcome)).Inc()
	}
}

// WriteTextfile writes every metric to path atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}

// outcome is "error" for transport failures, else the status class ("2xx").
func outcome(status int, err error) string {
	if err != nil || status < 100 {
		return "error"
	}
	return strconv.Itoa(status/100) + "xx"
}
