// Package metrics exposes collector progress as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rockingester"

// Pass outcomes recorded on the passes counter.
const (
	OutcomeCompleted        = "completed"
	OutcomeStoreUnavailable = "store_unavailable"
	OutcomeScanFailed       = "scan_failed"
	OutcomeCanceled         = "canceled"
)

// Collector holds the registry and instruments. A nil *Collector is valid and
// records nothing.
type Collector struct {
	registry           *prometheus.Registry
	passes             *prometheus.CounterVec
	wellsRegistered    prometheus.Counter
	filesMoved         prometheus.Counter
	filesHeld          prometheus.Counter
	filesFailed        prometheus.Counter
	directoriesRemoved prometheus.Counter
	candidatesDeferred prometheus.Counter
	lastPassDuration   prometheus.Gauge
}

// New registers the collector instruments on a fresh registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "passes_total",
			Help:      "Scan passes by outcome.",
		}, []string{"outcome"}),
		wellsRegistered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wells_registered_total",
			Help:      "Crystal well images newly registered in the metadata store.",
		}),
		filesMoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_moved_total",
			Help:      "Files moved into the ingested archive.",
		}),
		filesHeld: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_held_total",
			Help:      "Files moved into the nobarcode holding area.",
		}),
		filesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_failed_total",
			Help:      "File registrations or moves that failed and will be retried.",
		}),
		directoriesRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "directories_removed_total",
			Help:      "Source plate directories removed after being emptied.",
		}),
		candidatesDeferred: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_deferred_total",
			Help:      "Candidate directories deferred to a later pass after a lookup failure.",
		}),
		lastPassDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_pass_duration_seconds",
			Help:      "Wall time of the most recent scan pass.",
		}),
	}
	c.registry.MustRegister(
		c.passes,
		c.wellsRegistered,
		c.filesMoved,
		c.filesHeld,
		c.filesFailed,
		c.directoriesRemoved,
		c.candidatesDeferred,
		c.lastPassDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// LastPassDuration exposes the duration gauge.
func (c *Collector) LastPassDuration() prometheus.Gauge {
	if c == nil {
		return nil
	}
	return c.lastPassDuration
}

// ObservePass records a finished pass.
func (c *Collector) ObservePass(outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.passes.WithLabelValues(outcome).Inc()
	c.lastPassDuration.Set(elapsed.Seconds())
}

// Totals is the per-pass file accounting fed into the counters.
type Totals struct {
	Registered         int
	Moved              int
	Held               int
	Failed             int
	DirectoriesRemoved int
	Deferred           int
}

// Add accumulates totals into the counters.
func (c *Collector) Add(t Totals) {
	if c == nil {
		return
	}
	c.wellsRegistered.Add(float64(t.Registered))
	c.filesMoved.Add(float64(t.Moved))
	c.filesHeld.Add(float64(t.Held))
	c.filesFailed.Add(float64(t.Failed))
	c.directoriesRemoved.Add(float64(t.DirectoriesRemoved))
	c.candidatesDeferred.Add(float64(t.Deferred))
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
