// Package metrics provides the instrumentation used by the candidate pipeline.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Cache lookup results.
const (
	CacheHit  = "hit"
	CacheMiss = "miss"
)

// Usage fetch outcomes.
const (
	FetchOK      = "ok"
	FetchError   = "error"
	FetchTimeout = "timeout"
)

// Collector records pipeline events.
type Collector interface {
	// CacheLookup records a usage cache lookup with result hit or miss.
	CacheLookup(result string)
	// UsageFetch records an upstream usage lookup and its latency.
	UsageFetch(outcome string, elapsed time.Duration)
	// Excluded records an account dropped before ranking.
	Excluded(reason string)
	// OverCapacity records an account whose usage exceeds its capacity.
	OverCapacity()
	// Selection records the outcome of a candidate selection.
	Selection(outcome string)
}

// NopMetrics discards everything.
type NopMetrics struct{}

var _ Collector = (*NopMetrics)(nil)

// NewNop creates a collector that records nothing.
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

func (n *NopMetrics) CacheLookup(string)               {}
func (n *NopMetrics) UsageFetch(string, time.Duration) {}
func (n *NopMetrics) Excluded(string)                  {}
func (n *NopMetrics) OverCapacity()                    {}
func (n *NopMetrics) Selection(string)                 {}

// PrometheusCollector implements Collector backed by Prometheus.
type PrometheusCollector struct {
	cacheLookups *prometheus.CounterVec
	usageFetches *prometheus.CounterVec
	fetchLatency prometheus.Histogram
	excluded     *prometheus.CounterVec
	overCapacity prometheus.Counter
	selections   *prometheus.CounterVec
	registerOnce sync.Once
	registerer   prometheus.Registerer
}

var _ Collector = (*PrometheusCollector)(nil)

// NewPrometheus creates and registers the collectors under the given namespace.
// A nil registerer falls back to prometheus.DefaultRegisterer.
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "fcgift"
	}

	c := &PrometheusCollector{
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Usage cache lookups by result.",
		}, []string{"result"}),
		usageFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "usage",
			Name:      "fetches_total",
			Help:      "Upstream storage usage lookups by outcome.",
		}, []string{"outcome"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "usage",
			Name:      "fetch_duration_seconds",
			Help:      "Latency of upstream storage usage lookups.",
			Buckets:   prometheus.DefBuckets,
		}),
		excluded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ranking",
			Name:      "excluded_total",
			Help:      "Accounts excluded from ranking by reason.",
		}, []string{"reason"}),
		overCapacity: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ranking",
			Name:      "over_capacity_total",
			Help:      "Accounts seen with usage above capacity.",
		}),
		selections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "selection",
			Name:      "requests_total",
			Help:      "Candidate selections by outcome.",
		}, []string{"outcome"}),
		registerer: reg,
	}
	c.register()
	return c
}

func (c *PrometheusCollector) register() {
	c.registerOnce.Do(func() {
		c.registerer.MustRegister(
			c.cacheLookups,
			c.usageFetches,
			c.fetchLatency,
			c.excluded,
			c.overCapacity,
			c.selections,
		)
	})
}

func (c *PrometheusCollector) CacheLookup(result string) {
	c.cacheLookups.WithLabelValues(result).Inc()
}

func (c *PrometheusCollector) UsageFetch(outcome string, elapsed time.Duration) {
	c.usageFetches.WithLabelValues(outcome).Inc()
	c.fetchLatency.Observe(elapsed.Seconds())
}

func (c *PrometheusCollector) Excluded(reason string) {
	c.excluded.WithLabelValues(reason).Inc()
}

func (c *PrometheusCollector) OverCapacity() {
	c.overCapacity.Inc()
}

func (c *PrometheusCollector) Selection(outcome string) {
	c.selections.WithLabelValues(outcome).Inc()
}
