// Package semametrics exports semaphore statistics as Prometheus metrics.
package semametrics

import (
	"slices"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/notorious-go/sync/semaphore"
)

// Source is anything that can report semaphore statistics, typically a
// *semaphore.Semaphore.
type Source interface {
	Stats() semaphore.Stats
}

// SourceFunc adapts a function to Source.
type SourceFunc func() semaphore.Stats

// Stats calls f.
func (f SourceFunc) Stats() semaphore.Stats { return f() }

// Collector is a prometheus.Collector reporting on a fixed set of named
// semaphores. Every metric carries a "semaphore" label with the name.
type Collector struct {
	names   []string
	sources map[string]Source

	available *prometheus.Desc
	max       *prometheus.Desc
	waiters   *prometheus.Desc
	acquired  *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a collector for the given semaphores, keyed by name.
// Metric names are prefixed by namespace, which may be empty.
func NewCollector(namespace string, sources map[string]Source) *Collector {
	c := &Collector{
		sources: make(map[string]Source, len(sources)),
		available: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "semaphore", "permits_available"),
			"Number of permits currently available.",
			[]string{"semaphore"}, nil,
		),
		max: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "semaphore", "permits_max"),
			"Maximum number of permits.",
			[]string{"semaphore"}, nil,
		),
		waiters: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "semaphore", "waiters"),
			"Number of queued acquire requests.",
			[]string{"semaphore"}, nil,
		),
		acquired: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "semaphore", "acquisitions_total"),
			"Acquire requests by outcome.",
			[]string{"semaphore", "outcome"}, nil,
		),
	}
	for name, source := range sources {
		c.names = append(c.names, name)
		c.sources[name] = source
	}
	slices.Sort(c.names)
	return c
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.available
	ch <- c.max
	ch <- c.waiters
	ch <- c.acquired
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, name := range c.names {
		stats := c.sources[name].Stats()
		ch <- prometheus.MustNewConstMetric(c.available, prometheus.GaugeValue, float64(stats.Permits), name)
		ch <- prometheus.MustNewConstMetric(c.max, prometheus.GaugeValue, float64(stats.MaxPermits), name)
		ch <- prometheus.MustNewConstMetric(c.waiters, prometheus.GaugeValue, float64(stats.Waiters), name)
		ch <- prometheus.MustNewConstMetric(c.acquired, prometheus.CounterValue, float64(stats.Granted), name, "granted")
		ch <- prometheus.MustNewConstMetric(c.acquired, prometheus.CounterValue, float64(stats.TimedOut), name, "timed_out")
		ch <- prometheus.MustNewConstMetric(c.acquired, prometheus.CounterValue, float64(stats.Canceled), name, "canceled")
	}
}
