// Package prom exports index metrics to Prometheus.
package prom

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/hnswgraph"
)

// Collector implements hnswgraph.MetricsCollector with Prometheus metrics.
// It is itself a prometheus.Collector; register it once.
type Collector struct {
	opLatency   *prometheus.HistogramVec
	ops         *prometheus.CounterVec
	batchItems  *prometheus.CounterVec
	searchK     prometheus.Histogram
	purged      prometheus.Counter
	collectors  []prometheus.Collector
	statsSource func() hnswgraph.Stats
	statsDescs  statsDescs
}

var _ hnswgraph.MetricsCollector = (*Collector)(nil)

type statsDescs struct {
	nodes, removed, maxLevel, memory, memoryLimit, generation, arrays *prometheus.Desc
}

// Option configures a Collector.
type Option func(c *Collector)

// WithStats exports gauges read from fn on every scrape, typically idx.Stats.
// The index must outlive the registration.
func WithStats(fn func() hnswgraph.Stats) Option {
	return func(c *Collector) {
		c.statsSource = fn
	}
}

// NewCollector creates a Collector with metric names under namespace.
func NewCollector(namespace string, opts ...Option) *Collector {
	c := &Collector{
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_latency_seconds",
			Help:      "Latency of index operations",
			// From cache-hot searches to large batch inserts.
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"op", "status"}),
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Total index operations",
		}, []string{"op", "status"}),
		batchItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_insert_documents_total",
			Help:      "Documents submitted through batch inserts",
		}, []string{"status"}),
		searchK: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_k",
			Help:      "Number of neighbors requested per search",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		purged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vacuum_purged_documents_total",
			Help:      "Soft-removed documents purged by vacuum",
		}),
	}
	c.collectors = []prometheus.Collector{c.opLatency, c.ops, c.batchItems, c.searchK, c.purged}

	for _, opt := range opts {
		opt(c)
	}

	if c.statsSource != nil {
		name := func(n string) string { return prometheus.BuildFQName(namespace, "index", n) }
		c.statsDescs = statsDescs{
			nodes:       prometheus.NewDesc(name("documents"), "Searchable documents", nil, nil),
			removed:     prometheus.NewDesc(name("removed_documents"), "Soft-removed documents waiting for vacuum", nil, nil),
			maxLevel:    prometheus.NewDesc(name("max_level"), "Level of the entry point", nil, nil),
			memory:      prometheus.NewDesc(name("memory_bytes"), "Bytes reserved by the arenas", nil, nil),
			memoryLimit: prometheus.NewDesc(name("memory_limit_bytes"), "Configured memory limit, 0 if unlimited", nil, nil),
			generation:  prometheus.NewDesc(name("generation"), "Current reclamation generation", nil, nil),
			arrays:      prometheus.NewDesc(name("arena_arrays"), "Arena arrays by arena and state", []string{"arena", "state"}, nil),
		}
	}
	return c
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, col := range c.collectors {
		col.Describe(ch)
	}
	if c.statsSource != nil {
		d := c.statsDescs
		for _, desc := range []*prometheus.Desc{d.nodes, d.removed, d.maxLevel, d.memory, d.memoryLimit, d.generation, d.arrays} {
			ch <- desc
		}
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, col := range c.collectors {
		col.Collect(ch)
	}
	if c.statsSource == nil {
		return
	}

	st := c.statsSource()
	d := c.statsDescs
	ch <- prometheus.MustNewConstMetric(d.nodes, prometheus.GaugeValue, float64(st.Nodes))
	ch <- prometheus.MustNewConstMetric(d.removed, prometheus.GaugeValue, float64(st.Removed))
	ch <- prometheus.MustNewConstMetric(d.maxLevel, prometheus.GaugeValue, float64(st.MaxLevel))
	ch <- prometheus.MustNewConstMetric(d.memory, prometheus.GaugeValue, float64(st.MemoryUsage))
	ch <- prometheus.MustNewConstMetric(d.memoryLimit, prometheus.GaugeValue, float64(st.MemoryLimit))
	ch <- prometheus.MustNewConstMetric(d.generation, prometheus.GaugeValue, float64(st.Generation))

	for arena, as := range map[string]struct{ live, held, free int64 }{
		"node": {st.NodeArena.LiveArrays, st.NodeArena.HeldArrays, st.NodeArena.FreeArrays},
		"link": {st.LinkArena.LiveArrays, st.LinkArena.HeldArrays, st.LinkArena.FreeArrays},
	} {
		ch <- prometheus.MustNewConstMetric(d.arrays, prometheus.GaugeValue, float64(as.live), arena, "live")
		ch <- prometheus.MustNewConstMetric(d.arrays, prometheus.GaugeValue, float64(as.held), arena, "held")
		ch <- prometheus.MustNewConstMetric(d.arrays, prometheus.GaugeValue, float64(as.free), arena, "free")
	}
}

func status(failed bool) string {
	if failed {
		return "error"
	}
	return "success"
}

func (c *Collector) observe(op string, d time.Duration, failed bool) {
	s := status(failed)
	c.opLatency.WithLabelValues(op, s).Observe(d.Seconds())
	c.ops.WithLabelValues(op, s).Inc()
}

// RecordInsert implements hnswgraph.MetricsCollector.
func (c *Collector) RecordInsert(d time.Duration, err error) { c.observe("insert", d, err != nil) }

// RecordBatchInsert implements hnswgraph.MetricsCollector.
func (c *Collector) RecordBatchInsert(count, failed int, d time.Duration) {
	c.observe("batch_insert", d, failed > 0)
	c.batchItems.WithLabelValues("success").Add(float64(count - failed))
	c.batchItems.WithLabelValues("error").Add(float64(failed))
}

// RecordSearch implements hnswgraph.MetricsCollector.
func (c *Collector) RecordSearch(k int, d time.Duration, err error) {
	c.observe("search", d, err != nil)
	c.searchK.Observe(float64(k))
}

// RecordRemove implements hnswgraph.MetricsCollector.
func (c *Collector) RecordRemove(d time.Duration, err error) { c.observe("remove", d, err != nil) }

// RecordUpdate implements hnswgraph.MetricsCollector.
func (c *Collector) RecordUpdate(d time.Duration, err error) { c.observe("update", d, err != nil) }

// RecordVacuum implements hnswgraph.MetricsCollector.
func (c *Collector) RecordVacuum(purged int, d time.Duration, err error) {
	c.observe("vacuum", d, err != nil)
	c.purged.Add(float64(purged))
}
