// Package prom exports tiercache metrics to Prometheus.
//
// A Collector is both a tiercache.MetricsCollector (operation counters and
// latencies) and a prometheus.Collector that snapshots Cache.Stats on scrape:
//
//	col := prom.New()
//	c, _ := tiercache.New[string](tiercache.WithMetricsCollector(col))
//	col.Attach(c)
//	prometheus.MustRegister(col)
package prom

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/tiercache"
)

// StatsSource is implemented by *tiercache.Cache.
type StatsSource interface {
	Stats() tiercache.Stats
}

// Options configures a Collector.
type Options struct {
	Namespace string
	// ConstLabels are added to every metric.
	ConstLabels prometheus.Labels
	Buckets     []float64
}

// Option configures a Collector.
type Option func(*Options)

// WithNamespace sets the metric name prefix (default "tiercache").
func WithNamespace(ns string) Option {
	return func(o *Options) { o.Namespace = ns }
}

// WithConstLabels adds labels to every metric, e.g. to tell caches apart.
func WithConstLabels(l prometheus.Labels) Option {
	return func(o *Options) { o.ConstLabels = l }
}

// WithBuckets sets the latency histogram buckets in seconds.
func WithBuckets(b []float64) Option {
	return func(o *Options) { o.Buckets = b }
}

// Collector records cache operations as Prometheus metrics.
type Collector struct {
	gets        *prometheus.CounterVec
	getDuration prometheus.Histogram
	sets        *prometheus.CounterVec
	setFailures *prometheus.CounterVec
	setDuration prometheus.Histogram
	removals    *prometheus.CounterVec
	similarity  *prometheus.CounterVec
	simDuration prometheus.Histogram

	entries     *prometheus.Desc
	sizeBytes   *prometheus.Desc
	capacity    *prometheus.Desc
	tierHits    *prometheus.Desc
	tierMisses  *prometheus.Desc
	hitRate     *prometheus.Desc
	indexedKeys *prometheus.Desc

	source atomic.Pointer[StatsSource]
}

var (
	_ tiercache.MetricsCollector = (*Collector)(nil)
	_ prometheus.Collector       = (*Collector)(nil)
)

// New creates a Collector.
func New(optFns ...Option) *Collector {
	o := Options{
		Namespace: "tiercache",
		Buckets:   []float64{0.00001, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}
	for _, fn := range optFns {
		fn(&o)
	}

	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(o.Namespace, "", name), help, labels, o.ConstLabels)
	}

	return &Collector{
		gets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   o.Namespace,
			Name:        "gets_total",
			Help:        "Get calls by answering tier; tier is \"none\" on a miss.",
			ConstLabels: o.ConstLabels,
		}, []string{"tier", "result"}),
		getDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   o.Namespace,
			Name:        "get_duration_seconds",
			Help:        "Duration of Get calls including promotion.",
			ConstLabels: o.ConstLabels,
			Buckets:     o.Buckets,
		}),
		sets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   o.Namespace,
			Name:        "sets_total",
			Help:        "Set calls by outcome (ok or partial).",
			ConstLabels: o.ConstLabels,
		}, []string{"result"}),
		setFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   o.Namespace,
			Name:        "set_tier_failures_total",
			Help:        "Tier writes that failed during Set.",
			ConstLabels: o.ConstLabels,
		}, []string{"tier"}),
		setDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   o.Namespace,
			Name:        "set_duration_seconds",
			Help:        "Duration of Set calls across all tiers.",
			ConstLabels: o.ConstLabels,
			Buckets:     o.Buckets,
		}),
		removals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   o.Namespace,
			Name:        "removals_total",
			Help:        "Entries removed by capacity, TTL or corruption.",
			ConstLabels: o.ConstLabels,
		}, []string{"tier", "reason"}),
		similarity: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   o.Namespace,
			Name:        "similarity_searches_total",
			Help:        "FindSimilar and FindBestMatch calls by outcome (match or none).",
			ConstLabels: o.ConstLabels,
		}, []string{"result"}),
		simDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   o.Namespace,
			Name:        "similarity_duration_seconds",
			Help:        "Duration of similarity searches.",
			ConstLabels: o.ConstLabels,
			Buckets:     o.Buckets,
		}),

		entries:     desc("entries", "Live entries per tier.", "tier"),
		sizeBytes:   desc("size_bytes", "Bytes held per tier.", "tier"),
		capacity:    desc("capacity_bytes", "Byte budget per tier.", "tier"),
		tierHits:    desc("tier_hits", "Hits recorded by each tier.", "tier"),
		tierMisses:  desc("tier_misses", "Misses recorded by each tier.", "tier"),
		hitRate:     desc("hit_rate", "Overall hit rate since start."),
		indexedKeys: desc("indexed_keys", "Keys known to the similarity index."),
	}
}

// Attach sets the cache whose Stats are exported on scrape.
func (c *Collector) Attach(src StatsSource) {
	c.source.Store(&src)
}

// RecordGet implements tiercache.MetricsCollector.
func (c *Collector) RecordGet(t tiercache.Tier, hit bool, d time.Duration) {
	if hit {
		c.gets.WithLabelValues(t.String(), "hit").Inc()
	} else {
		c.gets.WithLabelValues("none", "miss").Inc()
	}
	c.getDuration.Observe(d.Seconds())
}

// RecordSet implements tiercache.MetricsCollector.
func (c *Collector) RecordSet(failed []tiercache.Tier, d time.Duration) {
	if len(failed) == 0 {
		c.sets.WithLabelValues("ok").Inc()
	} else {
		c.sets.WithLabelValues("partial").Inc()
	}
	for _, t := range failed {
		c.setFailures.WithLabelValues(t.String()).Inc()
	}
	c.setDuration.Observe(d.Seconds())
}

// RecordEviction implements tiercache.MetricsCollector.
func (c *Collector) RecordEviction(t tiercache.Tier, reason string) {
	c.removals.WithLabelValues(t.String(), reason).Inc()
}

// RecordSimilarity implements tiercache.MetricsCollector.
func (c *Collector) RecordSimilarity(matches int, d time.Duration) {
	if matches > 0 {
		c.similarity.WithLabelValues("match").Inc()
	} else {
		c.similarity.WithLabelValues("none").Inc()
	}
	c.simDuration.Observe(d.Seconds())
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.gets.Describe(ch)
	c.getDuration.Describe(ch)
	c.sets.Describe(ch)
	c.setFailures.Describe(ch)
	c.setDuration.Describe(ch)
	c.removals.Describe(ch)
	c.similarity.Describe(ch)
	c.simDuration.Describe(ch)

	for _, d := range []*prometheus.Desc{c.entries, c.sizeBytes, c.capacity, c.tierHits, c.tierMisses, c.hitRate, c.indexedKeys} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.gets.Collect(ch)
	c.getDuration.Collect(ch)
	c.sets.Collect(ch)
	c.setFailures.Collect(ch)
	c.setDuration.Collect(ch)
	c.removals.Collect(ch)
	c.similarity.Collect(ch)
	c.simDuration.Collect(ch)

	src := c.source.Load()
	if src == nil {
		return
	}
	s := (*src).Stats()

	for _, t := range tiercache.Tiers {
		ts := s.Tier(t)
		if !ts.Enabled {
			continue
		}
		name := t.String()
		ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, float64(ts.Entries), name)
		ch <- prometheus.MustNewConstMetric(c.sizeBytes, prometheus.GaugeValue, float64(ts.SizeBytes), name)
		ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(ts.CapacityBytes), name)
		ch <- prometheus.MustNewConstMetric(c.tierHits, prometheus.CounterValue, float64(ts.Hits), name)
		ch <- prometheus.MustNewConstMetric(c.tierMisses, prometheus.CounterValue, float64(ts.Misses), name)
	}
	ch <- prometheus.MustNewConstMetric(c.hitRate, prometheus.GaugeValue, s.Overall.HitRate)
	ch <- prometheus.MustNewConstMetric(c.indexedKeys, prometheus.GaugeValue, float64(s.IndexedKeys))
}
