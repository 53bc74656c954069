// Package metrics wires the engine's cache observation points to
// github.com/prometheus/client_golang: callers hand the engine a
// Registerer, the engine registers a handful of counters/gauges against it,
// and the aggregation/export pipeline itself stays the caller's concern.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// CacheMetrics instruments the Buffered-File block cache and is also reused
// by the access coordinator's slot pool for occupancy.
type CacheMetrics struct {
	Hits       prometheus.Counter
	Misses     prometheus.Counter
	Evictions  prometheus.Counter
	Flushes    prometheus.Counter
	DirtyWrite prometheus.Counter
	Occupancy  prometheus.Gauge
}

// NewCacheMetrics registers (or, if reg is nil, only allocates) the cache
// metric family. Passing a nil Registerer is valid and produces metrics
// that are tracked in-process but never exported.
func NewCacheMetrics(reg prometheus.Registerer, namespace, subsystem string) *CacheMetrics {
	m := &CacheMetrics{
		Hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "cache_hits_total",
			Help: "Number of block cache lookups that found a resident block.",
		}),
		Misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "cache_misses_total",
			Help: "Number of block cache lookups that required a load from disk.",
		}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "cache_evictions_total",
			Help: "Number of blocks reclaimed under LRU pressure.",
		}),
		Flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "cache_flushes_total",
			Help: "Number of explicit Flush() calls completed.",
		}),
		DirtyWrite: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "cache_dirty_writebacks_total",
			Help: "Number of dirty blocks written back to the file.",
		}),
		Occupancy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "cache_blocks_resident",
			Help: "Number of blocks currently resident in the cache.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Hits, m.Misses, m.Evictions, m.Flushes, m.DirtyWrite, m.Occupancy)
	}
	return m
}
