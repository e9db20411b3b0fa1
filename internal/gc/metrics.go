package gc

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsSet bundles the heap's Prometheus collectors. A nil *metricsSet
// is valid and inert, so call sites never check whether metrics were
// configured.
type metricsSet struct {
	heapFootprintBytes prometheus.Gauge
	allocatedBytes     prometheus.Gauge
	youngCollections   prometheus.Counter
	oldCollections     prometheus.Counter
	youngPauseSeconds  prometheus.Histogram
	oldCycleSeconds    prometheus.Histogram
}

// newMetrics registers the collectors against reg; a nil reg yields a nil
// set.
func newMetrics(reg prometheus.Registerer, heapName string) *metricsSet {
	if reg == nil {
		return nil
	}

	labels := prometheus.Labels{"heap": heapName}
	m := &metricsSet{
		heapFootprintBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "hades_heap_footprint_bytes",
			Help:        "Bytes reserved from the storage provider.",
			ConstLabels: labels,
		}),
		allocatedBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "hades_allocated_bytes",
			Help:        "Bytes in old-generation cells, live or awaiting sweep.",
			ConstLabels: labels,
		}),
		youngCollections: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "hades_young_collections_total",
			Help:        "Completed young-generation collections.",
			ConstLabels: labels,
		}),
		oldCollections: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "hades_old_collections_total",
			Help:        "Completed old-generation collections.",
			ConstLabels: labels,
		}),
		youngPauseSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "hades_young_pause_seconds",
			Help:        "Mutator pause per young collection.",
			Buckets:     prometheus.ExponentialBuckets(0.0005, 2, 12),
			ConstLabels: labels,
		}),
		oldCycleSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "hades_old_cycle_seconds",
			Help:        "Wall time of old-generation cycles, including concurrent phases.",
			Buckets:     prometheus.ExponentialBuckets(0.001, 2, 14),
			ConstLabels: labels,
		}),
	}

	reg.MustRegister(
		m.heapFootprintBytes,
		m.allocatedBytes,
		m.youngCollections,
		m.oldCollections,
		m.youngPauseSeconds,
		m.oldCycleSeconds,
	)
	return m
}

func (m *metricsSet) observeYoung(pause time.Duration) {
	if m == nil {
		return
	}
	m.youngCollections.Inc()
	m.youngPauseSeconds.Observe(pause.Seconds())
}

func (m *metricsSet) observeOldStart() {
	// Nothing to record yet; the counter ticks at cycle end so aborted
	// cycles never inflate it.
	if m == nil {
		return
	}
}

func (m *metricsSet) observeOldEnd(cycle time.Duration) {
	if m == nil {
		return
	}
	m.oldCollections.Inc()
	m.oldCycleSeconds.Observe(cycle.Seconds())
}

func (m *metricsSet) setHeapSizes(footprint, allocated uint64) {
	if m == nil {
		return
	}
	m.heapFootprintBytes.Set(float64(footprint))
	m.allocatedBytes.Set(float64(allocated))
}
