package cache

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts cache activity. A nil *Metrics records nothing.
type Metrics struct {
	hits      prometheus.Counter
	builds    *prometheus.CounterVec
	fallbacks prometheus.Counter
	duration  prometheus.Histogram
	evicted   prometheus.Counter
}

// NewMetrics registers the cache metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		hits: f.NewCounter(prometheus.CounterOpts{
			Name: "ccview_cache_hits_total",
			Help: "Snapshot requests served from an existing cache entry",
		}),
		builds: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ccview_cache_builds_total",
			Help: "Cache entries built, by mode",
		}, []string{"mode"}),
		fallbacks: f.NewCounter(prometheus.CounterOpts{
			Name: "ccview_cache_fallbacks_total",
			Help: "Snapshot requests served uncached after a cache failure",
		}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ccview_cache_build_seconds",
			Help:    "Time to build one cache entry",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		evicted: f.NewCounter(prometheus.CounterOpts{
			Name: "ccview_cache_entries_removed_total",
			Help: "Cache entries removed by cleanup, clear and invalidation",
		}),
	}
}

func (m *Metrics) hit() {
	if m != nil {
		m.hits.Inc()
	}
}

func (m *Metrics) built(mode string, d time.Duration) {
	if m != nil {
		m.builds.WithLabelValues(mode).Inc()
		m.duration.Observe(d.Seconds())
	}
}

func (m *Metrics) fallback() {
	if m != nil {
		m.fallbacks.Inc()
	}
}

func (m *Metrics) removed(n int) {
	if m != nil && n > 0 {
		m.evicted.Add(float64(n))
	}
}
