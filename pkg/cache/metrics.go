package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of one QueryCache. All methods are
// safe on a nil receiver so the cache can run without metrics.
type Metrics struct {
	fetches       *prometheus.CounterVec
	fetchErrors   *prometheus.CounterVec
	coalesced     *prometheus.CounterVec
	writes        *prometheus.CounterVec
	invalidations *prometheus.CounterVec
	inflight      prometheus.Gauge
}

// NewMetrics creates the cache collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)
	labels := []string{"kind"}

	return &Metrics{
		fetches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "fetches_total",
			Help:      "Total number of fetches started, by key kind",
		}, labels),
		fetchErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "fetch_errors_total",
			Help:      "Total number of fetches that failed after all retries",
		}, labels),
		coalesced: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "coalesced_reads_total",
			Help:      "Reads that attached to an already in-flight fetch",
		}, labels),
		writes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "writes_total",
			Help:      "Direct writes to the cache",
		}, labels),
		invalidations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "invalidations_total",
			Help:      "Entries marked stale by Invalidate",
		}, labels),
		inflight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "inflight_fetches",
			Help:      "Number of fetches currently in flight",
		}),
	}
}

func (m *Metrics) fetchStarted(kind string) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(kind).Inc()
	m.inflight.Inc()
}

func (m *Metrics) fetchFinished(kind string, err error) {
	if m == nil {
		return
	}
	m.inflight.Dec()
	if err != nil {
		m.fetchErrors.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) readCoalesced(kind string) {
	if m == nil {
		return
	}
	m.coalesced.WithLabelValues(kind).Inc()
}

func (m *Metrics) written(kind string) {
	if m == nil {
		return
	}
	m.writes.WithLabelValues(kind).Inc()
}

func (m *Metrics) invalidated(kind string) {
	if m == nil {
		return
	}
	m.invalidations.WithLabelValues(kind).Inc()
}
