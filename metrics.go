package rbac

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes engine counters. A nil *Metrics records nothing.
type Metrics struct {
	decisions    *prometheus.CounterVec
	cacheResults *prometheus.CounterVec
	loadDuration prometheus.Histogram
	invalidated  prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rbac_decisions_total",
				Help: "Permission checks by outcome.",
			},
			[]string{"resource", "action", "outcome"},
		),
		cacheResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rbac_permission_cache_total",
				Help: "Permission cache lookups by result.",
			},
			[]string{"result"},
		),
		loadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rbac_permission_cache_load_seconds",
			Help:    "Time spent building a permission cache.",
			Buckets: prometheus.DefBuckets,
		}),
		invalidated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rbac_permission_cache_invalidations_total",
			Help: "Explicit permission cache invalidations.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.decisions, m.cacheResults, m.loadDuration, m.invalidated)
	}
	return m
}

func (m *Metrics) decision(p Permission, allowed bool) {
	if m == nil {
		return
	}
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	m.decisions.WithLabelValues(p.Resource, p.Action, outcome).Inc()
}

// cache result labels
const (
	cacheHit     = "hit"
	cacheMiss    = "miss"
	cacheExpired = "expired"
	cacheError   = "error"
)

func (m *Metrics) cacheResult(result string) {
	if m == nil {
		return
	}
	m.cacheResults.WithLabelValues(result).Inc()
}

func (m *Metrics) observeLoad(start time.Time) {
	if m == nil {
		return
	}
	m.loadDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) invalidation() {
	if m == nil {
		return
	}
	m.invalidated.Inc()
}
