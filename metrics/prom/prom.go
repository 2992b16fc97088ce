package prom

import (
	"github.com/IvanBrykalov/recomlive/cache"
	"github.com/prometheus/client_golang/prometheus"
)

// Adapter implements cache.Metrics and exports Prometheus counters/gauges.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type Adapter struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	ghostHits *prometheus.CounterVec
	evicts    *prometheus.CounterVec
	resident  prometheus.Gauge
	ghosts    prometheus.Gauge
	target    prometheus.Gauge
}

// New constructs a Prometheus metrics adapter for one cache.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil);
//     use e.g. {"cache": "documents"} to tell caches apart
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &Adapter{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "hits_total",
			Help:        "Cache hits",
			ConstLabels: constLabels,
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "misses_total",
			Help:        "Cache misses (ghost hits included)",
			ConstLabels: constLabels,
		}),
		ghostHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "ghost_hits_total",
				Help:        "Misses that found the key in a ghost list",
				ConstLabels: constLabels,
			},
			[]string{"list"},
		),
		evicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "evictions_total",
				Help:        "Cache evictions by reason",
				ConstLabels: constLabels,
			},
			[]string{"reason"},
		),
		resident: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "resident_entries",
			Help:        "Number of resident entries (indices in use)",
			ConstLabels: constLabels,
		}),
		ghosts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "ghost_entries",
			Help:        "Number of ghost entries",
			ConstLabels: constLabels,
		}),
		target: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "recency_target",
			Help:        "ARC adaptation target p (desired size of T1)",
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(a.hits, a.misses, a.ghostHits, a.evicts, a.resident, a.ghosts, a.target)
	return a
}

// Hit increments the hit counter.
func (a *Adapter) Hit() { a.hits.Inc() }

// Miss increments the miss counter.
func (a *Adapter) Miss() { a.misses.Inc() }

// GhostHit increments the ghost-hit counter for list g.
func (a *Adapter) GhostHit(g cache.Ghost) {
	a.ghostHits.WithLabelValues(g.String()).Inc()
}

// Evict increments the eviction counter with a reason label.
func (a *Adapter) Evict(r cache.EvictReason) {
	a.evicts.WithLabelValues(r.String()).Inc()
}

// Size updates gauges for resident and ghost entries.
func (a *Adapter) Size(resident, ghosts int) {
	a.resident.Set(float64(resident))
	a.ghosts.Set(float64(ghosts))
}

// Target updates the adaptation target gauge.
func (a *Adapter) Target(p int) { a.target.Set(float64(p)) }

// Compile-time check: ensure Adapter implements cache.Metrics.
var _ cache.Metrics = (*Adapter)(nil)
