package prom

import (
	"github.com/IvanBrykalov/recomlive/telemetry"
	"github.com/prometheus/client_golang/prometheus"
)

// Sink implements telemetry.Sink on top of two labeled vectors: every
// telemetry counter becomes {name="..."} of <ns>_<sub>_events_total and every
// gauge becomes {name="..."} of <ns>_<sub>_value.
type Sink struct {
	counters *prometheus.CounterVec
	gauges   *prometheus.GaugeVec
}

// NewSink registers the vectors with reg (nil => prometheus.DefaultRegisterer).
func NewSink(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Sink {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &Sink{
		counters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "events_total",
			Help:        "Recommender events by name",
			ConstLabels: constLabels,
		}, []string{"name"}),
		gauges: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "value",
			Help:        "Recommender sampled values by name",
			ConstLabels: constLabels,
		}, []string{"name"}),
	}
	reg.MustRegister(s.counters, s.gauges)
	return s
}

// Count adds v to the named counter. Negative values are ignored since
// Prometheus counters are monotonic.
func (s *Sink) Count(name string, v float64) {
	if v < 0 {
		return
	}
	s.counters.WithLabelValues(name).Add(v)
}

// Gauge sets the named gauge.
func (s *Sink) Gauge(name string, v float64) { s.gauges.WithLabelValues(name).Set(v) }

var _ telemetry.Sink = (*Sink)(nil)
