// Package telemetrytest provides an in-memory telemetry.Sink for tests.
package telemetrytest

import (
	"sync"

	"github.com/IvanBrykalov/recomlive/telemetry"
)

// Recorder keeps counter totals and the last value of every gauge.
// It is safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	counters map[string]float64
	gauges   map[string]float64
	samples  map[string]int
}

// New returns an empty Recorder.
func New() *Recorder {
	return &Recorder{
		counters: map[string]float64{},
		gauges:   map[string]float64{},
		samples:  map[string]int{},
	}
}

func (r *Recorder) Count(name string, v float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[name] += v
	r.samples[name]++
}

func (r *Recorder) Gauge(name string, v float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gauges[name] = v
	r.samples[name]++
}

// Counter returns the running total of a counter.
func (r *Recorder) Counter(name string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[name]
}

// GaugeValue returns the last value of a gauge and whether it was ever set.
func (r *Recorder) GaugeValue(name string) (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.gauges[name]
	return v, ok
}

// Samples returns how many times name was reported, counters and gauges alike.
func (r *Recorder) Samples(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.samples[name]
}

var _ telemetry.Sink = (*Recorder)(nil)
