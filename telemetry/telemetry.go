// Package telemetry defines the fire-and-forget metric sink the recommender
// reports to, plus its backends (Graphite, CloudWatch) and fan-out helper.
//
// A Sink is always passed explicitly to the components that use it; there is
// no process-wide instance. Implementations must never block the caller or
// report failures to it: delivery is best-effort.
package telemetry

// Sink receives metric samples.
type Sink interface {
	// Count adds v to a cumulative counter.
	Count(name string, v float64)
	// Gauge records a sampled value.
	Gauge(name string, v float64)
}

// Metric names emitted by the recommender and the server.
const (
	RecordCall        = "record_call"
	DocumentsCacheHit = "documents_cache_hit"
	PersonsCacheHit   = "persons_cache_hit"
	RecommendationHit = "recommendation_hit"
	TrainStep         = "train_step"
	TrainLoss         = "train_loss"
	RecommendCall     = "recommend_call"
	NoRecommendations = "no_recommendations"
	DroppedRequests   = "dropped_requests"

	DocumentsResident = "documents_resident"
	DocumentsTarget   = "documents_target"
	PersonsResident   = "persons_resident"
	PersonsTarget     = "persons_target"
	QueueDepth        = "queue_depth"
)

// Noop discards everything.
type Noop struct{}

func (Noop) Count(string, float64) {}
func (Noop) Gauge(string, float64) {}

// Multi fans every sample out to all sinks, in order.
type Multi []Sink

func (m Multi) Count(name string, v float64) {
	for _, s := range m {
		s.Count(name, v)
	}
}

func (m Multi) Gauge(name string, v float64) {
	for _, s := range m {
		s.Gauge(name, v)
	}
}

var (
	_ Sink = Noop{}
	_ Sink = Multi(nil)
)
