package cache

// NoopMetrics is a drop-in Metrics implementation that does nothing.
// It is intended as the default when no observability backend is configured.
type NoopMetrics struct{}

func (NoopMetrics) Hit()              {}
func (NoopMetrics) Miss()             {}
func (NoopMetrics) GhostHit(Ghost)    {}
func (NoopMetrics) Evict(EvictReason) {}
func (NoopMetrics) Size(int, int)     {}
func (NoopMetrics) Target(int)        {}

// Ensure NoopMetrics implements the Metrics interface at compile time.
var _ Metrics = NoopMetrics{}
