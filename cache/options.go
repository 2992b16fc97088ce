package cache

// EvictReason explains why a resident entry left the cache.
type EvictReason int

const (
	// EvictDemote: the entry lost its index and was remembered as a ghost (B1/B2).
	EvictDemote EvictReason = iota
	// EvictDrop: the entry was removed without leaving a ghost
	// (T1 alone filled the whole cache).
	EvictDrop
)

func (r EvictReason) String() string {
	if r == EvictDrop {
		return "drop"
	}
	return "demote"
}

// Ghost identifies the ghost list that produced a ghost hit.
type Ghost int

const (
	// GhostRecent is B1: keys evicted from T1.
	GhostRecent Ghost = iota
	// GhostFrequent is B2: keys evicted from T2.
	GhostFrequent
)

func (g Ghost) String() string {
	if g == GhostFrequent {
		return "frequent"
	}
	return "recent"
}

// Metrics exposes cache-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	Hit()
	Miss()
	GhostHit(g Ghost)
	Evict(reason EvictReason)
	Size(resident, ghosts int)
	Target(p int)
}

// Options configures the cache. Zero values are safe except Capacity;
// defaults are applied in New():
//   - nil Metrics => NoopMetrics
type Options[K comparable, V any] struct {
	// Capacity is N: the maximum number of resident entries and the size
	// of the index pool. Must be > 0.
	Capacity int

	// OnEvict is called synchronously for every resident eviction, after the
	// index has been released. Keep it lightweight.
	OnEvict func(k K, idx int, v V, reason EvictReason)

	Metrics Metrics
}
