package cache

import "iter"

// Entry is a resident cache entry as seen by callers.
// Index is stable for as long as Key stays resident.
type Entry[K comparable, V any] struct {
	Key   K
	Index int
	Value V
}

// Stats is a snapshot of the ARC list sizes and the adaptation target.
type Stats struct {
	Recent         int // |T1|
	Frequent       int // |T2|
	RecentGhosts   int // |B1|
	FrequentGhosts int // |B2|
	Target         int // p, the desired size of T1
}

// Cache is an adaptive replacement cache that maps each resident key onto
// a small integer index in [0, Cap()). Indices of evicted keys are recycled.
//
// Implementations are NOT safe for concurrent use: every call must be
// serialized by the caller (typically a single worker goroutine).
//
// All operations are O(1) expected, except Entries.
type Cache[K comparable, V any] interface {
	// Lookup returns the resident entry for k without touching its
	// recency/frequency class. Ghost entries are reported as absent.
	Lookup(k K) (Entry[K, V], bool)

	// LookupIndex returns the resident entry owning idx.
	// idx outside [0, Cap()) is a caller bug and panics with ErrIndexOutOfRange.
	LookupIndex(idx int) (Entry[K, V], bool)

	// GetOrInsert makes k resident and returns its entry.
	// On hit the entry is promoted and hit is true. On miss a slot is freed
	// if needed, factory is called at most once to build the payload
	// (nil factory => zero value) and hit is false.
	GetOrInsert(k K, factory func() V) (e Entry[K, V], hit bool)

	// Len returns the number of resident entries.
	Len() int

	// Cap returns the capacity N (the size of the index pool).
	Cap() int

	// Stats returns list sizes and the current target p.
	Stats() Stats

	// Entries yields resident entries in index order.
	Entries() iter.Seq[Entry[K, V]]
}
