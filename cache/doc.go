// Package cache provides an adaptive replacement cache (ARC) that doubles as
// an allocator for a fixed pool of small integer indices.
//
// Every resident key owns exactly one index in [0, N). When the cache is full
// and a new key arrives, ARC picks a victim, the victim's index is released
// and the new key receives it. Downstream consumers (such as a model with a
// fixed vocabulary of N rows) can therefore address identities by index
// without ever resizing.
//
// Design
//
//   - Policy: classic ARC with four lists. T1 holds keys seen once, T2 keys
//     seen at least twice, B1/B2 remember keys recently evicted from T1/T2.
//     The target p (size of T1) grows on B1 ghost hits and shrinks on B2
//     ghost hits, so the split between recency and frequency self-tunes.
//
//   - Storage: an arena of 2N slots addressed by int32. Slots [0,N) are the
//     index pool; a resident's slot position is its index. Slots [N,2N) hold
//     ghost keys. Lists are intrusive (prev/next are arena positions), and
//     list membership is a class tag on the slot. There are no pointers
//     between entries.
//
//   - Bounds: |T1|+|T2| <= N, |T1|+|B1| <= N, |T1|+|T2|+|B1|+|B2| <= 2N.
//
//   - Metrics: Options.Metrics receives Hit/Miss/GhostHit/Evict/Size/Target.
//     NoopMetrics is the default; metrics/prom exports them to Prometheus.
//
// Basic usage
//
//	docs := cache.New[string, struct{}](cache.Options[string, struct{}]{Capacity: 2000})
//	e, hit := docs.GetOrInsert("doc-42", nil)
//	_ = hit          // false on first touch
//	_ = e.Index      // stable while "doc-42" stays resident
//	back, _ := docs.LookupIndex(e.Index) // back.Key == "doc-42"
//
// Thread-safety
//
// The cache is intentionally unsynchronized. It is designed to be owned by a
// single goroutine (see internal/server), which is also what makes the index
// assignment race-free without locks.
package cache
