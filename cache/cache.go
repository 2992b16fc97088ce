package cache

import (
	"fmt"
	"iter"
)

// ARC is an adaptive replacement cache (Megiddo & Modha, FAST'03) over a
// fixed arena of 2N slots. Resident entries own the slot whose position is
// their index; ghost entries live in the upper half and carry only a key.
//
// ARC is not synchronized; see Cache.
type ARC[K comparable, V any] struct {
	slots []slot[K, V]
	index map[K]int32 // residents and ghosts

	t1, t2, b1, b2      slotList
	freeLive, freeGhost slotList

	n int // capacity
	p int // target size of T1, in [0, n]

	opt Options[K, V]
}

// Compile-time check: ARC implements Cache.
var _ Cache[string, struct{}] = (*ARC[string, struct{}])(nil)

// New constructs an ARC cache with room for opt.Capacity residents.
// It panics (wrapping ErrInvalidCapacity) if opt.Capacity < 1.
func New[K comparable, V any](opt Options[K, V]) *ARC[K, V] {
	if opt.Capacity <= 0 {
		panic(fmt.Errorf("%w: got %d", ErrInvalidCapacity, opt.Capacity))
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}

	n := opt.Capacity
	c := &ARC[K, V]{
		slots:     make([]slot[K, V], 2*n),
		index:     make(map[K]int32, 2*n),
		t1:        newSlotList(classT1),
		t2:        newSlotList(classT2),
		b1:        newSlotList(classB1),
		b2:        newSlotList(classB2),
		freeLive:  newSlotList(classFree),
		freeGhost: newSlotList(classFree),
		n:         n,
		opt:       opt,
	}
	// Indices are handed out in ascending order until the first eviction.
	for i := range c.slots {
		if i < n {
			c.pushBack(&c.freeLive, int32(i))
		} else {
			c.pushBack(&c.freeGhost, int32(i))
		}
	}
	return c
}

// ---- Cache[K,V] implementation ----

// Lookup is a pure read: it never promotes and never counts as a hit or miss.
func (c *ARC[K, V]) Lookup(k K) (Entry[K, V], bool) {
	i, ok := c.index[k]
	if !ok || !c.slots[i].cls.resident() {
		return Entry[K, V]{}, false
	}
	return c.entry(i), true
}

// LookupIndex resolves an index back to its resident entry.
func (c *ARC[K, V]) LookupIndex(idx int) (Entry[K, V], bool) {
	if idx < 0 || idx >= c.n {
		panic(fmt.Errorf("%w: %d not in [0,%d)", ErrIndexOutOfRange, idx, c.n))
	}
	if !c.slots[idx].cls.resident() {
		return Entry[K, V]{}, false
	}
	return c.entry(int32(idx)), true
}

// GetOrInsert implements the ARC request path. The "Case" comments follow
// Fig. 4 of the ARC paper.
func (c *ARC[K, V]) GetOrInsert(k K, factory func() V) (Entry[K, V], bool) {
	i, known := c.index[k]
	if known && c.slots[i].cls.resident() {
		// Case I: hit in T1 or T2.
		c.moveToFront(&c.t2, i)
		c.opt.Metrics.Hit()
		return c.entry(i), true
	}

	c.opt.Metrics.Miss()
	// Build the payload before touching any list so a panicking factory
	// leaves the cache consistent.
	var v V
	if factory != nil {
		v = factory()
	}

	if known {
		switch c.slots[i].cls {
		case classB1: // Case II: ghost hit in B1, favor recency.
			c.opt.Metrics.GhostHit(GhostRecent)
			c.p = min(c.p+max(1, c.b2.len/c.b1.len), c.n)
			c.forget(i)
			c.replace(false)
		case classB2: // Case III: ghost hit in B2, favor frequency.
			c.opt.Metrics.GhostHit(GhostFrequent)
			c.p = max(c.p-max(1, c.b1.len/c.b2.len), 0)
			c.forget(i)
			c.replace(true)
		}
		c.opt.Metrics.Target(c.p)
		return c.admit(k, v, &c.t2), false
	}

	// Case IV: complete miss.
	l1 := c.t1.len + c.b1.len
	total := l1 + c.t2.len + c.b2.len
	switch {
	case l1 == c.n:
		if c.t1.len < c.n {
			c.forget(c.b1.tail)
			c.replace(false)
		} else {
			c.evict(c.t1.tail, EvictDrop)
		}
	case total >= c.n:
		if total == 2*c.n {
			c.forget(c.b2.tail)
		}
		c.replace(false)
	}
	return c.admit(k, v, &c.t1), false
}

// Len returns the number of resident entries.
func (c *ARC[K, V]) Len() int { return c.t1.len + c.t2.len }

// Cap returns N.
func (c *ARC[K, V]) Cap() int { return c.n }

// Stats returns list sizes and the current target p.
func (c *ARC[K, V]) Stats() Stats {
	return Stats{
		Recent:         c.t1.len,
		Frequent:       c.t2.len,
		RecentGhosts:   c.b1.len,
		FrequentGhosts: c.b2.len,
		Target:         c.p,
	}
}

// Entries yields resident entries in ascending index order.
// The cache must not be modified while iterating.
func (c *ARC[K, V]) Entries() iter.Seq[Entry[K, V]] {
	return func(yield func(Entry[K, V]) bool) {
		for i := 0; i < c.n; i++ {
			if !c.slots[i].cls.resident() {
				continue
			}
			if !yield(c.entry(int32(i))) {
				return
			}
		}
	}
}

// -------------------- internals --------------------

func (c *ARC[K, V]) entry(i int32) Entry[K, V] {
	s := &c.slots[i]
	return Entry[K, V]{Key: s.key, Index: int(i), Value: s.val}
}

// replace is REPLACE(x, p): when every index is taken, demote the LRU of T1
// or T2 into its ghost list depending on the target p. inB2 reports whether
// the request was a B2 ghost hit.
func (c *ARC[K, V]) replace(inB2 bool) {
	if c.freeLive.len > 0 {
		return
	}
	fromT1 := c.t1.len > 0 &&
		(c.t1.len > c.p || (inB2 && c.t1.len == c.p) || c.t2.len == 0)
	if fromT1 {
		c.evict(c.t1.tail, EvictDemote)
	} else {
		c.evict(c.t2.tail, EvictDemote)
	}
}

// evict releases resident slot i back to the index pool. With EvictDemote
// the key is remembered in the ghost list matching its class.
func (c *ARC[K, V]) evict(i int32, reason EvictReason) {
	s := &c.slots[i]
	k, v, cls := s.key, s.val, s.cls

	c.unlink(i)
	var (
		zk K
		zv V
	)
	s.key, s.val = zk, zv
	c.pushBack(&c.freeLive, i)
	delete(c.index, k)

	if reason == EvictDemote {
		ghosts := &c.b1
		if cls == classT2 {
			ghosts = &c.b2
		}
		g := c.popFront(&c.freeGhost)
		c.slots[g].key = k
		c.index[k] = g
		c.pushFront(ghosts, g)
	}

	c.opt.Metrics.Evict(reason)
	if c.opt.OnEvict != nil {
		c.opt.OnEvict(k, int(i), v, reason)
	}
}

// forget drops ghost slot g entirely.
func (c *ARC[K, V]) forget(g int32) {
	s := &c.slots[g]
	delete(c.index, s.key)
	var zk K
	s.key = zk
	c.unlink(g)
	c.pushBack(&c.freeGhost, g)
}

// admit places k at the MRU end of l using the next free index.
func (c *ARC[K, V]) admit(k K, v V, l *slotList) Entry[K, V] {
	i := c.popFront(&c.freeLive)
	s := &c.slots[i]
	s.key, s.val = k, v
	c.index[k] = i
	c.pushFront(l, i)
	c.opt.Metrics.Size(c.Len(), c.b1.len+c.b2.len)
	return c.entry(i)
}
