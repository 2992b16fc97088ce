package cache

import (
	"errors"
	"math/rand"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingMetrics records every hook call; tests inspect the counters directly.
type countingMetrics struct {
	hits, misses     int
	ghostRecent      int
	ghostFrequent    int
	demotes, drops   int
	resident, ghosts int
	target           int
}

func (m *countingMetrics) Hit()  { m.hits++ }
func (m *countingMetrics) Miss() { m.misses++ }
func (m *countingMetrics) GhostHit(g Ghost) {
	if g == GhostRecent {
		m.ghostRecent++
	} else {
		m.ghostFrequent++
	}
}
func (m *countingMetrics) Evict(r EvictReason) {
	if r == EvictDemote {
		m.demotes++
	} else {
		m.drops++
	}
}
func (m *countingMetrics) Size(resident, ghosts int) { m.resident, m.ghosts = resident, ghosts }
func (m *countingMetrics) Target(p int)              { m.target = p }

func newStringCache(t *testing.T, capacity int) *ARC[string, int] {
	t.Helper()
	c := New[string, int](Options[string, int]{Capacity: capacity})
	t.Cleanup(func() { require.NoError(t, c.check()) })
	return c
}

// recoverError runs fn and returns the error it panicked with (nil if none).
func recoverError(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err, _ = r.(error)
		}
	}()
	fn()
	return nil
}

// Non-positive capacity is a programmer error.
func TestNew_InvalidCapacityPanics(t *testing.T) {
	t.Parallel()

	for _, capacity := range []int{0, -1} {
		err := recoverError(func() { New[string, int](Options[string, int]{Capacity: capacity}) })
		require.Error(t, err, "capacity %d", capacity)
		assert.True(t, errors.Is(err, ErrInvalidCapacity))
	}
}

// First touch misses and lands in T1; the second touch hits and moves to T2.
func TestGetOrInsert_MissThenHit(t *testing.T) {
	t.Parallel()

	c := newStringCache(t, 4)

	e, hit := c.GetOrInsert("a", func() int { return 1 })
	require.False(t, hit)
	assert.Equal(t, "a", e.Key)
	assert.Equal(t, 0, e.Index)
	assert.Equal(t, 1, e.Value)
	assert.Equal(t, Stats{Recent: 1}, c.Stats())

	e2, hit := c.GetOrInsert("a", func() int { t.Fatal("factory called on hit"); return 0 })
	require.True(t, hit)
	assert.Equal(t, e, e2)
	assert.Equal(t, Stats{Frequent: 1}, c.Stats())
}

// A nil factory materializes the zero value.
func TestGetOrInsert_NilFactory(t *testing.T) {
	t.Parallel()

	c := newStringCache(t, 2)
	e, hit := c.GetOrInsert("x", nil)
	require.False(t, hit)
	assert.Zero(t, e.Value)
}

// Lookup must not promote: the entry stays in T1.
func TestLookup_IsPure(t *testing.T) {
	t.Parallel()

	m := &countingMetrics{}
	c := New[string, int](Options[string, int]{Capacity: 4, Metrics: m})

	c.GetOrInsert("a", nil)
	for range 3 {
		e, ok := c.Lookup("a")
		require.True(t, ok)
		assert.Equal(t, 0, e.Index)
	}
	_, ok := c.Lookup("missing")
	assert.False(t, ok)

	assert.Equal(t, Stats{Recent: 1}, c.Stats())
	assert.Equal(t, 0, m.hits)
	assert.Equal(t, 1, m.misses)
}

// LookupIndex resolves residents and treats unused indices as misses.
func TestLookupIndex(t *testing.T) {
	t.Parallel()

	c := newStringCache(t, 3)
	c.GetOrInsert("a", nil)
	c.GetOrInsert("b", nil)

	e, ok := c.LookupIndex(1)
	require.True(t, ok)
	assert.Equal(t, "b", e.Key)

	_, ok = c.LookupIndex(2)
	assert.False(t, ok, "index 2 was never assigned")
}

// Out-of-range indices are a caller bug, not a miss.
func TestLookupIndex_OutOfRangePanics(t *testing.T) {
	t.Parallel()

	c := newStringCache(t, 3)
	for _, idx := range []int{-1, 3, 100} {
		err := recoverError(func() { c.LookupIndex(idx) })
		require.Error(t, err, "idx %d", idx)
		assert.ErrorIs(t, err, ErrIndexOutOfRange)
	}
}

// With only first-touch keys T1 fills the whole cache; the next miss drops
// the LRU of T1 outright and hands its index to the newcomer.
func TestGetOrInsert_RecyclesIndex(t *testing.T) {
	t.Parallel()

	type evicted struct {
		key    string
		idx    int
		reason EvictReason
	}
	var got []evicted
	c := New[string, int](Options[string, int]{
		Capacity: 3,
		OnEvict: func(k string, idx int, _ int, r EvictReason) {
			got = append(got, evicted{k, idx, r})
		},
	})

	for i, k := range []string{"a", "b", "c"} {
		e, _ := c.GetOrInsert(k, nil)
		require.Equal(t, i, e.Index)
	}
	e, hit := c.GetOrInsert("d", nil)
	require.False(t, hit)
	assert.Equal(t, 0, e.Index, "index of the evicted LRU is reused")
	assert.Equal(t, []evicted{{"a", 0, EvictDrop}}, got)

	_, ok := c.Lookup("a")
	assert.False(t, ok)
	back, ok := c.LookupIndex(0)
	require.True(t, ok)
	assert.Equal(t, "d", back.Key)
	require.NoError(t, c.check())
}

// A B1 ghost hit raises p and re-admits the key straight into T2;
// a B2 ghost hit lowers p again.
func TestGetOrInsert_GhostHitsAdaptTarget(t *testing.T) {
	t.Parallel()

	m := &countingMetrics{}
	c := New[string, int](Options[string, int]{Capacity: 4, Metrics: m})
	touch := func(keys ...string) {
		for _, k := range keys {
			c.GetOrInsert(k, nil)
			require.NoError(t, c.check())
		}
	}

	touch("a", "b", "c", "d", "a") // T1={b,c,d} T2={a}
	touch("e")                     // demotes b to B1
	require.Equal(t, Stats{Recent: 3, Frequent: 1, RecentGhosts: 1}, c.Stats())
	bIdx := 1
	e, _ := c.Lookup("e")
	assert.Equal(t, bIdx, e.Index, "e took over b's index")

	e, hit := c.GetOrInsert("b", nil) // B1 ghost hit
	require.False(t, hit)
	assert.Equal(t, 1, c.Stats().Target)
	assert.Equal(t, 1, m.ghostRecent)
	assert.Equal(t, Stats{Recent: 2, Frequent: 2, RecentGhosts: 1, Target: 1}, c.Stats())
	_, inT2 := c.Lookup("b")
	assert.True(t, inT2)
	assert.Equal(t, 2, e.Index, "b took over c's index")

	touch("d", "e") // T1={} T2={e,d,b,a}
	touch("f")      // T1 empty: demotes a (LRU of T2) to B2
	require.Equal(t, Stats{Recent: 1, Frequent: 3, RecentGhosts: 1, FrequentGhosts: 1, Target: 1}, c.Stats())

	c.GetOrInsert("a", nil) // B2 ghost hit
	require.NoError(t, c.check())
	assert.Equal(t, 0, c.Stats().Target)
	assert.Equal(t, 1, m.ghostFrequent)
	assert.Equal(t, 0, m.target)
}

// Entries yields residents in index order.
func TestEntries(t *testing.T) {
	t.Parallel()

	c := newStringCache(t, 4)
	for i := range 4 {
		c.GetOrInsert("k"+strconv.Itoa(i), func() int { return i })
	}
	var idx []int
	for e := range c.Entries() {
		assert.Equal(t, e.Index, e.Value)
		idx = append(idx, e.Index)
	}
	assert.Equal(t, []int{0, 1, 2, 3}, idx)
}

// Random skewed workload: after every request the ARC bounds hold, the key
// is resident under the index just returned, and indices stay in [0,N).
// Once capacity is exceeded, freed indices are reused.
func TestGetOrInsert_RandomWorkloadInvariants(t *testing.T) {
	t.Parallel()

	const (
		capacity = 16
		universe = 200
		ops      = 20_000
	)
	r := rand.New(rand.NewSource(1))
	zipf := rand.NewZipf(r, 1.1, 1.0, universe-1)

	evictedIdx := map[int]bool{}
	reused := 0
	c := New[string, int](Options[string, int]{
		Capacity: capacity,
		OnEvict: func(_ string, idx int, _ int, _ EvictReason) {
			evictedIdx[idx] = true
		},
	})

	for i := range ops {
		var k string
		if i%7 == 0 {
			k = "u" + strconv.Itoa(r.Intn(universe)) // a little uniform noise
		} else {
			k = "z" + strconv.FormatUint(zipf.Uint64(), 10)
		}
		e, hit := c.GetOrInsert(k, nil)
		require.GreaterOrEqual(t, e.Index, 0)
		require.Less(t, e.Index, capacity)
		if !hit && evictedIdx[e.Index] {
			reused++
		}

		got, ok := c.Lookup(k)
		require.True(t, ok)
		require.Equal(t, e.Index, got.Index)

		require.LessOrEqual(t, c.Len(), capacity)
		if i%97 == 0 {
			require.NoError(t, c.check())
		}
	}
	require.NoError(t, c.check())
	assert.Positive(t, reused, "evicted indices must be recycled")

	// Residents form a bijection onto distinct indices.
	seen := map[int]string{}
	for e := range c.Entries() {
		require.NotContains(t, seen, e.Index)
		seen[e.Index] = e.Key
		back, ok := c.LookupIndex(e.Index)
		require.True(t, ok)
		require.Equal(t, e.Key, back.Key)
	}
	assert.Len(t, seen, capacity)
}

// Capacity 1 is the smallest legal cache and must still obey ARC bounds.
func TestGetOrInsert_CapacityOne(t *testing.T) {
	t.Parallel()

	c := newStringCache(t, 1)
	for _, k := range []string{"a", "b", "a", "a", "c", "b", "b", "a"} {
		e, _ := c.GetOrInsert(k, nil)
		require.Equal(t, 0, e.Index)
		require.NoError(t, c.check())
	}
	assert.Equal(t, 1, c.Len())
}

// Metrics hooks see every hit and miss.
func TestMetrics_HitsMisses(t *testing.T) {
	t.Parallel()

	m := &countingMetrics{}
	c := New[int, int](Options[int, int]{Capacity: 2, Metrics: m})
	c.GetOrInsert(1, nil)
	c.GetOrInsert(1, nil)
	c.GetOrInsert(2, nil)
	c.GetOrInsert(3, nil)

	assert.Equal(t, 1, m.hits)
	assert.Equal(t, 3, m.misses)
	assert.Equal(t, 1, m.demotes)
	assert.Equal(t, 2, m.resident)
	assert.Equal(t, 1, m.ghosts)
}
