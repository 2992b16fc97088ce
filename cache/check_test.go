package cache

import "fmt"

// Add runtime validity checks for tests.

func (c *ARC[K, V]) err(e error) error {
	return fmt.Errorf("%w (b1:%v t1:%v / t2:%v b2:%v p:%v)",
		e, c.b1.len, c.t1.len, c.t2.len, c.b2.len, c.p)
}

// check walks every list and verifies the ARC bounds and the
// key<->index bijection. It returns the first violation found.
func (c *ARC[K, V]) check() error {
	if live := c.t1.len + c.t2.len; live > c.n {
		return c.err(fmt.Errorf("live:%d > N:%d", live, c.n))
	}
	if l1 := c.t1.len + c.b1.len; l1 > c.n {
		return c.err(fmt.Errorf("|T1|+|B1|:%d > N:%d", l1, c.n))
	}
	if full := c.t1.len + c.t2.len + c.b1.len + c.b2.len; full > 2*c.n {
		return c.err(fmt.Errorf("full:%d > 2N:%d", full, 2*c.n))
	}
	if ghosts := c.b1.len + c.b2.len; ghosts > c.n {
		return c.err(fmt.Errorf("ghosts:%d > N:%d", ghosts, c.n))
	}
	if c.p < 0 || c.p > c.n {
		return c.err(fmt.Errorf("p:%d not in [0,%d]", c.p, c.n))
	}
	if got, want := c.freeLive.len+c.t1.len+c.t2.len, c.n; got != want {
		return c.err(fmt.Errorf("live slots:%d != N:%d", got, want))
	}
	if got, want := c.freeGhost.len+c.b1.len+c.b2.len, c.n; got != want {
		return c.err(fmt.Errorf("ghost slots:%d != N:%d", got, want))
	}

	seen := 0
	for _, l := range []*slotList{&c.t1, &c.t2, &c.b1, &c.b2} {
		n := 0
		prev := nilSlot
		for i := l.head; i != nilSlot; i = c.slots[i].next {
			s := &c.slots[i]
			if s.cls != l.cls {
				return c.err(fmt.Errorf("slot %d: class %d linked in list %d", i, s.cls, l.cls))
			}
			if s.prev != prev {
				return c.err(fmt.Errorf("slot %d: broken prev link", i))
			}
			if resident := int(i) < c.n; resident != s.cls.resident() {
				return c.err(fmt.Errorf("slot %d: class %d in wrong half", i, s.cls))
			}
			if j, ok := c.index[s.key]; !ok || j != i {
				return c.err(fmt.Errorf("slot %d: key %v maps to %d", i, s.key, j))
			}
			prev = i
			n++
		}
		if n != l.len || prev != l.tail {
			return c.err(fmt.Errorf("list %d: walked %d, len %d", l.cls, n, l.len))
		}
		seen += n
	}
	if seen != len(c.index) {
		return c.err(fmt.Errorf("index has %d keys, lists hold %d", len(c.index), seen))
	}
	return nil
}
