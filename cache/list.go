package cache

// -------------------- intrusive list ops over the arena --------------------

// listOf returns the list slot i is currently linked into.
func (c *ARC[K, V]) listOf(i int32) *slotList {
	switch c.slots[i].cls {
	case classT1:
		return &c.t1
	case classT2:
		return &c.t2
	case classB1:
		return &c.b1
	case classB2:
		return &c.b2
	default:
		if int(i) < c.n {
			return &c.freeLive
		}
		return &c.freeGhost
	}
}

// pushFront links i at the MRU end of l in O(1).
func (c *ARC[K, V]) pushFront(l *slotList, i int32) {
	s := &c.slots[i]
	s.cls = l.cls
	s.prev = nilSlot
	s.next = l.head
	if l.head != nilSlot {
		c.slots[l.head].prev = i
	}
	l.head = i
	if l.tail == nilSlot {
		l.tail = i
	}
	l.len++
}

// pushBack links i at the LRU end of l in O(1).
// Free lists use it so that released slots are handed out FIFO.
func (c *ARC[K, V]) pushBack(l *slotList, i int32) {
	s := &c.slots[i]
	s.cls = l.cls
	s.next = nilSlot
	s.prev = l.tail
	if l.tail != nilSlot {
		c.slots[l.tail].next = i
	}
	l.tail = i
	if l.head == nilSlot {
		l.head = i
	}
	l.len++
}

// unlink detaches i from whatever list holds it in O(1).
func (c *ARC[K, V]) unlink(i int32) {
	l := c.listOf(i)
	s := &c.slots[i]
	if s.prev != nilSlot {
		c.slots[s.prev].next = s.next
	}
	if s.next != nilSlot {
		c.slots[s.next].prev = s.prev
	}
	if l.head == i {
		l.head = s.next
	}
	if l.tail == i {
		l.tail = s.prev
	}
	s.prev, s.next = nilSlot, nilSlot
	l.len--
}

// moveToFront relinks i at the MRU end of l (possibly a different list).
func (c *ARC[K, V]) moveToFront(l *slotList, i int32) {
	if l.head == i {
		return
	}
	c.unlink(i)
	c.pushFront(l, i)
}

// popFront unlinks and returns the head of l, or nilSlot if l is empty.
func (c *ARC[K, V]) popFront(l *slotList) int32 {
	i := l.head
	if i != nilSlot {
		c.unlink(i)
	}
	return i
}
