package cache

// class is the ARC list a slot currently belongs to.
type class uint8

const (
	classFree class = iota
	classT1         // resident, seen once
	classT2         // resident, seen at least twice
	classB1         // ghost evicted from T1
	classB2         // ghost evicted from T2
)

func (c class) resident() bool { return c == classT1 || c == classT2 }

// nilSlot terminates intrusive lists.
const nilSlot int32 = -1

// slot is one cell of the arena. Slots [0,N) carry resident entries and
// their position is the entry index; slots [N,2N) carry ghost keys only.
//
// Links are arena positions rather than pointers: head is MRU, tail is LRU.
type slot[K comparable, V any] struct {
	key K
	val V

	prev int32
	next int32
	cls  class
}

// slotList is the head/tail/len triple of one intrusive list over the arena.
type slotList struct {
	head int32 // MRU
	tail int32 // LRU
	len  int
	cls  class // class stamped on slots linked into this list
}

func newSlotList(cls class) slotList {
	return slotList{head: nilSlot, tail: nilSlot, cls: cls}
}
