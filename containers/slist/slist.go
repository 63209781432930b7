// Package slist implements the preallocated singly linked list of
// spec.md §4.6: the caller supplies node storage (the node type embeds
// the list link) and the list itself only ever manipulates offsets.
//
// Grounded on original_source's data_structures/ipc/slist_pre.h
// (preallocated, caller-owned node storage, no internal allocation) and
// on spec.md §4.6's required operation set.
package slist

import "github.com/coriolis-labs/corerun/memory/offset"

// Link is the intrusive next-pointer a node type embeds to participate
// in a List. It stores an offset, never a raw address, so the list can
// live in shared memory.
type Link struct {
	Next uint64
}

// Node is anything a caller wants to place in a List: it must expose its
// own Link so the list can chase Next offsets.
type Node interface {
	Link() *Link
}

// List is a singly linked list of caller-owned nodes, addressed by
// offset. res resolves an offset to the concrete node so the list can
// read/write its Link; the caller supplies a matching decode function
// since the list has no notion of the node's concrete type.
type List struct {
	res     offset.Resolver
	decode  func(off uint64) Node
	head    uint64
	hasHead bool
	size    int
}

// New builds an empty List over res, using decode to turn an offset
// back into the caller's node type.
func New(res offset.Resolver, decode func(off uint64) Node) *List {
	return &List{res: res, decode: decode}
}

// EmplaceFront links a new head; nodeOff must already contain fully
// initialized node data at the given offset.
func (l *List) EmplaceFront(nodeOff uint64) {
	n := l.decode(nodeOff)
	if l.hasHead {
		n.Link().Next = l.head
	} else {
		n.Link().Next = 0
	}
	l.head = nodeOff
	l.hasHead = true
	l.size++
}

// PopFront removes and returns the head's offset, or (0, false) if empty.
func (l *List) PopFront() (uint64, bool) {
	if !l.hasHead {
		return 0, false
	}
	off := l.head
	head := l.decode(off)
	if head.Link().Next == 0 && l.size == 1 {
		l.hasHead = false
		l.head = 0
	} else {
		l.head = head.Link().Next
	}
	l.size--
	return off, true
}

// Peek returns the head's offset without removing it.
func (l *List) Peek() (uint64, bool) {
	if !l.hasHead {
		return 0, false
	}
	return l.head, true
}

// Size reports the number of linked nodes.
func (l *List) Size() int { return l.size }

// Empty reports whether the list has no nodes.
func (l *List) Empty() bool { return !l.hasHead }

// Iterator holds (current, prev) so RemoveAt is O(1): unlinking a node
// only requires rewriting prev's Next, never a re-scan from head.
type Iterator struct {
	list    *List
	prev    uint64
	hasPrev bool
	cur     uint64
	hasCur  bool
}

// IterateForward returns an iterator positioned at the head.
func (l *List) IterateForward() *Iterator {
	it := &Iterator{list: l}
	if l.hasHead {
		it.cur = l.head
		it.hasCur = true
	}
	return it
}

// Valid reports whether the iterator is positioned on a node.
func (it *Iterator) Valid() bool { return it.hasCur }

// Offset returns the current node's offset. Valid must be true.
func (it *Iterator) Offset() uint64 { return it.cur }

// Next advances the iterator, tracking the outgoing node as prev.
func (it *Iterator) Next() {
	if !it.hasCur {
		return
	}
	cur := it.list.decode(it.cur)
	it.prev = it.cur
	it.hasPrev = true
	nextOff := cur.Link().Next
	if nextOff == 0 {
		it.hasCur = false
		it.cur = 0
		return
	}
	it.cur = nextOff
}

// RemoveAt unlinks the iterator's current node in O(1) using the
// tracked prev pointer, then advances the iterator to the following
// node.
func (it *Iterator) RemoveAt() (uint64, bool) {
	if !it.hasCur {
		return 0, false
	}
	removed := it.cur
	cur := it.list.decode(removed)
	next := cur.Link().Next

	switch {
	case !it.hasPrev:
		it.list.head = next
		it.list.hasHead = next != 0
	default:
		it.list.decode(it.prev).Link().Next = next
	}
	it.list.size--

	if next == 0 {
		it.hasCur = false
		it.cur = 0
	} else {
		it.cur = next
	}
	return removed, true
}
