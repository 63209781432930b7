package slist_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coriolis-labs/corerun/containers/slist"
)

type intNode struct {
	link  slist.Link
	value int
}

func (n *intNode) Link() *slist.Link { return &n.link }

// storage backs a small fixed pool of nodes, offset-addressed starting
// at 8 (0 stays reserved for offset.Null per memory/offset's contract).
type storage struct {
	nodes []intNode
}

func newStorage(n int) *storage { return &storage{nodes: make([]intNode, n)} }

func (s *storage) offsetOf(i int) uint64 { return uint64(i+1) * 8 }

func (s *storage) decode(off uint64) slist.Node {
	i := int(off/8) - 1
	return &s.nodes[i]
}

func (s *storage) set(i, value int) uint64 {
	s.nodes[i].value = value
	return s.offsetOf(i)
}

func TestSList_EmplacePopFront(t *testing.T) {
	s := newStorage(4)
	l := slist.New(nil, s.decode)

	l.EmplaceFront(s.set(0, 1))
	l.EmplaceFront(s.set(1, 2))
	l.EmplaceFront(s.set(2, 3))
	require.Equal(t, 3, l.Size())

	off, ok := l.PopFront()
	require.True(t, ok)
	require.Equal(t, 3, s.decode(off).(*intNode).value)

	off, ok = l.PopFront()
	require.True(t, ok)
	require.Equal(t, 2, s.decode(off).(*intNode).value)

	off, ok = l.PopFront()
	require.True(t, ok)
	require.Equal(t, 1, s.decode(off).(*intNode).value)

	_, ok = l.PopFront()
	require.False(t, ok)
	require.True(t, l.Empty())
}

func TestSList_Peek(t *testing.T) {
	s := newStorage(2)
	l := slist.New(nil, s.decode)
	_, ok := l.Peek()
	require.False(t, ok)

	l.EmplaceFront(s.set(0, 42))
	off, ok := l.Peek()
	require.True(t, ok)
	require.Equal(t, 42, s.decode(off).(*intNode).value)
	require.Equal(t, 1, l.Size(), "peek must not remove")
}

func TestSList_RemoveAtMiddle(t *testing.T) {
	s := newStorage(3)
	l := slist.New(nil, s.decode)
	l.EmplaceFront(s.set(0, 1))
	l.EmplaceFront(s.set(1, 2))
	l.EmplaceFront(s.set(2, 3))
	// list is now: 3 -> 2 -> 1

	it := l.IterateForward()
	require.True(t, it.Valid())
	it.Next() // now at value 2
	require.Equal(t, 2, s.decode(it.Offset()).(*intNode).value)

	removed, ok := it.RemoveAt()
	require.True(t, ok)
	require.Equal(t, 2, s.decode(removed).(*intNode).value)
	require.Equal(t, 2, l.Size())

	// Remaining order should be 3 -> 1.
	var values []int
	for it := l.IterateForward(); it.Valid(); it.Next() {
		values = append(values, s.decode(it.Offset()).(*intNode).value)
	}
	require.Equal(t, []int{3, 1}, values)
}

func TestSList_RemoveAtHead(t *testing.T) {
	s := newStorage(2)
	l := slist.New(nil, s.decode)
	l.EmplaceFront(s.set(0, 1))
	l.EmplaceFront(s.set(1, 2))

	it := l.IterateForward()
	_, ok := it.RemoveAt()
	require.True(t, ok)

	off, ok := l.Peek()
	require.True(t, ok)
	require.Equal(t, 1, s.decode(off).(*intNode).value)
}
