// Package rbtree implements the preallocated red-black tree of spec.md
// §4.6: caller-owned node storage keyed by a comparable field embedded
// in the node, offset-addressed, standard CLRS fix-up invariants.
//
// Grounded on original_source's data_structures/ipc/rb_tree_pre.h for
// the "preallocated, caller supplies storage, offset-linked" contract;
// the fix-up rotations follow the textbook left-leaning-free CLRS
// algorithm, since neither the teacher nor the pack ship an RB-tree the
// spec's ownership model can adopt wholesale.
package rbtree

// Node is the intrusive linkage a caller's element type embeds. All
// pointers are offsets; zero means "nil" (offset.Null is reserved).
type Node struct {
	Parent, Left, Right uint64
	Red                 bool
}

// Keyed is the interface a caller's node type must implement so the
// tree can compare and link entries without knowing the concrete type.
type Keyed interface {
	Node() *Node
	// Less reports whether this node's key orders before other's.
	Less(other Keyed) bool
}

// Tree is a red-black tree over caller-owned nodes, addressed by offset.
// decode turns an offset into the caller's concrete node type.
type Tree struct {
	decode func(off uint64) Keyed
	root   uint64
	size   int
}

// New builds an empty Tree, using decode to resolve offsets to nodes.
func New(decode func(off uint64) Keyed) *Tree {
	return &Tree{decode: decode}
}

// Size reports the number of keys in the tree.
func (t *Tree) Size() int { return t.size }

func (t *Tree) get(off uint64) Keyed {
	if off == 0 {
		return nil
	}
	return t.decode(off)
}

// Find returns the offset of the node whose key matches, or (0, false).
func (t *Tree) Find(key Keyed) (uint64, bool) {
	cur := t.root
	for cur != 0 {
		n := t.get(cur)
		switch {
		case key.Less(n):
			cur = n.Node().Left
		case n.Less(key):
			cur = n.Node().Right
		default:
			return cur, true
		}
	}
	return 0, false
}

// Emplace inserts the node already materialized at nodeOff, keyed by its
// own Keyed.Less, and rebalances. Duplicate keys are rejected: Emplace
// returns false and leaves the tree unchanged if an equal key exists.
func (t *Tree) Emplace(nodeOff uint64) bool {
	z := t.get(nodeOff)
	*z.Node() = Node{Red: true}

	var parentOff uint64
	cur := t.root
	for cur != 0 {
		parentOff = cur
		n := t.get(cur)
		switch {
		case z.Less(n):
			cur = n.Node().Left
		case n.Less(z):
			cur = n.Node().Right
		default:
			return false // duplicate key
		}
	}

	z.Node().Parent = parentOff
	if parentOff == 0 {
		t.root = nodeOff
	} else {
		p := t.get(parentOff)
		if z.Less(p) {
			p.Node().Left = nodeOff
		} else {
			p.Node().Right = nodeOff
		}
	}
	t.size++
	t.insertFixup(nodeOff)
	return true
}

// Remove deletes the node keyed by key, if present, and rebalances.
func (t *Tree) Remove(key Keyed) bool {
	zOff, ok := t.Find(key)
	if !ok {
		return false
	}
	t.removeNode(zOff)
	t.size--
	return true
}

func (t *Tree) rotateLeft(xOff uint64) {
	x := t.get(xOff)
	yOff := x.Node().Right
	y := t.get(yOff)

	x.Node().Right = y.Node().Left
	if y.Node().Left != 0 {
		t.get(y.Node().Left).Node().Parent = xOff
	}
	y.Node().Parent = x.Node().Parent
	if x.Node().Parent == 0 {
		t.root = yOff
	} else {
		p := t.get(x.Node().Parent)
		if p.Node().Left == xOff {
			p.Node().Left = yOff
		} else {
			p.Node().Right = yOff
		}
	}
	y.Node().Left = xOff
	x.Node().Parent = yOff
}

func (t *Tree) rotateRight(xOff uint64) {
	x := t.get(xOff)
	yOff := x.Node().Left
	y := t.get(yOff)

	x.Node().Left = y.Node().Right
	if y.Node().Right != 0 {
		t.get(y.Node().Right).Node().Parent = xOff
	}
	y.Node().Parent = x.Node().Parent
	if x.Node().Parent == 0 {
		t.root = yOff
	} else {
		p := t.get(x.Node().Parent)
		if p.Node().Right == xOff {
			p.Node().Right = yOff
		} else {
			p.Node().Left = yOff
		}
	}
	y.Node().Right = xOff
	x.Node().Parent = yOff
}

func (t *Tree) isRed(off uint64) bool {
	return off != 0 && t.get(off).Node().Red
}

func (t *Tree) insertFixup(zOff uint64) {
	for t.isRed(t.get(zOff).Node().Parent) {
		z := t.get(zOff)
		parentOff := z.Node().Parent
		parent := t.get(parentOff)
		grandOff := parent.Node().Parent
		grand := t.get(grandOff)

		if parentOff == grand.Node().Left {
			uncleOff := grand.Node().Right
			if t.isRed(uncleOff) {
				parent.Node().Red = false
				t.get(uncleOff).Node().Red = false
				grand.Node().Red = true
				zOff = grandOff
				continue
			}
			if zOff == parent.Node().Right {
				zOff = parentOff
				t.rotateLeft(zOff)
			}
			z = t.get(zOff)
			pOff := z.Node().Parent
			p := t.get(pOff)
			gOff := p.Node().Parent
			g := t.get(gOff)
			p.Node().Red = false
			g.Node().Red = true
			t.rotateRight(gOff)
		} else {
			uncleOff := grand.Node().Left
			if t.isRed(uncleOff) {
				parent.Node().Red = false
				t.get(uncleOff).Node().Red = false
				grand.Node().Red = true
				zOff = grandOff
				continue
			}
			if zOff == parent.Node().Left {
				zOff = parentOff
				t.rotateRight(zOff)
			}
			z = t.get(zOff)
			pOff := z.Node().Parent
			p := t.get(pOff)
			gOff := p.Node().Parent
			g := t.get(gOff)
			p.Node().Red = false
			g.Node().Red = true
			t.rotateLeft(gOff)
		}
	}
	t.get(t.root).Node().Red = false
}

func (t *Tree) transplant(uOff, vOff uint64) {
	u := t.get(uOff)
	if u.Node().Parent == 0 {
		t.root = vOff
	} else {
		p := t.get(u.Node().Parent)
		if p.Node().Left == uOff {
			p.Node().Left = vOff
		} else {
			p.Node().Right = vOff
		}
	}
	if vOff != 0 {
		t.get(vOff).Node().Parent = u.Node().Parent
	}
}

func (t *Tree) minimum(off uint64) uint64 {
	for t.get(off).Node().Left != 0 {
		off = t.get(off).Node().Left
	}
	return off
}

func (t *Tree) removeNode(zOff uint64) {
	z := t.get(zOff)
	yOff := zOff
	y := z
	yOriginalRed := y.Node().Red
	var xOff, xParentOff uint64

	switch {
	case z.Node().Left == 0:
		xOff = z.Node().Right
		xParentOff = z.Node().Parent
		t.transplant(zOff, xOff)
	case z.Node().Right == 0:
		xOff = z.Node().Left
		xParentOff = z.Node().Parent
		t.transplant(zOff, xOff)
	default:
		yOff = t.minimum(z.Node().Right)
		y = t.get(yOff)
		yOriginalRed = y.Node().Red
		xOff = y.Node().Right
		if y.Node().Parent == zOff {
			xParentOff = yOff
		} else {
			xParentOff = y.Node().Parent
			t.transplant(yOff, xOff)
			y.Node().Right = z.Node().Right
			t.get(y.Node().Right).Node().Parent = yOff
		}
		t.transplant(zOff, yOff)
		y.Node().Left = z.Node().Left
		t.get(y.Node().Left).Node().Parent = yOff
		y.Node().Red = z.Node().Red
	}

	if !yOriginalRed {
		t.removeFixup(xOff, xParentOff)
	}
}

func (t *Tree) removeFixup(xOff, xParentOff uint64) {
	for xOff != t.root && !t.isRed(xOff) && xParentOff != 0 {
		parent := t.get(xParentOff)
		if xOff == parent.Node().Left {
			wOff := parent.Node().Right
			w := t.get(wOff)
			if t.isRed(wOff) {
				w.Node().Red = false
				parent.Node().Red = true
				t.rotateLeft(xParentOff)
				wOff = parent.Node().Right
				w = t.get(wOff)
			}
			if !t.isRed(w.Node().Left) && !t.isRed(w.Node().Right) {
				w.Node().Red = true
				xOff = xParentOff
				xParentOff = t.get(xOff).Node().Parent
				continue
			}
			if !t.isRed(w.Node().Right) {
				if w.Node().Left != 0 {
					t.get(w.Node().Left).Node().Red = false
				}
				w.Node().Red = true
				t.rotateRight(wOff)
				wOff = parent.Node().Right
				w = t.get(wOff)
			}
			w.Node().Red = parent.Node().Red
			parent.Node().Red = false
			if w.Node().Right != 0 {
				t.get(w.Node().Right).Node().Red = false
			}
			t.rotateLeft(xParentOff)
			xOff = t.root
		} else {
			wOff := parent.Node().Left
			w := t.get(wOff)
			if t.isRed(wOff) {
				w.Node().Red = false
				parent.Node().Red = true
				t.rotateRight(xParentOff)
				wOff = parent.Node().Left
				w = t.get(wOff)
			}
			if !t.isRed(w.Node().Right) && !t.isRed(w.Node().Left) {
				w.Node().Red = true
				xOff = xParentOff
				xParentOff = t.get(xOff).Node().Parent
				continue
			}
			if !t.isRed(w.Node().Left) {
				if w.Node().Right != 0 {
					t.get(w.Node().Right).Node().Red = false
				}
				w.Node().Red = true
				t.rotateLeft(wOff)
				wOff = parent.Node().Left
				w = t.get(wOff)
			}
			w.Node().Red = parent.Node().Red
			parent.Node().Red = false
			if w.Node().Left != 0 {
				t.get(w.Node().Left).Node().Red = false
			}
			t.rotateRight(xParentOff)
			xOff = t.root
		}
	}
	if xOff != 0 {
		t.get(xOff).Node().Red = false
	}
}
