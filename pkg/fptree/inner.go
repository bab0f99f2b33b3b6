package fptree

import "sort"

// Inner is the volatile routing node of §4.3: a sorted key array and
// nKey+1 children, all of the same kind. Unlike Leaf, Inner carries no
// persistence requirement, so it is backed by plain slices that grow up
// to the tree's configured inner capacity I rather than a fixed array.
type Inner struct {
	keys     []uint64
	children []NodeRef
}

// newInner allocates an empty inner node with room for capacity I keys.
func newInner(innerCapacity int) *Inner {
	return &Inner{
		keys:     make([]uint64, 0, innerCapacity),
		children: make([]NodeRef, 0, innerCapacity+1),
	}
}

// init primes a freshly allocated inner node as a two-child root splitter
// (§4.3 init).
func (n *Inner) init(key uint64, left, right NodeRef) {
	n.keys = append(n.keys[:0], key)
	n.children = append(n.children[:0], left, right)
}

func (n *Inner) nKey() int { return len(n.keys) }

// findChildIndex performs the lower-bound binary search of §4.3: returns i
// such that children[i] is the subtree to descend into. Equal keys route
// right (keys[i] == key implies return i+1), matching invariant 4's
// separator/path-hint duality.
func (n *Inner) findChildIndex(key uint64) int {
	i := sort.Search(len(n.keys), func(i int) bool { return n.keys[i] > key })
	if i > 0 && n.keys[i-1] == key {
		return i
	}
	return i
}

// addKey inserts (key, child) at index, shifting keys[index:] and the
// chosen child side right by one (§4.3 addKey).
func (n *Inner) addKey(index int, key uint64, child NodeRef, addChildRight bool) {
	n.keys = append(n.keys, 0)
	copy(n.keys[index+1:], n.keys[index:])
	n.keys[index] = key

	n.children = append(n.children, NodeRef{})
	childIdx := index
	if addChildRight {
		childIdx = index + 1
	}
	copy(n.children[childIdx+1:], n.children[childIdx:])
	n.children[childIdx] = child
}

// removeKey deletes the key at index and one of its two adjacent children,
// chosen by removeRightChild (§4.3 removeKey).
func (n *Inner) removeKey(index int, removeRightChild bool) {
	copy(n.keys[index:], n.keys[index+1:])
	n.keys = n.keys[:len(n.keys)-1]

	childIdx := index
	if removeRightChild {
		childIdx = index + 1
	}
	copy(n.children[childIdx:], n.children[childIdx+1:])
	n.children = n.children[:len(n.children)-1]
}
