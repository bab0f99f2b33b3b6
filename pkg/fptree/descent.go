package fptree

// maxDescentDepth bounds the ancestor stack findLeafAndPushInnerNodes
// records. §4.4 calls 32 sufficient given inner fan-out >= 32; we size it
// generously since the cost of an unused slot is negligible next to a
// panic on a legitimately deep tree.
const maxDescentDepth = 64

// ancestor is one level of the descent: the inner node visited and the
// child index chosen at that level.
type ancestor struct {
	node      *Inner
	childIdx  int
}

// DescentPath is the explicit value findLeafAndPushInnerNodes returns in
// place of the source's thread-local globals (stack_innerNodes, CHILD_IDX,
// INDEX_NODE, INDEX_KEY_IDX — see SPEC_FULL.md/Design Notes). Split consumes
// the ancestor stack bottom-up; delete consumes both the stack and the
// identified index node.
type DescentPath struct {
	ancestors []ancestor // root-to-parent-of-leaf, in descent order
	leaf      PmemPtr

	// indexNode is the shallowest ancestor whose key array contains the
	// search key, if any, together with the matching key slot.
	indexNode    *Inner
	indexKeyIdx  int
	haveIndex    bool
}

func (p *DescentPath) push(node *Inner, childIdx int) {
	if len(p.ancestors) >= maxDescentDepth {
		panic("fptree: descent stack exhausted")
	}
	p.ancestors = append(p.ancestors, ancestor{node: node, childIdx: childIdx})
}

// depth returns the number of recorded ancestor levels.
func (p *DescentPath) depth() int { return len(p.ancestors) }

// at returns the ancestor at the given depth (0 = root).
func (p *DescentPath) at(i int) ancestor { return p.ancestors[i] }

// parent returns the deepest recorded ancestor (the leaf's direct parent),
// or false if the leaf is the root.
func (p *DescentPath) parent() (ancestor, bool) {
	if len(p.ancestors) == 0 {
		return ancestor{}, false
	}
	return p.ancestors[len(p.ancestors)-1], true
}

// findLeaf walks from root to the candidate leaf for key without recording
// any descent metadata; this is the fast path used by Find and by
// RangeScan's start-leaf lookup. Insert, Update and DeleteKey descend with
// findLeafAndPushInnerNodes instead.
func findLeaf(root NodeRef, key uint64) PmemPtr {
	cur := root
	for cur.IsInner() {
		idx := cur.InnerNode().findChildIndex(key)
		cur = cur.InnerNode().children[idx]
	}
	return cur.LeafPtr()
}

// findLeafAndPushInnerNodes is findLeaf plus the ancestor/index-node
// bookkeeping of §4.4, used by split and delete.
func findLeafAndPushInnerNodes(root NodeRef, key uint64) (PmemPtr, *DescentPath) {
	path := &DescentPath{}
	cur := root
	for cur.IsInner() {
		in := cur.InnerNode()
		idx := in.findChildIndex(key)

		if !path.haveIndex {
			if j := indexOfKey(in, key); j >= 0 {
				path.indexNode = in
				path.indexKeyIdx = j
				path.haveIndex = true
			}
		}

		path.push(in, idx)
		cur = in.children[idx]
	}
	path.leaf = cur.LeafPtr()
	return path.leaf, path
}

// indexOfKey returns the slot of key within in.keys, or -1.
func indexOfKey(in *Inner, key uint64) int {
	for i, k := range in.keys {
		if k == key {
			return i
		}
	}
	return -1
}
