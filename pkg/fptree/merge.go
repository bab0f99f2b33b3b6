package fptree

// deleteFromLeaf is Phase C/D of DeleteKey: leaf is already locked and
// located at leafPtr by the caller's descent. Removing a key from a leaf
// that still holds other entries afterward is just a bitmap-bit clear
// plus, if the removed key was the separator an ancestor routes on, a
// rewrite of that separator to the leaf's new minimum. Restructuring
// (unlinking the leaf and merging it into a sibling) happens only when
// the leaf empties out completely (§4.9, §4.11).
func (t *Tree) deleteFromLeaf(leafPtr PmemPtr, leaf *Leaf, path *DescentPath, key uint64) (bool, error) {
	st := leaf.getStat(key)
	if !st.found {
		leaf.Unlock()
		return false, nil
	}
	leaf.removeKVByIdx(st.kvIdx)
	t.pool.PersistBitmap(leafPtr)

	if st.count > 1 {
		if path.haveIndex && path.indexNode.keys[path.indexKeyIdx] == key {
			newMin := st.minExcludingKey
			t.lock.structural(func() {
				path.indexNode.keys[path.indexKeyIdx] = newMin
			})
		}
		leaf.Unlock()
		return true, nil
	}

	parent, hasParent := path.parent()
	if !hasParent {
		t.lock.structural(func() {
			t.pool.FreeLeaf(leafPtr)
			t.pool.SetHead(0)
			t.pool.PersistHead()
			t.root = NodeRef{}
		})
		leaf.Unlock()
		return true, nil
	}

	var err error
	t.lock.structural(func() {
		err = t.removeLeafAndMergeInnerNodes(leafPtr, leaf, path, parent)
	})
	leaf.Unlock()
	return true, err
}

// removeLeafAndMergeInnerNodes unlinks a now-empty leaf by merging it into
// whichever immediate sibling the parent records (§4.11). Only the leaf's
// direct siblings (same parent) are considered; an inner node that itself
// underflows more than one level up is left as-is rather than cascaded
// into, a deliberate scope limit — see DESIGN.md.
func (t *Tree) removeLeafAndMergeInnerNodes(leafPtr PmemPtr, leaf *Leaf, path *DescentPath, parent ancestor) error {
	in := parent.node
	childIdx := parent.childIdx

	if childIdx+1 < len(in.children) {
		sibPtr := in.children[childIdx+1].LeafPtr()
		sib := t.pool.Leaf(sibPtr)
		for !sib.Lock() {
		}
		defer sib.Unlock()
		return t.mergeLeaves(leafPtr, leaf, sibPtr, sib, in, childIdx, path)
	}

	sibPtr := in.children[childIdx-1].LeafPtr()
	sib := t.pool.Leaf(sibPtr)
	for !sib.Lock() {
	}
	defer sib.Unlock()
	return t.mergeLeaves(sibPtr, sib, leafPtr, leaf, in, childIdx-1, path)
}

// mergeLeaves absorbs right's live entries into left, frees right, and
// removes the separator key (and right's child pointer) from the parent
// Inner, collapsing an underflowed node into its neighbor. A delete log
// records the pending merge so recoverDelete can finish or undo it after
// a crash (§4.9, §4.10).
//
// If the parent is itself the tree root and this merge empties its last
// key, the root collapses to its one remaining child (§4.11); deeper
// cascades (an inner ancestor underflowing two or more levels up) are not
// implemented — see DESIGN.md.
func (t *Tree) mergeLeaves(leftPtr PmemPtr, left *Leaf, rightPtr PmemPtr, right *Leaf, in *Inner, sepIdx int, path *DescentPath) error {
	log, err := t.pool.AcquireDeleteLog()
	if err != nil {
		return err
	}
	log.CurrentLeaf, log.OtherLeaf = leftPtr, rightPtr
	t.pool.PersistDeleteLog(log)

	rightKVs := right.snapshotAll(make([]KV, 0, right.Cap()))
	for _, kv := range rightKVs {
		left.addKV(kv)
	}
	left.next = right.next
	t.pool.PersistLeafBody(leftPtr)
	t.pool.PersistBitmap(leftPtr)
	t.pool.PersistNext(leftPtr)

	t.pool.FreeLeaf(rightPtr)

	log.CurrentLeaf, log.OtherLeaf = 0, 0
	t.pool.PersistDeleteLog(log)
	t.pool.ReleaseDeleteLog(log)

	in.removeKey(sepIdx, true)

	if path.depth() == 1 && in.nKey() == 0 {
		t.root = in.children[0]
	}
	return nil
}
