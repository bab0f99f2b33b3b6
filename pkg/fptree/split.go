package fptree

// splitLeaf implements the leaf half of §4.8. leaf is already locked by
// the caller (Phase B); newKV is the pair that triggered the split by
// finding leaf full. splitLeaf allocates a sibling, redistributes the
// leaf's L+1 logical entries (the L stored plus newKV) evenly across the
// two, and leaves both unlocked — leaf by the caller, the new sibling
// here once its contents are published. It returns the sibling's handle
// and the key that should separate the two in the parent.
//
// The split log is written before any persistent leaf state changes and
// cleared after both leaves reach their final shape, so recoverSplit can
// resume (or undo) an interrupted split idempotently regardless of which
// persist call a crash lands between.
func (t *Tree) splitLeaf(leafPtr PmemPtr, leaf *Leaf, newKV KV) (PmemPtr, uint64, error) {
	all := leaf.snapshotAll(make([]KV, 0, leaf.Cap()+1))
	all = append(all, newKV)
	insertionSortKV(all)

	mid := len(all) / 2
	lower, upper := all[:mid], all[mid:]

	newPtr, newLeaf := t.pool.AllocLeaf()

	log, err := t.pool.AcquireSplitLog()
	if err != nil {
		t.pool.FreeLeaf(newPtr)
		return 0, 0, err
	}
	log.CurrentLeaf, log.OtherLeaf = leafPtr, newPtr
	t.pool.PersistSplitLog(log)

	for _, kv := range upper {
		newLeaf.addKV(kv)
	}
	newLeaf.next = leaf.next
	t.pool.PersistLeafBody(newPtr)
	t.pool.PersistBitmap(newPtr)
	t.pool.PersistNext(newPtr)

	leaf.bitmap = NewBitset(leaf.Cap())
	for _, kv := range lower {
		leaf.addKV(kv)
	}
	leaf.next = newPtr
	t.pool.PersistLeafBody(leafPtr)
	t.pool.PersistBitmap(leafPtr)
	t.pool.PersistNext(leafPtr)

	log.CurrentLeaf, log.OtherLeaf = 0, 0
	t.pool.PersistSplitLog(log)
	t.pool.ReleaseSplitLog(log)

	newLeaf.Unlock()
	return newPtr, upper[0].Key, nil
}

// insertChildAt is Phase D for both a leaf split and a cascading
// inner-node split: it threads the new (key, right) pair up through the
// recorded ancestor path, splitting an inner node when it overflows its
// configured capacity, and stopping either at the first ancestor with
// room or by growing a new root.
func (t *Tree) insertChildAt(path *DescentPath, level int, key uint64, left, right NodeRef) {
	if level < 0 {
		newRoot := newInner(t.innerCapacity)
		newRoot.init(key, left, right)
		t.root = innerRef(newRoot)
		return
	}
	anc := path.at(level)
	in := anc.node
	if in.nKey() < t.innerCapacity {
		in.addKey(anc.childIdx, key, right, true)
		return
	}
	midKey, newRight := t.splitInnerNode(in, anc.childIdx, key, right)
	t.insertChildAt(path, level-1, midKey, innerRef(in), innerRef(newRight))
}

// splitInnerNode splits an overflowing Inner in two, as if key/right had
// already been inserted at insertIndex, and returns the key promoted to
// the parent along with the freshly allocated right half. in is mutated
// in place to become the left half.
func (t *Tree) splitInnerNode(in *Inner, insertIndex int, key uint64, right NodeRef) (uint64, *Inner) {
	n := in.nKey()
	keys := make([]uint64, 0, n+1)
	keys = append(keys, in.keys[:insertIndex]...)
	keys = append(keys, key)
	keys = append(keys, in.keys[insertIndex:]...)

	children := make([]NodeRef, 0, n+2)
	children = append(children, in.children[:insertIndex+1]...)
	children = append(children, right)
	children = append(children, in.children[insertIndex+1:]...)

	mid := len(keys) / 2
	midKey := keys[mid]

	newRight := newInner(t.innerCapacity)
	newRight.keys = append(newRight.keys, keys[mid+1:]...)
	newRight.children = append(newRight.children, children[mid+1:]...)

	in.keys = append(in.keys[:0], keys[:mid]...)
	in.children = append(in.children[:0], children[:mid+1]...)

	return midKey, newRight
}
