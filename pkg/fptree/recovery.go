package fptree

// recover brings a Tree up after opening pool: first it resolves any
// split or delete left checked out by a crash mid-operation (§4.10),
// then it rebuilds the volatile Inner skeleton from the persistent leaf
// list (§4.12) — Inner nodes never touch the pool, so a process restart
// always starts from nothing but the leaves.
func (t *Tree) recover() error {
	for _, log := range t.pool.AllSplitLogs() {
		if log.CurrentLeaf != 0 {
			t.recoverSplit(log)
		}
	}
	for _, log := range t.pool.AllDeleteLogs() {
		if log.CurrentLeaf != 0 {
			t.recoverDelete(log)
		}
	}

	head := t.pool.Head()
	if head == 0 {
		t.root = NodeRef{}
		return nil
	}

	var leafPtrs []PmemPtr
	var minKeys []uint64
	for ptr := head; ptr != 0; {
		leaf := t.pool.Leaf(ptr)
		leafPtrs = append(leafPtrs, ptr)
		if leaf.bitmap.Count() > 0 {
			minKeys = append(minKeys, leaf.minKey())
		} else {
			minKeys = append(minKeys, 0)
		}
		ptr = leaf.next
	}
	t.root = t.bulkLoad(leafPtrs, minKeys)
	return nil
}

// recoverSplit finishes or undoes an interrupted leaf split. Both leaves
// named in the log already hold valid (if possibly overlapping) payload —
// the log is written before either leaf's body is touched — so recovery
// does not need to know which step a crash landed on: it gathers the
// union of both leaves' entries, deterministically reapplies the same
// split §4.8 would have computed, and repairs whichever leaf's forward
// pointer did not yet get updated. This makes the redo idempotent however
// far the original split had progressed.
func (t *Tree) recoverSplit(log *SplitLog) {
	leftPtr, rightPtr := log.CurrentLeaf, log.OtherLeaf
	left := t.pool.Leaf(leftPtr)
	right := t.pool.Leaf(rightPtr)
	if left == nil || right == nil {
		log.CurrentLeaf, log.OtherLeaf = 0, 0
		t.pool.PersistSplitLog(log)
		t.pool.ReleaseSplitLog(log)
		return
	}

	successor := right.next
	if left.next != rightPtr {
		successor = left.next
	}

	all := dedupKVs(left.snapshotAll(nil), right.snapshotAll(nil))
	insertionSortKV(all)
	mid := len(all) / 2

	left.bitmap = NewBitset(left.Cap())
	for _, kv := range all[:mid] {
		left.addKV(kv)
	}
	left.next = rightPtr
	t.pool.PersistLeafBody(leftPtr)
	t.pool.PersistBitmap(leftPtr)
	t.pool.PersistNext(leftPtr)

	right.bitmap = NewBitset(right.Cap())
	for _, kv := range all[mid:] {
		right.addKV(kv)
	}
	right.next = successor
	t.pool.PersistLeafBody(rightPtr)
	t.pool.PersistBitmap(rightPtr)
	t.pool.PersistNext(rightPtr)

	log.CurrentLeaf, log.OtherLeaf = 0, 0
	t.pool.PersistSplitLog(log)
	t.pool.ReleaseSplitLog(log)
}

// recoverDelete finishes or undoes an interrupted leaf merge. If the
// right-hand leaf the log names is still live, the merge had not yet
// freed it: recovery redoes the absorption (deduplicated, so it is safe
// whether or not some of right's entries already made it into left) and
// frees it now. If it is already gone, the merge had completed and only
// the log needed clearing.
func (t *Tree) recoverDelete(log *DeleteLog) {
	leftPtr, rightPtr := log.CurrentLeaf, log.OtherLeaf
	left := t.pool.Leaf(leftPtr)
	if right := t.pool.Leaf(rightPtr); left != nil && right != nil {
		merged := dedupKVs(left.snapshotAll(nil), right.snapshotAll(nil))
		left.bitmap = NewBitset(left.Cap())
		for _, kv := range merged {
			left.addKV(kv)
		}
		left.next = right.next
		t.pool.PersistLeafBody(leftPtr)
		t.pool.PersistBitmap(leftPtr)
		t.pool.PersistNext(leftPtr)
		t.pool.FreeLeaf(rightPtr)
	}
	log.CurrentLeaf, log.OtherLeaf = 0, 0
	t.pool.PersistDeleteLog(log)
	t.pool.ReleaseDeleteLog(log)
}

// dedupKVs concatenates a and b, keeping the first occurrence of each key
// (a's entries win ties), for the idempotent redo both recovery paths
// need when the same key might appear in both leaves mid-crash.
func dedupKVs(a, b []KV) []KV {
	seen := make(map[uint64]bool, len(a)+len(b))
	out := make([]KV, 0, len(a)+len(b))
	for _, kv := range a {
		if !seen[kv.Key] {
			seen[kv.Key] = true
			out = append(out, kv)
		}
	}
	for _, kv := range b {
		if !seen[kv.Key] {
			seen[kv.Key] = true
			out = append(out, kv)
		}
	}
	return out
}

// bulkLoad builds a balanced Inner skeleton bottom-up over an ordered
// list of leaves, grouping up to innerCapacity+1 children per node at
// each level, repeated until a single root remains (§4.12).
func (t *Tree) bulkLoad(leafPtrs []PmemPtr, minKeys []uint64) NodeRef {
	children := make([]NodeRef, len(leafPtrs))
	for i, p := range leafPtrs {
		children[i] = leafRef(p)
	}
	firstKeys := minKeys

	for len(children) > 1 {
		var nextChildren []NodeRef
		var nextFirstKeys []uint64
		chunkSize := t.innerCapacity + 1
		for i := 0; i < len(children); i += chunkSize {
			end := i + chunkSize
			if end > len(children) {
				end = len(children)
			}
			in := newInner(t.innerCapacity)
			in.children = append(in.children, children[i:end]...)
			in.keys = append(in.keys, firstKeys[i+1:end]...)
			nextChildren = append(nextChildren, innerRef(in))
			nextFirstKeys = append(nextFirstKeys, firstKeys[i])
		}
		children, firstKeys = nextChildren, nextFirstKeys
	}
	return children[0]
}
