package fptree

import "golang.org/x/exp/slices"

// Tree is the fingerprinting persistent tree of §4: a volatile Inner-node
// skeleton rooted at t.root, its leaves resolved through a Pool, and a
// single process-wide speculative lock coordinating every operation.
//
// t.root is read and written only from inside t.lock's three entry points
// (withHTM, fallback, structural): reader-mode holders of the RWMutex
// embedded in specLock can never observe a concurrent structural mutation,
// so the field itself needs no atomic of its own.
type Tree struct {
	pool Pool

	leafCapacity  uint
	innerCapacity int

	lock specLock
	root NodeRef
}

// New opens a tree over pool. If the pool already holds a leaf list (a
// reopened pool file) the inner-node skeleton is rebuilt from it and any
// split or delete log left checked out by a crash is replayed or undone;
// otherwise a fresh empty tree is returned (§4.10, §4.12).
func New(pool Pool, leafCapacity uint, innerCapacity int) (*Tree, error) {
	if leafCapacity == 0 || leafCapacity > MaxLeafSize {
		panic("fptree: leaf capacity out of range")
	}
	if innerCapacity < 2 {
		panic("fptree: inner capacity must be at least 2")
	}
	t := &Tree{pool: pool, leafCapacity: leafCapacity, innerCapacity: innerCapacity}
	if err := t.recover(); err != nil {
		return nil, err
	}
	return t, nil
}

// bootstrapRootIfNeeded gives a brand new tree its first, empty leaf. Safe
// to call unconditionally and concurrently: the structural section
// double-checks under the lock before allocating.
func (t *Tree) bootstrapRootIfNeeded() {
	if !t.root.IsNil() {
		return
	}
	t.lock.structural(func() {
		if !t.root.IsNil() {
			return
		}
		ptr, leaf := t.pool.AllocLeaf()
		leaf.Unlock()
		t.pool.SetHead(ptr)
		t.pool.PersistHead()
		t.root = leafRef(ptr)
	})
}

// Find returns the value stored for key, per §4.5: a bounded number of
// transactional attempts under the reader-mode speculative lock, falling
// back to a guaranteed-progress read under the writer-mode lock.
func (t *Tree) Find(key uint64) (uint64, bool) {
	if t.root.IsNil() {
		return 0, false
	}
	var value uint64
	var found bool
	attempt := func() txOutcome {
		if t.root.IsNil() {
			found = false
			return txCommit
		}
		leafPtr := findLeaf(t.root, key)
		leaf := t.pool.Leaf(leafPtr)
		if !leaf.RLock() {
			return txAbort
		}
		if idx, ok := leaf.findKVIndex(key); ok {
			value, found = leaf.pairs[idx].Value, true
		} else {
			found = false
		}
		leaf.RUnlock()
		return txCommit
	}
	if !t.lock.withHTM(attempt) {
		t.lock.fallback(attempt)
	}
	return value, found
}

// lockTargetLeaf runs Phase A/B of an update-shaped operation: descend to
// the leaf holding key (recording ancestors in case the caller needs to
// restructure the tree) and acquire the leaf's exclusive lock. It returns
// once the lock is held; the caller owns unlocking it.
func (t *Tree) lockTargetLeaf(key uint64) (PmemPtr, *Leaf, *DescentPath) {
	var leafPtr PmemPtr
	var leaf *Leaf
	var path *DescentPath
	attempt := func() txOutcome {
		lp, p := findLeafAndPushInnerNodes(t.root, key)
		l := t.pool.Leaf(lp)
		if !l.Lock() {
			return txAbort
		}
		leafPtr, leaf, path = lp, l, p
		return txCommit
	}
	if !t.lock.withHTM(attempt) {
		t.lock.fallback(attempt)
	}
	return leafPtr, leaf, path
}

// Insert adds (key, value) if key is not already present, growing the
// tree with a leaf (and possibly cascading inner-node) split when the
// target leaf is full (§4.6, §4.8). It reports false, with no error, if
// key already exists — Insert never overwrites; use Update for that.
func (t *Tree) Insert(key, value uint64) (bool, error) {
	t.bootstrapRootIfNeeded()

	leafPtr, leaf, path := t.lockTargetLeaf(key)

	if _, exists := leaf.findKVIndex(key); exists {
		leaf.Unlock()
		return false, nil
	}

	if !leaf.IsFull() {
		leaf.addKV(KV{Key: key, Value: value})
		t.pool.PersistLeafBody(leafPtr)
		t.pool.PersistBitmap(leafPtr)
		leaf.Unlock()
		return true, nil
	}

	newPtr, splitKey, err := t.splitLeaf(leafPtr, leaf, KV{Key: key, Value: value})
	leaf.Unlock()
	if err != nil {
		return false, err
	}

	t.lock.structural(func() {
		t.insertChildAt(path, path.depth()-1, splitKey, leafRef(leafPtr), leafRef(newPtr))
	})
	return true, nil
}

// Update overwrites the value stored for an existing key, reporting false
// if key is absent. Never changes the tree's shape, so it needs only
// Phase A/B's leaf lock (§4.7).
func (t *Tree) Update(key, value uint64) (bool, error) {
	if t.root.IsNil() {
		return false, nil
	}
	leafPtr, leaf, _ := t.lockTargetLeaf(key)
	idx, ok := leaf.findKVIndex(key)
	if !ok {
		leaf.Unlock()
		return false, nil
	}
	leaf.pairs[idx].Value = value
	t.pool.PersistLeafBody(leafPtr)
	leaf.Unlock()
	return true, nil
}

// DeleteKey removes key. A leaf that still holds other entries afterward
// only has its bitmap bit cleared (with a separator rewrite if the removed
// key routed an ancestor); a leaf that empties out is unlinked and merged
// into a sibling, collapsing the root when the tree shrinks to a single
// leaf (§4.9, §4.11). Reports false if key is absent.
func (t *Tree) DeleteKey(key uint64) (bool, error) {
	if t.root.IsNil() {
		return false, nil
	}
	leafPtr, leaf, path := t.lockTargetLeaf(key)
	return t.deleteFromLeaf(leafPtr, leaf, path, key)
}

// RangeScan returns up to maxRecords (key, value) pairs with key >= start,
// walking the persistent leaf list via next pointers rather than
// re-descending the Inner skeleton for each leaf (§4.13, §6). Each leaf is
// momentarily locked to take a consistent snapshot of it; the walk stops as
// soon as maxRecords pairs have been accumulated, not at any key bound.
func (t *Tree) RangeScan(start uint64, maxRecords int) []KV {
	if t.root.IsNil() || maxRecords <= 0 {
		return nil
	}
	var out []KV
	leafPtr := t.startLeafFor(start)
	first := true
	for leafPtr != 0 {
		leaf := t.pool.Leaf(leafPtr)
		for !leaf.Lock() {
		}
		if first {
			out = leaf.snapshotFrom(start, out)
			first = false
		} else {
			out = leaf.snapshotAll(out)
		}
		next := leaf.next
		leaf.Unlock()
		leafPtr = next

		if len(out) >= maxRecords {
			break
		}
	}
	out = filterAndSortRange(out, start, maxRecords)
	return out
}

// startLeafFor descends to the leaf that would hold start, exactly like
// Find's Phase A, so RangeScan does not need to walk the list from head.
func (t *Tree) startLeafFor(start uint64) PmemPtr {
	var leafPtr PmemPtr
	attempt := func() txOutcome {
		leafPtr = findLeaf(t.root, start)
		return txCommit
	}
	t.lock.withHTM(attempt)
	if leafPtr == 0 {
		t.lock.fallback(attempt)
	}
	return leafPtr
}

// filterAndSortRange trims snapshotted pairs to key >= start and at most
// maxRecords of them (the last leaf visited may have contributed more than
// needed), and sorts by key; real hardware would have gathered these
// already in fingerprint-probe order, not key order.
func filterAndSortRange(kvs []KV, start uint64, maxRecords int) []KV {
	n := 0
	for _, kv := range kvs {
		if kv.Key >= start {
			kvs[n] = kv
			n++
		}
	}
	kvs = kvs[:n]
	slices.SortFunc(kvs, func(a, b KV) bool { return a.Key < b.Key })
	if len(kvs) > maxRecords {
		kvs = kvs[:maxRecords]
	}
	return kvs
}

// insertionSortKV sorts small slices by key without pulling in sort.Slice's
// reflection-based comparator; split and recovery deal in leaf-sized
// batches (<= MaxLeafSize*a few), where insertion sort beats the allocation
// sort.Slice does for its interface closure.
func insertionSortKV(kvs []KV) {
	for i := 1; i < len(kvs); i++ {
		j, v := i, kvs[i]
		for j > 0 && kvs[j-1].Key > v.Key {
			kvs[j] = kvs[j-1]
			j--
		}
		kvs[j] = v
	}
}

// Stats summarizes tree occupancy for diagnostics (cmd/fptreedb's
// stats subcommand and the HTTP API's stats endpoint, grounded in the
// original_source inspector's leaf census).
type Stats struct {
	Leaves    int
	KVs       int
	InnerCap  int
	LeafCap   uint
	FillRatio float64
}

// Stats walks the leaf list once, counting occupancy. It does not take
// the speculative lock: a snapshot taken concurrently with writers is
// good enough for a diagnostic, not a correctness-sensitive read.
func (t *Tree) Stats() Stats {
	st := Stats{InnerCap: t.innerCapacity, LeafCap: t.leafCapacity}
	ptr := t.pool.Head()
	for ptr != 0 {
		leaf := t.pool.Leaf(ptr)
		st.Leaves++
		st.KVs += leaf.bitmap.Count()
		ptr = leaf.next
	}
	if st.Leaves > 0 {
		st.FillRatio = float64(st.KVs) / float64(st.Leaves*int(t.leafCapacity))
	}
	return st
}

// LockStats reports the cumulative count of transactional retries (aborted
// withHTM attempts and fallback retry-loop iterations) and fallback-lock
// escalations observed by this tree's speculative lock.
func (t *Tree) LockStats() (retries, fallbacks uint64) {
	return t.lock.lockStats()
}
