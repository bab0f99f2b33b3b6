package fptree

import "sync"

// Leaf is the persistent-memory-resident node of §4.2: an occupancy bitmap,
// a fingerprint byte per slot, the kv payload array, a forward pointer into
// the leaf list, and a non-blocking ownership lock. The backing arrays are
// sized to MaxLeafSize so every leaf has the same fixed shape whatever its
// live capacity; a Tree configures the live capacity L <= MaxLeafSize once
// at construction via Bitset.n, and every loop below stays within it.
//
// A Leaf always lives in ordinary memory, embedded lock included. The
// durable pool (pkg/pmem) does not overlay the struct on its mapped file; it
// encodes the bitmap, fingerprints, pairs and next pointer into fixed-size
// records there.
type Leaf struct {
	mu           sync.RWMutex
	bitmap       Bitset
	fingerprints [MaxLeafSize]uint8
	pairs        [MaxLeafSize]KV
	next         PmemPtr
}

// InitLeaf resets l to an empty leaf of capacity cap, born locked per
// §4.8 ("the new leaf is left locked so that Insert Phase D can publish it
// before any other thread may touch it").
func InitLeaf(l *Leaf, cap uint) {
	*l = Leaf{bitmap: NewBitset(cap)}
	l.mu.Lock()
}

// Cap returns the leaf's configured slot capacity (L).
func (l *Leaf) Cap() uint { return l.bitmap.n }

// IsFull reports whether every slot is occupied.
func (l *Leaf) IsFull() bool { return l.bitmap.IsFull() }

// addKV writes kv into the first free slot. Requires !IsFull(); violating
// that is the "capacity invariant violated" bug class of §7 and panics in
// debug builds rather than silently corrupting a slot.
func (l *Leaf) addKV(kv KV) uint {
	slot := l.bitmap.FirstZero()
	if slot == l.bitmap.n {
		panic("fptree: addKV on full leaf")
	}
	l.fingerprints[slot] = fingerprint(kv.Key)
	l.pairs[slot] = kv
	l.bitmap.Set(slot)
	return slot
}

// findKVIndex probes for key using the fingerprint filter of §4.2: compute
// the one-byte hash, scan only the slots whose stored fingerprint matches
// and which are live in the occupancy bitmap, and confirm with a full key
// compare. On real hardware this step is a single SIMD compare-and-mask;
// expressed in portable Go it is the same two-stage filter, just scalar.
func (l *Leaf) findKVIndex(key uint64) (uint, bool) {
	fp := fingerprint(key)
	var found uint
	ok := false
	l.bitmap.Next(0, func(i uint) bool {
		if l.fingerprints[i] == fp && l.pairs[i].Key == key {
			found = i
			ok = true
			return false
		}
		return true
	})
	return found, ok
}

// removeKVByIdx clears the occupancy bit for pos without touching the
// stored payload; the slot is simply eligible for reuse by a later addKV.
func (l *Leaf) removeKVByIdx(pos uint) {
	l.bitmap.Reset(pos)
}

// minKey returns the smallest occupied key. Panics on an empty leaf, which
// callers never invoke (a leaf that would go empty is unlinked first).
func (l *Leaf) minKey() uint64 {
	min, ok := uint64(0), false
	l.bitmap.Next(0, func(i uint) bool {
		k := l.pairs[i].Key
		if !ok || k < min {
			min, ok = k, true
		}
		return true
	})
	if !ok {
		panic("fptree: minKey on empty leaf")
	}
	return min
}

// maxKey returns the largest occupied key. Panics on an empty leaf.
func (l *Leaf) maxKey() uint64 {
	max, ok := uint64(0), false
	l.bitmap.Next(0, func(i uint) bool {
		k := l.pairs[i].Key
		if !ok || k > max {
			max, ok = k, true
		}
		return true
	})
	if !ok {
		panic("fptree: maxKey on empty leaf")
	}
	return max
}

// leafStat is the output of getStat: the single fused pass that delete's
// hot path needs (§4.2).
type leafStat struct {
	count           int
	kvIdx           uint
	found           bool
	minExcludingKey uint64
	haveMin         bool
}

// getStat computes (count, slot-of-key, min-key-excluding-key) in one scan
// over the live slots, exactly the fusion §4.2 calls out as delete's hot
// path: a naive implementation would scan three times.
func (l *Leaf) getStat(key uint64) leafStat {
	var st leafStat
	l.bitmap.Next(0, func(i uint) bool {
		st.count++
		k := l.pairs[i].Key
		if k == key {
			st.kvIdx = i
			st.found = true
		} else if !st.haveMin || k < st.minExcludingKey {
			st.minExcludingKey = k
			st.haveMin = true
		}
		return true
	})
	return st
}

// Lock attempts to acquire exclusive ownership of the leaf for a
// structural or payload-mutating critical section. It never blocks:
// contention is reported to the caller so the enclosing transaction can
// abort and retry rather than stall inside a hardware transaction (§4.2,
// §5). Built on sync.RWMutex.TryLock rather than a hand-rolled CAS word —
// same non-blocking contract, no reason to reimplement it.
func (l *Leaf) Lock() bool {
	return l.mu.TryLock()
}

// Unlock releases exclusive ownership acquired by Lock.
func (l *Leaf) Unlock() {
	l.mu.Unlock()
}

// RLock is what a transactional reader calls before probing a leaf's
// payload. It never blocks either: if a writer currently owns the leaf,
// RLock reports false and the reader self-aborts its transaction rather
// than observe a half-written update (§4.5, invariant 7) or stall waiting
// for the writer's critical section to end.
func (l *Leaf) RLock() bool {
	return l.mu.TryRLock()
}

// RUnlock releases a lock acquired by RLock.
func (l *Leaf) RUnlock() {
	l.mu.RUnlock()
}

// RawBitmap, SetRawBitmap, FingerprintAt, PairAt, SetPairAt, Next and
// SetNext expose a leaf's payload field-by-field for a Pool implementation
// to serialize and deserialize (pkg/pmem); ordinary tree code never needs
// them, since bitmap.Next already walks only the live slots.

// RawBitmap returns the occupancy bitmap as a single machine word.
func (l *Leaf) RawBitmap() uint64 { return l.bitmap.Raw() }

// SetRawBitmap restores the occupancy bitmap from a previously persisted
// word, at the leaf's existing capacity.
func (l *Leaf) SetRawBitmap(raw uint64) { l.bitmap = BitsetFromRaw(l.bitmap.n, raw) }

// FingerprintAt returns the stored fingerprint byte for slot i.
func (l *Leaf) FingerprintAt(i int) uint8 { return l.fingerprints[i] }

// SetFingerprintAt restores the fingerprint byte for slot i.
func (l *Leaf) SetFingerprintAt(i int, fp uint8) { l.fingerprints[i] = fp }

// PairAt returns the stored (key, value) for slot i, live or not.
func (l *Leaf) PairAt(i int) KV { return l.pairs[i] }

// SetPairAt restores the (key, value) for slot i.
func (l *Leaf) SetPairAt(i int, kv KV) { l.pairs[i] = kv }

// Next returns the forward-list pointer.
func (l *Leaf) Next() PmemPtr { return l.next }

// SetNext restores the forward-list pointer.
func (l *Leaf) SetNext(p PmemPtr) { l.next = p }

// snapshotAll returns every live (key, value) pair in the leaf, in no
// particular order; rangeScan sorts the accumulated result afterwards.
func (l *Leaf) snapshotAll(out []KV) []KV {
	l.bitmap.Next(0, func(i uint) bool {
		out = append(out, l.pairs[i])
		return true
	})
	return out
}

// snapshotFrom is snapshotAll filtered to key >= start, used for the first
// leaf of a range scan.
func (l *Leaf) snapshotFrom(start uint64, out []KV) []KV {
	l.bitmap.Next(0, func(i uint) bool {
		if l.pairs[i].Key >= start {
			out = append(out, l.pairs[i])
		}
		return true
	})
	return out
}
