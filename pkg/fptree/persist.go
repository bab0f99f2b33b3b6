package fptree

import "errors"

// ErrLogPoolExhausted is returned when a structural operation cannot
// borrow a split or delete log from the pool's fixed-size MPMC queue. §7
// treats this as a precondition violation: the caller is expected to size
// the pool to max_concurrent_structural_ops; a production deployment would
// block or grow instead of failing fast.
var ErrLogPoolExhausted = errors.New("fptree: log pool exhausted")

// SplitLog is the preallocated undo record of §4.8: which leaf is
// splitting and the pre-split successor it is displacing. Persisted once
// when a split begins (naming both leaves) and again, cleared, when it
// completes, so recovery can resume an interrupted split idempotently
// (§4.10).
type SplitLog struct {
	slot         int
	CurrentLeaf  PmemPtr
	OtherLeaf    PmemPtr
}

// Slot returns the log's fixed position in the pool's log array, used by
// recovery to scan the whole array on open.
func (l *SplitLog) Slot() int { return l.slot }

// NewSplitLog constructs a log record pinned to a fixed array slot,
// for a Pool implementation to populate from persisted bytes on open.
func NewSplitLog(slot int) *SplitLog { return &SplitLog{slot: slot} }

// DeleteLog is the preallocated undo record of §4.9.
type DeleteLog struct {
	slot        int
	CurrentLeaf PmemPtr
	OtherLeaf   PmemPtr
}

func (l *DeleteLog) Slot() int { return l.slot }

// NewDeleteLog constructs a log record pinned to a fixed array slot,
// for a Pool implementation to populate from persisted bytes on open.
func NewDeleteLog(slot int) *DeleteLog { return &DeleteLog{slot: slot} }

// Pool is the persistence capability the tree engine depends on: typed
// leaf allocation, the list head, the two log pools, and the flush/drain
// primitives a durable backing store needs. A Pool over plain DRAM
// (pool_dram.go) makes every Persist* method a no-op while preserving the
// ordering *contract* (every call still happens in the same order, it
// just doesn't need to survive a crash); pkg/pmem supplies an mmap-backed
// Pool for real durability.
type Pool interface {
	// AllocLeaf reserves a new persistent leaf slot, already initialized
	// empty and locked (§4.8), and returns its handle.
	AllocLeaf() (PmemPtr, *Leaf)
	// FreeLeaf returns a leaf's slot to the pool. Only valid once the leaf
	// has been fully unlinked from the list.
	FreeLeaf(PmemPtr)
	// Leaf resolves a handle to its in-process leaf value. Never returns
	// nil for a handle obtained from AllocLeaf and not yet freed.
	Leaf(PmemPtr) *Leaf

	// PersistLeafBody flushes a leaf's fingerprint+payload arrays (§4.2
	// step a — must happen before PersistBitmap for the same write).
	PersistLeafBody(PmemPtr)
	// PersistBitmap flushes a leaf's occupancy bitmap (§4.2 step b).
	PersistBitmap(PmemPtr)
	// PersistNext flushes a leaf's forward-list pointer.
	PersistNext(PmemPtr)

	// Head returns the current leaf-list head.
	Head() PmemPtr
	// SetHead updates the leaf-list head (volatile; call PersistHead after).
	SetHead(PmemPtr)
	// PersistHead flushes the list head.
	PersistHead()

	// AcquireSplitLog borrows a log record from the bounded split-log
	// pool. Returns ErrLogPoolExhausted if none are free.
	AcquireSplitLog() (*SplitLog, error)
	// ReleaseSplitLog returns a log record to the pool; the log must
	// already be cleared (both fields zero) and persisted.
	ReleaseSplitLog(*SplitLog)
	// PersistSplitLog flushes the current contents of a split log.
	PersistSplitLog(*SplitLog)

	// AcquireDeleteLog / ReleaseDeleteLog / PersistDeleteLog mirror the
	// split-log trio for §4.9's delete undo record.
	AcquireDeleteLog() (*DeleteLog, error)
	ReleaseDeleteLog(*DeleteLog)
	PersistDeleteLog(*DeleteLog)

	// AllSplitLogs and AllDeleteLogs expose every preallocated log slot
	// (not just the ones currently checked out) so recovery can scan the
	// whole array on open (§4.10).
	AllSplitLogs() []*SplitLog
	AllDeleteLogs() []*DeleteLog

	// Drain blocks until every flush issued so far is durable. Recovery
	// and shutdown call this as a barrier; the hot insert/delete paths do
	// not need to (persist ordering, not durability latency, is the
	// correctness requirement there).
	Drain()
}
