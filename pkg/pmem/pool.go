package pmem

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"github.com/fptreedb/fptree/pkg/fptree"
	"golang.org/x/sys/unix"
)

// Config describes how to open or create a pool file.
type Config struct {
	// Path to the backing file. Created if it does not exist.
	Path string
	// LeafCapacity is L, the tree's configured leaf slot count. Only
	// consulted when creating a fresh file; a reopened file's header wins
	// (§4.10 — the on-disk shape is authoritative, not the caller's guess).
	LeafCapacity uint
	// NumLeafSlots sizes the fixed leaf arena. AllocLeaf panics once it is
	// exhausted, the same fail-fast precondition Leaf.addKV uses for slot
	// capacity: callers size this to their expected working set up front.
	NumLeafSlots int
	// NumLogSlots sizes each of the split and delete log arrays (so a pool
	// carries 2*NumLogSlots log records total).
	NumLogSlots int
}

// Pool is the mmap-backed fptree.Pool. Leaf objects live in ordinary DRAM,
// one *fptree.Leaf per allocated slot (see layout.go's package doc for why);
// Persist* calls encode just the payload into the mapped bytes and msync it.
type Pool struct {
	file *os.File
	data []byte

	leafCapacity uint
	numLeafSlots int
	numLogSlots  int

	mu     sync.Mutex // guards leaves and head
	leaves map[fptree.PmemPtr]*fptree.Leaf
	head   fptree.PmemPtr

	arena *leafArena

	splitLogs  []*fptree.SplitLog
	deleteLogs []*fptree.DeleteLog
}

// Open creates a fresh pool file at cfg.Path if none exists, or reopens and
// hydrates an existing one. Hydration walks the persisted leaf list from the
// stored head exactly the way fptree.Tree's own recover() does, since that
// list is the only durable record of which slots are live versus free.
func Open(cfg Config) (*Pool, error) {
	if cfg.NumLeafSlots <= 0 || cfg.NumLogSlots <= 0 {
		return nil, fmt.Errorf("pmem: NumLeafSlots and NumLogSlots must be positive")
	}

	fresh := false
	f, err := os.OpenFile(cfg.Path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0600)
	if os.IsExist(err) {
		f, err = os.OpenFile(cfg.Path, os.O_RDWR, 0600)
		if err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	} else {
		fresh = true
	}

	var h header
	var size int64
	if fresh {
		h = header{
			magic:        magic,
			leafCapacity: uint64(cfg.LeafCapacity),
			numLeafSlots: uint64(cfg.NumLeafSlots),
			numLogSlots:  uint64(cfg.NumLogSlots),
			head:         0,
		}
		size = fileSize(cfg.NumLeafSlots, cfg.NumLogSlots)
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, err
		}
	} else {
		stat, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, err
		}
		size = stat.Size()
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, err
	}

	if fresh {
		writeHeader(data, h)
	} else {
		h = readHeader(data)
		if h.magic != magic {
			unix.Munmap(data)
			f.Close()
			return nil, fmt.Errorf("pmem: %s is not a fptree pool file", cfg.Path)
		}
	}

	p := &Pool{
		file:         f,
		data:         data,
		leafCapacity: uint(h.leafCapacity),
		numLeafSlots: int(h.numLeafSlots),
		numLogSlots:  int(h.numLogSlots),
		leaves:       make(map[fptree.PmemPtr]*fptree.Leaf),
		arena:        newLeafArena(int(h.numLeafSlots), int(h.numLogSlots)),
		splitLogs:    make([]*fptree.SplitLog, h.numLogSlots),
		deleteLogs:   make([]*fptree.DeleteLog, h.numLogSlots),
		head:         fptree.PmemPtr(h.head),
	}

	for i := 0; i < p.numLogSlots; i++ {
		sl := fptree.NewSplitLog(i)
		decodeSplitLog(sl, p.data[splitLogOffset(p.numLeafSlots, i):])
		p.splitLogs[i] = sl
		if sl.CurrentLeaf == 0 {
			p.arena.freeSplit <- sl
		}

		dl := fptree.NewDeleteLog(i)
		decodeDeleteLog(dl, p.data[deleteLogOffset(p.numLeafSlots, p.numLogSlots, i):])
		p.deleteLogs[i] = dl
		if dl.CurrentLeaf == 0 {
			p.arena.freeDelete <- dl
		}
	}

	live := make(map[int]bool)
	for ptr := p.head; ptr != 0; {
		slot := int(ptr) - 1
		leaf := &fptree.Leaf{}
		fptree.InitLeaf(leaf, p.leafCapacity)
		leaf.Unlock()
		decodeLeaf(leaf, p.data[leafOffset(slot):])
		p.leaves[ptr] = leaf
		live[slot] = true
		ptr = leaf.Next()
	}
	for slot := 0; slot < p.numLeafSlots; slot++ {
		if !live[slot] {
			p.arena.freeLeaf <- slot
		}
	}

	return p, nil
}

// AllocLeaf reserves the next free slot in the fixed leaf arena. Panics if
// the arena is exhausted: the Pool interface has no error return here, so
// running out is a sizing mistake, not a recoverable condition, matching
// the fail-fast precondition style of Leaf.addKV on a full leaf.
func (p *Pool) AllocLeaf() (fptree.PmemPtr, *fptree.Leaf) {
	slot, _ := p.arena.allocLeaf()
	ptr := fptree.PmemPtr(slot + 1)
	leaf := &fptree.Leaf{}
	fptree.InitLeaf(leaf, p.leafCapacity)

	p.mu.Lock()
	p.leaves[ptr] = leaf
	p.mu.Unlock()
	return ptr, leaf
}

// FreeLeaf returns a slot to the arena once its leaf is fully unlinked.
func (p *Pool) FreeLeaf(ptr fptree.PmemPtr) {
	p.mu.Lock()
	delete(p.leaves, ptr)
	p.mu.Unlock()
	p.arena.freeLeafSlot(int(ptr) - 1)
}

// Leaf resolves a handle to its in-DRAM leaf value.
func (p *Pool) Leaf(ptr fptree.PmemPtr) *fptree.Leaf {
	p.mu.Lock()
	l := p.leaves[ptr]
	p.mu.Unlock()
	return l
}

// PersistLeafBody flushes a leaf's fingerprint and payload arrays.
func (p *Pool) PersistLeafBody(ptr fptree.PmemPtr) {
	leaf := p.Leaf(ptr)
	off := leafOffset(int(ptr)-1) + 8 // fingerprints follow the bitmap word
	encodeLeafBody(leaf, p.data[off:])
	p.msync(off, int64(fingerprintBytes+fingerprintBytes*kvBytes))
}

// PersistBitmap flushes a leaf's occupancy bitmap.
func (p *Pool) PersistBitmap(ptr fptree.PmemPtr) {
	leaf := p.Leaf(ptr)
	off := leafOffset(int(ptr) - 1)
	binary.LittleEndian.PutUint64(p.data[off:off+8], leaf.RawBitmap())
	p.msync(off, 8)
}

// PersistNext flushes a leaf's forward-list pointer.
func (p *Pool) PersistNext(ptr fptree.PmemPtr) {
	leaf := p.Leaf(ptr)
	off := leafOffset(int(ptr)-1) + 8 + fingerprintBytes + fingerprintBytes*kvBytes
	binary.LittleEndian.PutUint64(p.data[off:off+8], uint64(leaf.Next()))
	p.msync(off, 8)
}

// Head returns the current leaf-list head.
func (p *Pool) Head() fptree.PmemPtr {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.head
}

// SetHead updates the volatile head; call PersistHead to flush it.
func (p *Pool) SetHead(ptr fptree.PmemPtr) {
	p.mu.Lock()
	p.head = ptr
	p.mu.Unlock()
}

// PersistHead flushes the list head.
func (p *Pool) PersistHead() {
	p.mu.Lock()
	head := p.head
	p.mu.Unlock()
	binary.LittleEndian.PutUint64(p.data[32:40], uint64(head))
	p.msync(32, 8)
}

// AcquireSplitLog borrows a log record from the bounded split-log pool.
func (p *Pool) AcquireSplitLog() (*fptree.SplitLog, error) {
	l, _, err := p.arena.acquireSplitLog()
	return l, err
}

// ReleaseSplitLog returns a cleared, persisted log record to the pool.
func (p *Pool) ReleaseSplitLog(l *fptree.SplitLog) { p.arena.releaseSplitLog(l) }

// PersistSplitLog flushes the current contents of a split log.
func (p *Pool) PersistSplitLog(l *fptree.SplitLog) {
	off := splitLogOffset(p.numLeafSlots, l.Slot())
	encodeLog(l.CurrentLeaf, l.OtherLeaf, p.data[off:])
	p.msync(off, logRecordSize)
}

// AcquireDeleteLog borrows a log record from the bounded delete-log pool.
func (p *Pool) AcquireDeleteLog() (*fptree.DeleteLog, error) {
	l, _, err := p.arena.acquireDeleteLog()
	return l, err
}

// ReleaseDeleteLog returns a cleared, persisted log record to the pool.
func (p *Pool) ReleaseDeleteLog(l *fptree.DeleteLog) { p.arena.releaseDeleteLog(l) }

// PersistDeleteLog flushes the current contents of a delete log.
func (p *Pool) PersistDeleteLog(l *fptree.DeleteLog) {
	off := deleteLogOffset(p.numLeafSlots, p.numLogSlots, l.Slot())
	encodeLog(l.CurrentLeaf, l.OtherLeaf, p.data[off:])
	p.msync(off, logRecordSize)
}

// AllSplitLogs exposes every preallocated split log slot for recovery's
// startup scan, hydrated from disk by Open regardless of checkout state.
func (p *Pool) AllSplitLogs() []*fptree.SplitLog { return p.splitLogs }

// AllDeleteLogs mirrors AllSplitLogs for delete undo records.
func (p *Pool) AllDeleteLogs() []*fptree.DeleteLog { return p.deleteLogs }

// Drain blocks until every flush issued so far is durable. Every Persist*
// call above already msyncs its own byte range synchronously (the same
// fsync-per-write discipline with no configured interval), so Drain's
// msync over the whole mapping is a belt-and-braces barrier rather than
// the primary durability mechanism.
func (p *Pool) Drain() {
	unix.Msync(p.data, unix.MS_SYNC)
}

// Close unmaps and closes the backing file. Callers should Drain first if a
// pending write must be guaranteed durable before the process exits.
func (p *Pool) Close() error {
	if err := unix.Munmap(p.data); err != nil {
		return err
	}
	return p.file.Close()
}

func (p *Pool) msync(off, length int64) {
	pageSize := int64(os.Getpagesize())
	start := (off / pageSize) * pageSize
	end := off + length
	if rem := end % pageSize; rem != 0 {
		end += pageSize - rem
	}
	if end > int64(len(p.data)) {
		end = int64(len(p.data))
	}
	unix.Msync(p.data[start:end], unix.MS_SYNC)
}

func encodeLeafBody(leaf *fptree.Leaf, buf []byte) {
	for i := 0; i < fingerprintBytes; i++ {
		buf[i] = leaf.FingerprintAt(i)
	}
	pairsOff := fingerprintBytes
	for i := 0; i < fingerprintBytes; i++ {
		kv := leaf.PairAt(i)
		o := pairsOff + i*kvBytes
		binary.LittleEndian.PutUint64(buf[o:o+8], kv.Key)
		binary.LittleEndian.PutUint64(buf[o+8:o+16], kv.Value)
	}
}

func encodeLog(current, other fptree.PmemPtr, buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], uint64(current))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(other))
}

func decodeSplitLog(l *fptree.SplitLog, buf []byte) {
	l.CurrentLeaf = fptree.PmemPtr(binary.LittleEndian.Uint64(buf[0:8]))
	l.OtherLeaf = fptree.PmemPtr(binary.LittleEndian.Uint64(buf[8:16]))
}

func decodeDeleteLog(l *fptree.DeleteLog, buf []byte) {
	l.CurrentLeaf = fptree.PmemPtr(binary.LittleEndian.Uint64(buf[0:8]))
	l.OtherLeaf = fptree.PmemPtr(binary.LittleEndian.Uint64(buf[8:16]))
}

// decodeLeaf rebuilds a *fptree.Leaf's payload from its persisted record.
// The leaf's lock is freshly constructed (unlocked) by the caller; only the
// bitmap, fingerprints, pairs and next pointer are hydrated from bytes.
func decodeLeaf(leaf *fptree.Leaf, buf []byte) {
	leaf.SetRawBitmap(binary.LittleEndian.Uint64(buf[0:8]))
	fpOff := 8
	for i := 0; i < fingerprintBytes; i++ {
		leaf.SetFingerprintAt(i, buf[fpOff+i])
	}
	pairsOff := fpOff + fingerprintBytes
	for i := 0; i < fingerprintBytes; i++ {
		o := pairsOff + i*kvBytes
		leaf.SetPairAt(i, fptree.KV{
			Key:   binary.LittleEndian.Uint64(buf[o : o+8]),
			Value: binary.LittleEndian.Uint64(buf[o+8 : o+16]),
		})
	}
	nextOff := pairsOff + fingerprintBytes*kvBytes
	leaf.SetNext(fptree.PmemPtr(binary.LittleEndian.Uint64(buf[nextOff : nextOff+8])))
}
