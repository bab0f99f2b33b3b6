package fptree

import "sync"

// DRAMPool is the simplest Pool: leaves live as ordinary heap-allocated Go
// values and every Persist* call is a no-op. It exists so the engine and
// its tests can run without a backing pool file — the Design Notes
// explicitly allow a DRAM Persist capability that "preserv[es] the
// ordering contract" while doing nothing observable. pkg/pmem's Pool is
// the durable counterpart used in production (cmd/fptreedb, pkg/api).
type DRAMPool struct {
	leafCapacity uint
	logPoolSize  int

	mu     sync.Mutex
	leaves map[PmemPtr]*Leaf
	nextID uint64
	head   PmemPtr

	splitLogs   []*SplitLog
	freeSplit   chan *SplitLog
	deleteLogs  []*DeleteLog
	freeDelete  chan *DeleteLog
}

// NewDRAMPool constructs a DRAM-backed pool. leafCapacity is L (<=
// MaxLeafSize); logPoolSize is the number of preallocated split-log slots
// and, separately, of delete-log slots.
func NewDRAMPool(leafCapacity uint, logPoolSize int) *DRAMPool {
	if leafCapacity == 0 || leafCapacity > MaxLeafSize {
		panic("fptree: leaf capacity out of range")
	}
	p := &DRAMPool{
		leafCapacity: leafCapacity,
		logPoolSize:  logPoolSize,
		leaves:       make(map[PmemPtr]*Leaf),
		splitLogs:    make([]*SplitLog, logPoolSize),
		freeSplit:    make(chan *SplitLog, logPoolSize),
		deleteLogs:   make([]*DeleteLog, logPoolSize),
		freeDelete:   make(chan *DeleteLog, logPoolSize),
	}
	for i := 0; i < logPoolSize; i++ {
		sl := NewSplitLog(i)
		p.splitLogs[i] = sl
		p.freeSplit <- sl

		dl := NewDeleteLog(i)
		p.deleteLogs[i] = dl
		p.freeDelete <- dl
	}
	return p
}

func (p *DRAMPool) AllocLeaf() (PmemPtr, *Leaf) {
	p.mu.Lock()
	p.nextID++
	id := PmemPtr(p.nextID)
	leaf := &Leaf{}
	InitLeaf(leaf, p.leafCapacity)
	p.leaves[id] = leaf
	p.mu.Unlock()
	return id, leaf
}

func (p *DRAMPool) FreeLeaf(ptr PmemPtr) {
	p.mu.Lock()
	delete(p.leaves, ptr)
	p.mu.Unlock()
}

func (p *DRAMPool) Leaf(ptr PmemPtr) *Leaf {
	p.mu.Lock()
	l := p.leaves[ptr]
	p.mu.Unlock()
	return l
}

func (p *DRAMPool) PersistLeafBody(PmemPtr) {}
func (p *DRAMPool) PersistBitmap(PmemPtr)   {}
func (p *DRAMPool) PersistNext(PmemPtr)     {}

func (p *DRAMPool) Head() PmemPtr {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.head
}

func (p *DRAMPool) SetHead(ptr PmemPtr) {
	p.mu.Lock()
	p.head = ptr
	p.mu.Unlock()
}

func (p *DRAMPool) PersistHead() {}

func (p *DRAMPool) AcquireSplitLog() (*SplitLog, error) {
	select {
	case l := <-p.freeSplit:
		return l, nil
	default:
		return nil, ErrLogPoolExhausted
	}
}

func (p *DRAMPool) ReleaseSplitLog(l *SplitLog) {
	p.freeSplit <- l
}

func (p *DRAMPool) PersistSplitLog(*SplitLog) {}

func (p *DRAMPool) AcquireDeleteLog() (*DeleteLog, error) {
	select {
	case l := <-p.freeDelete:
		return l, nil
	default:
		return nil, ErrLogPoolExhausted
	}
}

func (p *DRAMPool) ReleaseDeleteLog(l *DeleteLog) {
	p.freeDelete <- l
}

func (p *DRAMPool) PersistDeleteLog(*DeleteLog) {}

func (p *DRAMPool) AllSplitLogs() []*SplitLog   { return p.splitLogs }
func (p *DRAMPool) AllDeleteLogs() []*DeleteLog { return p.deleteLogs }

func (p *DRAMPool) Drain() {}
