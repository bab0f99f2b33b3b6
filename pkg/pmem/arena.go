package pmem

import (
	"log"

	"github.com/fptreedb/fptree/pkg/fptree"
	"github.com/segmentio/ksuid"
)

// leafArena owns the pool's three fixed-size free lists: leaf slots, split
// log records and delete log records. Pulling this out of pool.go keeps
// slot bookkeeping separate from the mmap/encode concerns that fill it.
type leafArena struct {
	freeLeaf   chan int
	freeSplit  chan *fptree.SplitLog
	freeDelete chan *fptree.DeleteLog
}

func newLeafArena(numLeafSlots, numLogSlots int) *leafArena {
	return &leafArena{
		freeLeaf:   make(chan int, numLeafSlots),
		freeSplit:  make(chan *fptree.SplitLog, numLogSlots),
		freeDelete: make(chan *fptree.DeleteLog, numLogSlots),
	}
}

// allocLeaf reserves the next free slot and logs the allocation under a
// fresh ksuid correlation id. The id is generated independently of the one
// acquireSplitLog logs, so the two log lines of one split do not share it.
func (a *leafArena) allocLeaf() (int, string) {
	select {
	case slot := <-a.freeLeaf:
		corr := ksuid.New().String()
		log.Printf("pmem: alloc leaf slot=%d corr=%s", slot, corr)
		return slot, corr
	default:
		panic("pmem: leaf slot arena exhausted")
	}
}

func (a *leafArena) freeLeafSlot(slot int) {
	a.freeLeaf <- slot
}

// acquireSplitLog borrows a log record from the bounded split-log pool and
// logs the checkout under its own fresh ksuid correlation id.
func (a *leafArena) acquireSplitLog() (*fptree.SplitLog, string, error) {
	select {
	case l := <-a.freeSplit:
		corr := ksuid.New().String()
		log.Printf("pmem: acquire split log slot=%d corr=%s", l.Slot(), corr)
		return l, corr, nil
	default:
		return nil, "", fptree.ErrLogPoolExhausted
	}
}

func (a *leafArena) releaseSplitLog(l *fptree.SplitLog) {
	a.freeSplit <- l
}

// acquireDeleteLog mirrors acquireSplitLog for the delete undo pool.
func (a *leafArena) acquireDeleteLog() (*fptree.DeleteLog, string, error) {
	select {
	case l := <-a.freeDelete:
		corr := ksuid.New().String()
		log.Printf("pmem: acquire delete log slot=%d corr=%s", l.Slot(), corr)
		return l, corr, nil
	default:
		return nil, "", fptree.ErrLogPoolExhausted
	}
}

func (a *leafArena) releaseDeleteLog(l *fptree.DeleteLog) {
	a.freeDelete <- l
}
