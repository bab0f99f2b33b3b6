package pmem

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fptreedb/fptree/pkg/fptree"
)

func testConfig(path string) Config {
	return Config{
		Path:         path,
		LeafCapacity: 4,
		NumLeafSlots: 16,
		NumLogSlots:  4,
	}
}

func TestOpenCreatesFreshFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pool.db")

	p, err := Open(testConfig(path))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer p.Close()

	if !fileExists(path) {
		t.Fatalf("Open() did not create %s", path)
	}
	if p.Head() != 0 {
		t.Fatalf("fresh pool Head() = %d, want 0", p.Head())
	}
}

func TestOpenRejectsForeignFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pool.db")
	if err := os.WriteFile(path, []byte("not a pool file, but long enough to pass the size check................."), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := Open(testConfig(path)); err == nil {
		t.Fatalf("Open() on a foreign file should fail the magic check")
	}
}

func TestAllocFreeLeafRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(filepath.Join(dir, "pool.db"))
	// One slot, so the freed slot is the only one AllocLeaf can hand out
	// again (the free list is first-in, first-out).
	cfg.NumLeafSlots = 1
	p, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer p.Close()

	ptr, leaf := p.AllocLeaf()
	if ptr == 0 {
		t.Fatalf("AllocLeaf() returned nil pointer")
	}
	if p.Leaf(ptr) != leaf {
		t.Fatalf("Leaf(ptr) did not return the allocated leaf")
	}

	p.FreeLeaf(ptr)
	if p.Leaf(ptr) != nil {
		t.Fatalf("Leaf(ptr) after FreeLeaf should be nil")
	}

	// the freed slot must be reusable.
	ptr2, _ := p.AllocLeaf()
	if ptr2 != ptr {
		t.Fatalf("AllocLeaf() after FreeLeaf = %d, want reused slot %d", ptr2, ptr)
	}
}

func TestAllocLeafExhaustionPanics(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(filepath.Join(dir, "pool.db"))
	cfg.NumLeafSlots = 1
	p, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer p.Close()

	p.AllocLeaf()

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("AllocLeaf() on an exhausted arena should panic")
		}
	}()
	p.AllocLeaf()
}

func TestSplitLogAcquireReleaseExhaustion(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(filepath.Join(dir, "pool.db"))
	cfg.NumLogSlots = 2
	p, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer p.Close()

	l1, err := p.AcquireSplitLog()
	if err != nil {
		t.Fatalf("AcquireSplitLog() error = %v", err)
	}
	l2, err := p.AcquireSplitLog()
	if err != nil {
		t.Fatalf("AcquireSplitLog() error = %v", err)
	}
	if _, err := p.AcquireSplitLog(); err != fptree.ErrLogPoolExhausted {
		t.Fatalf("AcquireSplitLog() on exhausted pool = %v, want ErrLogPoolExhausted", err)
	}

	p.ReleaseSplitLog(l1)
	if _, err := p.AcquireSplitLog(); err != nil {
		t.Fatalf("AcquireSplitLog() after release error = %v", err)
	}
	p.ReleaseSplitLog(l2)
}

// TestReopenRecoversHydratedState drives a real tree through enough inserts
// to force several leaf splits, persists it, closes the pool, and reopens
// it to confirm every key-value pair and the leaf list survive the round
// trip exactly as the tree's own recover() expects on startup.
func TestReopenRecoversHydratedState(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pool.db")
	cfg := testConfig(path)
	// 200 ascending inserts at L=4 leave about 100 leaves (each split keeps
	// two entries in the old leaf), more than testConfig's 16 slots.
	cfg.NumLeafSlots = 128

	p, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	tree, err := fptree.New(p, cfg.LeafCapacity, 8)
	if err != nil {
		t.Fatalf("fptree.New() error = %v", err)
	}

	const n = 200
	for i := uint64(0); i < n; i++ {
		if ok, err := tree.Insert(i, i*10); err != nil || !ok {
			t.Fatalf("Insert(%d) = (%v, %v), want (true, nil)", i, ok, err)
		}
	}

	p.Drain()
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := Open(cfg)
	if err != nil {
		t.Fatalf("reopen Open() error = %v", err)
	}
	defer reopened.Close()

	got := reopened.Head()
	if got == 0 {
		t.Fatalf("reopened pool Head() = 0, want a populated leaf list")
	}

	kvs := map[uint64]uint64{}
	for ptr := got; ptr != 0; {
		leaf := reopened.Leaf(ptr)
		if leaf == nil {
			t.Fatalf("reopened Leaf(%d) = nil", ptr)
		}
		for i := 0; i < 64; i++ {
			if leaf.RawBitmap()&(uint64(1)<<uint(i)) == 0 {
				continue
			}
			kv := leaf.PairAt(i)
			kvs[kv.Key] = kv.Value
		}
		ptr = leaf.Next()
	}

	if len(kvs) != n {
		t.Fatalf("recovered %d keys, want %d", len(kvs), n)
	}
	for i := uint64(0); i < n; i++ {
		if kvs[i] != i*10 {
			t.Fatalf("recovered kv[%d] = %d, want %d", i, kvs[i], i*10)
		}
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
