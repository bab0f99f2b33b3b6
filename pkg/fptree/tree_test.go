package fptree

import "testing"

func newTestTree(t *testing.T, leafCap uint, innerCap int) *Tree {
	t.Helper()
	pool := NewDRAMPool(leafCap, 8)
	tree, err := New(pool, leafCap, innerCap)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return tree
}

func TestTreeInsertFindUpdateDelete(t *testing.T) {
	tree := newTestTree(t, 4, 4)

	inserted, err := tree.Insert(42, 100)
	if err != nil || !inserted {
		t.Fatalf("Insert(42) = (%v, %v), want (true, nil)", inserted, err)
	}

	if ok, err := tree.Insert(42, 999); err != nil || ok {
		t.Fatalf("Insert(42) duplicate = (%v, %v), want (false, nil)", ok, err)
	}

	val, found := tree.Find(42)
	if !found || val != 100 {
		t.Fatalf("Find(42) = (%d, %v), want (100, true)", val, found)
	}

	if _, found := tree.Find(7); found {
		t.Fatalf("Find(7) should report not found")
	}

	updated, err := tree.Update(42, 200)
	if err != nil || !updated {
		t.Fatalf("Update(42) = (%v, %v), want (true, nil)", updated, err)
	}
	if val, _ := tree.Find(42); val != 200 {
		t.Fatalf("Find(42) after update = %d, want 200", val)
	}

	if updated, _ := tree.Update(7, 1); updated {
		t.Fatalf("Update of an absent key should report false")
	}

	deleted, err := tree.DeleteKey(42)
	if err != nil || !deleted {
		t.Fatalf("DeleteKey(42) = (%v, %v), want (true, nil)", deleted, err)
	}
	if _, found := tree.Find(42); found {
		t.Fatalf("key 42 should be gone after delete")
	}
	if deleted, _ := tree.DeleteKey(42); deleted {
		t.Fatalf("DeleteKey of an already-absent key should report false")
	}
}

func TestTreeSplitsLeafOnOverflow(t *testing.T) {
	tree := newTestTree(t, 4, 4)

	for i := uint64(0); i < 20; i++ {
		if _, err := tree.Insert(i, i*10); err != nil {
			t.Fatalf("Insert(%d) error = %v", i, err)
		}
	}

	st := tree.Stats()
	if st.Leaves < 2 {
		t.Fatalf("expected more than one leaf after 20 inserts into capacity-4 leaves, got %d", st.Leaves)
	}
	if st.KVs != 20 {
		t.Fatalf("Stats().KVs = %d, want 20", st.KVs)
	}

	for i := uint64(0); i < 20; i++ {
		val, found := tree.Find(i)
		if !found || val != i*10 {
			t.Fatalf("Find(%d) = (%d, %v), want (%d, true)", i, val, found, i*10)
		}
	}
}

func TestTreeRangeScan(t *testing.T) {
	tree := newTestTree(t, 4, 4)
	for i := uint64(0); i < 30; i++ {
		if _, err := tree.Insert(i, i); err != nil {
			t.Fatalf("Insert(%d) error = %v", i, err)
		}
	}

	got := tree.RangeScan(10, 6)
	if len(got) != 6 {
		t.Fatalf("RangeScan(10,6) returned %d entries, want 6", len(got))
	}
	for i, kv := range got {
		want := uint64(10 + i)
		if kv.Key != want || kv.Value != want {
			t.Fatalf("RangeScan(10,6)[%d] = %+v, want key/value %d", i, kv, want)
		}
	}

	if got := tree.RangeScan(100, 10); len(got) != 0 {
		t.Fatalf("RangeScan starting past the end of the tree should be empty, got %v", got)
	}
	if got := tree.RangeScan(20, 0); got != nil {
		t.Fatalf("RangeScan with a non-positive maxRecords should return nil, got %v", got)
	}
}

func TestTreeDeleteTriggersMergeAndRootCollapse(t *testing.T) {
	tree := newTestTree(t, 4, 4)
	for i := uint64(0); i < 12; i++ {
		if _, err := tree.Insert(i, i); err != nil {
			t.Fatalf("Insert(%d) error = %v", i, err)
		}
	}
	beforeLeaves := tree.Stats().Leaves
	if beforeLeaves < 2 {
		t.Fatalf("expected multiple leaves before deleting down, got %d", beforeLeaves)
	}

	for i := uint64(0); i < 10; i++ {
		if ok, err := tree.DeleteKey(i); err != nil || !ok {
			t.Fatalf("DeleteKey(%d) = (%v, %v), want (true, nil)", i, ok, err)
		}
	}

	if !tree.root.IsLeaf() {
		t.Fatalf("root should have collapsed to a single leaf after the merges, got %+v", tree.root)
	}
	if got := tree.Stats().Leaves; got != 1 {
		t.Fatalf("expected 1 leaf after the merges, got %d", got)
	}

	for i := uint64(0); i < 10; i++ {
		if _, found := tree.Find(i); found {
			t.Fatalf("key %d should have been deleted", i)
		}
	}
	for i := uint64(10); i < 12; i++ {
		if val, found := tree.Find(i); !found || val != i {
			t.Fatalf("key %d should still be present after neighboring deletes", i)
		}
	}
}

func TestTreeDeleteFromNonEmptyLeafDoesNotMerge(t *testing.T) {
	tree := newTestTree(t, 2, 4)
	for i := uint64(1); i <= 8; i++ {
		if _, err := tree.Insert(i, i); err != nil {
			t.Fatalf("Insert(%d) error = %v", i, err)
		}
	}
	// Each split keeps the lower half of the three sorted entries, so
	// ascending inserts leave {1} {2} {3} {4} {5} {6} {7,8}.
	before := tree.Stats().Leaves
	if before != 7 {
		t.Fatalf("expected 7 leaves of capacity 2 after inserting 1..8, got %d", before)
	}

	if ok, err := tree.DeleteKey(8); err != nil || !ok {
		t.Fatalf("DeleteKey(8) = (%v, %v), want (true, nil)", ok, err)
	}

	if got := tree.Stats().Leaves; got != before {
		t.Fatalf("deleting from a non-empty leaf should not merge leaves: got %d, want %d", got, before)
	}
	if _, found := tree.Find(8); found {
		t.Fatalf("key 8 should be gone after delete")
	}
	for _, key := range []uint64{1, 2, 3, 4, 5, 6, 7} {
		if val, found := tree.Find(key); !found || val != key {
			t.Fatalf("Find(%d) = (%d, %v), want (%d, true)", key, val, found, key)
		}
	}
}

func TestTreeDeleteRewritesSeparator(t *testing.T) {
	tree := newTestTree(t, 3, 4)
	for i := uint64(1); i <= 5; i++ {
		if _, err := tree.Insert(i, i); err != nil {
			t.Fatalf("Insert(%d) error = %v", i, err)
		}
	}
	if !tree.root.IsInner() || tree.root.InnerNode().keys[0] != 3 {
		t.Fatalf("expected a two-leaf tree with separator 3, got root=%+v", tree.root)
	}

	if ok, err := tree.DeleteKey(3); err != nil || !ok {
		t.Fatalf("DeleteKey(3) = (%v, %v), want (true, nil)", ok, err)
	}

	if got := tree.root.InnerNode().keys[0]; got != 4 {
		t.Fatalf("separator after deleting its key should be rewritten to the new minimum 4, got %d", got)
	}
	for _, key := range []uint64{1, 2, 4, 5} {
		if val, found := tree.Find(key); !found || val != key {
			t.Fatalf("Find(%d) = (%d, %v), want (%d, true)", key, val, found, key)
		}
	}
}

func TestTreeDeleteSoleKeyOfRootLeafEmptiesTree(t *testing.T) {
	tree := newTestTree(t, 4, 4)
	if _, err := tree.Insert(1, 100); err != nil {
		t.Fatalf("Insert error = %v", err)
	}

	if ok, err := tree.DeleteKey(1); err != nil || !ok {
		t.Fatalf("DeleteKey(1) = (%v, %v), want (true, nil)", ok, err)
	}

	if !tree.root.IsNil() {
		t.Fatalf("deleting the sole key of a root leaf should revert root to nil, got %+v", tree.root)
	}
	if st := tree.Stats(); st.Leaves != 0 || st.KVs != 0 {
		t.Fatalf("Stats() after emptying the tree = %+v, want zero leaves and kvs", st)
	}

	if _, err := tree.Insert(2, 200); err != nil {
		t.Fatalf("Insert after emptying the tree error = %v", err)
	}
	if val, found := tree.Find(2); !found || val != 200 {
		t.Fatalf("Find(2) after re-inserting into an emptied tree = (%d, %v), want (200, true)", val, found)
	}
}

func TestTreeEmptyOperations(t *testing.T) {
	tree := newTestTree(t, 4, 4)
	if _, found := tree.Find(1); found {
		t.Fatalf("Find on an empty tree should report not found")
	}
	if ok, _ := tree.Update(1, 2); ok {
		t.Fatalf("Update on an empty tree should report false")
	}
	if ok, _ := tree.DeleteKey(1); ok {
		t.Fatalf("DeleteKey on an empty tree should report false")
	}
	if got := tree.RangeScan(0, 10); got != nil {
		t.Fatalf("RangeScan on an empty tree should return nil, got %v", got)
	}
}

func TestTreeRecoversInnerSkeletonFromLeafList(t *testing.T) {
	pool := NewDRAMPool(4, 8)
	tree, err := New(pool, 4, 4)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	for i := uint64(0); i < 25; i++ {
		if _, err := tree.Insert(i, i*2); err != nil {
			t.Fatalf("Insert(%d) error = %v", i, err)
		}
	}

	reopened, err := New(pool, 4, 4)
	if err != nil {
		t.Fatalf("reopen New() error = %v", err)
	}
	for i := uint64(0); i < 25; i++ {
		val, found := reopened.Find(i)
		if !found || val != i*2 {
			t.Fatalf("reopened tree Find(%d) = (%d, %v), want (%d, true)", i, val, found, i*2)
		}
	}
}
