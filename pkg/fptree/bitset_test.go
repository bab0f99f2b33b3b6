package fptree

import "testing"

func TestBitsetSetResetTest(t *testing.T) {
	b := NewBitset(8)
	if b.Test(3) {
		t.Fatalf("slot 3 should start clear")
	}
	b.Set(3)
	if !b.Test(3) {
		t.Fatalf("slot 3 should be set")
	}
	b.Reset(3)
	if b.Test(3) {
		t.Fatalf("slot 3 should be clear again")
	}
}

func TestBitsetCountAndFull(t *testing.T) {
	b := NewBitset(4)
	for i := uint(0); i < 4; i++ {
		if b.IsFull() {
			t.Fatalf("bitset reported full early at count %d", i)
		}
		b.Set(i)
	}
	if !b.IsFull() {
		t.Fatalf("bitset should be full")
	}
	if got := b.Count(); got != 4 {
		t.Fatalf("Count() = %d, want 4", got)
	}
}

func TestBitsetFirstSetFirstZero(t *testing.T) {
	b := NewBitset(8)
	if got := b.FirstZero(); got != 0 {
		t.Fatalf("FirstZero() on empty set = %d, want 0", got)
	}
	if got := b.FirstSet(); got != 8 {
		t.Fatalf("FirstSet() on empty set = %d, want n (8)", got)
	}
	b.Set(2)
	b.Set(5)
	if got := b.FirstSet(); got != 2 {
		t.Fatalf("FirstSet() = %d, want 2", got)
	}
	if got := b.FirstZero(); got != 0 {
		t.Fatalf("FirstZero() = %d, want 0", got)
	}
	b.Set(0)
	b.Set(1)
	if got := b.FirstZero(); got != 3 {
		t.Fatalf("FirstZero() = %d, want 3", got)
	}
}

func TestBitsetMaskIgnoresHighBits(t *testing.T) {
	b := NewBitset(4)
	for i := uint(0); i < 4; i++ {
		b.Set(i)
	}
	if !b.IsFull() {
		t.Fatalf("bitset of capacity 4 should be full after setting 0..3")
	}
	if got := b.Raw(); got != 0xF {
		t.Fatalf("Raw() = %#x, want 0xF", got)
	}
}

func TestBitsetFlip(t *testing.T) {
	b := NewBitset(4)
	b.Set(0)
	b.Set(2)
	b.Flip()
	want := []bool{false, true, false, true}
	for i, w := range want {
		if got := b.Test(uint(i)); got != w {
			t.Fatalf("after Flip, Test(%d) = %v, want %v", i, got, w)
		}
	}
}

func TestBitsetRawRoundTrip(t *testing.T) {
	b := NewBitset(10)
	b.Set(1)
	b.Set(7)
	b.Set(9)
	raw := b.Raw()

	b2 := BitsetFromRaw(10, raw)
	for i := uint(0); i < 10; i++ {
		if b.Test(i) != b2.Test(i) {
			t.Fatalf("slot %d differs after FromRaw round trip", i)
		}
	}
}

func TestBitsetNextVisitsOnlySetSlots(t *testing.T) {
	b := NewBitset(8)
	b.Set(1)
	b.Set(4)
	b.Set(6)

	var got []uint
	b.Next(0, func(i uint) bool {
		got = append(got, i)
		return true
	})
	want := []uint{1, 4, 6}
	if len(got) != len(want) {
		t.Fatalf("Next visited %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Next visited %v, want %v", got, want)
		}
	}
}

func TestBitsetNextStopsEarly(t *testing.T) {
	b := NewBitset(8)
	b.Set(0)
	b.Set(1)
	b.Set(2)

	count := 0
	b.Next(0, func(i uint) bool {
		count++
		return count < 2
	})
	if count != 2 {
		t.Fatalf("Next should have stopped after 2 calls, got %d", count)
	}
}
