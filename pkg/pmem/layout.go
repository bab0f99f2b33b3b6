// Package pmem is the durable fptree.Pool: a pool file mmap'd with
// golang.org/x/sys/unix and laid out as a fixed header, a flat array of
// leaf records, and the split/delete log arrays. Records are rewritten in
// place, and every persist call msyncs the bytes it wrote before returning.
//
// A pool file is not a byte-for-byte overlay of fptree.Leaf: that type
// carries a sync.RWMutex for its non-blocking lock contract, and placing
// a live mutex inside mmap'd memory is not something Go's runtime
// supports (the boltdb-style "cast the page straight to a struct
// pointer" idiom only works for lock-free, pointer-free records). Pool
// instead keeps one *fptree.Leaf per slot in ordinary DRAM — identical
// to pool_dram.go — and PersistLeafBody/PersistBitmap/PersistNext
// encode just the payload fields into the mapped region and msync them,
// exactly the fields that matter for recovery.
package pmem

import "encoding/binary"

const (
	magic = uint64(0xF97A5EED1C0FFEE0)

	headerSize = 64

	// leafRecordSize is fixed at MaxLeafSize regardless of the tree's
	// configured leaf capacity, so a pool file format does not change
	// shape if a future tree is opened with a smaller L.
	fingerprintBytes = 64 // fptree.MaxLeafSize
	kvBytes          = 16 // one KV: two uint64s
	leafRecordSize   = 8 /*bitmap*/ + fingerprintBytes + fingerprintBytes*kvBytes + 8 /*next*/

	logRecordSize = 16 // CurrentLeaf + OtherLeaf, two uint64s
)

// header is the first headerSize bytes of a pool file.
type header struct {
	magic        uint64
	leafCapacity uint64
	numLeafSlots uint64
	numLogSlots  uint64
	head         uint64
}

func readHeader(b []byte) header {
	return header{
		magic:        binary.LittleEndian.Uint64(b[0:8]),
		leafCapacity: binary.LittleEndian.Uint64(b[8:16]),
		numLeafSlots: binary.LittleEndian.Uint64(b[16:24]),
		numLogSlots:  binary.LittleEndian.Uint64(b[24:32]),
		head:         binary.LittleEndian.Uint64(b[32:40]),
	}
}

func writeHeader(b []byte, h header) {
	binary.LittleEndian.PutUint64(b[0:8], h.magic)
	binary.LittleEndian.PutUint64(b[8:16], h.leafCapacity)
	binary.LittleEndian.PutUint64(b[16:24], h.numLeafSlots)
	binary.LittleEndian.PutUint64(b[24:32], h.numLogSlots)
	binary.LittleEndian.PutUint64(b[32:40], h.head)
}

// fileSize computes the total size of a pool file for the given slot
// counts: header, leaf records, then split logs followed by delete logs.
func fileSize(numLeafSlots, numLogSlots int) int64 {
	return int64(headerSize) +
		int64(numLeafSlots)*int64(leafRecordSize) +
		int64(numLogSlots)*int64(logRecordSize)*2
}

func leafOffset(slot int) int64 {
	return int64(headerSize) + int64(slot)*int64(leafRecordSize)
}

func splitLogOffset(numLeafSlots, slot int) int64 {
	return int64(headerSize) + int64(numLeafSlots)*int64(leafRecordSize) + int64(slot)*int64(logRecordSize)
}

func deleteLogOffset(numLeafSlots, numLogSlots, slot int) int64 {
	return splitLogOffset(numLeafSlots, numLogSlots) + int64(slot)*int64(logRecordSize)
}
