package fptree

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// fingerprint computes the one-byte hash of a key that §4.2 keeps adjacent
// to the key for the SIMD-style probe. xxhash is a stable, non-cryptographic
// 64-bit hash: deterministic across runs and processes, which is all §6
// requires ("the exact hash must be deterministic across runs").
func fingerprint(key uint64) uint8 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], key)
	return uint8(xxhash.Sum64(buf[:]))
}
