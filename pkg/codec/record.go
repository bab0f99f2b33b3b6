package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"time"
)

// ErrCorruption is returned by Validate (and Decode, which validates before
// returning) when a record's stored CRC32 does not match its recalculated
// checksum.
var ErrCorruption = errors.New("record checksum mismatch")

// Record represents a key-value record with metadata for storage
type Record struct {
	CRC32     uint32 // CRC32 checksum for integrity
	KeySize   uint32 // Size of the key in bytes
	ValueSize uint32 // Size of the value in bytes
	Timestamp uint64 // Unix timestamp in nanoseconds
	Key       []byte // Key data
	Value     []byte // Value data
}

// RecordCodec handles serialization and deserialization of records
type RecordCodec struct{}

// NewRecordCodec creates a new record codec instance
func NewRecordCodec() *RecordCodec {
	return &RecordCodec{}
}

// Encode serializes a key-value pair into a binary record format
// Format: [CRC32(4)][KeySize(4)][ValueSize(4)][Timestamp(8)][Key][Value]
func (c *RecordCodec) Encode(key, value []byte) ([]byte, error) {
	r := NewRecord(key, value)
	r.CRC32 = r.calculateCRC32()

	buf := make([]byte, r.Size())
	binary.LittleEndian.PutUint32(buf[0:4], r.CRC32)
	binary.LittleEndian.PutUint32(buf[4:8], r.KeySize)
	binary.LittleEndian.PutUint32(buf[8:12], r.ValueSize)
	binary.LittleEndian.PutUint64(buf[12:20], r.Timestamp)
	copy(buf[20:20+len(key)], key)
	copy(buf[20+len(key):], value)
	return buf, nil
}

// Decode deserializes a binary record into a Record struct
func (c *RecordCodec) Decode(data []byte) (*Record, error) {
	const headerSize = 20
	if len(data) < headerSize {
		return nil, fmt.Errorf("codec: record too short: %d bytes, want at least %d", len(data), headerSize)
	}

	r := &Record{
		CRC32:     binary.LittleEndian.Uint32(data[0:4]),
		KeySize:   binary.LittleEndian.Uint32(data[4:8]),
		ValueSize: binary.LittleEndian.Uint32(data[8:12]),
		Timestamp: binary.LittleEndian.Uint64(data[12:20]),
	}

	want := headerSize + int(r.KeySize) + int(r.ValueSize)
	if len(data) < want {
		return nil, fmt.Errorf("codec: record truncated: have %d bytes, want %d", len(data), want)
	}

	r.Key = append([]byte(nil), data[headerSize:headerSize+int(r.KeySize)]...)
	r.Value = append([]byte(nil), data[headerSize+int(r.KeySize):want]...)

	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks the integrity of a record using CRC32
func (r *Record) Validate() error {
	if got := r.calculateCRC32(); got != r.CRC32 {
		return fmt.Errorf("codec: %w: have %#x, want %#x", ErrCorruption, got, r.CRC32)
	}
	return nil
}

// Size returns the total size of the record when encoded
func (r *Record) Size() int {
	// Header: CRC32(4) + KeySize(4) + ValueSize(4) + Timestamp(8) = 20 bytes
	// Data: len(Key) + len(Value)
	return 20 + len(r.Key) + len(r.Value)
}

// NewRecord creates a new record with current timestamp
func NewRecord(key, value []byte) *Record {
	return &Record{
		KeySize:   uint32(len(key)),
		ValueSize: uint32(len(value)),
		Timestamp: uint64(time.Now().UnixNano()),
		Key:       key,
		Value:     value,
	}
}

// calculateCRC32 computes CRC32 checksum for record data (excluding the CRC field itself)
func (r *Record) calculateCRC32() uint32 {
	// Calculate checksum over: KeySize + ValueSize + Timestamp + Key + Value
	crc := crc32.NewIEEE()

	// Write header fields (excluding CRC32)
	binary.Write(crc, binary.LittleEndian, r.KeySize)
	binary.Write(crc, binary.LittleEndian, r.ValueSize)
	binary.Write(crc, binary.LittleEndian, r.Timestamp)

	// Write data
	crc.Write(r.Key)
	crc.Write(r.Value)

	return crc.Sum32()
}
