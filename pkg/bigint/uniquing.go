package bigint

import (
	"bytes"

	"github.com/cespare/xxhash/v2"
)

// UniquingTable deduplicates digit blobs exported into a flat byte buffer.
// Each entry is the compact little-endian form of one BigInt value, keyed by
// its (offset, length) into the buffer; identical blobs share one entry.
//
// Bytecode export is the only consumer, so the table is mutator-only and
// needs no locking.
type UniquingTable struct {
	buffer  []byte
	entries []UniquedEntry
	// byHash maps a content hash to candidate entry indices. Collisions are
	// resolved by comparing bytes, so the hash only has to be fast, not
	// cryptographic.
	byHash map[uint64][]uint32
}

// UniquedEntry locates one digit blob inside the table's flat buffer.
type UniquedEntry struct {
	Offset uint32
	Length uint32
}

// NewUniquingTable returns an empty table.
func NewUniquingTable() *UniquingTable {
	return &UniquingTable{byHash: make(map[uint64][]uint32)}
}

// AddEntry interns the canonical byte form of the digit sequence and returns
// the index of its entry. Re-adding an identical blob returns the existing
// index.
func (t *UniquingTable) AddEntry(digits []Digit) uint32 {
	blob := Bytes(digits)
	h := xxhash.Sum64(blob)

	for _, idx := range t.byHash[h] {
		e := t.entries[idx]
		if bytes.Equal(t.buffer[e.Offset:e.Offset+e.Length], blob) {
			return idx
		}
	}

	idx := uint32(len(t.entries))
	t.entries = append(t.entries, UniquedEntry{
		Offset: uint32(len(t.buffer)),
		Length: uint32(len(blob)),
	})
	t.buffer = append(t.buffer, blob...)
	t.byHash[h] = append(t.byHash[h], idx)
	return idx
}

// Entry returns the location of the blob at index idx.
func (t *UniquingTable) Entry(idx uint32) UniquedEntry {
	return t.entries[idx]
}

// EntryBytes returns the blob at index idx. The slice aliases the table's
// buffer and must not be modified.
func (t *UniquingTable) EntryBytes(idx uint32) []byte {
	e := t.entries[idx]
	return t.buffer[e.Offset : e.Offset+e.Length]
}

// Buffer returns the flat byte buffer all entries point into.
func (t *UniquingTable) Buffer() []byte {
	return t.buffer
}

// NumEntries returns the number of distinct blobs interned so far.
func (t *UniquingTable) NumEntries() int {
	return len(t.entries)
}
