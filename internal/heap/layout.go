// Package heap defines the memory layout layer of the garbage collector:
// the simulated virtual address space that segments are mapped into, the
// fixed-size unit segments and jumbo segments that hold cells, the per
// segment card table, cell-head (boundary) table and mark bit array, and
// the 64-bit cell header format.
//
// Everything above this package (cells, the collector) addresses memory
// exclusively through Address values: byte addresses in a process-local
// address space that starts one segment above zero, so that the zero
// address doubles as the null reference. Because the whole space fits in
// 32 bits, a cell reference compresses to a CompressedPointer by simple
// truncation.
package heap

import (
	"encoding/binary"

	"github.com/facebook/hermes-sub002/pkg/value"
)

// Address is a byte address in the heap's simulated address space.
type Address uint64

// NullAddress is the distinguished null address.
const NullAddress Address = 0

const (
	// LogHeapAlign is the log2 of the cell alignment.
	LogHeapAlign = 3
	// HeapAlign is the alignment of every cell, in bytes.
	HeapAlign = 1 << LogHeapAlign

	// LogSegmentSize is the log2 of the unit segment size.
	LogSegmentSize = 22
	// SegmentSize is the size of a unit segment: 4 MiB.
	SegmentSize = 1 << LogSegmentSize

	// LogCardSize is the log2 of the card size.
	LogCardSize = 9
	// CardSize is the byte range covered by one dirty byte: 512 bytes.
	CardSize = 1 << LogCardSize
	// CardsPerSegment is the number of cards in a unit segment.
	CardsPerSegment = SegmentSize / CardSize

	// MinCellSize is the smallest allocatable cell: a header plus enough
	// room to overwrite the cell with a freelist cell when it dies.
	MinCellSize = 16

	// MaxNormalCellSize is the largest cell a unit segment can hold; larger
	// cells are always allocated in a jumbo segment.
	MaxNormalCellSize = SegmentSize

	// MaxAddressSpace bounds the simulated address space to what a 32-bit
	// compressed pointer can name.
	MaxAddressSpace = uint64(1) << 32

	// NumSegmentSlots is the number of unit-segment-sized slots in the
	// address space.
	NumSegmentSlots = int(MaxAddressSpace >> LogSegmentSize)
)

// AlignUp rounds n up to the cell alignment.
func AlignUp(n uint32) uint32 {
	return (n + HeapAlign - 1) &^ (HeapAlign - 1)
}

// IsAligned reports whether a is cell-aligned.
func IsAligned(a Address) bool {
	return a&(HeapAlign-1) == 0
}

// SegmentBase returns the base address of the segment slot containing a.
// Jumbo segments span several slots, so this is the slot base, not
// necessarily the segment base; use Space.RegionBase for the latter.
func SegmentBase(a Address) Address {
	return a &^ (SegmentSize - 1)
}

// Compress narrows an address to its 32-bit reference form.
func Compress(a Address) value.CompressedPointer {
	return value.CompressedPointer(a)
}

// Decompress widens a 32-bit reference back to an address.
func Decompress(p value.CompressedPointer) Address {
	return Address(p.Raw())
}

// byteOrder is the layout of every multi-byte field in heap memory.
var byteOrder = binary.LittleEndian
