package heap

import (
	"github.com/facebook/hermes-sub002/pkg/vmem"
)

// JumboSegment holds exactly one cell whose size exceeds what a unit
// segment can serve. The region is rounded up to a multiple of the unit
// size so that slot arithmetic stays uniform; the cell starts at the base
// and its header carries a zero size, with the true size recovered from
// this metadata.
type JumboSegment struct {
	res      *vmem.Reservation
	base     Address
	numSlots int
	cellSize uint32

	// marked is the cell's single mark bit. A dedicated bit array would be
	// wasteful for a one-cell segment.
	marked bool

	// dirty is the jumbo's card table: one byte per 512-byte card of the
	// cell, written by the relocation barrier for stores into the cell.
	dirty []byte
}

// JumboSlots returns the number of unit slots a cell of cellSize needs.
func JumboSlots(cellSize uint32) int {
	return int((uint64(cellSize) + SegmentSize - 1) >> LogSegmentSize)
}

// NewJumboSegment wraps a reservation mapped at base for a cell of
// cellSize bytes.
func NewJumboSegment(res *vmem.Reservation, base Address, cellSize uint32) *JumboSegment {
	return &JumboSegment{
		res:      res,
		base:     base,
		numSlots: JumboSlots(cellSize),
		cellSize: cellSize,
		dirty:    make([]byte, (int(cellSize)+CardSize-1)>>LogCardSize),
	}
}

// Cell returns the address of the segment's single cell.
func (j *JumboSegment) Cell() Address {
	return j.base
}

// CellSize returns the cell's true size, which its header cannot encode.
func (j *JumboSegment) CellSize() uint32 {
	return j.cellSize
}

// Base returns the region base.
func (j *JumboSegment) Base() Address {
	return j.base
}

// NumSlots returns the number of address-space slots the region spans.
func (j *JumboSegment) NumSlots() int {
	return j.numSlots
}

// Contains reports whether a lies in the cell.
func (j *JumboSegment) Contains(a Address) bool {
	return a >= j.base && a < j.base+Address(j.cellSize)
}

// IsMarked reports the cell's mark bit.
func (j *JumboSegment) IsMarked() bool {
	return j.marked
}

// SetMarked sets or clears the cell's mark bit.
func (j *JumboSegment) SetMarked(m bool) {
	j.marked = m
}

// DirtyCardForAddress marks the card containing a dirty.
func (j *JumboSegment) DirtyCardForAddress(a Address) {
	j.dirty[(a-j.base)>>LogCardSize] = 1
}

// DirtyCardsForRange marks every card overlapping [start, end) dirty.
func (j *JumboSegment) DirtyCardsForRange(start, end Address) {
	first := (start - j.base) >> LogCardSize
	last := (end - 1 - j.base) >> LogCardSize
	for i := first; i <= last; i++ {
		j.dirty[i] = 1
	}
}

// HasDirtyCards reports whether any card is dirty.
func (j *JumboSegment) HasDirtyCards() bool {
	for _, d := range j.dirty {
		if d != 0 {
			return true
		}
	}
	return false
}

// ClearAllCards wipes the dirty bytes.
func (j *JumboSegment) ClearAllCards() {
	for i := range j.dirty {
		j.dirty[i] = 0
	}
}

// Reservation exposes the backing reservation for release and renaming.
func (j *JumboSegment) Reservation() *vmem.Reservation {
	return j.res
}
