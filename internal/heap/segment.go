package heap

import (
	"github.com/facebook/hermes-sub002/pkg/vmem"
)

// Segment is a unit segment: a fixed-size region holding many cells, with
// the side tables the collector needs to scan it. The same type backs both
// the young generation (where allocation is a bump of level) and
// old-generation segments (where allocation goes through the freelists and
// level is pinned to the end).
type Segment struct {
	res  *vmem.Reservation
	base Address

	// level is the upper bound of allocated space. The young generation
	// bumps it; it never retreats except when a young collection resets it
	// to the segment start.
	level Address

	// effectiveEnd throttles the young generation below its physical end,
	// either because the dynamic size factor shrank it or because external
	// memory pressure consumed the headroom.
	effectiveEnd Address

	marks MarkBitArray
	cards *CardTable
}

// NewSegment wraps a reservation of exactly SegmentSize bytes that has been
// mapped at base.
func NewSegment(res *vmem.Reservation, base Address) *Segment {
	s := &Segment{
		res:          res,
		base:         base,
		level:        base,
		effectiveEnd: base + SegmentSize,
		cards:        NewCardTable(base),
	}
	return s
}

// Start returns the first allocatable address.
func (s *Segment) Start() Address {
	return s.base
}

// End returns the address one past the segment.
func (s *Segment) End() Address {
	return s.base + SegmentSize
}

// Contains reports whether a lies in this segment.
func (s *Segment) Contains(a Address) bool {
	return a >= s.base && a < s.End()
}

// Level returns the current allocation level.
func (s *Segment) Level() Address {
	return s.level
}

// SetLevel moves the allocation level. Only the young collection's reset
// and the promote-whole-segment path use it directly.
func (s *Segment) SetLevel(a Address) {
	s.level = a
}

// EffectiveEnd returns the throttled end of allocatable space.
func (s *Segment) EffectiveEnd() Address {
	return s.effectiveEnd
}

// SetEffectiveEnd moves the throttle. It never exceeds the physical end.
func (s *Segment) SetEffectiveEnd(a Address) {
	if a > s.End() {
		a = s.End()
	}
	s.effectiveEnd = a
}

// Available returns the bytes between level and the effective end.
func (s *Segment) Available() uint64 {
	if s.level >= s.effectiveEnd {
		return 0
	}
	return uint64(s.effectiveEnd - s.level)
}

// Used returns the bytes below level.
func (s *Segment) Used() uint64 {
	return uint64(s.level - s.base)
}

// AllocRaw bumps the level by size bytes, recording cell-head boundaries
// for the new cell. It fails when the effective end would be crossed.
func (s *Segment) AllocRaw(size uint32) (Address, bool) {
	if uint64(size) > s.Available() {
		return NullAddress, false
	}
	a := s.level
	s.level += Address(size)
	s.cards.UpdateBoundaries(a, s.level)
	return a, true
}

// Marks returns the segment's mark bit array.
func (s *Segment) Marks() *MarkBitArray {
	return &s.marks
}

// Cards returns the segment's card table.
func (s *Segment) Cards() *CardTable {
	return s.cards
}

// IsMarked reports the mark bit of the cell at a.
func (s *Segment) IsMarked(a Address) bool {
	return s.marks.At(uint64(a - s.base))
}

// Mark sets the mark bit of the cell at a.
func (s *Segment) Mark(a Address) {
	s.marks.Mark(uint64(a - s.base))
}

// Reservation exposes the backing reservation for release and renaming.
func (s *Segment) Reservation() *vmem.Reservation {
	return s.res
}
