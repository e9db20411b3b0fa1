package heap

import (
	"fmt"
	"sync/atomic"

	"github.com/facebook/hermes-sub002/pkg/value"
)

// region is one mapped run of the address space. A unit segment occupies a
// single slot; a jumbo segment registers the same region in every slot it
// spans, so slot lookup is one shift regardless of segment kind.
type region struct {
	data []byte  // The backing bytes, len(data) == region size.
	base Address // Address of data[0].
}

// Space is the heap's simulated virtual address space: a table mapping
// segment-sized slots to their backing memory. The mutator and the
// background collector both read it without locks on every pointer access,
// so the table entries are atomic; mutations (mapping and unmapping
// segments) are rare and serialized by the GC mutex above this layer.
type Space struct {
	slots [NumSegmentSlots]atomic.Pointer[region]

	// nextSlot is the lowest slot never handed out. Freed slots are pushed
	// on freeSlots and reused before fresh ones; address-space reuse keeps
	// compressed pointers small but means a stale reference can name a new
	// segment, which is exactly as undefined as it is in any moving
	// collector.
	nextSlot  int
	freeSlots []int
}

// NewSpace returns an address space with slot zero permanently reserved so
// that address zero stays null.
func NewSpace() *Space {
	return &Space{nextSlot: 1}
}

// MapRegion reserves numSlots contiguous slots, maps data into them, and
// returns the region's base address. Callers hold the GC mutex.
func (s *Space) MapRegion(data []byte, numSlots int) (Address, error) {
	if len(data) != numSlots<<LogSegmentSize {
		return NullAddress, fmt.Errorf(
			"region of %d bytes does not fill %d segment slots", len(data), numSlots,
		)
	}

	slot := -1
	if numSlots == 1 && len(s.freeSlots) > 0 {
		slot = s.freeSlots[len(s.freeSlots)-1]
		s.freeSlots = s.freeSlots[:len(s.freeSlots)-1]
	} else {
		// Multi-slot regions always come from fresh address space; free
		// slots are singletons and never coalesced.
		if s.nextSlot+numSlots > NumSegmentSlots {
			return NullAddress, fmt.Errorf(
				"address space exhausted: %d slots requested, %d available",
				numSlots, NumSegmentSlots-s.nextSlot,
			)
		}
		slot = s.nextSlot
		s.nextSlot += numSlots
	}

	base := Address(slot) << LogSegmentSize
	r := &region{data: data, base: base}
	for i := 0; i < numSlots; i++ {
		s.slots[slot+i].Store(r)
	}
	return base, nil
}

// UnmapRegion removes a region from the table and recycles its slots.
// Callers hold the GC mutex and guarantee no live references remain.
func (s *Space) UnmapRegion(base Address, numSlots int) {
	slot := int(base >> LogSegmentSize)
	for i := 0; i < numSlots; i++ {
		s.slots[slot+i].Store(nil)
		s.freeSlots = append(s.freeSlots, slot+i)
	}
}

// Contains reports whether a names mapped memory.
func (s *Space) Contains(a Address) bool {
	if a == NullAddress {
		return false
	}
	return s.slots[a>>LogSegmentSize].Load() != nil
}

// RegionBase returns the base address of the region containing a. For a
// unit segment this equals SegmentBase(a); for a jumbo segment it is the
// jumbo's first slot.
func (s *Space) RegionBase(a Address) Address {
	return s.slots[a>>LogSegmentSize].Load().base
}

func (s *Space) locate(a Address) ([]byte, uint64) {
	r := s.slots[a>>LogSegmentSize].Load()
	return r.data, uint64(a - r.base)
}

// Bytes returns the n bytes starting at a. The slice aliases segment
// memory; it is valid until the segment is released.
func (s *Space) Bytes(a Address, n uint32) []byte {
	data, off := s.locate(a)
	return data[off : off+uint64(n)]
}

// ReadWord reads the 64-bit word at a.
func (s *Space) ReadWord(a Address) uint64 {
	data, off := s.locate(a)
	return byteOrder.Uint64(data[off:])
}

// WriteWord writes the 64-bit word at a.
func (s *Space) WriteWord(a Address, v uint64) {
	data, off := s.locate(a)
	byteOrder.PutUint64(data[off:], v)
}

// ReadWord32 reads the 32-bit word at a.
func (s *Space) ReadWord32(a Address) uint32 {
	data, off := s.locate(a)
	return byteOrder.Uint32(data[off:])
}

// WriteWord32 writes the 32-bit word at a.
func (s *Space) WriteWord32(a Address, v uint32) {
	data, off := s.locate(a)
	byteOrder.PutUint32(data[off:], v)
}

// ReadHeader reads the cell header at a.
func (s *Space) ReadHeader(a Address) Header {
	return Header(s.ReadWord(a))
}

// WriteHeader writes the cell header at a.
func (s *Space) WriteHeader(a Address, h Header) {
	s.WriteWord(a, uint64(h))
}

// ReadPointer reads the compressed pointer slot at a.
func (s *Space) ReadPointer(a Address) value.CompressedPointer {
	return value.CompressedPointer(s.ReadWord32(a))
}

// WritePointer writes the compressed pointer slot at a.
func (s *Space) WritePointer(a Address, p value.CompressedPointer) {
	s.WriteWord32(a, p.Raw())
}

// ReadHermesValue reads the 64-bit value slot at a.
func (s *Space) ReadHermesValue(a Address) value.HermesValue {
	return value.FromRaw(s.ReadWord(a))
}

// WriteHermesValue writes the 64-bit value slot at a.
func (s *Space) WriteHermesValue(a Address, v value.HermesValue) {
	s.WriteWord(a, v.Raw())
}

// ReadSmallValue reads the 32-bit value slot at a.
func (s *Space) ReadSmallValue(a Address) value.SmallHermesValue {
	return value.SHVFromRaw(s.ReadWord32(a))
}

// WriteSmallValue writes the 32-bit value slot at a.
func (s *Space) WriteSmallValue(a Address, v value.SmallHermesValue) {
	s.WriteWord32(a, v.Raw())
}

// ReadSymbol reads the symbol-id slot at a.
func (s *Space) ReadSymbol(a Address) value.SymbolID {
	return value.SymbolID(s.ReadWord32(a))
}

// WriteSymbol writes the symbol-id slot at a.
func (s *Space) WriteSymbol(a Address, id value.SymbolID) {
	s.WriteWord32(a, uint32(id))
}

// Copy copies n bytes from src to dst. Regions never overlap: the copy is
// always an evacuation between segments.
func (s *Space) Copy(dst, src Address, n uint32) {
	copy(s.Bytes(dst, n), s.Bytes(src, n))
}

// Zero clears n bytes starting at a.
func (s *Space) Zero(a Address, n uint32) {
	b := s.Bytes(a, n)
	for i := range b {
		b[i] = 0
	}
}
