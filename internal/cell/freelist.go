package cell

import (
	"github.com/facebook/hermes-sub002/internal/heap"
	"github.com/facebook/hermes-sub002/pkg/value"
)

// A freelist cell overlays every span of free old-generation memory. Its
// header records the span length like any other cell, so sweeps and heap
// walks can step over free space uniformly, and its first field chains it
// to the next free span in the same segment and size bucket.
//
// Layout:
//
//	0   header (kind KindFreelist, size = span length)
//	8   next: compressed pointer to the next freelist cell, or null
//	12  (unused through the end of the span)
const (
	freelistNextOffset = 8
)

// FreelistCell is an accessor over a freelist cell.
type FreelistCell struct {
	Addr heap.Address
}

// InitFreelist overlays a freelist cell on the span [a, a+size).
func InitFreelist(s *heap.Space, a heap.Address, size uint32, next value.CompressedPointer) FreelistCell {
	Init(s, a, KindFreelist, size)
	s.WritePointer(a+freelistNextOffset, next)
	return FreelistCell{Addr: a}
}

// Size returns the span length.
func (f FreelistCell) Size(s *heap.Space) uint32 {
	return SizeOf(s, f.Addr)
}

// Next returns the next free span in the same segment and bucket.
func (f FreelistCell) Next(s *heap.Space) value.CompressedPointer {
	return s.ReadPointer(f.Addr + freelistNextOffset)
}

// SetNext rewrites the chain link. Freelist cells are collector-internal,
// so no write barrier is involved.
func (f FreelistCell) SetNext(s *heap.Space, next value.CompressedPointer) {
	s.WritePointer(f.Addr+freelistNextOffset, next)
}

// CarveTail splits sz bytes off the end of the span, shrinking this cell in
// place and returning the carved address. The caller guarantees the
// remainder stays at least MinCellSize.
func (f FreelistCell) CarveTail(s *heap.Space, sz uint32) heap.Address {
	remainder := f.Size(s) - sz
	Init(s, f.Addr, KindFreelist, remainder)
	return f.Addr + heap.Address(remainder)
}

func init() {
	Register(&VTable{
		Name: "freelist",
		Kind: KindFreelist,
		// Freelist cells hold no references and never finalize; their only
		// metadata purpose is to be classifiable during heap walks.
	})
}
