package cell

import (
	"github.com/facebook/hermes-sub002/internal/heap"
)

// A filler cell plugs the tail that sweeping trims off a live variable-sized
// cell. It is distinct from a freelist cell: fillers sit on no freelist and
// are reclaimed, and counted as swept, by the same sweep pass that creates
// them when it reaches their address.
//
// Layout:
//
//	0   header (kind KindFiller, size = tail length)

// InitFiller overlays a filler cell on the span [a, a+size).
func InitFiller(s *heap.Space, a heap.Address, size uint32) {
	Init(s, a, KindFiller, size)
}

func init() {
	Register(&VTable{
		Name: "filler",
		Kind: KindFiller,
	})
}
