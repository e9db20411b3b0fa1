package gc

import (
	"github.com/facebook/hermes-sub002/internal/heap"
	"github.com/facebook/hermes-sub002/pkg/value"
)

// Write barriers. Every reference-bearing store into the heap funnels
// through these. The combined barrier has two halves:
//
//  1. A pre-write snapshot half, active while ogMarkingBarriers is set: the
//     value being overwritten is fed to the marker, preserving the object
//     graph as it stood when marking began.
//  2. A relocation half: a store that creates an old-to-young or
//     non-compactee-to-compactee pointer dirties the card covering the
//     written slot, so the next evacuation rediscovers it.
//
// Stores into the young generation run no barriers at all: the young
// segment's mark bits are permanently set (so the snapshot half has
// nothing to preserve there) and every young collection scans the whole
// nursery anyway. Barriers never allocate and never take the GC mutex.

// snapshotBarrierEnqueue feeds an overwritten cell reference to the marker.
// Mutator only; the marker outlives the barrier window on this thread.
func (h *Heap) snapshotBarrierEnqueue(a heap.Address) {
	h.marker.global.enqueue(a)
}

func (h *Heap) snapshotBarrierHV(old value.HermesValue) {
	if old.IsPointer() {
		if cp := old.Pointer(); !cp.IsNull() {
			h.snapshotBarrierEnqueue(heap.Decompress(cp))
		}
	} else if old.IsSymbol() {
		h.marker.barrierMarkSymbol(old.Symbol())
	}
}

func (h *Heap) snapshotBarrierSHV(old value.SmallHermesValue) {
	if old.IsPointer() {
		if cp := old.Pointer(); !cp.IsNull() {
			h.snapshotBarrierEnqueue(heap.Decompress(cp))
		}
	} else if old.IsSymbol() {
		h.marker.barrierMarkSymbol(old.Symbol())
	}
}

// relocationBarrier dirties the card covering loc when the stored value
// needs rediscovery at the next evacuation. loc is known not to be young.
func (h *Heap) relocationBarrier(loc heap.Address, target heap.Address) {
	if h.inYoungGen(target) ||
		(h.compactee.contains(target) && !h.compactee.contains(loc)) {
		h.dirtyCardFor(loc)
	}
}

// BarrieredWriteHermesValue stores a 64-bit value with full barriers.
func (h *Heap) BarrieredWriteHermesValue(loc heap.Address, v value.HermesValue) {
	if !h.inYoungGen(loc) {
		if h.ogMarkingBarriers.Load() {
			h.snapshotBarrierHV(h.space.ReadHermesValue(loc))
		}
		if v.IsPointer() {
			if cp := v.Pointer(); !cp.IsNull() {
				h.relocationBarrier(loc, heap.Decompress(cp))
			}
		}
	}
	h.space.WriteHermesValue(loc, v)
}

// BarrieredWriteSmallValue stores a 32-bit value with full barriers.
func (h *Heap) BarrieredWriteSmallValue(loc heap.Address, v value.SmallHermesValue) {
	if !h.inYoungGen(loc) {
		if h.ogMarkingBarriers.Load() {
			h.snapshotBarrierSHV(h.space.ReadSmallValue(loc))
		}
		if v.IsPointer() {
			if cp := v.Pointer(); !cp.IsNull() {
				h.relocationBarrier(loc, heap.Decompress(cp))
			}
		}
	}
	h.space.WriteSmallValue(loc, v)
}

// BarrieredWritePointer stores a bare cell reference with full barriers.
func (h *Heap) BarrieredWritePointer(loc heap.Address, p value.CompressedPointer) {
	if !h.inYoungGen(loc) {
		if h.ogMarkingBarriers.Load() {
			if old := h.space.ReadPointer(loc); !old.IsNull() {
				h.snapshotBarrierEnqueue(heap.Decompress(old))
			}
		}
		if !p.IsNull() {
			h.relocationBarrier(loc, heap.Decompress(p))
		}
	}
	h.space.WritePointer(loc, p)
}

// BarrieredWriteSymbol stores a symbol id. Symbols do not relocate, so only
// the snapshot half applies.
func (h *Heap) BarrieredWriteSymbol(loc heap.Address, id value.SymbolID) {
	if !h.inYoungGen(loc) && h.ogMarkingBarriers.Load() {
		h.marker.barrierMarkSymbol(h.space.ReadSymbol(loc))
	}
	h.space.WriteSymbol(loc, id)
}

// Constructor barriers initialize slots whose prior contents are garbage:
// the snapshot half is skipped, the relocation half still applies.

// ConstructorWriteHermesValue initializes a 64-bit value slot.
func (h *Heap) ConstructorWriteHermesValue(loc heap.Address, v value.HermesValue) {
	if !h.inYoungGen(loc) && v.IsPointer() {
		if cp := v.Pointer(); !cp.IsNull() {
			h.relocationBarrier(loc, heap.Decompress(cp))
		}
	}
	h.space.WriteHermesValue(loc, v)
}

// ConstructorWriteSmallValue initializes a 32-bit value slot.
func (h *Heap) ConstructorWriteSmallValue(loc heap.Address, v value.SmallHermesValue) {
	if !h.inYoungGen(loc) && v.IsPointer() {
		if cp := v.Pointer(); !cp.IsNull() {
			h.relocationBarrier(loc, heap.Decompress(cp))
		}
	}
	h.space.WriteSmallValue(loc, v)
}

// ConstructorWritePointer initializes a bare reference slot.
func (h *Heap) ConstructorWritePointer(loc heap.Address, p value.CompressedPointer) {
	if !h.inYoungGen(loc) && !p.IsNull() {
		h.relocationBarrier(loc, heap.Decompress(p))
	}
	h.space.WritePointer(loc, p)
}

// ConstructorWriteBarrierRange covers a bulk initialization of value slots
// in [start, end): rather than tagging each slot precisely, every card the
// range spans is dirtied and the next collection scans the whole range.
func (h *Heap) ConstructorWriteBarrierRange(start, end heap.Address) {
	if h.inYoungGen(start) {
		return
	}
	m := h.segs.metaFor(start)
	if m.jumbo != nil {
		m.jumbo.DirtyCardsForRange(start, end)
		return
	}
	m.seg.Cards().DirtyCardsForRange(start, end)
}

// weakRefReadBarrier keeps a value read out of a weak reference alive for
// the rest of the marking cycle: reading it re-creates a strong use the
// snapshot would otherwise miss.
func (h *Heap) weakRefReadBarrier(a heap.Address) {
	if h.ogMarkingBarriers.Load() {
		h.snapshotBarrierEnqueue(a)
	}
}
