package gc

import (
	"github.com/facebook/hermes-sub002/internal/heap"
	"github.com/facebook/hermes-sub002/pkg/value"
)

// WeakRoot is a weak reference held outside the heap. Reads take a barrier
// that keeps the referent alive through an active marking cycle; writes
// take none. The collector updates the root when the referent moves and
// nulls it when the referent dies.
type WeakRoot struct {
	ptr value.CompressedPointer
}

// NewWeakRoot creates a weak root referencing the cell at a.
func NewWeakRoot(a heap.Address) WeakRoot {
	return WeakRoot{ptr: heap.Compress(a)}
}

// Get returns the referent, or NullAddress when it has been collected. The
// read conservatively marks the referent while the concurrent marker runs.
func (w *WeakRoot) Get(h *Heap) heap.Address {
	if w.ptr.IsNull() {
		return heap.NullAddress
	}
	a := heap.Decompress(w.ptr)
	h.weakRefReadBarrier(a)
	return a
}

// GetNoBarrier returns the referent without a read barrier. Collector use
// only.
func (w *WeakRoot) GetNoBarrier() heap.Address {
	if w.ptr.IsNull() {
		return heap.NullAddress
	}
	return heap.Decompress(w.ptr)
}

// Set repoints the root. No barrier: weak roots never extend lifetimes.
func (w *WeakRoot) Set(a heap.Address) {
	w.ptr = heap.Compress(a)
}

// Clear nulls the root.
func (w *WeakRoot) Clear() {
	w.ptr = value.NullCompressedPointer
}

// weakSlotState tracks a weak-ref slot's position in the reuse protocol.
type weakSlotState uint8

const (
	// weakSlotUnmarked means it is unknown whether the mutator still uses
	// the slot; a full cycle proves it one way or the other.
	weakSlotUnmarked weakSlotState = iota
	// weakSlotMarked means the slot was proven in use this cycle.
	weakSlotMarked
	// weakSlotFree means the slot is on the free list awaiting reuse.
	weakSlotFree
)

// weakRefSlot is one entry of the dense weak-reference table. The payload
// doubles as the free-list link while the slot is free.
type weakRefSlot struct {
	state weakSlotState

	// value is the referent while the slot is live.
	value value.CompressedPointer

	// nextFree chains free slots; -1 terminates. Only meaningful in the
	// Free state.
	nextFree int32
}

// NewWeakRef allocates a slot referencing the cell at a and returns its
// index. A slot born during marking starts Marked, since the marker may
// already have passed the cell that will hold the reference; otherwise it
// starts Unmarked and must prove itself by the end of the next cycle.
func (h *Heap) NewWeakRef(a heap.Address) uint32 {
	unpause := h.pauseBackgroundTask()
	defer unpause()

	state := weakSlotUnmarked
	if h.ogMarkingBarriers.Load() {
		state = weakSlotMarked
	}

	if h.firstFreeSlot >= 0 {
		idx := uint32(h.firstFreeSlot)
		s := &h.weakSlots[idx]
		h.firstFreeSlot = s.nextFree
		s.state = state
		s.value = heap.Compress(a)
		return idx
	}

	h.weakSlots = append(h.weakSlots, weakRefSlot{
		state: state,
		value: heap.Compress(a),
	})
	return uint32(len(h.weakSlots) - 1)
}

// WeakRefGet returns the referent of slot idx, or NullAddress when the
// referent has been collected. The read feeds the snapshot barrier, since
// it revives a reference the marker cannot otherwise see.
func (h *Heap) WeakRefGet(idx uint32) heap.Address {
	s := &h.weakSlots[idx]
	if s.value.IsNull() {
		return heap.NullAddress
	}
	a := heap.Decompress(s.value)
	h.weakRefReadBarrier(a)
	return a
}

// WeakRefIsValid reports whether slot idx still references a live cell.
func (h *Heap) WeakRefIsValid(idx uint32) bool {
	return !h.weakSlots[idx].value.IsNull()
}

// markWeakSlot transitions a slot to Marked when marking finds a live cell
// referencing it.
func (h *Heap) markWeakSlot(idx uint32) {
	s := &h.weakSlots[idx]
	if s.state != weakSlotFree {
		s.state = weakSlotMarked
	}
}

// updateWeakReferencesForOldGen recycles the slot table at the end of
// complete-marking: slots nothing marked go to the free list, marked slots
// reset to Unmarked for the next cycle.
func (h *Heap) updateWeakReferencesForOldGen() {
	for i := range h.weakSlots {
		s := &h.weakSlots[i]
		switch s.state {
		case weakSlotFree:

		case weakSlotMarked:
			s.state = weakSlotUnmarked

		case weakSlotUnmarked:
			s.state = weakSlotFree
			s.value = value.NullCompressedPointer
			s.nextFree = h.firstFreeSlot
			h.firstFreeSlot = int32(i)
		}
	}
}

// weakRootClearer nulls weak roots whose referents the cycle proved dead.
type weakRootClearer struct {
	h *Heap
}

func (c *weakRootClearer) VisitWeakRoot(w *WeakRoot) {
	if w.ptr.IsNull() {
		return
	}
	if !c.h.cellIsMarked(heap.Decompress(w.ptr)) {
		w.Clear()
	}
}

// clearWeakRootsForOldGen sweeps every weak reference against the final
// mark state: host weak roots, weak-ref slot payloads, and the weak-map
// machinery's key and owner roots.
func (h *Heap) clearWeakRootsForOldGen() {
	clearer := &weakRootClearer{h: h}
	h.callbacks.MarkWeakRoots(clearer, true)

	for i := range h.weakSlots {
		s := &h.weakSlots[i]
		if s.state == weakSlotFree || s.value.IsNull() {
			continue
		}
		if !h.cellIsMarked(heap.Decompress(s.value)) {
			s.value = value.NullCompressedPointer
		}
	}

	for id, t := range h.weakMapTables {
		if t == nil {
			continue
		}
		clearer.VisitWeakRoot(&t.owner)
		if t.owner.ptr.IsNull() {
			// The owning map is dead; the whole table goes with it.
			h.weakMapTables[id] = nil
			h.freeWeakMapID = append(h.freeWeakMapID, uint32(id))
			continue
		}
		for _, e := range t.entries {
			clearer.VisitWeakRoot(&e.key)
		}
	}
}
