package gc

import (
	"github.com/facebook/hermes-sub002/internal/cell"
	"github.com/facebook/hermes-sub002/internal/heap"
	"github.com/facebook/hermes-sub002/pkg/seginfo"
	"github.com/facebook/hermes-sub002/pkg/value"
	"strconv"
)

// evacAcceptor copies live young (and, during a compaction, compactee)
// cells into the old generation, leaving forwarding pointers behind and
// rewriting every slot it visits. It runs only while the mutator is paused.
type evacAcceptor struct {
	h *Heap

	// compactionEnabled folds the armed compactee's range into the
	// forwarding predicate.
	compactionEnabled bool

	// copyList holds evacuated destinations whose fields still need
	// scanning.
	copyList []heap.Address

	evacuatedBytes uint64
}

func newEvacAcceptor(h *Heap, compactionEnabled bool) *evacAcceptor {
	return &evacAcceptor{h: h, compactionEnabled: compactionEnabled}
}

func (a *evacAcceptor) shouldForward(addr heap.Address) bool {
	return a.h.inYoungGen(addr) ||
		(a.compactionEnabled && a.h.compactee.evacContains(addr))
}

// forward returns the evacuated location of the cell at addr, copying it on
// first discovery.
func (a *evacAcceptor) forward(addr heap.Address) heap.Address {
	h := a.h
	hdr := h.space.ReadHeader(addr)
	if hdr.IsForwarded() {
		return hdr.ForwardingPointer()
	}

	size := hdr.Size()
	dst := h.oldGen.alloc(h, size)
	h.space.Copy(dst, addr, size)
	h.space.WriteHeader(addr, hdr.WithForwarding(dst))
	h.tracker.Move(addr, dst)
	a.evacuatedBytes += uint64(size)
	a.copyList = append(a.copyList, dst)
	return dst
}

// popCopyList removes one destination cell pending a field scan.
func (a *evacAcceptor) popCopyList() (heap.Address, bool) {
	if len(a.copyList) == 0 {
		return heap.NullAddress, false
	}
	dst := a.copyList[len(a.copyList)-1]
	a.copyList = a.copyList[:len(a.copyList)-1]
	return dst, true
}

func (a *evacAcceptor) acceptHeapAddr(addr heap.Address, slot heap.Address) heap.Address {
	if a.shouldForward(addr) {
		return a.forward(addr)
	}
	if a.compactionEnabled && a.h.compactee.contains(addr) {
		// A compaction is about to take place; dirty the card so the
		// marker, which may already have scanned this slot, rediscovers
		// the pointer when the compactee is evacuated.
		a.h.dirtyCardFor(slot)
	}
	return addr
}

func (a *evacAcceptor) acceptRootAddr(addr heap.Address) heap.Address {
	if a.shouldForward(addr) {
		return a.forward(addr)
	}
	return addr
}

// SlotVisitor: rewrite in-heap slots.

func (a *evacAcceptor) VisitPointer(slot heap.Address) {
	cp := a.h.space.ReadPointer(slot)
	if cp.IsNull() {
		return
	}
	moved := a.acceptHeapAddr(heap.Decompress(cp), slot)
	a.h.space.WritePointer(slot, heap.Compress(moved))
}

func (a *evacAcceptor) VisitHermesValue(slot heap.Address) {
	hv := a.h.space.ReadHermesValue(slot)
	if !hv.IsPointer() {
		return
	}
	moved := a.acceptHeapAddr(heap.Decompress(hv.Pointer()), slot)
	a.h.space.WriteHermesValue(slot, hv.UpdatePointer(heap.Compress(moved)))
}

func (a *evacAcceptor) VisitSmallValue(slot heap.Address) {
	shv := a.h.space.ReadSmallValue(slot)
	if !shv.IsPointer() {
		return
	}
	cp := shv.Pointer()
	if cp.IsNull() {
		return
	}
	moved := a.acceptHeapAddr(heap.Decompress(cp), slot)
	a.h.space.WriteSmallValue(slot, shv.UpdatePointer(heap.Compress(moved)))
}

func (a *evacAcceptor) VisitSymbol(slot heap.Address) {}

func (a *evacAcceptor) VisitWeakSlot(slot heap.Address) {}

// RootVisitor: rewrite host-side roots.

func (a *evacAcceptor) VisitRootHV(hv *value.HermesValue) {
	if !hv.IsPointer() {
		return
	}
	cp := hv.Pointer()
	if cp.IsNull() {
		return
	}
	moved := a.acceptRootAddr(heap.Decompress(cp))
	*hv = hv.UpdatePointer(heap.Compress(moved))
}

func (a *evacAcceptor) VisitRootPtr(p *value.CompressedPointer) {
	if p.IsNull() {
		return
	}
	moved := a.acceptRootAddr(heap.Decompress(*p))
	*p = heap.Compress(moved)
}

func (a *evacAcceptor) VisitRootSym(s *value.SymbolID) {}

// rangeVisitor filters another visitor down to slots overlapping
// [begin, end); dirty-card scans use it for the cells straddling a card
// run's edges.
type rangeVisitor struct {
	inner      cell.SlotVisitor
	begin, end heap.Address
}

func (r *rangeVisitor) inRange(slot heap.Address) bool {
	return slot < r.end && slot+8 > r.begin
}

func (r *rangeVisitor) VisitPointer(slot heap.Address) {
	if r.inRange(slot) {
		r.inner.VisitPointer(slot)
	}
}

func (r *rangeVisitor) VisitHermesValue(slot heap.Address) {
	if r.inRange(slot) {
		r.inner.VisitHermesValue(slot)
	}
}

func (r *rangeVisitor) VisitSmallValue(slot heap.Address) {
	if r.inRange(slot) {
		r.inner.VisitSmallValue(slot)
	}
}

func (r *rangeVisitor) VisitSymbol(slot heap.Address) {
	if r.inRange(slot) {
		r.inner.VisitSymbol(slot)
	}
}

func (r *rangeVisitor) VisitWeakSlot(slot heap.Address) {
	if r.inRange(slot) {
		r.inner.VisitWeakSlot(slot)
	}
}

// scanDirtyCards visits, through the evacuating acceptor, every cell
// overlapping a dirty card of every old-generation segment: these are the
// old-to-young (and old-to-compactee) pointers that act as roots for the
// young collection.
func (h *Heap) scanDirtyCards(acceptor *evacAcceptor) {
	// While a mark is preparing a compaction (selected but not yet armed),
	// the dirt must survive for the evacuating collection that follows.
	preparingCompaction := !h.compactee.empty() && !h.compactee.evacActive()

	// The acceptor can grow the old generation; segments appended during
	// the loop hold only freshly promoted cells and need no scan.
	numSegs := len(h.oldGen.segments)
	for i := 0; i < numSegs; i++ {
		seg := h.oldGen.segments[i]
		h.scanDirtyCardsForSegment(acceptor, seg)
		if !preparingCompaction {
			seg.Cards().ClearAllCards()
		}
	}

	for _, j := range h.oldGen.jumbos {
		if !j.HasDirtyCards() {
			continue
		}
		// One cell per jumbo segment: scan it whole. Single-cell scan time
		// is unbounded by design.
		h.visitCell(j.Cell(), acceptor)
		if !preparingCompaction {
			j.ClearAllCards()
		}
	}

	// The compactee was detached from the segment list when it was
	// selected, but its old-to-young pointers still root the nursery until
	// evacuation arms.
	if preparingCompaction {
		h.scanDirtyCardsForSegment(acceptor, h.compactee.segment)
	}
}

// scanDirtyCardsForSegment walks each maximal run of dirty cards in seg,
// recovering the first cell head from the boundary table and visiting every
// cell overlapping the run.
func (h *Heap) scanDirtyCardsForSegment(acceptor *evacAcceptor, seg *heap.Segment) {
	if seg.Level() == seg.Start() {
		return
	}
	cards := seg.Cards()
	level := seg.Level()
	to := int(level-1-seg.Start())>>heap.LogCardSize + 1

	// When a compaction overlaps sweeping, dirty cards can hold dead cells
	// pointing at dead compactee cells; visiting those would resurrect
	// them. Skip unmarked cells in exactly that window.
	visitUnmarked := !acceptor.compactionEnabled || h.phase != PhaseSweep

	from := 0
	for {
		iBegin := cards.FindNextDirtyCard(from, to)
		if iBegin == to {
			break
		}
		iEnd := cards.FindNextCleanCard(iBegin, to)

		begin := cards.CardStart(iBegin)
		end := cards.CardStart(iEnd)
		boundary := end
		if level < boundary {
			boundary = level
		}

		ranged := &rangeVisitor{inner: acceptor, begin: begin, end: end}

		obj := cards.FirstCellHead(iBegin)
		objSize := heap.Address(h.cellSize(obj))

		// First cell: clipped to the run.
		if visitUnmarked || seg.IsMarked(obj) {
			h.visitCell(obj, ranged)
		}

		next := obj + objSize
		if next < boundary {
			// Middle cells lie entirely inside the run; scan them whole.
			obj = next
			for {
				objSize = heap.Address(h.cellSize(obj))
				next = obj + objSize
				if next >= boundary {
					break
				}
				if visitUnmarked || seg.IsMarked(obj) {
					h.visitCell(obj, acceptor)
				}
				obj = next
			}
			// Last cell: touches or crosses the run boundary.
			if visitUnmarked || seg.IsMarked(obj) {
				h.visitCell(obj, ranged)
			}
		}

		from = iEnd
	}
}

// updateWeakRootsForYoung repoints every weak reference at its referent's
// new location, or nulls it when the referent did not survive the
// evacuation.
func (h *Heap) updateWeakRootsForYoung(acceptor *evacAcceptor, markLongLived bool) {
	updater := &youngWeakUpdater{acceptor: acceptor}
	h.callbacks.MarkWeakRoots(updater, markLongLived)

	for i := range h.weakSlots {
		s := &h.weakSlots[i]
		if s.state == weakSlotFree || s.value.IsNull() {
			continue
		}
		s.value = updater.updated(s.value)
	}

	for _, t := range h.weakMapTables {
		if t == nil {
			continue
		}
		updater.VisitWeakRoot(&t.owner)
		for _, e := range t.entries {
			updater.VisitWeakRoot(&e.key)
		}
	}
}

// youngWeakUpdater rewrites weak references after an evacuation.
type youngWeakUpdater struct {
	acceptor *evacAcceptor
}

func (u *youngWeakUpdater) updated(cp value.CompressedPointer) value.CompressedPointer {
	addr := heap.Decompress(cp)
	if !u.acceptor.shouldForward(addr) {
		return cp
	}
	hdr := u.acceptor.h.space.ReadHeader(addr)
	if hdr.IsForwarded() {
		return heap.Compress(hdr.ForwardingPointer())
	}
	// The referent was not evacuated; it is dead.
	return value.NullCompressedPointer
}

func (u *youngWeakUpdater) VisitWeakRoot(w *WeakRoot) {
	if w.ptr.IsNull() {
		return
	}
	w.ptr = u.updated(w.ptr)
}

// finalizeCompactee finalizes compactee cells that were not evacuated and
// releases the compactee segment back to the storage provider.
func (h *Heap) finalizeCompactee() {
	seg := h.compactee.segment
	var preAllocated uint64

	cur := seg.Start()
	for cur < seg.Level() {
		hdr := h.space.ReadHeader(cur)
		if hdr.IsForwarded() {
			size := h.cellSize(hdr.ForwardingPointer())
			preAllocated += uint64(size)
			cur += heap.Address(size)
			continue
		}
		size := hdr.Size()
		if hdr.Kind() != cell.KindFreelist {
			if fin := cell.TableFor(hdr.Kind()).Finalize; fin != nil {
				fin(h.space, cur)
			}
			preAllocated += uint64(size)
		}
		cur += heap.Address(size)
	}

	// Evacuated survivors were re-counted by the evacuator's allocations;
	// drop the compactee's share of the books.
	h.oldGen.allocatedBytes -= preAllocated

	h.removeSegmentExtent(strconv.Itoa(h.compactee.slot))
	h.removeSegmentExtent(seginfo.CompacteeIndex)
	h.segs.unregister(seg.Start(), 1)
	h.space.UnmapRegion(seg.Start(), 1)
	if err := h.provider.Release(seg.Reservation()); err != nil {
		h.log.Errorw("Failed to release compactee segment", "error", err)
	}
	h.oldGen.slotPool.Release(h.compactee.slot)
	h.compactee = compacteeState{}
}
