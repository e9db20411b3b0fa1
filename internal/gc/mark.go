package gc

import (
	"github.com/facebook/hermes-sub002/internal/cell"
	"github.com/facebook/hermes-sub002/internal/heap"
	"github.com/facebook/hermes-sub002/pkg/value"
)

// concurrentMarkLimit bounds the bytes marked per background step, so the
// background task returns to the phase-step boundary (and the pause check)
// often enough for the mutator to stay responsive.
const concurrentMarkLimit = 128 * 1024

// markAcceptor discovers reachable cells for the old-generation collection.
// Slots are read through the space and referents pushed onto the marker's
// local worklist; symbols are recorded in the liveness bitmap. The young
// generation is excluded automatically because its mark bits are always
// set.
type markAcceptor struct {
	h *Heap
	m *markState

	// skipWeak suppresses weak-slot marking; the ephemeron fixpoint uses
	// this while scanning weak maps with their value storage detached.
	skipWeak bool
}

func (a *markAcceptor) acceptHeapAddr(cellAddr heap.Address, slot heap.Address) {
	h := a.h
	if h.compactee.contains(cellAddr) && !h.compactee.contains(slot) {
		// A heap pointer into the compactee: dirty the slot's card so the
		// evacuating young collection rediscovers it.
		h.dirtyCardFor(slot)
	}
	if h.cellIsMarked(cellAddr) {
		return
	}
	a.m.pushLocal(cellAddr)
}

func (a *markAcceptor) acceptRootAddr(cellAddr heap.Address) {
	if !a.h.cellIsMarked(cellAddr) {
		a.m.pushLocal(cellAddr)
	}
}

// SlotVisitor: in-heap slots of cells being scanned.

func (a *markAcceptor) VisitPointer(slot heap.Address) {
	if cp := a.h.space.ReadPointer(slot); !cp.IsNull() {
		a.acceptHeapAddr(heap.Decompress(cp), slot)
	}
}

func (a *markAcceptor) VisitHermesValue(slot heap.Address) {
	hv := a.h.space.ReadHermesValue(slot)
	if hv.IsPointer() {
		a.acceptHeapAddr(heap.Decompress(hv.Pointer()), slot)
	} else if hv.IsSymbol() {
		a.m.markSymbol(hv.Symbol())
	}
}

func (a *markAcceptor) VisitSmallValue(slot heap.Address) {
	shv := a.h.space.ReadSmallValue(slot)
	if shv.IsPointer() {
		if cp := shv.Pointer(); !cp.IsNull() {
			a.acceptHeapAddr(heap.Decompress(cp), slot)
		}
	} else if shv.IsSymbol() {
		a.m.markSymbol(shv.Symbol())
	}
}

func (a *markAcceptor) VisitSymbol(slot heap.Address) {
	a.m.markSymbol(a.h.space.ReadSymbol(slot))
}

func (a *markAcceptor) VisitWeakSlot(slot heap.Address) {
	if a.skipWeak {
		return
	}
	idx := a.h.space.ReadWord32(slot)
	a.h.markWeakSlot(idx)
}

// RootVisitor: host-side roots.

func (a *markAcceptor) VisitRootHV(hv *value.HermesValue) {
	if hv.IsPointer() {
		if cp := hv.Pointer(); !cp.IsNull() {
			a.acceptRootAddr(heap.Decompress(cp))
		}
	} else if hv.IsSymbol() {
		a.m.markSymbol(hv.Symbol())
	}
}

func (a *markAcceptor) VisitRootPtr(p *value.CompressedPointer) {
	if !p.IsNull() {
		a.acceptRootAddr(heap.Decompress(*p))
	}
}

func (a *markAcceptor) VisitRootSym(s *value.SymbolID) {
	a.m.markSymbol(*s)
}

// markRoots walks the host's roots plus the collector's own temporary
// roots.
func (h *Heap) markRoots(v RootVisitor, markLongLived bool) {
	h.callbacks.MarkRoots(v, markLongLived)
	for _, r := range h.tempRoots {
		v.VisitRootHV(r)
	}
}

// visitCell reports each outgoing-reference slot of the cell at a to v.
func (h *Heap) visitCell(a heap.Address, v cell.SlotVisitor) {
	if mark := cell.TableFor(h.cellKind(a)).Mark; mark != nil {
		mark(h.space, a, v)
	}
}

// processMarkedCell sets the cell's mark bit and scans it, deferring weak
// maps to the complete-marking ephemeron pass.
func (h *Heap) processMarkedCell(a heap.Address, acceptor *markAcceptor) {
	if h.cellIsMarked(a) {
		return
	}
	h.setCellMarked(a)
	h.marker.markedBytes += uint64(h.cellSize(a))

	if h.cellKind(a) == cell.KindWeakMap {
		// The map's entries obey the ephemeron rule; scanning is deferred
		// until liveness of the keys is known.
		h.marker.reachableWeakMaps = append(h.marker.reachableWeakMaps, a)
		return
	}
	h.visitCell(a, acceptor)
}

// drainSomeWork drains up to limitBytes of marking work and reports whether
// any work might remain. GC mutex held.
func (h *Heap) drainSomeWork(limitBytes uint64) bool {
	m := h.marker
	acceptor := &markAcceptor{h: h, m: m}
	start := m.markedBytes

	for m.markedBytes-start < limitBytes {
		a, ok := m.popLocal()
		if !ok {
			// Local work exhausted; pull a batch from the barriers' global
			// worklist.
			batch := m.global.drain()
			if len(batch) == 0 {
				// Nothing pending. The mutator's unflushed push chunk is
				// collected during complete-marking.
				return false
			}
			for _, c := range batch {
				m.local = append(m.local, c)
			}
			continue
		}
		h.processMarkedCell(a, acceptor)
	}
	return true
}

// drainAllWork drains the local and global worklists to empty. World
// stopped or GC mutex held with barriers quiescent.
func (h *Heap) drainAllWork() {
	m := h.marker
	acceptor := &markAcceptor{h: h, m: m}
	for {
		if a, ok := m.popLocal(); ok {
			h.processMarkedCell(a, acceptor)
			continue
		}
		batch := m.global.drain()
		if len(batch) == 0 {
			return
		}
		for _, c := range batch {
			m.local = append(m.local, c)
		}
	}
}

// dirtyCardFor dirties the card covering slot, wherever the slot lives.
func (h *Heap) dirtyCardFor(slot heap.Address) {
	m := h.segs.metaFor(slot)
	if m == nil {
		return
	}
	if m.jumbo != nil {
		m.jumbo.DirtyCardForAddress(slot)
		return
	}
	m.seg.Cards().DirtyCardForAddress(slot)
}
