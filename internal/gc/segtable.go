package gc

import (
	"sync/atomic"

	"github.com/facebook/hermes-sub002/internal/cell"
	"github.com/facebook/hermes-sub002/internal/heap"
)

// segMeta resolves an address-space slot to the segment occupying it. The
// mutator's barrier paths read the table lock-free; mutations happen under
// the GC mutex when segments are created or released.
type segMeta struct {
	seg   *heap.Segment
	jumbo *heap.JumboSegment
}

// segTable is kept on the Heap; declared separately to keep model.go
// readable.
type segTable struct {
	slots [heap.NumSegmentSlots]atomic.Pointer[segMeta]
}

func (t *segTable) metaFor(a heap.Address) *segMeta {
	return t.slots[a>>heap.LogSegmentSize].Load()
}

func (t *segTable) registerSegment(s *heap.Segment) {
	t.slots[s.Start()>>heap.LogSegmentSize].Store(&segMeta{seg: s})
}

func (t *segTable) registerJumbo(j *heap.JumboSegment) {
	m := &segMeta{jumbo: j}
	slot := int(j.Base() >> heap.LogSegmentSize)
	for i := 0; i < j.NumSlots(); i++ {
		t.slots[slot+i].Store(m)
	}
}

func (t *segTable) unregister(base heap.Address, numSlots int) {
	slot := int(base >> heap.LogSegmentSize)
	for i := 0; i < numSlots; i++ {
		t.slots[slot+i].Store(nil)
	}
}

// inYoungGen reports whether a lies in the young generation. O(1) via
// segment-alignment masking against the young segment's base.
func (h *Heap) inYoungGen(a heap.Address) bool {
	return heap.SegmentBase(a) == h.youngGen.seg.Start()
}

// InYoungGen is the host-visible form of the generation check.
func (h *Heap) InYoungGen(a heap.Address) bool {
	return h.inYoungGen(a)
}

// cellIsMarked reads the mark bit of the cell at a, wherever it lives. The
// young generation's fully-marked invariant makes every young cell read as
// marked, which is exactly what the callers rely on.
func (h *Heap) cellIsMarked(a heap.Address) bool {
	m := h.segs.metaFor(a)
	if m.jumbo != nil {
		return m.jumbo.IsMarked()
	}
	return m.seg.IsMarked(a)
}

// setCellMarked sets the mark bit of the cell at a.
func (h *Heap) setCellMarked(a heap.Address) {
	m := h.segs.metaFor(a)
	if m.jumbo != nil {
		m.jumbo.SetMarked(true)
		return
	}
	m.seg.Mark(a)
}

// cellSize returns the allocated size of any cell, resolving large cells
// through their jumbo segment's metadata.
func (h *Heap) cellSize(a heap.Address) uint32 {
	if sz := h.space.ReadHeader(a).Size(); sz != 0 {
		return sz
	}
	return h.segs.metaFor(a).jumbo.CellSize()
}

// cellKind returns the kind of the cell at a.
func (h *Heap) cellKind(a heap.Address) cell.Kind {
	return h.space.ReadHeader(a).Kind()
}
