package gc

import (
	"fmt"

	"github.com/facebook/hermes-sub002/internal/cell"
	"github.com/facebook/hermes-sub002/internal/heap"
)

// Structural checkers. These are debug aids: tests run them between
// operations, and nothing in the production paths depends on them.

// CheckWellFormed walks the whole heap verifying structural invariants:
// every header decodes to a registered kind, segment cell walks terminate
// exactly at the level, and the freelists are well formed. Returns the
// first violation found.
func (h *Heap) CheckWellFormed() error {
	unpause := h.pauseBackgroundTask()
	defer unpause()

	if err := h.checkSegmentWalk(h.youngGen.seg, "young"); err != nil {
		return err
	}
	for i, seg := range h.oldGen.segments {
		if err := h.checkSegmentWalk(seg, fmt.Sprintf("old[%d]", i)); err != nil {
			return err
		}
	}
	return h.checkFreelists()
}

func (h *Heap) checkSegmentWalk(seg *heap.Segment, name string) error {
	cur := seg.Start()
	for cur < seg.Level() {
		hdr := h.space.ReadHeader(cur)
		if cell.TableFor(hdr.Kind()) == nil {
			return fmt.Errorf("%s segment: unregistered kind %d at %#x", name, hdr.Kind(), cur)
		}
		var size uint32
		if hdr.IsForwarded() {
			size = h.cellSize(hdr.ForwardingPointer())
		} else {
			size = hdr.Size()
		}
		if size < heap.MinCellSize || !heap.IsAligned(heap.Address(size)) {
			return fmt.Errorf("%s segment: bad cell size %d at %#x", name, size, cur)
		}
		cur += heap.Address(size)
	}
	if cur != seg.Level() {
		return fmt.Errorf("%s segment: cell walk overshot level by %d bytes", name, cur-seg.Level())
	}
	return nil
}

// checkFreelists verifies that every freelist cell is of freelist kind,
// carries a size matching its bucket, chains within one segment, and that
// the global bucket bit array mirrors the dummy-head lists.
func (h *Heap) checkFreelists() error {
	og := &h.oldGen
	for b := 0; b < numBuckets; b++ {
		hasAny := og.buckets[b].next != nil
		bitSet := og.bucketBits&(1<<uint(b)) != 0
		if hasAny != bitSet {
			return fmt.Errorf("bucket %d: bit array says %v but list presence is %v", b, bitSet, hasAny)
		}

		for segBucket := og.buckets[b].next; segBucket != nil; segBucket = segBucket.next {
			if segBucket.head.IsNull() {
				return fmt.Errorf("bucket %d: linked segment bucket with empty head", b)
			}
			segBase := heap.SegmentBase(heap.Decompress(segBucket.head))
			cp := segBucket.head
			for !cp.IsNull() {
				a := heap.Decompress(cp)
				hdr := h.space.ReadHeader(a)
				if hdr.Kind() != cell.KindFreelist {
					return fmt.Errorf("bucket %d: cell at %#x is kind %d, not freelist", b, a, hdr.Kind())
				}
				if getFreelistBucket(hdr.Size()) != b {
					return fmt.Errorf(
						"bucket %d: cell at %#x sized %d belongs in bucket %d",
						b, a, hdr.Size(), getFreelistBucket(hdr.Size()),
					)
				}
				if heap.SegmentBase(a) != segBase {
					return fmt.Errorf("bucket %d: chain crosses from segment %#x to %#x", b, segBase, heap.SegmentBase(a))
				}
				cp = cell.FreelistCell{Addr: a}.Next(h.space)
			}
		}
	}
	return nil
}

// cardCheckVisitor asserts that every old-generation slot referencing the
// young generation (or the compactee) lies on a dirty card.
type cardCheckVisitor struct {
	h    *Heap
	errs []error
}

func (v *cardCheckVisitor) checkSlot(slot heap.Address, target heap.Address) {
	h := v.h
	needsDirty := h.inYoungGen(target) ||
		(h.compactee.contains(target) && !h.compactee.contains(slot))
	if !needsDirty {
		return
	}
	m := h.segs.metaFor(slot)
	dirty := false
	if m.jumbo != nil {
		dirty = m.jumbo.HasDirtyCards()
	} else {
		dirty = m.seg.Cards().IsAddressDirty(slot)
	}
	if !dirty {
		v.errs = append(v.errs, fmt.Errorf(
			"slot %#x holds cross-generation pointer %#x but its card is clean", slot, target,
		))
	}
}

func (v *cardCheckVisitor) VisitPointer(slot heap.Address) {
	if cp := v.h.space.ReadPointer(slot); !cp.IsNull() {
		v.checkSlot(slot, heap.Decompress(cp))
	}
}

func (v *cardCheckVisitor) VisitHermesValue(slot heap.Address) {
	if hv := v.h.space.ReadHermesValue(slot); hv.IsPointer() && !hv.Pointer().IsNull() {
		v.checkSlot(slot, heap.Decompress(hv.Pointer()))
	}
}

func (v *cardCheckVisitor) VisitSmallValue(slot heap.Address) {
	if shv := v.h.space.ReadSmallValue(slot); shv.IsPointer() && !shv.Pointer().IsNull() {
		v.checkSlot(slot, heap.Decompress(shv.Pointer()))
	}
}

func (v *cardCheckVisitor) VisitSymbol(slot heap.Address)   {}
func (v *cardCheckVisitor) VisitWeakSlot(slot heap.Address) {}

// VerifyCardTable checks card-table soundness: each old cell containing an
// old-to-young or non-compactee-to-compactee pointer lies on a dirty card.
func (h *Heap) VerifyCardTable() error {
	unpause := h.pauseBackgroundTask()
	defer unpause()

	v := &cardCheckVisitor{h: h}
	for _, seg := range h.oldGen.segments {
		h.forObjsInSegment(seg, func(a heap.Address, k cell.Kind) {
			h.visitCell(a, v)
		})
	}
	for _, j := range h.oldGen.jumbos {
		h.visitCell(j.Cell(), v)
	}
	if len(v.errs) > 0 {
		return v.errs[0]
	}
	return nil
}
