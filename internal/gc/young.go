package gc

import (
	"time"

	"github.com/facebook/hermes-sub002/internal/cell"
	"github.com/facebook/hermes-sub002/internal/heap"
	"github.com/facebook/hermes-sub002/pkg/seginfo"
)

// youngGen is the nursery: exactly one unit segment, bump-pointer allocated
// and owned by the mutator. Its mark bit array is kept fully set so that
// any mark-bit check on a young address short-circuits to "marked".
type youngGen struct {
	seg *heap.Segment
}

const (
	ygInitialSizeFactor = 0.5
	ygMinSizeFactor     = 0.25
	ygMaxSizeFactor     = 1.0
)

// setYoungGen installs a fresh young segment, re-asserting the fully-marked
// invariant, and returns the previous one.
func (h *Heap) setYoungGen(seg *heap.Segment) *heap.Segment {
	seg.Marks().MarkAll()
	seg.Reservation().SetName(seginfo.YoungGenName(h.opts.Name))
	old := h.youngGen.seg
	h.youngGen.seg = seg
	h.segs.registerSegment(seg)
	h.ygFinalizables = h.ygFinalizables[:0]
	h.publishYoungGenExtent()
	return old
}

// youngGenAlloc is the young allocation slow-ish path behind the facade's
// bump fast path: bump, collect and retry, drop the external-memory
// throttle and retry, then declare OOM.
func (h *Heap) youngGenAlloc(size uint32) heap.Address {
	if a, ok := h.youngGen.seg.AllocRaw(size); ok {
		return a
	}

	// The bump failed: run a young collection and try again.
	h.youngGenCollection(causeNaturalYoung, false)
	if a, ok := h.youngGen.seg.AllocRaw(size); ok {
		return a
	}

	// External memory may have pulled the effective end below the level.
	// Remove the throttle and retry once; the next collection restores it.
	h.youngGen.seg.SetEffectiveEnd(h.youngGen.seg.End())
	if a, ok := h.youngGen.seg.AllocRaw(size); ok {
		return a
	}

	// The allocation simply does not fit in a young segment.
	h.oom(size)
	return heap.NullAddress
}

// allocPairYoung bump-allocates two cells in one step, so no collection can
// intervene between them. Preconditions: neither kind is finalizable and
// the total fits in a young segment.
func (h *Heap) allocPairYoung(size1, size2 uint32) (heap.Address, heap.Address) {
	total := size1 + size2
	if a, ok := h.youngGen.seg.AllocRaw(total); ok {
		return a, a + heap.Address(size1)
	}
	h.youngGenCollection(causeNaturalYoung, false)
	a, ok := h.youngGen.seg.AllocRaw(total)
	if !ok {
		h.youngGen.seg.SetEffectiveEnd(h.youngGen.seg.End())
		if a, ok = h.youngGen.seg.AllocRaw(total); !ok {
			h.oom(total)
		}
	}
	return a, a + heap.Address(size1)
}

// youngGenCollection evacuates every live young cell into the old
// generation, evacuates the compactee when one is armed, and then considers
// starting an old collection. The mutator is the only thread running except
// for the paused background task.
func (h *Heap) youngGenCollection(cause string, forceOldGenCollection bool) {
	stats := h.beginCollectionStats(cause, "young")
	h.ygStats = stats

	// Pause any background work for the duration of the collection.
	unpause := h.pauseBackgroundTask()
	defer unpause()

	yg := h.youngGen.seg
	heapBytesBefore := yg.Used()
	externalBytesBefore := h.ygExternalBytes
	h.totalAllocatedBytes += yg.Used()

	doCompaction := h.compactee.evacActive()

	if h.promoteYoungGenToOldGen() {
		stats.setBeforeSizes(heapBytesBefore, externalBytesBefore, h.heapFootprint())
		stats.addCollectionType("promotion")
	} else {
		acceptor := newEvacAcceptor(h, doCompaction)
		h.youngGenEvacuate(acceptor, doCompaction)

		// Retire the ids of cells that died in place.
		h.untrackDeadCells(yg)
		if doCompaction {
			h.untrackDeadCells(h.compactee.segment)
		}

		// Run finalizers for young cells that were not promoted.
		h.finalizeYoungGenObjects()

		externalBytesAfter := h.ygExternalBytes

		// All survivors are in the old generation now; empty the nursery
		// and restore the fully-marked invariant.
		yg.SetLevel(yg.Start())
		yg.Marks().MarkAll()

		if doCompaction {
			stats.addCollectionType("compact")
			ogAllocatedBefore := h.oldGen.allocatedBytes
			h.finalizeCompactee()
			heapBytesBefore += ogAllocatedBefore - h.oldGen.allocatedBytes
			h.numCompactions++
		}

		// Surviving external memory belongs to the old generation now.
		h.transferExternalMemoryToOldGen()

		if !doCompaction {
			h.updateYoungGenSizeFactor(stats.elapsed())
		}

		yg.SetEffectiveEnd(
			yg.Start() + heap.Address(h.ygSizeFactor*float64(heap.SegmentSize)),
		)

		stats.setBeforeSizes(heapBytesBefore, externalBytesBefore, h.heapFootprint())
		stats.setSweptBytes(heapBytesBefore - acceptor.evacuatedBytes)
		stats.setSweptExternalBytes(externalBytesBefore - externalBytesAfter)
		stats.setAfterSize(h.heapFootprint())
		if !doCompaction {
			h.ygAverageSurvivalBytes.update(float64(acceptor.evacuatedBytes + externalBytesAfter))
		}
	}

	// Perform pending incremental work for an ongoing old collection before
	// considering a new one.
	h.yieldToOldGen()

	if h.phase == PhaseNone && !h.compactee.evacActive() {
		h.checkTripwireAndSubmitStats()
		if forceOldGenCollection {
			h.oldGenCollection(cause, true)
		} else {
			totalAllocated := h.oldGen.allocatedBytes + h.oldGen.externalBytes
			allocatedRatio := float64(totalAllocated) / float64(h.oldGen.targetSizeBytes)
			if allocatedRatio >= h.ogThreshold.value {
				h.oldGenCollection(causeNaturalOld, false)
			}
		}
	}

	h.numYoungCollections++
	stats.setEndTime()
	h.recordGCStats(stats, true)
	h.ygStats = nil
}

// youngGenEvacuate drives the evacuation: roots, dirty cards, then the copy
// list until no new cell is discovered, and finally the weak roots.
func (h *Heap) youngGenEvacuate(acceptor *evacAcceptor, doCompaction bool) {
	h.markRoots(acceptor, doCompaction)
	h.scanDirtyCards(acceptor)
	for {
		copied, ok := acceptor.popCopyList()
		if !ok {
			break
		}
		// Scan the promoted copy; the original only holds the forwarding
		// pointer now.
		h.visitCell(copied, acceptor)
	}
	h.updateWeakRootsForYoung(acceptor, doCompaction)
}

// untrackDeadCells retires ids of every cell in seg that was not forwarded.
func (h *Heap) untrackDeadCells(seg *heap.Segment) {
	cur := seg.Start()
	for cur < seg.Level() {
		hdr := h.space.ReadHeader(cur)
		if hdr.IsForwarded() {
			cur += heap.Address(h.cellSize(hdr.ForwardingPointer()))
			continue
		}
		size := hdr.Size()
		if hdr.Kind() != cell.KindFreelist {
			h.tracker.Untrack(cur)
		}
		cur += heap.Address(size)
	}
}

// finalizeYoungGenObjects runs the finalizer of every finalizable young
// cell that did not survive.
func (h *Heap) finalizeYoungGenObjects() {
	for _, a := range h.ygFinalizables {
		hdr := h.space.ReadHeader(a)
		if !hdr.IsForwarded() {
			if fin := cell.TableFor(hdr.Kind()).Finalize; fin != nil {
				fin(h.space, a)
			}
		}
	}
	h.ygFinalizables = h.ygFinalizables[:0]
}

// promoteYoungGenToOldGen moves the whole young segment into the old
// generation, keeping every address stable. Active only until TTI.
func (h *Heap) promoteYoungGenToOldGen() bool {
	if !h.promoteYGToOG {
		return false
	}

	newSeg, err := h.createSegment(seginfo.YoungGenName(h.opts.Name))
	if err != nil {
		// Could not grow; fall back to normal young collections for good.
		h.promoteYGToOG = false
		return false
	}

	h.transferExternalMemoryToOldGen()

	// The promoted segment's cell heads were skipped during bump
	// allocation; fill them in before the old generation starts scanning
	// its cards.
	seg := h.youngGen.seg
	cur := seg.Start()
	for cur < seg.Level() {
		size := h.cellSize(cur)
		seg.Cards().UpdateBoundaries(cur, cur+heap.Address(size))
		cur += heap.Address(size)
	}

	old := h.setYoungGen(newSeg)
	h.oldGen.addSegment(h, old)
	return true
}

// transferExternalMemoryToOldGen moves the young external-memory charge to
// the old generation's books.
func (h *Heap) transferExternalMemoryToOldGen() {
	h.oldGen.creditExternal(h.ygExternalBytes)
	h.ygExternalBytes = 0
	h.youngGen.seg.SetEffectiveEnd(h.youngGen.seg.End())
}

// updateYoungGenSizeFactor scales the nursery by the last pause: well under
// budget grows it, well over shrinks it.
func (h *Heap) updateYoungGenSizeFactor(pause time.Duration) {
	ms := float64(pause.Milliseconds())
	if ms < targetMaxPauseMs*0.2 {
		h.ygSizeFactor = minFloat(h.ygSizeFactor*1.1, ygMaxSizeFactor)
	} else if ms > targetMaxPauseMs*0.4 {
		h.ygSizeFactor = maxFloat(h.ygSizeFactor*0.9, ygMinSizeFactor)
	}
}

// CreditExternalMemory charges size bytes of external memory to the cell at
// a. Young charges shrink the nursery's effective end so the next
// collection happens sooner; old charges count toward the collection
// threshold.
func (h *Heap) CreditExternalMemory(a heap.Address, size uint64) {
	if h.inYoungGen(a) {
		h.ygExternalBytes += size
		yg := h.youngGen.seg
		adj := minUint64(size, yg.Available())
		yg.SetEffectiveEnd(yg.EffectiveEnd() - heap.Address(adj))
		return
	}

	h.gcMu.Lock()
	h.oldGen.creditExternal(size)
	total := h.oldGen.allocatedBytes + h.oldGen.externalBytes
	target := h.oldGen.targetSizeBytes
	h.gcMu.Unlock()
	if total > target {
		// Force the next young allocation slow path to collect.
		h.youngGen.seg.SetEffectiveEnd(h.youngGen.seg.Level())
	}
}

// DebitExternalMemory removes an external-memory charge.
func (h *Heap) DebitExternalMemory(a heap.Address, size uint64) {
	if h.inYoungGen(a) {
		h.ygExternalBytes -= size
		return
	}
	h.gcMu.Lock()
	h.oldGen.debitExternal(size)
	h.gcMu.Unlock()
}

func minUint64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
