package gc

import (
	"strconv"

	"github.com/facebook/hermes-sub002/internal/cell"
	"github.com/facebook/hermes-sub002/internal/heap"
	"github.com/facebook/hermes-sub002/pkg/value"
)

// initializeSweep pins the sweep iterator at the current segment count.
// Segments added after this point are full of cells allocated during the
// collection, which are born marked, so there is nothing to sweep there.
func (og *oldGen) initializeSweep() {
	og.sweep = sweepIterator{segNumber: len(og.segments)}
}

// sweepSegmentsRemaining reports how many sweep steps are left.
func (og *oldGen) sweepSegmentsRemaining() int {
	return og.sweep.segNumber
}

// sweepNext sweeps one segment, back to front, rebuilding its freelist with
// maximal coalesced free spans. It returns false once every segment has
// been swept and the end-of-collection bookkeeping has run. GC mutex held.
func (og *oldGen) sweepNext(h *Heap, backgroundThread bool) bool {
	if og.sweep.segNumber == 0 {
		og.endSweep(h)
		return false
	}
	og.sweep.segNumber--

	seg := og.segments[og.sweep.segNumber]
	row := og.segBuckets[og.sweep.segNumber]

	// Detach this segment's buckets from the global freelist; the bit
	// array goes stale until re-derived below, which is fine because the
	// GC mutex is held throughout.
	for b := range row {
		if !row[b].head.IsNull() {
			row[b].removeFromFreelist()
			row[b].head = value.NullCompressedPointer
		}
	}

	var freeRangeStart, freeRangeEnd heap.Address
	var segmentSweptBytes uint64

	flushRange := func() {
		if freeRangeStart == heap.NullAddress {
			return
		}
		size := uint32(freeRangeEnd - freeRangeStart)
		if size >= heap.MinCellSize {
			og.addCellToFreelistDetached(h, freeRangeStart, size, row)
		}
	}

	cur := seg.Start()
	for cur < seg.Level() {
		hdr := h.space.ReadHeader(cur)
		size := hdr.Size()

		if seg.IsMarked(cur) {
			// Live cell. Optionally trim unused tail space, which cannot be
			// done concurrently with the mutator.
			if !(concurrentGC && backgroundThread) {
				vt := cell.TableFor(hdr.Kind())
				if vt.TrimmedSize != nil {
					trimmed := vt.TrimmedSize(h.space, cur, size)
					if trimmable := size - trimmed; trimmable >= heap.MinCellSize {
						h.space.WriteHeader(cur, heap.NewHeader(hdr.Kind(), trimmed))
						filler := cur + heap.Address(trimmed)
						cell.InitFiller(h.space, filler, trimmable)
						seg.Cards().UpdateBoundaries(filler, filler+heap.Address(trimmable))
						og.sweep.trimmedBytes += uint64(trimmable)
						size = trimmed
					}
				}
			}
			cur += heap.Address(size)
			continue
		}

		// Dead or already-free cell: extend the current free range, or
		// flush it and start a new one if the runs are not adjacent.
		if freeRangeEnd != cur {
			flushRange()
			freeRangeStart, freeRangeEnd = cur, cur
		}
		freeRangeEnd += heap.Address(size)

		if hdr.Kind() != cell.KindFreelist {
			segmentSweptBytes += uint64(size)
			if fin := cell.TableFor(hdr.Kind()).Finalize; fin != nil {
				fin(h.space, cur)
			}
			if hdr.Kind() != cell.KindFiller {
				h.tracker.Untrack(cur)
			}
		}
		cur += heap.Address(size)
	}
	flushRange()

	// Re-link the rebuilt per-segment buckets and refresh the global bit
	// array, including buckets this segment no longer serves.
	for b := 0; b < numBuckets; b++ {
		if !row[b].head.IsNull() {
			row[b].addToFreelist(&og.buckets[b])
		}
		og.setBucketBit(b)
	}

	og.allocatedBytes -= segmentSweptBytes
	og.sweep.sweptBytes += segmentSweptBytes

	if og.sweep.segNumber > 0 {
		return true
	}

	og.endSweep(h)
	return false
}

// addCellToFreelistDetached inserts a swept span into a bucket row that is
// currently unlinked from the global lists; linkage is restored at the end
// of the segment's sweep.
func (og *oldGen) addCellToFreelistDetached(h *Heap, a heap.Address, size uint32, row []segmentBucket) {
	bucket := getFreelistBucket(size)
	fc := cell.InitFreelist(h.space, a, size, row[bucket].head)
	h.segs.metaFor(a).seg.Cards().UpdateBoundaries(a, a+heap.Address(size))
	row[bucket].head = heap.Compress(fc.Addr)
}

// endSweep runs once after the final segment: release dead jumbo cells,
// adapt the old generation's target size toward the configured occupancy,
// and fold the cycle's numbers into the collection stats.
func (og *oldGen) endSweep(h *Heap) {
	og.freeUnusedJumboSegments(h)

	// Only trimming can release more than was allocated at the start of the
	// collection; cap the reported swept bytes to keep the stats sane.
	if stats := h.ogStats; stats != nil {
		swept := og.sweep.sweptBytes
		if pre := stats.beforeAllocated; swept > pre {
			swept = pre
		}
		stats.setSweptBytes(swept)
		stats.setSweptExternalBytes(og.sweep.sweptExternalBytes)
	}

	// Adapt the target size so that the surviving bytes occupy the
	// configured fraction of the old generation.
	live := float64(og.totalAllocated() + og.externalBytes)
	desired := live / h.opts.OccupancyTarget
	maxOG := float64(h.maxHeapSize - heap.SegmentSize)
	minOG := float64(h.opts.MinHeapSize)
	og.targetSizeBytes = uint64(clampFloat(desired, minOG, maxOG))
}

// freeUnusedJumboSegments releases every jumbo segment whose single cell
// did not get marked.
func (og *oldGen) freeUnusedJumboSegments(h *Heap) {
	kept := og.jumbos[:0]
	keptSlots := og.jumboSlots[:0]
	for i, j := range og.jumbos {
		if j.IsMarked() {
			kept = append(kept, j)
			keptSlots = append(keptSlots, og.jumboSlots[i])
			continue
		}

		a := j.Cell()
		hdr := h.space.ReadHeader(a)
		if fin := cell.TableFor(hdr.Kind()).Finalize; fin != nil {
			fin(h.space, a)
		}
		h.tracker.Untrack(a)

		og.allocatedLargeBytes -= uint64(j.CellSize())
		slot := og.jumboSlots[i]
		h.removeSegmentExtent(strconv.Itoa(slot))
		h.segs.unregister(j.Base(), j.NumSlots())
		h.space.UnmapRegion(j.Base(), j.NumSlots())
		if err := h.provider.Release(j.Reservation()); err != nil {
			h.log.Errorw("Failed to release jumbo segment", "error", err)
		}
		og.slotPool.Release(slot)
	}
	og.jumbos = kept
	og.jumboSlots = keptSlots
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
