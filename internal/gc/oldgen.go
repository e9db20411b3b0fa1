package gc

import (
	"math/bits"
	"strconv"

	"github.com/facebook/hermes-sub002/internal/cell"
	"github.com/facebook/hermes-sub002/internal/heap"
	"github.com/facebook/hermes-sub002/pkg/seginfo"
	"github.com/facebook/hermes-sub002/pkg/value"
)

// Freelist geometry: 32 small buckets covering one alignment step each, and
// one power-of-two bucket per size class from 256 bytes up to a full
// segment.
const (
	logNumSmallBuckets = 5
	numSmallBuckets    = 1 << logNumSmallBuckets
	logMinLargeSize    = logNumSmallBuckets + heap.LogHeapAlign
	minLargeSize       = 1 << logMinLargeSize
	numLargeBuckets    = heap.LogSegmentSize - logMinLargeSize + 1
	numBuckets         = numSmallBuckets + numLargeBuckets
)

// getFreelistBucket maps an allocation size to its bucket. Small sizes get
// an exact-fit bucket; larger sizes share a power-of-two bucket.
func getFreelistBucket(size uint32) int {
	if size < minLargeSize {
		return int(size >> heap.LogHeapAlign)
	}
	return numSmallBuckets + (31 - bits.LeadingZeros32(size)) - logMinLargeSize
}

// segmentBucket is one node of the freelist index: the head of the
// free-cells-of-this-bucket-in-this-segment list, linked into a global
// doubly-linked list per bucket whose dummy head gives O(1) access to the
// first segment with free cells of that size.
type segmentBucket struct {
	prev, next *segmentBucket

	// head is the first freelist cell of this (segment, bucket) pair.
	head value.CompressedPointer

	// row is the owning segment's full bucket array; nil for dummy heads.
	// Keeping it here lets a carve move the remainder to a sibling bucket
	// without a segment lookup.
	row []segmentBucket
}

// addToFreelist links the node in right after the bucket's dummy head.
func (b *segmentBucket) addToFreelist(dummy *segmentBucket) {
	b.next = dummy.next
	b.prev = dummy
	if dummy.next != nil {
		dummy.next.prev = b
	}
	dummy.next = b
}

// removeFromFreelist unlinks the node.
func (b *segmentBucket) removeFromFreelist() {
	b.prev.next = b.next
	if b.next != nil {
		b.next.prev = b.prev
	}
	b.prev, b.next = nil, nil
}

// sweepIterator walks segments back to front across incremental sweep
// steps.
type sweepIterator struct {
	segNumber          int
	sweptBytes         uint64
	sweptExternalBytes uint64
	trimmedBytes       uint64
}

// oldGen is the mature generation: an ordered list of unit segments with
// per-segment freelists, plus the jumbo segments holding oversized cells.
// All state is guarded by the GC mutex.
type oldGen struct {
	segments   []*heap.Segment
	segSlots   []int
	segBuckets [][]segmentBucket

	// buckets holds the dummy heads of the global per-bucket segment lists.
	buckets [numBuckets]segmentBucket

	// bucketBits flags which buckets have any free cell heap-wide; bit b
	// mirrors buckets[b].next != nil.
	bucketBits uint64

	jumbos     []*heap.JumboSegment
	jumboSlots []int

	slotPool seginfo.IndexPool

	// allocatedBytes counts live-or-not-yet-swept cell bytes in unit
	// segments; freelist cells are excluded.
	allocatedBytes uint64

	// allocatedLargeBytes counts bytes in jumbo cells.
	allocatedLargeBytes uint64

	// externalBytes is the external-memory charge credited to old cells.
	externalBytes uint64

	// targetSizeBytes is the adaptive size target the collection threshold
	// is computed against.
	targetSizeBytes uint64

	sweep sweepIterator
}

func (og *oldGen) setBucketBit(bucket int) {
	if og.buckets[bucket].next != nil {
		og.bucketBits |= 1 << uint(bucket)
	} else {
		og.bucketBits &^= 1 << uint(bucket)
	}
}

func (og *oldGen) findNextSetBucket(from int) int {
	rest := og.bucketBits >> uint(from)
	if rest == 0 {
		return numBuckets
	}
	return from + bits.TrailingZeros64(rest)
}

// size returns the total byte capacity of the old generation's unit
// segments.
func (og *oldGen) size() uint64 {
	return uint64(len(og.segments)) * heap.SegmentSize
}

func (og *oldGen) creditExternal(size uint64) {
	og.externalBytes += size
}

func (og *oldGen) debitExternal(size uint64) {
	og.externalBytes -= size
}

// addSegment appends seg to the old generation, builds its freelist bucket
// row, and turns its unallocated remainder into one freelist cell. Promoted
// young segments arrive partially full; fresh segments arrive empty.
func (og *oldGen) addSegment(h *Heap, seg *heap.Segment) {
	og.segments = append(og.segments, seg)
	slot := og.slotPool.Acquire()
	og.segSlots = append(og.segSlots, slot)
	og.segBuckets = append(og.segBuckets, make([]segmentBucket, numBuckets))

	row := og.segBuckets[len(og.segBuckets)-1]
	for b := range row {
		row[b].row = row
	}

	og.allocatedBytes += seg.Used()

	// The segment must be resolvable through the slot table before any
	// freelist cell is written into it.
	h.segs.registerSegment(seg)

	// The remainder of the segment becomes one free span.
	if avail := seg.Available(); avail >= heap.MinCellSize {
		a, _ := seg.AllocRaw(uint32(avail))
		og.addCellToFreelist(h, a, uint32(avail), &row[getFreelistBucket(uint32(avail))])
	}

	seg.Reservation().SetName(seginfo.SegmentName(h.opts.Name, slot))
	h.publishSegmentExtent(seg, strconv.Itoa(slot))
}

// popSegment detaches the last segment (the compactee candidate) along with
// its freelist state, returning the segment and its crash-manager slot.
func (og *oldGen) popSegment() (*heap.Segment, int) {
	last := len(og.segments) - 1
	row := og.segBuckets[last]
	for b := range row {
		if !row[b].head.IsNull() {
			row[b].removeFromFreelist()
		}
	}
	for b := 0; b < numBuckets; b++ {
		og.setBucketBit(b)
	}

	seg := og.segments[last]
	slot := og.segSlots[last]
	og.segments = og.segments[:last]
	og.segSlots = og.segSlots[:last]
	og.segBuckets = og.segBuckets[:last]
	// allocatedBytes still counts the detached segment's cells; the
	// compactee finalizer subtracts them once evacuation decides which
	// cells were re-allocated elsewhere.
	return seg, slot
}

// addCellToFreelist overlays a freelist cell on [a, a+size) and links it at
// the head of the given segment bucket.
func (og *oldGen) addCellToFreelist(h *Heap, a heap.Address, size uint32, segBucket *segmentBucket) {
	fc := cell.InitFreelist(h.space, a, size, segBucket.head)
	h.segs.metaFor(a).seg.Cards().UpdateBoundaries(a, a+heap.Address(size))

	wasEmpty := segBucket.head.IsNull()
	segBucket.head = heap.Compress(fc.Addr)
	if wasEmpty {
		bucket := getFreelistBucket(size)
		segBucket.addToFreelist(&og.buckets[bucket])
		og.setBucketBit(bucket)
	}
}

// removeHeadFromFreelist pops the first cell of a segment bucket.
func (og *oldGen) removeHeadFromFreelist(h *Heap, bucket int, segBucket *segmentBucket) heap.Address {
	a := heap.Decompress(segBucket.head)
	og.unlinkFromFreelist(h, cell.FreelistCell{Addr: a}, nil, bucket, segBucket)
	return a
}

// unlinkFromFreelist removes fc from its chain. prev is the preceding
// freelist cell, or nil when fc is the bucket head.
func (og *oldGen) unlinkFromFreelist(h *Heap, fc cell.FreelistCell, prev *cell.FreelistCell, bucket int, segBucket *segmentBucket) {
	next := fc.Next(h.space)
	if prev == nil {
		segBucket.head = next
		if next.IsNull() {
			segBucket.removeFromFreelist()
			og.setBucketBit(bucket)
		}
	} else {
		prev.SetNext(h.space, next)
	}
}

// finishAlloc commits an old-generation allocation: the cell is born with
// its mark bit set so an in-flight collection never sweeps it, its card
// boundaries are recorded, and the accounting is updated.
func (og *oldGen) finishAlloc(h *Heap, a heap.Address, size uint32) heap.Address {
	h.setCellMarked(a)
	h.segs.metaFor(a).seg.Cards().UpdateBoundaries(a, a+heap.Address(size))
	og.allocatedBytes += uint64(size)
	return a
}

// search attempts to serve size bytes from the freelists: an exact-fit pop
// from a small bucket, else a first-fit walk that carves larger cells.
// Returns NullAddress when nothing fits. GC mutex held.
func (og *oldGen) search(h *Heap, size uint32) heap.Address {
	bucket := getFreelistBucket(size)
	if bucket < numSmallBuckets {
		// Fast path: a small bucket is an exact size match, take its head.
		if segBucket := og.buckets[bucket].next; segBucket != nil {
			a := og.removeHeadFromFreelist(h, bucket, segBucket)
			return og.finishAlloc(h, a, size)
		}
		// Start the first-fit search at the smallest bucket whose cells can
		// be carved into the allocation plus a minimum-sized remainder.
		bucket = getFreelistBucket(size + heap.MinCellSize)
	}

	for bucket = og.findNextSetBucket(bucket); bucket < numBuckets; bucket = og.findNextSetBucket(bucket + 1) {
		for segBucket := og.buckets[bucket].next; segBucket != nil; segBucket = segBucket.next {
			var prev *cell.FreelistCell
			cp := segBucket.head
			for !cp.IsNull() {
				fc := cell.FreelistCell{Addr: heap.Decompress(cp)}
				cellSize := fc.Size(h.space)

				if cellSize >= size+heap.MinCellSize {
					// Carve the tail; the shrunk cell may now belong in a
					// smaller bucket.
					carved := fc.CarveTail(h.space, size)
					newBucket := getFreelistBucket(fc.Size(h.space))
					if newBucket != bucket {
						og.unlinkFromFreelist(h, fc, prev, bucket, segBucket)
						og.addCellToFreelist(h, fc.Addr, fc.Size(h.space), &segBucket.row[newBucket])
					} else {
						// The shrunk span keeps its bucket; refresh its
						// boundaries for the new extent.
						h.segs.metaFor(fc.Addr).seg.Cards().UpdateBoundaries(
							fc.Addr, fc.Addr+heap.Address(fc.Size(h.space)),
						)
					}
					return og.finishAlloc(h, carved, size)
				}

				if cellSize == size {
					og.unlinkFromFreelist(h, fc, prev, bucket, segBucket)
					return og.finishAlloc(h, fc.Addr, size)
				}

				// Too small to carve without leaving a sub-minimum
				// remainder; keep looking.
				prevCell := fc
				prev = &prevCell
				cp = fc.Next(h.space)
			}
		}
	}
	return heap.NullAddress
}

// alloc serves an old-generation allocation, growing the heap by one unit
// segment when the freelists come up empty. GC mutex held. Never returns
// null: failure is a fatal OOM.
func (og *oldGen) alloc(h *Heap, size uint32) heap.Address {
	if a := og.search(h, size); a != heap.NullAddress {
		return a
	}

	// Nothing on the freelists; try to grow by a segment.
	if seg, err := h.createSegment(""); err == nil {
		og.addSegment(h, seg)
		if a := og.search(h, size); a != heap.NullAddress {
			return a
		}
	}

	// Growth failed. Retry the search in case an interleaved sweep step
	// freed space, then give up.
	if a := og.search(h, size); a != heap.NullAddress {
		return a
	}

	h.oom(size)
	return heap.NullAddress
}

// allocLarge serves a cell too big for any unit segment by dedicating a
// jumbo segment to it. With mayFail the caller receives NullAddress instead
// of a fatal OOM. GC mutex held.
func (og *oldGen) allocLarge(h *Heap, size uint32, mayFail bool) heap.Address {
	numSlots := heap.JumboSlots(size)
	regionSize := uint64(numSlots) << heap.LogSegmentSize

	if h.heapFootprint()+regionSize > h.maxHeapSize {
		if mayFail {
			return heap.NullAddress
		}
		h.oom(size)
	}

	slot := og.slotPool.Acquire()
	res, err := h.provider.Create(regionSize, seginfo.SegmentName(h.opts.Name, slot))
	if err != nil {
		og.slotPool.Release(slot)
		if mayFail {
			return heap.NullAddress
		}
		h.oomStorage(size, err)
	}

	base, err := h.space.MapRegion(res.Bytes(), numSlots)
	if err != nil {
		og.slotPool.Release(slot)
		if mayFail {
			return heap.NullAddress
		}
		h.oomStorage(size, err)
	}

	j := heap.NewJumboSegment(res, base, size)
	j.SetMarked(true)
	h.segs.registerJumbo(j)
	og.jumbos = append(og.jumbos, j)
	og.jumboSlots = append(og.jumboSlots, slot)
	og.allocatedLargeBytes += uint64(size)
	h.publishJumboExtent(j, strconv.Itoa(slot))
	return j.Cell()
}

// totalAllocated is the sum the collection threshold and tripwire compare
// against.
func (og *oldGen) totalAllocated() uint64 {
	return og.allocatedBytes + og.allocatedLargeBytes
}
