package gc

import (
	"github.com/facebook/hermes-sub002/internal/cell"
	"github.com/facebook/hermes-sub002/internal/heap"
	"github.com/facebook/hermes-sub002/pkg/bigint"
	"github.com/facebook/hermes-sub002/pkg/errors"
	"github.com/facebook/hermes-sub002/pkg/value"
)

// Allocation entry points. The mutator-facing rule set:
//
//   - Ordinary cells bump-allocate in the young generation; the fast path
//     is a bounds check and an addition.
//   - Long-lived cells go straight to the old generation under the GC
//     mutex.
//   - Cells larger than a segment take the jumbo path, optionally in
//     MayFail mode where exhaustion returns null instead of aborting.
//
// The returned address carries an uninitialized header: the caller must
// run the cell package's Init function for the kind before the next
// allocation or collection point.

// NewCell allocates size bytes in the young generation for a cell of the
// given kind.
func (h *Heap) NewCell(kind cell.Kind, size uint32) heap.Address {
	size = heap.AlignUp(size)
	if size > heap.MaxNormalCellSize {
		h.superSegmentAlloc(size)
	}
	a := h.youngGenAlloc(size)
	if cell.TableFor(kind).Finalize != nil {
		// Finalizers of cells that die young run at the collection that
		// discards them.
		h.ygFinalizables = append(h.ygFinalizables, a)
	}
	return a
}

// NewLongLivedCell allocates directly in the old generation, for cells the
// caller knows will survive (runtime-lifetime tables, compiled code
// metadata).
func (h *Heap) NewLongLivedCell(kind cell.Kind, size uint32) heap.Address {
	size = heap.AlignUp(size)
	if size > heap.MaxNormalCellSize {
		h.superSegmentAlloc(size)
	}
	unpause := h.pauseBackgroundTask()
	defer unpause()
	return h.oldGen.alloc(h, size)
}

// NewCellCanBeLarge allocates a cell that may exceed the normal maximum.
// Oversized requests are served by a dedicated jumbo segment; with mayFail
// an unsatisfiable request returns NullAddress for the caller to turn into
// a range error.
func (h *Heap) NewCellCanBeLarge(kind cell.Kind, size uint32, mayFail bool) heap.Address {
	size = heap.AlignUp(size)
	if size <= heap.MaxNormalCellSize {
		return h.NewCell(kind, size)
	}
	unpause := h.pauseBackgroundTask()
	defer unpause()
	return h.oldGen.allocLarge(h, size, mayFail)
}

// NewCellPair allocates two cells in one bump step, so no collection can
// separate them. Both kinds must be non-finalizable and the total must fit
// in a young segment; the results always reside in the young generation.
func (h *Heap) NewCellPair(size1, size2 uint32) (heap.Address, heap.Address) {
	size1 = heap.AlignUp(size1)
	size2 = heap.AlignUp(size2)
	if uint64(size1)+uint64(size2) > heap.MaxNormalCellSize {
		h.superSegmentAlloc(size1 + size2)
	}
	return h.allocPairYoung(size1, size2)
}

// Space exposes raw heap memory to the cell accessors.
func (h *Heap) Space() *heap.Space {
	return h.space
}

// AllocBoxedDouble allocates the cell behind a non-inlineable number.
// Implements value.BoxedDoubleAllocator.
func (h *Heap) AllocBoxedDouble(d float64) value.CompressedPointer {
	a := h.NewCell(cell.KindBoxedDouble, cell.BoxedDoubleSize)
	cell.InitBoxedDouble(h.space, a, d)
	return heap.Compress(a)
}

// BoxedDouble reads a boxed double's payload. Implements
// value.BoxedDoubleReader.
func (h *Heap) BoxedDouble(p value.CompressedPointer) float64 {
	return cell.BoxedDoubleValue(h.space, heap.Decompress(p))
}

// AllocDummyObject allocates and initializes a test object.
func (h *Heap) AllocDummyObject() cell.DummyObject {
	a := h.NewCell(cell.KindDummyObject, cell.DummyObjectSize)
	return cell.InitDummyObject(h.space, a)
}

// AllocArrayStorage allocates an array cell with the given capacity, using
// the jumbo path when the capacity calls for it.
func (h *Heap) AllocArrayStorage(capacity uint32, mayFail bool) (cell.ArrayStorage, error) {
	size := cell.ArrayStorageAllocSize(capacity)
	if size <= heap.MaxNormalCellSize {
		a := h.NewCell(cell.KindArrayStorage, size)
		return cell.InitArrayStorage(h.space, a, heap.AlignUp(size), capacity), nil
	}

	a := h.NewCellCanBeLarge(cell.KindArrayStorage, size, mayFail)
	if a == heap.NullAddress {
		return cell.ArrayStorage{}, errors.NewOutOfMemory(
			uint64(size), h.heapFootprint(), h.maxHeapSize,
		)
	}
	return cell.InitLargeArrayStorage(h.space, a, capacity), nil
}

// AllocBigIntFromBytes imports a little-endian byte sequence into a heap
// BigInt cell, canonicalising on the way in.
func (h *Heap) AllocBigIntFromBytes(data []byte) (cell.BigIntPrimitive, error) {
	numDigits := bigint.NumDigitsForSizeInBytes(len(data))
	if bigint.TooManyDigits(numDigits) {
		return cell.BigIntPrimitive{}, errors.NewBigIntError(
			nil, errors.ErrorCodeTooManyDigits, "BigInt exceeds the digit limit",
		).WithOperation("AllocBigIntFromBytes").WithInputBytes(len(data))
	}

	buf := make([]bigint.Digit, numDigits)
	digits, err := bigint.InitWithBytes(buf, data)
	if err != nil {
		return cell.BigIntPrimitive{}, err
	}

	size := cell.BigIntAllocSize(uint32(len(digits)))
	a := h.NewCell(cell.KindBigInt, size)
	return cell.InitBigInt(h.space, a, size, digits), nil
}

// ObjectID returns the stable id of the cell at a.
func (h *Heap) ObjectID(a heap.Address) uint64 {
	return h.tracker.IDFor(a)
}

// ObjectForID resolves a stable id to the cell's current address.
func (h *Heap) ObjectForID(id uint64) (heap.Address, bool) {
	return h.tracker.ObjectForID(id)
}

// createSegment reserves and maps one unit segment, enforcing the heap
// ceiling.
func (h *Heap) createSegment(name string) (*heap.Segment, error) {
	if h.heapFootprint()+heap.SegmentSize > h.maxHeapSize {
		return nil, errors.NewOutOfMemory(
			heap.SegmentSize, h.heapFootprint(), h.maxHeapSize,
		)
	}

	res, err := h.provider.Create(heap.SegmentSize, name)
	if err != nil {
		return nil, err
	}
	base, err := h.space.MapRegion(res.Bytes(), 1)
	if err != nil {
		_ = h.provider.Release(res)
		return nil, err
	}
	return heap.NewSegment(res, base), nil
}

// oom aborts the VM: the allocation cannot be satisfied within the
// configured heap and the site did not opt into MayFail.
func (h *Heap) oom(size uint32) {
	err := errors.NewOutOfMemory(uint64(size), h.heapFootprint(), h.maxHeapSize)
	h.log.Errorw(
		"Heap out of memory",
		"requestedSize", size,
		"heapFootprint", h.heapFootprint(),
		"maxHeapSize", h.maxHeapSize,
	)
	h.crash.SetCustomData("HermesGCOOM", string(errors.GetErrorCode(err)))
	panic(err)
}

// oomStorage aborts the VM after a storage-provider failure.
func (h *Heap) oomStorage(size uint32, cause error) {
	h.log.Errorw(
		"Storage provider exhausted",
		"requestedSize", size,
		"error", cause,
	)
	h.crash.SetCustomData("HermesGCOOM", string(errors.ErrorCodeStorageExhausted))
	panic(cause)
}

// superSegmentAlloc aborts the VM: a request this large is a bug in the
// caller, not a runtime condition.
func (h *Heap) superSegmentAlloc(size uint32) {
	err := errors.NewHeapError(
		nil, errors.ErrorCodeSuperSegmentAlloc, "Allocation exceeds a heap segment",
	).WithRequestedSize(uint64(size))
	h.log.Errorw("Super-segment allocation requested", "requestedSize", size)
	panic(err)
}

// heapFootprint reports the bytes currently reserved from the host.
func (h *Heap) heapFootprint() uint64 {
	return h.provider.ReservedBytes()
}
