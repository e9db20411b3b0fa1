package errors

// HeapError is a specialized error type for heap-management operations.
// It embeds baseError to inherit all the standard error functionality, then adds
// heap-specific fields that help pinpoint exactly where allocation or segment
// management failed.
type HeapError struct {
	*baseError
	segmentIndex  int    // Which segment slot was being accessed when the error occurred.
	requestedSize uint64 // Allocation size that triggered the failure, in bytes.
	heapSize      uint64 // Heap footprint at the time of the failure, in bytes.
	maxHeapSize   uint64 // Configured heap ceiling, in bytes.
}

// NewHeapError creates a new heap-specific error.
func NewHeapError(err error, code ErrorCode, msg string) *HeapError {
	return &HeapError{baseError: NewBaseError(err, code, msg)}
}

// NewOutOfMemory builds the canonical allocation-failure error. Allocation
// sites that did not opt into MayFail treat this as fatal.
func NewOutOfMemory(requested, heapSize, maxHeapSize uint64) *HeapError {
	return NewHeapError(nil, ErrorCodeOutOfMemory, "Allocation failed: heap is out of memory").
		WithRequestedSize(requested).
		WithHeapSize(heapSize).
		WithMaxHeapSize(maxHeapSize)
}

// WithSegmentIndex sets which heap segment was involved in the error.
func (he *HeapError) WithSegmentIndex(idx int) *HeapError {
	he.segmentIndex = idx
	return he
}

// WithRequestedSize records the allocation size that could not be satisfied.
func (he *HeapError) WithRequestedSize(size uint64) *HeapError {
	he.requestedSize = size
	return he
}

// WithHeapSize records the heap footprint at the time of the failure.
func (he *HeapError) WithHeapSize(size uint64) *HeapError {
	he.heapSize = size
	return he
}

// WithMaxHeapSize records the configured heap ceiling.
func (he *HeapError) WithMaxHeapSize(size uint64) *HeapError {
	he.maxHeapSize = size
	return he
}

// WithDetail adds contextual information while maintaining the HeapError type.
func (he *HeapError) WithDetail(key string, value any) *HeapError {
	he.baseError.WithDetail(key, value)
	return he
}

// SegmentIndex returns the segment slot where the error occurred.
func (he *HeapError) SegmentIndex() int {
	return he.segmentIndex
}

// RequestedSize returns the allocation size that triggered the failure.
// Combined with HeapSize and MaxHeapSize, this tells you whether the failure
// was caused by fragmentation or by genuine heap exhaustion.
func (he *HeapError) RequestedSize() uint64 {
	return he.requestedSize
}

// HeapSize returns the heap footprint at the time of the failure.
func (he *HeapError) HeapSize() uint64 {
	return he.heapSize
}

// MaxHeapSize returns the configured heap ceiling.
func (he *HeapError) MaxHeapSize() uint64 {
	return he.maxHeapSize
}
