package errors

// ErrorCode represents a standardized way to categorize different types of errors.
type ErrorCode string

// Base error codes represent the fundamental categories of failures that can
// occur across any software system. These codes provide the foundation layer
// of error classification.
const (
	// ErrorCodeInvalidInput represents caller-side errors where the provided
	// data doesn't meet the system's requirements or constraints. This covers
	// malformed BigInt literals, out-of-range configuration values, and other
	// problems with the request itself rather than system failures.
	ErrorCodeInvalidInput ErrorCode = "INVALID_INPUT"

	// ErrorCodeInternal represents unexpected system failures that don't fit
	// into other categories. These indicate bugs, assertion failures, or other
	// programming errors that shouldn't occur during normal operation.
	ErrorCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// Heap-specific error codes extend the base taxonomy to the failure modes of
// the heap manager: allocation pressure, segment exhaustion, and requests the
// segment model cannot represent.
const (
	// ErrorCodeOutOfMemory indicates that an allocation could not be satisfied
	// even after collecting. This is fatal unless the allocation site opted
	// into the MayFail mode, in which case the caller receives a null result
	// and is expected to raise a language-level RangeError.
	ErrorCodeOutOfMemory ErrorCode = "OUT_OF_MEMORY"

	// ErrorCodeStorageExhausted indicates that the storage provider could not
	// reserve a new segment-sized region of memory. It is surfaced to callers
	// as an OutOfMemory condition, but keeping a distinct code preserves the
	// distinction between "heap limit reached" and "provider failed" in logs
	// and crash reports.
	ErrorCodeStorageExhausted ErrorCode = "STORAGE_EXHAUSTED"

	// ErrorCodeSuperSegmentAlloc indicates a requested allocation exceeds a
	// single segment and is also not eligible for large allocation. This is
	// always a VM bug, never a recoverable runtime condition.
	ErrorCodeSuperSegmentAlloc ErrorCode = "SUPER_SEGMENT_ALLOC"
)

// BigInt-specific error codes cover the typed results of digit-buffer
// operations. They are propagated to the caller rather than treated as
// fatal conditions.
const (
	// ErrorCodeDestTooSmall indicates a BigInt import was handed a digit
	// buffer with fewer bytes than the input byte sequence requires.
	ErrorCodeDestTooSmall ErrorCode = "DEST_TOO_SMALL"

	// ErrorCodeTooManyDigits indicates a BigInt operation would require more
	// digits than the configured per-value maximum.
	ErrorCodeTooManyDigits ErrorCode = "TOO_MANY_DIGITS"
)
