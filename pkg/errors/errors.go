// This package addresses the fundamental challenge that generic error handling presents in a
// heap manager: when something goes wrong, developers and operators need much more than just
// "allocation failed." They need to know what was being allocated, how large the heap was at
// the time, which segment was involved, and whether the failure is a recoverable condition or
// evidence of a VM bug.
//
// Architecture and Design Philosophy:
//
// The error system is built around a hierarchical structure that starts with a foundational
// baseError and extends into domain-specific error types. This design maintains consistency
// across all error types while allowing specialized context for different domains, enables
// rich error chaining that preserves the complete failure context, supports programmatic
// error handling through standardized error codes, and facilitates structured logging.
//
// Different parts of the heap manager fail in fundamentally different ways. An allocation
// failure needs to know the requested size and the heap ceiling. A BigInt import failure
// needs to know the destination buffer capacity and the input length. A configuration
// failure needs to know which field was out of range. By capturing this domain-specific
// context at the point of failure, the system enables much more intelligent error handling
// throughout the VM.
//
// Error Classification and Codes:
//
// Central to this system is an error code taxonomy that provides standardized categorization
// of failures. Base codes cover fundamental failure types: INVALID_INPUT for caller-side
// validation problems and INTERNAL_ERROR for unexpected system failures. Heap-specific codes
// handle the unique failure modes of memory management: OUT_OF_MEMORY for exhausted heaps,
// STORAGE_EXHAUSTED for provider failures, and SUPER_SEGMENT_ALLOC for requests no segment
// can hold. BigInt-specific codes (DEST_TOO_SMALL, TOO_MANY_DIGITS) are typed results that
// flow back to the caller rather than aborting the VM.
//
// Failure severity is part of the contract: OUT_OF_MEMORY is fatal unless the allocation
// site opted into the MayFail mode; SUPER_SEGMENT_ALLOC is always fatal because it indicates
// a VM bug; the BigInt codes are never fatal.
package errors

import (
	stdErrors "errors"
)

// IsValidationError checks if the given error is a ValidationError or contains one in its error chain.
//
// Example usage:
//
//	if errors.IsValidationError(err) {
//	    // Reject the configuration before the heap is constructed.
//	}
func IsValidationError(err error) bool {
	var ve *ValidationError
	return stdErrors.As(err, &ve)
}

// IsHeapError determines if an error is related to heap management, such as
// allocation failures, segment exhaustion, or oversized requests. Heap errors
// usually terminate the VM, so callers mostly use this to decide how much
// context to dump before aborting.
//
// Example usage:
//
//	if errors.IsHeapError(err) {
//	    heapErr, _ := errors.AsHeapError(err)
//	    switch heapErr.Code() {
//	    case ErrorCodeOutOfMemory:
//	        dumpHeapStatsAndAbort(heapErr)
//	    case ErrorCodeSuperSegmentAlloc:
//	        reportVMBug(heapErr)
//	    }
//	}
func IsHeapError(err error) bool {
	var he *HeapError
	return stdErrors.As(err, &he)
}

// IsOutOfMemory reports whether the error chain contains a heap error carrying
// the OUT_OF_MEMORY or STORAGE_EXHAUSTED code. Both conditions surface to the
// mutator the same way; the distinct codes only matter for diagnostics.
func IsOutOfMemory(err error) bool {
	if he, ok := AsHeapError(err); ok {
		return he.Code() == ErrorCodeOutOfMemory || he.Code() == ErrorCodeStorageExhausted
	}
	return false
}

// IsBigIntError identifies errors that occurred during BigInt digit operations
// such as imports, parses, or uniquing-table insertions. BigInt errors carry
// the typed result codes that callers convert into language-level exceptions.
//
// Example usage:
//
//	if errors.IsBigIntError(err) {
//	    bigintErr, _ := errors.AsBigIntError(err)
//	    if bigintErr.Code() == ErrorCodeTooManyDigits {
//	        raiseRangeError(bigintErr)
//	    }
//	}
func IsBigIntError(err error) bool {
	var be *BigIntError
	return stdErrors.As(err, &be)
}

// AsValidationError safely extracts a ValidationError from an error chain, providing access
// to validation-specific context such as which field failed, what rule was violated, and
// what values were provided versus expected.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if stdErrors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// AsHeapError extracts HeapError context from an error chain, providing access to
// heap-specific information such as segment indices, the requested allocation size,
// and the heap footprint and ceiling at the time of the failure. This context is what
// ends up in crash reports when an OOM aborts the VM.
func AsHeapError(err error) (*HeapError, bool) {
	var he *HeapError
	if stdErrors.As(err, &he) {
		return he, true
	}
	return nil, false
}

// AsBigIntError extracts BigIntError context, providing access to the operation being
// performed, the destination buffer capacity, and the input length.
func AsBigIntError(err error) (*BigIntError, bool) {
	var be *BigIntError
	if stdErrors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// GetErrorCode extracts the error code from any error that supports it, or returns
// ErrorCodeInternal for errors that don't have specific codes. This function provides
// a consistent way to categorize errors for logging and crash reporting.
//
// Example usage:
//
//	errorCode := errors.GetErrorCode(err)
//	log.Errorw("collection failed", "code", string(errorCode))
func GetErrorCode(err error) ErrorCode {
	// Try ValidationError first.
	if ve, ok := AsValidationError(err); ok {
		return ve.Code()
	}

	// Try HeapError next.
	if he, ok := AsHeapError(err); ok {
		return he.Code()
	}

	// Try BigIntError.
	if be, ok := AsBigIntError(err); ok {
		return be.Code()
	}

	// For any other error, return a generic internal error code.
	return ErrorCodeInternal
}

// GetErrorDetails extracts structured details from any error that supports them,
// returning an empty map for errors without details. This function provides consistent
// access to additional error context regardless of the specific error type.
//
// Example usage:
//
//	details := errors.GetErrorDetails(err)
//	if len(details) > 0 {
//	    log.Errorw("allocation failed", "error", err, "details", details)
//	}
func GetErrorDetails(err error) map[string]any {
	// Try ValidationError first.
	if ve, ok := AsValidationError(err); ok {
		if details := ve.Details(); details != nil {
			return details
		}
	}

	// Try HeapError next.
	if he, ok := AsHeapError(err); ok {
		if details := he.Details(); details != nil {
			return details
		}
	}

	// Try BigIntError.
	if be, ok := AsBigIntError(err); ok {
		if details := be.Details(); details != nil {
			return details
		}
	}

	// Return empty map for errors without details.
	return make(map[string]any)
}

// ClassifyStorageCreationError analyzes a storage-provider failure to reserve a
// segment-sized region and returns the appropriate heap error. Provider failures are
// distinct from hitting the configured heap ceiling: the former means the host could
// not supply memory, the latter that the GC refused to grow.
func ClassifyStorageCreationError(err error, size uint64, footprint uint64) error {
	return NewHeapError(
		err, ErrorCodeStorageExhausted, "Storage provider failed to reserve a heap segment",
	).WithRequestedSize(size).
		WithHeapSize(footprint).
		WithDetail("operation", "segment_creation").
		WithDetail("suggestion", "lower the configured max heap size or free host memory")
}
