package errors

// BigIntError provides specialized error handling for BigInt digit operations.
// This structure extends the base error system with BigInt-specific context
// while properly supporting method chaining through all base error methods.
type BigIntError struct {
	*baseError

	// Describes what digit operation was being performed when the error
	// occurred (e.g., "InitWithBytes", "Parse", "UniqueEntry").
	operation string

	// Captures the capacity of the destination digit buffer, in digits.
	destDigits uint32

	// Captures the size of the input that did not fit, in bytes.
	inputBytes int
}

// NewBigIntError creates a new BigInt-specific error with the provided context.
// This constructor follows the same pattern as other error types in the system,
// taking a causing error, error code, and descriptive message.
func NewBigIntError(err error, code ErrorCode, msg string) *BigIntError {
	return &BigIntError{baseError: NewBaseError(err, code, msg)}
}

// WithMessage updates the error message while maintaining the BigIntError type.
func (be *BigIntError) WithMessage(msg string) *BigIntError {
	be.baseError.WithMessage(msg)
	return be
}

// WithDetail adds contextual information while maintaining the BigIntError type.
func (be *BigIntError) WithDetail(key string, value any) *BigIntError {
	be.baseError.WithDetail(key, value)
	return be
}

// WithOperation records which digit operation was being performed.
func (be *BigIntError) WithOperation(op string) *BigIntError {
	be.operation = op
	return be
}

// WithDestDigits captures the destination buffer capacity in digits.
func (be *BigIntError) WithDestDigits(n uint32) *BigIntError {
	be.destDigits = n
	return be
}

// WithInputBytes captures the input length in bytes.
func (be *BigIntError) WithInputBytes(n int) *BigIntError {
	be.inputBytes = n
	return be
}

// Operation returns the digit operation that was being performed.
func (be *BigIntError) Operation() string {
	return be.operation
}

// DestDigits returns the destination buffer capacity in digits.
func (be *BigIntError) DestDigits() uint32 {
	return be.destDigits
}

// InputBytes returns the input length in bytes.
func (be *BigIntError) InputBytes() int {
	return be.inputBytes
}
