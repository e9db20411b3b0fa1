// Package bigint implements the digit-level representation of BigInt values:
// 64-bit little-endian two's-complement digit sequences, canonicalisation,
// byte-sequence import, StringIntegerLiteral parsing, and the uniquing table
// used when digit blobs are exported into a flat byte buffer.
//
// The canonical form of a digit sequence drops every trailing digit that can
// be reconstructed by sign-extending the digit before it: zero is the empty
// sequence, and minus one is the single digit 0xFFFFFFFFFFFFFFFF.
package bigint

import (
	"encoding/binary"

	"github.com/facebook/hermes-sub002/pkg/errors"
)

// Digit is one 64-bit limb of a BigInt value.
type Digit = uint64

const (
	// DigitSizeInBytes is the byte width of one digit.
	DigitSizeInBytes = 8

	// DigitSizeInBits is the bit width of one digit.
	DigitSizeInBits = DigitSizeInBytes * 8

	// MaxSizeInDigits is an arbitrary upper limit on the number of digits a
	// BigInt may have: 1k digits is 8k bytes.
	MaxSizeInDigits = 0x400
)

// TooManyDigits reports whether a BigInt of numDigits digits exceeds the
// per-value limit. Callers check this before sizing a digit buffer.
func TooManyDigits(numDigits uint32) bool {
	return numDigits > MaxSizeInDigits
}

// NumDigitsForSizeInBytes returns the number of digits needed to hold n bytes.
func NumDigitsForSizeInBytes(n int) uint32 {
	return uint32((n + DigitSizeInBytes - 1) / DigitSizeInBytes)
}

// SignExtValue returns the byte that sign extension of b produces: 0x00 when
// the sign bit of b is clear and 0xFF when it is set.
func SignExtValue(b byte) byte {
	return byte(0 - (b >> 7))
}

// SignExtDigit returns the digit that sign extension of d produces.
func SignExtDigit(d Digit) Digit {
	return 0 - (d >> 63)
}

// DropExtraSignBits returns a view of src with every high-order byte that is
// just sign extension removed. An all-zero src yields an empty view; an
// all-0xFF src yields a single 0xFF byte.
func DropExtraSignBits(src []byte) []byte {
	if len(src) == 0 {
		return src
	}

	drop := SignExtValue(src[len(src)-1])

	// Walk backwards dropping every most-significant byte equal to the sign
	// extension. For example {0xff, 0x00, 0x00, 0x00} (little-endian 255)
	// shrinks to {0xff, 0x00}: the two high zero bytes are implied, but one
	// zero byte must stay so the value remains positive.
	prev := src
	for len(src) > 0 && src[len(src)-1] == drop {
		prev = src
		src = src[:len(src)-1]
	}

	// The last dropped byte must be restored when the new top byte's sign
	// does not reproduce the dropped value, otherwise the truncation would
	// flip the sign.
	var last byte
	if len(src) > 0 {
		last = src[len(src)-1]
	}
	if SignExtValue(last) == drop {
		return src
	}
	return prev
}

// Canonicalize trims trailing digits of d that are implied by sign extension
// of the preceding digit, returning the canonical prefix. It is idempotent.
func Canonicalize(d []Digit) []Digit {
	buf := make([]byte, len(d)*DigitSizeInBytes)
	for i, digit := range d {
		binary.LittleEndian.PutUint64(buf[i*DigitSizeInBytes:], digit)
	}
	compact := DropExtraSignBits(buf)
	return d[:NumDigitsForSizeInBytes(len(compact))]
}

// InitWithBytes initializes dst from a little-endian two's-complement byte
// sequence: the bytes are copied to the low end, the remainder of dst is
// filled with the sign extension of the final input byte, and the result is
// canonicalised. The returned slice is the canonical prefix of dst; it is
// empty for a zero-length or all-zero input.
//
// A DEST_TOO_SMALL error is returned when data does not fit in dst, in which
// case the returned slice is empty.
func InitWithBytes(dst []Digit, data []byte) ([]Digit, error) {
	dstSizeInBytes := len(dst) * DigitSizeInBytes

	if dstSizeInBytes < len(data) {
		return dst[:0], errors.NewBigIntError(
			nil, errors.ErrorCodeDestTooSmall, "BigInt byte sequence does not fit the digit buffer",
		).WithOperation("InitWithBytes").
			WithDestDigits(uint32(len(dst))).
			WithInputBytes(len(data))
	}

	if len(data) == 0 {
		// Nothing to copy; the canonical form of zero is the empty sequence.
		return dst[:0], nil
	}

	// Copy the bytes and sign-extend the rest. Staging through a byte buffer
	// keeps the digit store free of partial-digit special cases.
	buf := make([]byte, dstSizeInBytes)
	copy(buf, data)
	signExt := SignExtValue(data[len(data)-1])
	for i := len(data); i < dstSizeInBytes; i++ {
		buf[i] = signExt
	}

	for i := range dst {
		dst[i] = binary.LittleEndian.Uint64(buf[i*DigitSizeInBytes:])
	}

	return Canonicalize(dst), nil
}

// IsNegative reports whether the canonical digit sequence src represents a
// negative value. The empty sequence is zero and therefore non-negative.
func IsNegative(src []Digit) bool {
	if len(src) == 0 {
		return false
	}
	return src[len(src)-1]>>63 != 0
}

// Bytes lays the digit sequence out little-endian and drops the bytes that
// sign extension reconstructs. This is the form digit blobs take in the
// uniquing table and in exported bytecode.
func Bytes(src []Digit) []byte {
	buf := make([]byte, len(src)*DigitSizeInBytes)
	for i, digit := range src {
		binary.LittleEndian.PutUint64(buf[i*DigitSizeInBytes:], digit)
	}
	return DropExtraSignBits(buf)
}
