package cell

import (
	"github.com/facebook/hermes-sub002/internal/heap"
	"github.com/facebook/hermes-sub002/pkg/bigint"
)

// BigIntPrimitive is an immutable heap cell holding a canonical BigInt
// digit sequence.
//
// Layout:
//
//	0   header
//	8   numDigits (uint32)
//	12  (padding)
//	16  digits: numDigits * 8 bytes, little-endian
const (
	bigIntNumDigitsOffset = 8
	bigIntDigitsOffset    = 16
)

// BigIntAllocSize returns the allocation size for a digit count.
func BigIntAllocSize(numDigits uint32) uint32 {
	return heap.AlignUp(bigIntDigitsOffset + numDigits*bigint.DigitSizeInBytes)
}

// BigIntPrimitive is an accessor over a BigInt cell.
type BigIntPrimitive struct {
	Addr heap.Address
}

// InitBigInt writes a BigInt cell at a holding the given canonical digits.
func InitBigInt(s *heap.Space, a heap.Address, allocSize uint32, digits []bigint.Digit) BigIntPrimitive {
	Init(s, a, KindBigInt, allocSize)
	s.WriteWord32(a+bigIntNumDigitsOffset, uint32(len(digits)))
	for i, d := range digits {
		s.WriteWord(a+bigIntDigitsOffset+heap.Address(i)*bigint.DigitSizeInBytes, d)
	}
	return BigIntPrimitive{Addr: a}
}

// NumDigits returns the digit count.
func (b BigIntPrimitive) NumDigits(s *heap.Space) uint32 {
	return s.ReadWord32(b.Addr + bigIntNumDigitsOffset)
}

// Digits copies the digit sequence out of the heap.
func (b BigIntPrimitive) Digits(s *heap.Space) []bigint.Digit {
	n := b.NumDigits(s)
	out := make([]bigint.Digit, n)
	for i := uint32(0); i < n; i++ {
		out[i] = s.ReadWord(b.Addr + bigIntDigitsOffset + heap.Address(i)*bigint.DigitSizeInBytes)
	}
	return out
}

// IsNegative reports the sign of the stored value.
func (b BigIntPrimitive) IsNegative(s *heap.Space) bool {
	n := b.NumDigits(s)
	if n == 0 {
		return false
	}
	top := s.ReadWord(b.Addr + bigIntDigitsOffset + heap.Address(n-1)*bigint.DigitSizeInBytes)
	return top>>63 != 0
}

func init() {
	Register(&VTable{
		Name: "bigint",
		Kind: KindBigInt,
		// Variable-sized, no outgoing references, nothing to finalize.
	})
}
