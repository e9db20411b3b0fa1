package bigint

import (
	"testing"

	"github.com/facebook/hermes-sub002/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignExtValue(t *testing.T) {
	assert.Equal(t, byte(0x00), SignExtValue(0x7F))
	assert.Equal(t, byte(0x00), SignExtValue(0x00))
	assert.Equal(t, byte(0xFF), SignExtValue(0x80))
	assert.Equal(t, byte(0xFF), SignExtValue(0xFF))
}

func TestDropExtraSignBits(t *testing.T) {
	// Zero collapses to the empty sequence.
	assert.Empty(t, DropExtraSignBits([]byte{0x00, 0x00, 0x00}))
	assert.Empty(t, DropExtraSignBits(nil))

	// Minus one collapses to a single 0xFF byte.
	assert.Equal(t, []byte{0xFF}, DropExtraSignBits([]byte{0xFF, 0xFF, 0xFF}))

	// 255 needs a zero byte to stay positive.
	assert.Equal(t, []byte{0xFF, 0x00}, DropExtraSignBits([]byte{0xFF, 0x00, 0x00, 0x00}))

	// Already-compact sequences are unchanged.
	assert.Equal(t, []byte{0x12, 0x34}, DropExtraSignBits([]byte{0x12, 0x34}))

	// A negative value whose top kept byte already has the sign bit set
	// drops every 0xFF byte.
	assert.Equal(t, []byte{0x00, 0x80}, DropExtraSignBits([]byte{0x00, 0x80, 0xFF, 0xFF}))
}

func TestInitWithBytesMinusOne(t *testing.T) {
	buf := make([]Digit, 2)
	digits, err := InitWithBytes(buf, []byte{0xFF, 0xFF, 0xFF, 0xFF})
	require.NoError(t, err)
	// Sign extension makes the full digit 0xFF..FF, and canonicalisation
	// keeps exactly one digit of it.
	require.Len(t, digits, 1)
	assert.Equal(t, Digit(0xFFFFFFFFFFFFFFFF), digits[0])
	assert.True(t, IsNegative(digits))
}

func TestInitWithBytesNegativeHighBit(t *testing.T) {
	buf := make([]Digit, 2)
	digits, err := InitWithBytes(buf, []byte{0x00, 0x80})
	require.NoError(t, err)
	// 0x8000 is negative as a 2-byte value, so the sign extension fills
	// the rest with 0xFF; the canonical form needs both digits? No: the
	// input's top byte is 0x80, sign-extends to 0xFF, producing the single
	// negative digit 0xFFFFFFFFFFFF8000.
	require.Len(t, digits, 1)
	assert.Equal(t, Digit(0xFFFFFFFFFFFF8000), digits[0])
	assert.True(t, IsNegative(digits))
}

func TestInitWithBytesNineByteNegative(t *testing.T) {
	// Nine bytes whose ninth is 0x80: the value needs two digits, the high
	// one being 0x0000000000000080 sign-extended... 0x80 sign extends
	// negative, so digit one is 0xFFFFFFFFFFFFFF80.
	buf := make([]Digit, 2)
	digits, err := InitWithBytes(buf, []byte{0, 0, 0, 0, 0, 0, 0, 0, 0x80})
	require.NoError(t, err)
	require.Len(t, digits, 2)
	assert.Equal(t, Digit(0), digits[0])
	assert.Equal(t, Digit(0xFFFFFFFFFFFFFF80), digits[1])
}

func TestInitWithBytesTwoDigitPositive(t *testing.T) {
	// A positive value whose magnitude occupies bit 71: the explicit zero
	// byte after 0x80 keeps it positive, and the canonical form needs a
	// full second digit of 0x0000000000000080.
	buf := make([]Digit, 2)
	digits, err := InitWithBytes(buf, []byte{0, 0, 0, 0, 0, 0, 0, 0, 0x80, 0x00})
	require.NoError(t, err)
	require.Len(t, digits, 2)
	assert.Equal(t, Digit(0), digits[0])
	assert.Equal(t, Digit(0x0000000000000080), digits[1])
	assert.False(t, IsNegative(digits))
}

func TestInitWithBytesZero(t *testing.T) {
	buf := make([]Digit, 4)

	digits, err := InitWithBytes(buf, nil)
	require.NoError(t, err)
	assert.Empty(t, digits)

	digits, err = InitWithBytes(buf, []byte{0, 0, 0})
	require.NoError(t, err)
	assert.Empty(t, digits)
	assert.False(t, IsNegative(digits))
}

func TestInitWithBytesDestTooSmall(t *testing.T) {
	buf := make([]Digit, 1)
	digits, err := InitWithBytes(buf, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9})
	require.Error(t, err)
	assert.Empty(t, digits)

	be, ok := errors.AsBigIntError(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrorCodeDestTooSmall, be.Code())
	assert.Equal(t, 9, be.InputBytes())
}

func TestCanonicalizeIdempotent(t *testing.T) {
	cases := [][]Digit{
		{},
		{0},
		{0xFFFFFFFFFFFFFFFF},
		{1, 0},
		{0xFFFFFFFFFFFFFFFF, 0xFFFFFFFFFFFFFFFF},
		{0x8000000000000000, 0},
		{1, 2, 3},
	}
	for _, d := range cases {
		once := Canonicalize(append([]Digit{}, d...))
		twice := Canonicalize(append([]Digit{}, once...))
		assert.Equal(t, once, twice, "canonicalisation must be idempotent for %#v", d)
	}
}

func TestCanonicalizeDropsSignExtension(t *testing.T) {
	// Trailing zero digits after a positive digit are redundant.
	assert.Len(t, Canonicalize([]Digit{5, 0, 0}), 1)
	// A negative digit followed by all-ones digits is redundant.
	assert.Len(t, Canonicalize([]Digit{0xFFFFFFFFFFFFFFFF, 0xFFFFFFFFFFFFFFFF}), 1)
	// But a positive digit with the high bit set needs its zero digit.
	assert.Len(t, Canonicalize([]Digit{0x8000000000000000, 0}), 2)
}

func TestBytesRoundTrip(t *testing.T) {
	src := []Digit{0x0123456789ABCDEF, 0x7F}
	blob := Bytes(src)

	buf := make([]Digit, 4)
	digits, err := InitWithBytes(buf, blob)
	require.NoError(t, err)
	assert.Equal(t, Canonicalize(src), digits)
}

func TestTooManyDigits(t *testing.T) {
	assert.False(t, TooManyDigits(MaxSizeInDigits))
	assert.True(t, TooManyDigits(MaxSizeInDigits+1))
}
