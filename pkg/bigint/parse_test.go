package bigint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHexWithSignFails(t *testing.T) {
	_, err := GetStringIntegerLiteralDigitsAndSign("  -0x10  ")
	assert.Error(t, err)

	_, err = GetStringIntegerLiteralDigitsAndSign("+0b101")
	assert.Error(t, err)
}

func TestParseHex(t *testing.T) {
	lit, err := GetStringIntegerLiteralDigitsAndSign("   0X1bde    ")
	require.NoError(t, err)
	assert.Equal(t, "1bde", lit.Digits)
	assert.Equal(t, uint8(16), lit.Radix)
	assert.Equal(t, SignNone, lit.Sign)
}

func TestParseSignedDecimal(t *testing.T) {
	lit, err := GetStringIntegerLiteralDigitsAndSign("+1")
	require.NoError(t, err)
	assert.Equal(t, "1", lit.Digits)
	assert.Equal(t, uint8(10), lit.Radix)
	assert.Equal(t, SignPlus, lit.Sign)

	lit, err = GetStringIntegerLiteralDigitsAndSign("-987654321")
	require.NoError(t, err)
	assert.Equal(t, "987654321", lit.Digits)
	assert.Equal(t, uint8(10), lit.Radix)
	assert.Equal(t, SignMinus, lit.Sign)
}

func TestParseLeadingZerosBeforePrefixFails(t *testing.T) {
	_, err := GetStringIntegerLiteralDigitsAndSign("00x1")
	assert.Error(t, err)
}

func TestParseEmptyIsZero(t *testing.T) {
	for _, src := range []string{"", "    ", "\t\n"} {
		lit, err := GetStringIntegerLiteralDigitsAndSign(src)
		require.NoError(t, err, "%q", src)
		assert.Equal(t, "0", lit.Digits)
		assert.Equal(t, uint8(10), lit.Radix)
		assert.Equal(t, SignNone, lit.Sign)
	}
}

func TestParseMalformed(t *testing.T) {
	for _, src := range []string{
		"+",    // sign only
		"-",    // sign only
		"0x",   // prefix only
		"0b",   // prefix only
		"12n",  // BigInt suffix is not part of the grammar
		"0xg1", // digit outside the radix
		"0b12", // digit outside the radix
		"12a",  // digit outside radix 10
		"1 2",  // interior whitespace
	} {
		_, err := GetStringIntegerLiteralDigitsAndSign(src)
		assert.Error(t, err, "%q must fail", src)
	}
}

func TestParseRadixPrefixes(t *testing.T) {
	cases := map[string]uint8{
		"0x10": 16, "0X10": 16,
		"0o17": 8, "0O17": 8,
		"0b11": 2, "0B11": 2,
		"0100": 10, // leading zeros are legal in decimal
	}
	for src, radix := range cases {
		lit, err := GetStringIntegerLiteralDigitsAndSign(src)
		require.NoError(t, err, "%q", src)
		assert.Equal(t, radix, lit.Radix, "%q", src)
	}
}

func TestFromStringIntegerLiteralValues(t *testing.T) {
	cases := map[string][]byte{
		"0":      {},
		"255":    {0xFF, 0x00},
		"-1":     {0xFF},
		"0x10":   {0x10},
		"0b1111": {0x0F},
		"-256":   {0x00, 0xFF},
		"65536":  {0x00, 0x00, 0x01},
	}
	for src, want := range cases {
		parsed, err := FromStringIntegerLiteral(src)
		require.NoError(t, err, "%q", src)
		assert.Equal(t, want, parsed.Bytes(), "%q", src)
	}
}

func TestFromStringIntegerLiteralLarge(t *testing.T) {
	// 2^64 needs a second limb.
	parsed, err := FromStringIntegerLiteral("18446744073709551616")
	require.NoError(t, err)

	buf := make([]Digit, 4)
	digits, err := InitWithBytes(buf, parsed.Bytes())
	require.NoError(t, err)
	require.Len(t, digits, 2)
	assert.Equal(t, Digit(0), digits[0])
	assert.Equal(t, Digit(1), digits[1])
}
