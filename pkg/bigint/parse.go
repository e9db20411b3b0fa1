package bigint

import (
	"math/bits"
	"strings"
	"unicode"

	"github.com/facebook/hermes-sub002/pkg/errors"
)

// ParsedSign records which sign, if any, a StringIntegerLiteral carried.
type ParsedSign int

const (
	SignMinus ParsedSign = -1
	SignNone  ParsedSign = 0
	SignPlus  ParsedSign = 1
)

// LiteralDigits is the result of a successful StringIntegerLiteral parse:
// the digit characters with any prefix and sign stripped, the radix the
// digits are in, and the parsed sign.
type LiteralDigits struct {
	Digits string
	Radix  uint8
	Sign   ParsedSign
}

// isLiteralSpace matches the WhiteSpace and LineTerminator productions that
// may surround a StringIntegerLiteral.
func isLiteralSpace(r rune) bool {
	switch r {
	case '\t', '\n', '\v', '\f', '\r', ' ', 0x00A0, 0x2028, 0x2029, 0xFEFF:
		return true
	}
	return unicode.IsSpace(r)
}

func radixForPrefix(c byte) uint8 {
	switch c {
	case 'x', 'X':
		return 16
	case 'o', 'O':
		return 8
	case 'b', 'B':
		return 2
	}
	return 0
}

func digitValue(c byte) (uint8, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'z':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'Z':
		return c - 'A' + 10, true
	}
	return 0, false
}

func formatError(src string, issue string) error {
	return errors.NewFieldFormatError("stringIntegerLiteral", src, issue)
}

// GetStringIntegerLiteralDigitsAndSign parses src as a StringIntegerLiteral
// (https://tc39.es/ecma262/#sec-stringintegerliteral-grammar).
//
// Surrounding whitespace is trimmed. A leading + or - is only legal on a
// decimal literal; the 0x/0X, 0o/0O, and 0b/0B prefixes select radix 16, 8,
// and 2 and forbid both a sign and leading zeros before the prefix. A
// trailing BigInt suffix "n" is not part of this grammar and fails. The
// empty (fully trimmed) input parses as the decimal digits "0".
func GetStringIntegerLiteralDigitsAndSign(src string) (LiteralDigits, error) {
	s := strings.TrimFunc(src, isLiteralSpace)

	// The empty string is the zero literal.
	if s == "" {
		return LiteralDigits{Digits: "0", Radix: 10, Sign: SignNone}, nil
	}

	sign := SignNone
	rest := s
	switch s[0] {
	case '+':
		sign = SignPlus
		rest = s[1:]
	case '-':
		sign = SignMinus
		rest = s[1:]
	}

	if rest == "" {
		return LiteralDigits{}, formatError(src, "a sign must be followed by digits")
	}

	radix := uint8(10)
	if rest[0] == '0' && len(rest) > 1 {
		if r := radixForPrefix(rest[1]); r != 0 {
			// Signs never combine with a radix prefix, and a prefix must be
			// the first thing in the literal ("00x1" is not a hex literal
			// with a leading zero, it is a parse error).
			if sign != SignNone {
				return LiteralDigits{}, formatError(src, "non-decimal literals cannot have a sign")
			}
			radix = r
			rest = rest[2:]
			if rest == "" {
				return LiteralDigits{}, formatError(src, "a radix prefix must be followed by digits")
			}
		}
	}

	for i := 0; i < len(rest); i++ {
		v, ok := digitValue(rest[i])
		if !ok || v >= radix {
			if rest[i] == 'n' && i == len(rest)-1 {
				return LiteralDigits{}, formatError(src, "the BigInt suffix is not part of the literal grammar")
			}
			return LiteralDigits{}, formatError(src, "invalid digit for the literal's radix")
		}
	}

	return LiteralDigits{Digits: rest, Radix: radix, Sign: sign}, nil
}

// ParsedBigInt holds the little-endian two's-complement bytes of a parsed
// BigInt literal.
type ParsedBigInt struct {
	storage []byte
}

// FromStringIntegerLiteral parses src and evaluates the digits into a byte
// representation ready for InitWithBytes.
func FromStringIntegerLiteral(src string) (*ParsedBigInt, error) {
	lit, err := GetStringIntegerLiteralDigitsAndSign(src)
	if err != nil {
		return nil, err
	}

	// Accumulate digit characters into 64-bit limbs: multiply the running
	// value by the radix and add each digit, carrying manually.
	limbs := []Digit{0}
	for i := 0; i < len(lit.Digits); i++ {
		v, _ := digitValue(lit.Digits[i])
		carry := uint64(v)
		for j := range limbs {
			hi, lo := bits.Mul64(limbs[j], uint64(lit.Radix))
			lo, c := bits.Add64(lo, carry, 0)
			limbs[j] = lo
			carry = hi + c
		}
		if carry != 0 {
			limbs = append(limbs, carry)
		}
	}

	// The magnitude is unsigned so far. Two's complement needs one spare
	// sign bit; grow by a limb when the top bit is occupied.
	if limbs[len(limbs)-1]>>63 != 0 {
		limbs = append(limbs, 0)
	}

	if lit.Sign == SignMinus {
		var carry uint64 = 1
		for j := range limbs {
			limbs[j], carry = bits.Add64(^limbs[j], 0, carry)
		}
	}

	if TooManyDigits(uint32(len(limbs))) {
		return nil, errors.NewBigIntError(
			nil, errors.ErrorCodeTooManyDigits, "BigInt literal exceeds the digit limit",
		).WithOperation("FromStringIntegerLiteral").WithInputBytes(len(src))
	}

	return &ParsedBigInt{storage: Bytes(Canonicalize(limbs))}, nil
}

// Bytes returns the compact little-endian representation: every most
// significant byte that sign extension reconstructs has been dropped.
func (p *ParsedBigInt) Bytes() []byte {
	return p.storage
}

