package value

import "fmt"

// SmallHermesValue is the 32-bit value representation used in heap cells. It
// is the size of a CompressedPointer and uses the low three bits, which heap
// alignment guarantees to be zero in any cell reference, as a type tag.
//
// Doubles cannot fit in 32 bits, so a double is stored either inline, when
// its 64-bit encoding survives truncation to the top 29 bits, or as a
// reference to a BoxedDouble cell allocated on the heap. Reading a boxed
// double decompresses transparently; encoding a non-inlineable double
// allocates, so every encode site must be treated as an allocation point.
type SmallHermesValue struct {
	raw uint32
}

// SHVTag is the 3-bit type tag of a SmallHermesValue.
type SHVTag uint8

const (
	// SHVTagCompressedHV64 marks an inline value: the top 29 bits of a
	// 64-bit HermesValue whose remaining low bits are all zero. This bucket
	// holds bool, null, undefined, empty, and compressible numbers. The tag
	// must be zero so that decompression is a single shift.
	SHVTagCompressedHV64 SHVTag = 0
	SHVTagString         SHVTag = 1
	SHVTagBigInt         SHVTag = 2
	SHVTagObject         SHVTag = 3
	SHVTagBoxedDouble    SHVTag = 4
	SHVTagSymbol         SHVTag = 5

	// SHVFirstPointerTag and SHVLastPointerTag bound the contiguous tags
	// whose payload is a cell reference.
	SHVFirstPointerTag = SHVTagString
	SHVLastPointerTag  = SHVTagBoxedDouble

	// NumSHVTagBits is the tag width; it must equal the log of the heap
	// alignment so that pointer payloads need no shifting.
	NumSHVTagBits = 3
	// NumSHVValueBits is the payload width.
	NumSHVValueBits = 32 - NumSHVTagBits
)

// BoxedDoubleReader resolves a BoxedDouble reference to its payload. The
// heap implements it; it is the only heap service a read needs.
type BoxedDoubleReader interface {
	BoxedDouble(p CompressedPointer) float64
}

// BoxedDoubleAllocator allocates a BoxedDouble cell holding d and returns a
// reference to it. Encoding a non-inlineable double is the single place the
// value representation can allocate.
type BoxedDoubleAllocator interface {
	BoxedDoubleReader
	AllocBoxedDouble(d float64) CompressedPointer
}

// SHVFromRaw reconstructs a SmallHermesValue from its raw bits.
func SHVFromRaw(raw uint32) SmallHermesValue {
	return SmallHermesValue{raw: raw}
}

// EncodeRawZeroSHV returns the all-zero value. It must never become visible
// to user code and is guaranteed to be ignored by the GC (it decodes as the
// inline HV64 zero, which is a double).
func EncodeRawZeroSHV() SmallHermesValue {
	return SmallHermesValue{}
}

// Raw returns the raw 32-bit encoding.
func (v SmallHermesValue) Raw() uint32 {
	return v.raw
}

// Tag returns the 3-bit type tag.
func (v SmallHermesValue) Tag() SHVTag {
	return SHVTag(v.raw & ((1 << NumSHVTagBits) - 1))
}

func shvFromTagAndValue(tag SHVTag, val uint32) SmallHermesValue {
	return SmallHermesValue{raw: val<<NumSHVTagBits | uint32(tag)}
}

func shvFromPointer(tag SHVTag, p CompressedPointer) SmallHermesValue {
	// Alignment keeps the low tag bits of a cell reference clear.
	return SmallHermesValue{raw: p.Raw() | uint32(tag)}
}

// CanInlineDouble reports whether d encodes inline, without boxing: its
// 64-bit form must have zeroes in every bit the truncation to 29 bits drops.
func CanInlineDouble(d float64) bool {
	return canCompressHV64(EncodeUntrustedDouble(d))
}

func canCompressHV64(hv HermesValue) bool {
	return hv.Raw()&((1<<(64-NumSHVValueBits))-1) == 0
}

func compressHV64(hv HermesValue) SmallHermesValue {
	// The CompressedHV64 tag is zero, so the shift alone produces the
	// tagged representation.
	return SmallHermesValue{raw: uint32(hv.Raw() >> (64 - NumSHVValueBits - NumSHVTagBits))}
}

func (v SmallHermesValue) decompressHV64() HermesValue {
	return FromRaw(uint64(v.raw>>NumSHVTagBits) << (64 - NumSHVValueBits))
}

// EncodeHermesValue compresses a 64-bit value into the heap representation.
// The result round-trips losslessly under UnboxToHV. Pointer, symbol, and
// compressible inputs never allocate; a non-inlineable number allocates a
// BoxedDouble through rt.
func EncodeHermesValue(hv HermesValue, rt BoxedDoubleAllocator) SmallHermesValue {
	switch {
	case hv.IsObject():
		return EncodeObjectSHV(hv.Pointer())
	case hv.IsString():
		return shvFromPointer(SHVTagString, hv.Pointer())
	case hv.IsBigInt():
		return shvFromPointer(SHVTagBigInt, hv.Pointer())
	case hv.IsSymbol():
		return EncodeSymbolSHV(hv.Symbol())
	case hv.IsInt32():
		// Integers are numerically doubles at this layer; re-encode so the
		// compressibility check sees the canonical numeric form.
		return EncodeNumberSHV(float64(hv.Int32()), rt)
	case hv.IsDouble():
		return EncodeNumberSHV(hv.Double(), rt)
	default:
		// bool, null, undefined, empty all compress by construction.
		return compressHV64(hv)
	}
}

// EncodeNumberSHV encodes a number, boxing it on the heap when its bits do
// not survive compression. Always treat a call as a potential allocation.
func EncodeNumberSHV(d float64, rt BoxedDoubleAllocator) SmallHermesValue {
	hv := EncodeUntrustedDouble(d)
	if canCompressHV64(hv) {
		return compressHV64(hv)
	}
	return shvFromPointer(SHVTagBoxedDouble, rt.AllocBoxedDouble(hv.Double()))
}

// EncodeObjectSHV encodes an object reference.
func EncodeObjectSHV(p CompressedPointer) SmallHermesValue {
	return shvFromPointer(SHVTagObject, p)
}

// EncodeStringSHV encodes a string reference.
func EncodeStringSHV(p CompressedPointer) SmallHermesValue {
	return shvFromPointer(SHVTagString, p)
}

// EncodeBigIntSHV encodes a BigInt reference.
func EncodeBigIntSHV(p CompressedPointer) SmallHermesValue {
	return shvFromPointer(SHVTagBigInt, p)
}

// EncodeSymbolSHV encodes a symbol id. Ids must fit in the payload width.
func EncodeSymbolSHV(id SymbolID) SmallHermesValue {
	return shvFromTagAndValue(SHVTagSymbol, uint32(id))
}

// EncodeBoolSHV encodes a boolean inline.
func EncodeBoolSHV(b bool) SmallHermesValue {
	return compressHV64(EncodeBool(b))
}

// EncodeNullSHV encodes null inline.
func EncodeNullSHV() SmallHermesValue {
	return compressHV64(EncodeNull())
}

// EncodeUndefinedSHV encodes undefined inline.
func EncodeUndefinedSHV() SmallHermesValue {
	return compressHV64(EncodeUndefined())
}

// EncodeEmptySHV encodes the distinguished empty value inline.
func EncodeEmptySHV() SmallHermesValue {
	return compressHV64(EncodeEmpty())
}

// IsPointer reports whether the value references a heap cell, including a
// BoxedDouble.
func (v SmallHermesValue) IsPointer() bool {
	t := v.Tag()
	return t >= SHVFirstPointerTag && t <= SHVLastPointerTag
}

// IsObject reports whether the value is an object reference.
func (v SmallHermesValue) IsObject() bool {
	return v.Tag() == SHVTagObject
}

// IsString reports whether the value is a string reference.
func (v SmallHermesValue) IsString() bool {
	return v.Tag() == SHVTagString
}

// IsBigInt reports whether the value is a BigInt reference.
func (v SmallHermesValue) IsBigInt() bool {
	return v.Tag() == SHVTagBigInt
}

// IsSymbol reports whether the value is a symbol id.
func (v SmallHermesValue) IsSymbol() bool {
	return v.Tag() == SHVTagSymbol
}

// IsBoxedDouble reports whether the value references a BoxedDouble cell.
func (v SmallHermesValue) IsBoxedDouble() bool {
	return v.Tag() == SHVTagBoxedDouble
}

// IsInlinedDouble reports whether the value is an inline number.
func (v SmallHermesValue) IsInlinedDouble() bool {
	return v.Tag() == SHVTagCompressedHV64 && v.decompressHV64().IsNumber()
}

// IsNumber reports whether the value is numeric, inline or boxed.
func (v SmallHermesValue) IsNumber() bool {
	return v.IsInlinedDouble() || v.IsBoxedDouble()
}

// IsBool reports whether the value is a boolean.
func (v SmallHermesValue) IsBool() bool {
	return v.Tag() == SHVTagCompressedHV64 && v.decompressHV64().IsBool()
}

// IsNull reports whether the value is null.
func (v SmallHermesValue) IsNull() bool {
	return v.Tag() == SHVTagCompressedHV64 && v.decompressHV64().IsNull()
}

// IsUndefined reports whether the value is undefined.
func (v SmallHermesValue) IsUndefined() bool {
	return v.Tag() == SHVTagCompressedHV64 && v.decompressHV64().IsUndefined()
}

// IsEmpty reports whether the value is the distinguished empty value.
func (v SmallHermesValue) IsEmpty() bool {
	return v.Tag() == SHVTagCompressedHV64 && v.decompressHV64().IsEmpty()
}

// Pointer returns the cell reference payload.
func (v SmallHermesValue) Pointer() CompressedPointer {
	return CompressedPointer(v.raw &^ ((1 << NumSHVTagBits) - 1))
}

// Symbol returns the symbol payload.
func (v SmallHermesValue) Symbol() SymbolID {
	return SymbolID(v.raw >> NumSHVTagBits)
}

// Bool returns the boolean payload.
func (v SmallHermesValue) Bool() bool {
	return v.decompressHV64().Bool()
}

// Number returns the numeric payload, decompressing a boxed double through
// base when necessary.
func (v SmallHermesValue) Number(base BoxedDoubleReader) float64 {
	if v.IsBoxedDouble() {
		return base.BoxedDouble(v.Pointer())
	}
	return v.decompressHV64().Double()
}

// UpdatePointer returns a value with the same tag but a new cell reference.
// The collector uses it to redirect references after evacuating a cell.
func (v SmallHermesValue) UpdatePointer(p CompressedPointer) SmallHermesValue {
	return shvFromPointer(v.Tag(), p)
}

// ToHV widens the value without unboxing: a boxed double comes back as an
// object-tagged pointer to its cell. Only diagnostics and GC-internal code want this.
func (v SmallHermesValue) ToHV() HermesValue {
	switch v.Tag() {
	case SHVTagCompressedHV64:
		return v.decompressHV64()
	case SHVTagString:
		return EncodeString(v.Pointer())
	case SHVTagBigInt:
		return EncodeBigInt(v.Pointer())
	case SHVTagSymbol:
		return EncodeSymbol(v.Symbol())
	default:
		return EncodeObject(v.Pointer())
	}
}

// UnboxToHV widens the value to the 64-bit representation, decompressing a
// boxed double through base. This is the inverse of EncodeHermesValue.
func (v SmallHermesValue) UnboxToHV(base BoxedDoubleReader) HermesValue {
	if v.IsBoxedDouble() {
		return EncodeTrustedDouble(base.BoxedDouble(v.Pointer()))
	}
	return v.ToHV()
}

// String renders the value for diagnostics.
func (v SmallHermesValue) String() string {
	switch v.Tag() {
	case SHVTagCompressedHV64:
		return fmt.Sprintf("inline(%s)", v.decompressHV64())
	case SHVTagBoxedDouble:
		return fmt.Sprintf("boxed(%#x)", v.Pointer().Raw())
	case SHVTagSymbol:
		return fmt.Sprintf("symbol(%d)", v.Symbol())
	default:
		return fmt.Sprintf("ptr(%#x)", v.Pointer().Raw())
	}
}
