package value

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBoxer is a heap stand-in: boxed doubles go into a slice and the
// "pointer" is the aligned index.
type fakeBoxer struct {
	boxes map[CompressedPointer]float64
	next  CompressedPointer
}

func newFakeBoxer() *fakeBoxer {
	return &fakeBoxer{boxes: make(map[CompressedPointer]float64), next: 1 << 10}
}

func (f *fakeBoxer) AllocBoxedDouble(d float64) CompressedPointer {
	p := f.next
	f.next += 16
	f.boxes[p] = d
	return p
}

func (f *fakeBoxer) BoxedDouble(p CompressedPointer) float64 {
	return f.boxes[p]
}

func TestSHVInlineSingletons(t *testing.T) {
	assert.True(t, EncodeNullSHV().IsNull())
	assert.True(t, EncodeUndefinedSHV().IsUndefined())
	assert.True(t, EncodeEmptySHV().IsEmpty())
	assert.True(t, EncodeBoolSHV(true).IsBool())
	assert.True(t, EncodeBoolSHV(true).Bool())
	assert.False(t, EncodeBoolSHV(false).Bool())

	// None of the singletons require boxing, so none is a pointer.
	assert.False(t, EncodeNullSHV().IsPointer())
	assert.False(t, EncodeBoolSHV(true).IsPointer())
}

func TestSHVInlineDoubles(t *testing.T) {
	boxer := newFakeBoxer()

	// Small integral doubles have sparse mantissas and compress inline.
	for _, d := range []float64{0, 1, -1, 2, 1024, -4096} {
		require.True(t, CanInlineDouble(d), "%g should inline", d)
		shv := EncodeNumberSHV(d, boxer)
		require.True(t, shv.IsInlinedDouble(), "%g should stay inline", d)
		assert.Equal(t, d, shv.Number(boxer))
		assert.Empty(t, boxer.boxes)
	}
}

func TestSHVBoxedDoubles(t *testing.T) {
	boxer := newFakeBoxer()

	for _, d := range []float64{3.1415926, 1.0000000001, 1e-308} {
		require.False(t, CanInlineDouble(d), "%g must not inline", d)
		shv := EncodeNumberSHV(d, boxer)
		require.True(t, shv.IsBoxedDouble())
		require.True(t, shv.IsPointer())
		require.True(t, shv.IsNumber())
		assert.Equal(t, d, shv.Number(boxer))
	}
	assert.Len(t, boxer.boxes, 3)
}

func TestSHVEncodeHermesValueRoundTrip(t *testing.T) {
	boxer := newFakeBoxer()
	ptr := CompressedPointer(0x200010 &^ 7)

	cases := []HermesValue{
		EncodeNull(),
		EncodeUndefined(),
		EncodeEmpty(),
		EncodeBool(true),
		EncodeBool(false),
		EncodeObject(ptr),
		EncodeString(ptr),
		EncodeBigInt(ptr),
		EncodeSymbol(SymbolID(7)),
		EncodeUntrustedDouble(1.0),
		EncodeUntrustedDouble(2.718281828),
		EncodeInt32(123),
	}
	for _, hv := range cases {
		shv := EncodeHermesValue(hv, boxer)
		back := shv.UnboxToHV(boxer)
		if hv.IsNumber() {
			// Numeric round trips are value-exact; int32 widens to a
			// double.
			assert.Equal(t, hv.Number(), back.Number(), "%s", hv)
		} else {
			assert.Equal(t, hv.Raw(), back.Raw(), "%s", hv)
		}
	}
}

func TestSHVPointerTagging(t *testing.T) {
	p := CompressedPointer(0x123456 &^ 7)

	obj := EncodeObjectSHV(p)
	require.True(t, obj.IsObject())
	assert.Equal(t, p, obj.Pointer())

	str := EncodeStringSHV(p)
	require.True(t, str.IsString())
	assert.False(t, str.IsObject())
	assert.Equal(t, p, str.Pointer())

	bi := EncodeBigIntSHV(p)
	require.True(t, bi.IsBigInt())
	assert.Equal(t, p, bi.Pointer())

	moved := obj.UpdatePointer(CompressedPointer(0x765430 &^ 7))
	require.True(t, moved.IsObject())
	assert.Equal(t, CompressedPointer(0x765430&^7), moved.Pointer())
}

func TestSHVSymbol(t *testing.T) {
	shv := EncodeSymbolSHV(SymbolID(99))
	require.True(t, shv.IsSymbol())
	assert.False(t, shv.IsPointer())
	assert.Equal(t, SymbolID(99), shv.Symbol())
}

func TestSHVRawZeroIsIgnorable(t *testing.T) {
	z := EncodeRawZeroSHV()
	// The raw zero decodes as an inline double zero: not a pointer, so the
	// GC skips it.
	assert.False(t, z.IsPointer())
	assert.True(t, z.IsInlinedDouble())
	assert.Equal(t, 0.0, z.Number(nil))
}

func TestSHVInlineBoundary(t *testing.T) {
	// A normal double whose significant bits all sit in the top 29.
	raw := uint64(0x40F0000800000000)
	d := math.Float64frombits(raw)
	require.False(t, math.IsNaN(d))
	require.True(t, CanInlineDouble(d))

	// Setting any dropped bit forces boxing.
	d = math.Float64frombits(raw | 1)
	require.False(t, math.IsNaN(d))
	require.False(t, CanInlineDouble(d))
}
