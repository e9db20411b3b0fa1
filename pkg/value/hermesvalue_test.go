package value

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHermesValueSingletons(t *testing.T) {
	assert.True(t, EncodeEmpty().IsEmpty())
	assert.True(t, EncodeUndefined().IsUndefined())
	assert.True(t, EncodeNull().IsNull())

	assert.False(t, EncodeEmpty().IsUndefined())
	assert.False(t, EncodeNull().IsUndefined())
	assert.False(t, EncodeNull().IsPointer())
	assert.False(t, EncodeNull().IsNumber())
}

func TestHermesValueBool(t *testing.T) {
	assert.True(t, EncodeBool(true).IsBool())
	assert.True(t, EncodeBool(true).Bool())
	assert.False(t, EncodeBool(false).Bool())
	assert.NotEqual(t, EncodeBool(true).Raw(), EncodeBool(false).Raw())
}

func TestHermesValueDoubles(t *testing.T) {
	for _, d := range []float64{0, 1, -1, 3.1415926, 1e308, -1e-308, math.Inf(1), math.Inf(-1)} {
		hv := EncodeUntrustedDouble(d)
		require.True(t, hv.IsDouble(), "%g must decode as a double", d)
		assert.Equal(t, d, hv.Double())
	}
}

func TestHermesValueNaNCanonicalization(t *testing.T) {
	// A hostile NaN bit pattern could otherwise collide with the tag
	// space.
	evil := math.Float64frombits(0xFFF8_0000_0000_0001)
	hv := EncodeUntrustedDouble(evil)
	require.True(t, hv.IsDouble())
	assert.True(t, math.IsNaN(hv.Double()))

	// The all-tags-set pattern itself.
	hv = EncodeUntrustedDouble(math.Float64frombits(0xFFFF_FFFF_FFFF_FFFF))
	require.True(t, hv.IsDouble())
	assert.True(t, math.IsNaN(hv.Double()))
}

func TestHermesValueInt32(t *testing.T) {
	for _, v := range []int32{0, 1, -1, 1 << 30, -(1 << 30)} {
		hv := EncodeInt32(v)
		require.True(t, hv.IsInt32())
		require.True(t, hv.IsNumber())
		assert.Equal(t, v, hv.Int32())
		assert.Equal(t, float64(v), hv.Number())
	}
}

func TestHermesValuePointers(t *testing.T) {
	p := CompressedPointer(0x400040)

	obj := EncodeObject(p)
	require.True(t, obj.IsObject())
	require.True(t, obj.IsPointer())
	assert.Equal(t, p, obj.Pointer())

	str := EncodeString(p)
	require.True(t, str.IsString())
	require.True(t, str.IsPointer())
	assert.False(t, str.IsObject())

	bi := EncodeBigInt(p)
	require.True(t, bi.IsBigInt())
	require.True(t, bi.IsPointer())

	// Update preserves the tag.
	moved := obj.UpdatePointer(CompressedPointer(0x800000))
	require.True(t, moved.IsObject())
	assert.Equal(t, CompressedPointer(0x800000), moved.Pointer())
}

func TestHermesValueSymbols(t *testing.T) {
	hv := EncodeSymbol(SymbolID(42))
	require.True(t, hv.IsSymbol())
	assert.False(t, hv.IsPointer())
	assert.Equal(t, SymbolID(42), hv.Symbol())
}
