package heap

import (
	"testing"

	"github.com/facebook/hermes-sub002/pkg/value"
	"github.com/facebook/hermes-sub002/pkg/vmem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpaceMapAndAccess(t *testing.T) {
	s := NewSpace()
	data := make([]byte, SegmentSize)

	base, err := s.MapRegion(data, 1)
	require.NoError(t, err)
	// Slot zero stays reserved so address zero is null.
	require.EqualValues(t, SegmentSize, base)
	require.True(t, s.Contains(base))
	require.False(t, s.Contains(NullAddress))

	a := base + 1024
	s.WriteWord(a, 0x1122334455667788)
	assert.Equal(t, uint64(0x1122334455667788), s.ReadWord(a))

	s.WriteWord32(a+8, 0xCAFEBABE)
	assert.Equal(t, uint32(0xCAFEBABE), s.ReadWord32(a+8))

	hv := value.EncodeObject(Compress(a))
	s.WriteHermesValue(a+16, hv)
	assert.Equal(t, hv.Raw(), s.ReadHermesValue(a+16).Raw())

	shv := value.EncodeBoolSHV(true)
	s.WriteSmallValue(a+24, shv)
	assert.Equal(t, shv.Raw(), s.ReadSmallValue(a+24).Raw())

	s.WritePointer(a+28, Compress(base))
	assert.Equal(t, Compress(base), s.ReadPointer(a+28))

	s.WriteSymbol(a+32, value.SymbolID(9))
	assert.Equal(t, value.SymbolID(9), s.ReadSymbol(a+32))
}

func TestSpaceRegionSizeMismatch(t *testing.T) {
	s := NewSpace()
	_, err := s.MapRegion(make([]byte, 100), 1)
	assert.Error(t, err)
}

func TestSpaceMultiSlotRegion(t *testing.T) {
	s := NewSpace()
	data := make([]byte, 3*SegmentSize)

	base, err := s.MapRegion(data, 3)
	require.NoError(t, err)

	// Addresses in every spanned slot resolve to the same region base.
	assert.Equal(t, base, s.RegionBase(base))
	assert.Equal(t, base, s.RegionBase(base+SegmentSize+8))
	assert.Equal(t, base, s.RegionBase(base+2*SegmentSize+8))

	// Writes past the first slot land in the same backing bytes.
	a := base + 2*SegmentSize + 64
	s.WriteWord(a, 42)
	assert.Equal(t, uint64(42), s.ReadWord(a))
}

func TestSpaceUnmapAndReuse(t *testing.T) {
	s := NewSpace()

	first, err := s.MapRegion(make([]byte, SegmentSize), 1)
	require.NoError(t, err)
	second, err := s.MapRegion(make([]byte, SegmentSize), 1)
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	s.UnmapRegion(first, 1)
	assert.False(t, s.Contains(first))
	assert.True(t, s.Contains(second))

	// The freed slot is recycled before fresh address space.
	third, err := s.MapRegion(make([]byte, SegmentSize), 1)
	require.NoError(t, err)
	assert.Equal(t, first, third)
}

func TestSpaceCopyAndZero(t *testing.T) {
	s := NewSpace()
	base, err := s.MapRegion(make([]byte, SegmentSize), 1)
	require.NoError(t, err)

	src := base + 64
	dst := base + 4096
	s.WriteWord(src, 7)
	s.WriteWord(src+8, 8)

	s.Copy(dst, src, 16)
	assert.Equal(t, uint64(7), s.ReadWord(dst))
	assert.Equal(t, uint64(8), s.ReadWord(dst+8))

	s.Zero(dst, 16)
	assert.Zero(t, s.ReadWord(dst))
	assert.Zero(t, s.ReadWord(dst+8))
}

func TestSegmentBumpAlloc(t *testing.T) {
	s := NewSpace()
	res, err := vmem.Reserve(SegmentSize)
	require.NoError(t, err)
	defer res.Release()
	base, err := s.MapRegion(res.Bytes(), 1)
	require.NoError(t, err)

	seg := NewSegment(res, base)

	require.Equal(t, base, seg.Level())
	a, ok := seg.AllocRaw(64)
	require.True(t, ok)
	assert.Equal(t, base, a)
	assert.Equal(t, base+64, seg.Level())

	// The effective end throttles allocation.
	seg.SetEffectiveEnd(seg.Level() + 32)
	_, ok = seg.AllocRaw(64)
	assert.False(t, ok)
	_, ok = seg.AllocRaw(32)
	assert.True(t, ok)

	seg.SetEffectiveEnd(seg.End())
	assert.EqualValues(t, SegmentSize-96, seg.Available())
}
