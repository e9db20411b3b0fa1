package vmem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveZeroed(t *testing.T) {
	res, err := Reserve(1 << 16)
	require.NoError(t, err)
	defer func() { require.NoError(t, res.Release()) }()

	require.EqualValues(t, 1<<16, res.Size())
	b := res.Bytes()
	for i := 0; i < len(b); i += 4096 {
		require.Zero(t, b[i], "reserved memory must be zeroed")
	}

	// The region is writable.
	b[0] = 0xAB
	b[len(b)-1] = 0xCD
	assert.Equal(t, byte(0xAB), res.Bytes()[0])
}

func TestReserveEmptyFails(t *testing.T) {
	_, err := Reserve(0)
	assert.Error(t, err)
}

func TestReleaseTwice(t *testing.T) {
	res, err := Reserve(4096)
	require.NoError(t, err)
	require.NoError(t, res.Release())
	assert.ErrorIs(t, res.Release(), ErrReleased)
}

func TestNames(t *testing.T) {
	res, err := Reserve(4096)
	require.NoError(t, err)
	defer res.Release()

	assert.Empty(t, res.Name())
	res.SetName("heap:HeapSegment:0")
	assert.Equal(t, "heap:HeapSegment:0", res.Name())
}

func TestDropPages(t *testing.T) {
	res, err := Reserve(1 << 16)
	require.NoError(t, err)
	defer res.Release()

	res.Bytes()[0] = 1
	// Advisory; must not fail on a page-aligned mmap region.
	assert.NoError(t, DropPages(res.Bytes()))
}
