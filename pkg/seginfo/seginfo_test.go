package seginfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegmentNames(t *testing.T) {
	assert.Equal(t, "hades:HeapSegment:7", SegmentName("hades", 7))
	assert.Equal(t, "hades:HeapSegment:YG", YoungGenName("hades"))
	assert.Equal(t, "hades:HeapSegment:COMPACT", CompacteeName("hades"))
}

func TestParseSlot(t *testing.T) {
	slot, err := ParseSlot("hades:HeapSegment:12", "hades")
	require.NoError(t, err)
	assert.Equal(t, 12, slot)

	_, err = ParseSlot("hades:HeapSegment:YG", "hades")
	assert.Error(t, err)

	_, err = ParseSlot("other:HeapSegment:3", "hades")
	assert.Error(t, err)
}

func TestIndexPoolDense(t *testing.T) {
	var p IndexPool

	assert.Equal(t, 0, p.Acquire())
	assert.Equal(t, 1, p.Acquire())
	assert.Equal(t, 2, p.Acquire())
	assert.Equal(t, 3, p.InUse())

	// Released slots come back lowest first.
	p.Release(1)
	p.Release(0)
	assert.Equal(t, 0, p.Acquire())
	assert.Equal(t, 1, p.Acquire())

	// Fresh slots resume after the high-water mark.
	assert.Equal(t, 3, p.Acquire())
}
