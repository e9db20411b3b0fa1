package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBase Address = SegmentSize // first mappable slot

func TestDirtyCards(t *testing.T) {
	ct := NewCardTable(testBase)

	a := testBase + 3*CardSize + 17
	require.False(t, ct.IsAddressDirty(a))
	ct.DirtyCardForAddress(a)
	assert.True(t, ct.IsAddressDirty(a))
	assert.True(t, ct.IsCardDirty(3))
	assert.False(t, ct.IsCardDirty(2))
	assert.False(t, ct.IsCardDirty(4))

	ct.ClearAllCards()
	assert.False(t, ct.IsCardDirty(3))
}

func TestDirtyCardsForRange(t *testing.T) {
	ct := NewCardTable(testBase)

	// A range from mid-card 1 to mid-card 4 dirties cards 1 through 4.
	ct.DirtyCardsForRange(testBase+CardSize+100, testBase+4*CardSize+100)
	assert.False(t, ct.IsCardDirty(0))
	for i := 1; i <= 4; i++ {
		assert.True(t, ct.IsCardDirty(i), "card %d", i)
	}
	assert.False(t, ct.IsCardDirty(5))
}

func TestFindDirtyRuns(t *testing.T) {
	ct := NewCardTable(testBase)
	for _, c := range []int{4, 5, 6, 9} {
		ct.DirtyCardForAddress(ct.CardStart(c))
	}

	begin := ct.FindNextDirtyCard(0, 16)
	require.Equal(t, 4, begin)
	end := ct.FindNextCleanCard(begin, 16)
	require.Equal(t, 7, end)

	begin = ct.FindNextDirtyCard(end, 16)
	require.Equal(t, 9, begin)

	assert.Equal(t, 16, ct.FindNextDirtyCard(10, 16))
}

func TestBoundariesSmallCells(t *testing.T) {
	ct := NewCardTable(testBase)

	// A cell crossing the first card boundary: the boundary entry points
	// back to its head.
	start := testBase + CardSize - 24
	end := start + 64
	ct.UpdateBoundaries(start, end)
	assert.Equal(t, start, ct.FirstCellHead(1))
}

func TestBoundariesExactCardStart(t *testing.T) {
	ct := NewCardTable(testBase)

	// A cell starting exactly at a card boundary owns that boundary.
	start := ct.CardStart(2)
	ct.UpdateBoundaries(start, start+128)
	assert.Equal(t, start, ct.FirstCellHead(2))
}

func TestBoundariesHugeCell(t *testing.T) {
	ct := NewCardTable(testBase)

	// A cell spanning hundreds of cards exercises the exponential
	// back-off encoding; every crossed boundary must resolve to a head at
	// or before the cell start.
	start := testBase + 40
	end := start + 500*CardSize
	ct.UpdateBoundaries(start, end)

	for _, card := range []int{1, 2, 10, 63, 64, 127, 128, 300, 499} {
		head := ct.FirstCellHead(card)
		assert.LessOrEqual(t, uint64(head), uint64(start), "card %d", card)
	}
	// Cards near the start resolve exactly.
	assert.Equal(t, start, ct.FirstCellHead(1))
}

func TestBoundariesSequentialCells(t *testing.T) {
	ct := NewCardTable(testBase)

	// Simulate an allocator laying down consecutive cells; each card's
	// entry must name the last head at or before it.
	cur := testBase
	var heads []Address
	for i := 0; i < 200; i++ {
		size := Address(32 + (i%7)*48)
		ct.UpdateBoundaries(cur, cur+size)
		heads = append(heads, cur)
		cur += size
	}

	lastCard := int(cur-testBase) >> LogCardSize
	for card := 1; card < lastCard; card++ {
		head := ct.FirstCellHead(card)
		// The head must be one of the real cell starts, at or before the
		// card start.
		assert.LessOrEqual(t, uint64(head), uint64(ct.CardStart(card)), "card %d", card)
		found := false
		for _, h := range heads {
			if h == head {
				found = true
				break
			}
		}
		assert.True(t, found, "card %d resolved to a non-head %#x", card, head)
	}
}

func TestMarkBits(t *testing.T) {
	var m MarkBitArray

	assert.False(t, m.At(0))
	m.Mark(0)
	m.Mark(128)
	assert.True(t, m.At(0))
	assert.True(t, m.At(128))
	assert.False(t, m.At(8))

	m.MarkAll()
	assert.True(t, m.At(SegmentSize-8))
	assert.Equal(t, SegmentSize/HeapAlign, m.NumMarked())

	m.Unmark(64)
	assert.False(t, m.At(64))

	m.ClearAll()
	assert.Zero(t, m.NumMarked())
}

func TestHeader(t *testing.T) {
	h := NewHeader(5, 4096)
	assert.EqualValues(t, 5, h.Kind())
	assert.EqualValues(t, 4096, h.Size())
	assert.False(t, h.IsForwarded())

	f := h.WithForwarding(Address(0x123450))
	assert.True(t, f.IsForwarded())
	assert.EqualValues(t, 5, f.Kind())
	assert.Equal(t, Address(0x123450), f.ForwardingPointer())

	// Large cells carry a zero size.
	large := NewHeader(7, 0)
	assert.Zero(t, large.Size())
}

func TestAlignUp(t *testing.T) {
	assert.EqualValues(t, 0, AlignUp(0))
	assert.EqualValues(t, 8, AlignUp(1))
	assert.EqualValues(t, 8, AlignUp(8))
	assert.EqualValues(t, 16, AlignUp(9))
}
