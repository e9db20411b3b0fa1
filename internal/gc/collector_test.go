package gc

import (
	"testing"

	"github.com/facebook/hermes-sub002/internal/cell"
	"github.com/facebook/hermes-sub002/internal/heap"
	"github.com/facebook/hermes-sub002/pkg/options"
	"github.com/facebook/hermes-sub002/pkg/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func symbolBit(bitmap []uint64, id value.SymbolID) bool {
	return bitmap[id/64]&(1<<(uint32(id)%64)) != 0
}

func TestSymbolLivenessHandedToHost(t *testing.T) {
	h, rt := newTestHeap(t)

	d := h.AllocDummyObject()
	root := rt.addRoot(objectRoot(d.Addr))
	d.SetSymbol(h, value.SymbolID(5))

	h.Collect("test")
	require.NotZero(t, rt.numFreed)
	assert.True(t, symbolBit(rt.lastFreed, 5), "a symbol held by a live cell is live")

	// Dead cell, dead symbol.
	rt.dropRoot(root)
	h.Collect("test")
	assert.False(t, symbolBit(rt.lastFreed, 5))
}

func TestSymbolInRootIsLive(t *testing.T) {
	h, rt := newTestHeap(t)

	rt.addRoot(value.EncodeSymbol(value.SymbolID(9)))
	h.Collect("test")
	assert.True(t, symbolBit(rt.lastFreed, 9))
}

func TestPromotionModeKeepsAddressesStable(t *testing.T) {
	h, rt := newTestHeap(t, options.WithAllocInYoung(false))

	d := h.AllocDummyObject()
	root := rt.addRoot(objectRoot(d.Addr))
	addr := d.Addr

	// In promotion mode the young collection moves the whole segment into
	// the old generation without copying a byte.
	h.youngGenCollection("test", false)

	assert.Equal(t, addr, rootAddr(root), "promotion must not move cells")
	assert.False(t, h.inYoungGen(rootAddr(root)))
	require.NoError(t, h.CheckWellFormed())
}

func TestTTIRevertsToCopying(t *testing.T) {
	h, rt := newTestHeap(t,
		options.WithAllocInYoung(false),
		options.WithRevertToYGAtTTI(true),
	)

	d := h.AllocDummyObject()
	rt.addRoot(objectRoot(d.Addr))
	h.youngGenCollection("test", false)
	require.True(t, h.promoteYGToOG)

	h.TTIReached()
	require.False(t, h.promoteYGToOG)

	// Unreachable young cells are reclaimed again after the revert.
	before := cell.DummyFinalizedCount()
	h.AllocDummyObject()
	h.youngGenCollection("test", false)
	assert.EqualValues(t, 1, cell.DummyFinalizedCount()-before)
}

func TestExternalMemoryThrottlesYoungGen(t *testing.T) {
	h, rt := newTestHeap(t)

	d := h.AllocDummyObject()
	rt.addRoot(objectRoot(d.Addr))

	available := h.youngGen.seg.Available()
	h.CreditExternalMemory(d.Addr, 1024*1024)
	assert.Less(t, h.youngGen.seg.Available(), available,
		"young external memory must shrink the effective end")

	// The charge migrates to the old generation at the next collection.
	h.youngGenCollection("test", false)
	assert.Zero(t, h.ygExternalBytes)
	assert.EqualValues(t, 1024*1024, h.oldGen.externalBytes)

	h.DebitExternalMemory(rootAddr(rt.roots[0]), 1024*1024)
	assert.Zero(t, h.oldGen.externalBytes)
}

func TestAnalyticsCallbackFires(t *testing.T) {
	var events []options.AnalyticsEvent
	h, _ := newTestHeap(t, options.WithAnalyticsCallback(func(e options.AnalyticsEvent) {
		events = append(events, e)
	}))

	h.AllocDummyObject()
	h.Collect("analytics-test")

	require.NotEmpty(t, events)
	sawYoung, sawOld := false, false
	for _, e := range events {
		switch e.CollectionType {
		case "young":
			sawYoung = true
			assert.Equal(t, "analytics-test", e.Cause)
		case "old":
			sawOld = true
		}
		assert.Contains(t, e.Runtime, "hades")
	}
	assert.True(t, sawYoung)
	assert.True(t, sawOld)
}

func TestTripwireFiresOncePerCrossing(t *testing.T) {
	fired := 0
	h, rt := newTestHeap(t, options.WithTripwire(1, func(ctx options.TripwireContext) error {
		fired++
		return nil
	}))

	// Any surviving byte crosses a one-byte limit.
	d := h.AllocDummyObject()
	rt.addRoot(objectRoot(d.Addr))
	h.Collect("test")
	require.Equal(t, 1, fired)

	// Still above the limit: the tripwire stays latched.
	h.Collect("test")
	assert.Equal(t, 1, fired)
}

func TestAllocPairStaysYoung(t *testing.T) {
	h, _ := newTestHeap(t)

	a1, a2 := h.NewCellPair(cell.DummyObjectSize, cell.ArrayStorageAllocSize(2))
	cell.InitDummyObject(h.Space(), a1)
	cell.InitArrayStorage(h.Space(), a2, cell.ArrayStorageAllocSize(2), 2)

	require.True(t, h.inYoungGen(a1))
	require.True(t, h.inYoungGen(a2))
	assert.Equal(t, a1+heap.Address(cell.DummyObjectSize), a2,
		"the pair must be contiguous")
}

func TestCompactionEvacuatesSegment(t *testing.T) {
	h, rt := newTestHeap(t)

	// Fill enough of the old generation to get several segments, then
	// drop most of it so a forced compaction has something to move.
	var roots []*value.HermesValue
	for round := 0; round < 3; round++ {
		for i := 0; i < 200; i++ {
			as, err := h.AllocArrayStorage(2048, false)
			require.NoError(t, err)
			roots = append(roots, rt.addRoot(objectRoot(as.Addr)))
		}
		h.youngGenCollection("fill", false)
	}
	require.Greater(t, len(h.oldGen.segments), 1)

	for i, r := range roots {
		if i%10 != 0 {
			rt.dropRoot(r)
		}
	}

	numBefore := h.numCompactions
	h.Collect("compact")

	// The forced cycle selected and evacuated a compactee.
	assert.Greater(t, h.numCompactions, numBefore)
	assert.True(t, h.compactee.empty())
	require.NoError(t, h.CheckWellFormed())

	// Survivors are intact.
	for i, r := range roots {
		if i%10 == 0 {
			as := cell.ArrayStorage{Addr: rootAddr(r)}
			assert.Equal(t, cell.KindArrayStorage, cell.KindOf(h.Space(), as.Addr))
			assert.EqualValues(t, 2048, as.Capacity(h.Space()))
		}
	}
}
