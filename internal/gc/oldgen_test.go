package gc

import (
	"testing"

	"github.com/facebook/hermes-sub002/internal/cell"
	"github.com/facebook/hermes-sub002/internal/heap"
	"github.com/facebook/hermes-sub002/pkg/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetFreelistBucket(t *testing.T) {
	// Small sizes map one alignment step per bucket.
	assert.Equal(t, 2, getFreelistBucket(16))
	assert.Equal(t, 3, getFreelistBucket(24))
	assert.Equal(t, 31, getFreelistBucket(248))

	// From 256 bytes up, buckets cover powers of two.
	assert.Equal(t, numSmallBuckets, getFreelistBucket(256))
	assert.Equal(t, numSmallBuckets, getFreelistBucket(511))
	assert.Equal(t, numSmallBuckets+1, getFreelistBucket(512))
	assert.Equal(t, numSmallBuckets+numLargeBuckets-1, getFreelistBucket(heap.SegmentSize))

	assert.Less(t, getFreelistBucket(heap.SegmentSize), numBuckets)
}

func TestLongLivedAllocation(t *testing.T) {
	h, rt := newTestHeap(t)

	a := h.NewLongLivedCell(cell.KindDummyObject, cell.DummyObjectSize)
	d := cell.InitDummyObject(h.Space(), a)
	rt.addRoot(objectRoot(d.Addr))

	require.False(t, h.inYoungGen(a))
	require.NoError(t, h.CheckWellFormed())

	// Long-lived cells never move.
	h.Collect("test")
	assert.Equal(t, cell.KindDummyObject, cell.KindOf(h.Space(), a))
}

func TestFreelistExactFitReuse(t *testing.T) {
	h, rt := newTestHeap(t)

	// Promote an object, free it, and watch its exact-size slot get
	// recycled by the next long-lived allocation of the same size.
	d := h.AllocDummyObject()
	root := rt.addRoot(objectRoot(d.Addr))
	h.youngGenCollection("promote", false)
	freed := rootAddr(root)

	rt.dropRoot(root)
	h.Collect("free")
	require.NoError(t, h.CheckWellFormed())

	a := h.NewLongLivedCell(cell.KindDummyObject, cell.DummyObjectSize)
	cell.InitDummyObject(h.Space(), a)
	assert.Equal(t, freed, a, "an exact-fit freelist cell is reused in place")
}

func TestSweepCoalescesAdjacentGarbage(t *testing.T) {
	h, rt := newTestHeap(t)

	// Promote a run of adjacent cells, then free them all; sweep must
	// merge each dead run into one span rather than one freelist cell per
	// dead object.
	var roots []*value.HermesValue
	for i := 0; i < 64; i++ {
		d := h.AllocDummyObject()
		roots = append(roots, rt.addRoot(objectRoot(d.Addr)))
	}
	h.youngGenCollection("promote", false)

	for _, r := range roots {
		rt.dropRoot(r)
	}
	h.Collect("free")
	require.NoError(t, h.CheckWellFormed())

	// Everything is dead and adjacent: no small bucket may hold a
	// DummyObject-sized fragment.
	bucket := getFreelistBucket(cell.DummyObjectSize)
	assert.Nil(t, h.oldGen.buckets[bucket].next,
		"adjacent dead cells must coalesce, leaving no cell-sized fragments")
	assert.Zero(t, h.Info().AllocatedBytes)
}

func TestCarveLeavesWellFormedRemainder(t *testing.T) {
	h, rt := newTestHeap(t)

	// Force the first-fit path: the fresh segment's single large free span
	// gets carved repeatedly by long-lived allocations of assorted sizes.
	sizes := []uint32{64, 256, 1024, 48, 8192, 32}
	for _, sz := range sizes {
		a := h.NewLongLivedCell(cell.KindArrayStorage, sz)
		capacity := (sz - 16) / 4
		cell.InitArrayStorage(h.Space(), a, sz, capacity)
		rt.addRoot(objectRoot(a))
		require.False(t, h.inYoungGen(a))
		require.NoError(t, h.CheckWellFormed(), "after carving %d bytes", sz)
	}
}
