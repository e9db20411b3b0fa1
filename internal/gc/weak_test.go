package gc

import (
	"testing"

	"github.com/facebook/hermes-sub002/internal/cell"
	"github.com/facebook/hermes-sub002/internal/heap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeakRootFollowsAndClears(t *testing.T) {
	h, rt := newTestHeap(t)

	d := h.AllocDummyObject()
	root := rt.addRoot(objectRoot(d.Addr))

	w := NewWeakRoot(d.Addr)
	rt.weakRoots = append(rt.weakRoots, &w)

	// The weak root follows the referent through a move.
	h.youngGenCollection("test", false)
	require.Equal(t, rootAddr(root), w.GetNoBarrier())

	// Once the strong root is gone, a full collection clears it.
	rt.dropRoot(root)
	h.Collect("test")
	assert.Equal(t, heap.NullAddress, w.GetNoBarrier())
}

func TestWeakRootDoesNotExtendLifetime(t *testing.T) {
	h, rt := newTestHeap(t)
	before := cell.DummyFinalizedCount()

	d := h.AllocDummyObject()
	w := NewWeakRoot(d.Addr)
	rt.weakRoots = append(rt.weakRoots, &w)

	// Weakly referenced only: the very next young collection reclaims it.
	h.youngGenCollection("test", false)
	assert.EqualValues(t, 1, cell.DummyFinalizedCount()-before)
	assert.Equal(t, heap.NullAddress, w.GetNoBarrier())
}

func TestWeakRefSlotLifecycle(t *testing.T) {
	h, rt := newTestHeap(t)

	// holder keeps the slot referenced; target is the referent.
	holder := h.AllocDummyObject()
	holderRoot := rt.addRoot(objectRoot(holder.Addr))
	target := h.AllocDummyObject()
	targetRoot := rt.addRoot(objectRoot(target.Addr))

	idx := h.NewWeakRef(target.Addr)
	holder.SetWeakSlot(h.Space(), idx)

	// After a full collection the slot is Unmarked (holder re-proved it)
	// and the referent is alive.
	h.Collect("test")
	require.Equal(t, weakSlotUnmarked, h.weakSlots[idx].state)
	require.True(t, h.WeakRefIsValid(idx))
	assert.Equal(t, rootAddr(targetRoot), h.WeakRefGet(idx))

	// Kill the referent: the slot survives (still referenced by holder)
	// but its payload is cleared.
	rt.dropRoot(targetRoot)
	h.Collect("test")
	require.Equal(t, weakSlotUnmarked, h.weakSlots[idx].state)
	assert.False(t, h.WeakRefIsValid(idx))
	assert.Equal(t, heap.NullAddress, h.WeakRefGet(idx))

	// Kill the holder too: nothing marks the slot, so it is freed.
	rt.dropRoot(holderRoot)
	h.Collect("test")
	assert.Equal(t, weakSlotFree, h.weakSlots[idx].state)
}

func TestWeakRefSlotReuse(t *testing.T) {
	h, rt := newTestHeap(t)

	a := h.AllocDummyObject()
	idx := h.NewWeakRef(a.Addr)

	// No heap cell references the slot, so the first full cycle proves it
	// unused and frees it.
	h.Collect("test")
	require.Equal(t, weakSlotFree, h.weakSlots[idx].state)

	// The next allocation reuses the freed slot.
	b := h.AllocDummyObject()
	rt.addRoot(objectRoot(b.Addr))
	idx2 := h.NewWeakRef(b.Addr)
	assert.Equal(t, idx, idx2)
}
