package gc

import (
	"testing"

	"github.com/facebook/hermes-sub002/internal/cell"
	"github.com/facebook/hermes-sub002/internal/heap"
	"github.com/facebook/hermes-sub002/pkg/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (h *Heap) mapFromRoot(root *value.HermesValue) cell.WeakMap {
	return cell.WeakMap{Addr: heap.Decompress(root.Pointer())}
}

func TestWeakMapBasicOperations(t *testing.T) {
	h, rt := newTestHeap(t)

	m := h.NewWeakMap()
	mapRoot := rt.addRoot(objectRoot(m.Addr))

	k := h.AllocDummyObject()
	keyRoot := rt.addRoot(objectRoot(k.Addr))

	wm := h.mapFromRoot(mapRoot)
	h.WeakMapSet(wm, rootAddr(keyRoot), value.EncodeBoolSHV(true))

	wm = h.mapFromRoot(mapRoot)
	got, ok := h.WeakMapGet(wm, rootAddr(keyRoot))
	require.True(t, ok)
	assert.True(t, got.Bool())
	assert.Equal(t, 1, h.WeakMapSize(wm))

	// Overwrite.
	h.WeakMapSet(wm, rootAddr(keyRoot), value.EncodeBoolSHV(false))
	got, ok = h.WeakMapGet(wm, rootAddr(keyRoot))
	require.True(t, ok)
	assert.False(t, got.Bool())
	assert.Equal(t, 1, h.WeakMapSize(wm))

	// Delete.
	assert.True(t, h.WeakMapDelete(wm, rootAddr(keyRoot)))
	assert.False(t, h.WeakMapHas(wm, rootAddr(keyRoot)))
	assert.False(t, h.WeakMapDelete(wm, rootAddr(keyRoot)))
}

func TestWeakMapSurvivesCollection(t *testing.T) {
	h, rt := newTestHeap(t)

	m := h.NewWeakMap()
	mapRoot := rt.addRoot(objectRoot(m.Addr))
	k := h.AllocDummyObject()
	keyRoot := rt.addRoot(objectRoot(k.Addr))

	v := h.AllocDummyObject()
	v.SetHV(h, value.EncodeTrustedDouble(42.5))
	h.WeakMapSet(h.mapFromRoot(mapRoot), rootAddr(keyRoot), value.EncodeObjectSHV(heap.Compress(v.Addr)))

	h.Collect("test")

	// Key still strongly reachable: the mapping survives and follows the
	// moved cells.
	wm := h.mapFromRoot(mapRoot)
	got, ok := h.WeakMapGet(wm, rootAddr(keyRoot))
	require.True(t, ok)
	require.True(t, got.IsObject())
	moved := cell.DummyObject{Addr: heap.Decompress(got.Pointer())}
	assert.Equal(t, 42.5, moved.HV(h.Space()).Double())
}

func TestWeakMapEphemeronClearsDeadKeys(t *testing.T) {
	h, rt := newTestHeap(t)
	before := cell.DummyFinalizedCount()

	m := h.NewWeakMap()
	mapRoot := rt.addRoot(objectRoot(m.Addr))
	k1 := h.AllocDummyObject()
	keyRoot := rt.addRoot(objectRoot(k1.Addr))

	// v1 is reachable only through m[k1].
	v1 := h.AllocDummyObject()
	h.WeakMapSet(h.mapFromRoot(mapRoot), rootAddr(keyRoot), value.EncodeObjectSHV(heap.Compress(v1.Addr)))

	// While k1 is alive, v1 is preserved.
	h.Collect("test")
	wm := h.mapFromRoot(mapRoot)
	require.Equal(t, 1, h.WeakMapSize(wm))
	require.True(t, h.WeakMapHas(wm, rootAddr(keyRoot)))

	// Once k1 is unreachable outside the map, the entry disappears and v1
	// is freed, running its finalizer.
	finalizedSoFar := cell.DummyFinalizedCount() - before
	rt.dropRoot(keyRoot)
	h.Collect("test")

	wm = h.mapFromRoot(mapRoot)
	assert.Equal(t, 0, h.WeakMapSize(wm))
	// Both k1 and v1 died.
	assert.EqualValues(t, finalizedSoFar+2, cell.DummyFinalizedCount()-before)
}

func TestWeakMapValueKeepsKeyedValueNotKey(t *testing.T) {
	h, rt := newTestHeap(t)

	m := h.NewWeakMap()
	mapRoot := rt.addRoot(objectRoot(m.Addr))
	k := h.AllocDummyObject()
	keyRoot := rt.addRoot(objectRoot(k.Addr))

	h.WeakMapSet(h.mapFromRoot(mapRoot), rootAddr(keyRoot), value.EncodeBoolSHV(true))

	// The map alone does not keep the key alive.
	rt.dropRoot(keyRoot)
	h.Collect("test")
	assert.Equal(t, 0, h.WeakMapSize(h.mapFromRoot(mapRoot)))
}

func TestWeakMapChainedEphemerons(t *testing.T) {
	h, rt := newTestHeap(t)

	// m[k1] = k2, m[k2] = v. With k1 rooted, the fixpoint must discover
	// k2's reachability through the first entry and then preserve v.
	m := h.NewWeakMap()
	mapRoot := rt.addRoot(objectRoot(m.Addr))

	k1 := h.AllocDummyObject()
	k1Root := rt.addRoot(objectRoot(k1.Addr))
	k2 := h.AllocDummyObject()
	k2Root := rt.addRoot(objectRoot(k2.Addr))

	h.WeakMapSet(h.mapFromRoot(mapRoot), rootAddr(k1Root), value.EncodeObjectSHV(heap.Compress(rootAddr(k2Root))))
	v := h.AllocDummyObject()
	v.SetHV(h, value.EncodeTrustedDouble(5.5))
	h.WeakMapSet(h.mapFromRoot(mapRoot), rootAddr(k2Root), value.EncodeObjectSHV(heap.Compress(v.Addr)))

	// Drop the direct root to k2; it stays reachable as m[k1].
	rt.dropRoot(k2Root)
	h.Collect("test")

	wm := h.mapFromRoot(mapRoot)
	require.Equal(t, 2, h.WeakMapSize(wm))

	k2Val, ok := h.WeakMapGet(wm, rootAddr(k1Root))
	require.True(t, ok)
	gotV, ok := h.WeakMapGet(wm, heap.Decompress(k2Val.Pointer()))
	require.True(t, ok)
	moved := cell.DummyObject{Addr: heap.Decompress(gotV.Pointer())}
	assert.Equal(t, 5.5, moved.HV(h.Space()).Double())
}

func TestWeakMapTableDiesWithMap(t *testing.T) {
	h, rt := newTestHeap(t)

	m := h.NewWeakMap()
	id := m.EntryTableID(h.Space())
	mapRoot := rt.addRoot(objectRoot(m.Addr))

	h.Collect("test")
	require.NotNil(t, h.weakMapTables[id])

	rt.dropRoot(mapRoot)
	h.Collect("test")
	assert.Nil(t, h.weakMapTables[id])
}
