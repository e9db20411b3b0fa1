package hades

import (
	"context"
	"testing"

	"github.com/facebook/hermes-sub002/internal/cell"
	"github.com/facebook/hermes-sub002/internal/gc"
	"github.com/facebook/hermes-sub002/internal/heap"
	"github.com/facebook/hermes-sub002/pkg/options"
	"github.com/facebook/hermes-sub002/pkg/value"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compress(a heap.Address) value.CompressedPointer {
	return heap.Compress(a)
}

func newWeakRootFor(rt *Runtime, d cell.DummyObject) *gc.WeakRoot {
	w := gc.NewWeakRoot(d.Addr)
	rt.RegisterWeakRoot(&w)
	return &w
}

func newTestRuntime(t *testing.T, opts ...options.OptionFunc) *Runtime {
	t.Helper()
	base := []options.OptionFunc{
		options.WithHeapSizes(4<<20, 8<<20, 64<<20),
	}
	rt, err := NewRuntime(context.Background(), "hades-test", append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, rt.Close(context.Background()))
	})
	return rt
}

func TestRuntimeAllocateAndCollect(t *testing.T) {
	rt := newTestRuntime(t)
	h := rt.Heap()

	scope := rt.NewHandleScope()
	defer scope.Release()

	d := h.AllocDummyObject()
	handle := scope.Make(value.EncodeObject(compress(d.Addr)))

	rt.Collect("test")

	// The handle tracked the object across the collection.
	moved := handle.Get()
	require.True(t, moved.IsObject())
	info := h.Info()
	assert.NotZero(t, info.AllocatedBytes)
	assert.NotZero(t, info.NumYoungCollections)
	assert.NotZero(t, info.NumOldCollections)
}

func TestRuntimeScopedHandlesDie(t *testing.T) {
	rt := newTestRuntime(t)
	h := rt.Heap()

	scope := rt.NewHandleScope()
	d := h.AllocDummyObject()
	scope.Make(value.EncodeObject(compress(d.Addr)))
	scope.Release()

	// With the scope gone nothing roots the object.
	rt.Collect("test")
	assert.Zero(t, h.Info().AllocatedBytes)
}

func TestRuntimeSymbols(t *testing.T) {
	rt := newTestRuntime(t)

	foo := rt.Symbols().Intern("foo")
	bar := rt.Symbols().Intern("bar")
	require.NotEqual(t, foo, bar)
	assert.Equal(t, foo, rt.Symbols().Intern("foo"))
	assert.Equal(t, "foo", rt.Symbols().Name(foo))

	// A symbol held by a rooted handle survives collection; the other is
	// reclaimed.
	scope := rt.NewHandleScope()
	defer scope.Release()
	scope.Make(value.EncodeSymbol(foo))

	rt.Collect("test")
	assert.True(t, rt.Symbols().IsLive(foo))
	assert.False(t, rt.Symbols().IsLive(bar))

	// The freed id is recycled.
	baz := rt.Symbols().Intern("baz")
	assert.Equal(t, bar, baz)
}

func TestRuntimeMetricsRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	rt := newTestRuntime(t, options.WithMetricsRegisterer(reg))

	rt.Collect("metrics")

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["hades_young_collections_total"])
	assert.True(t, names["hades_heap_footprint_bytes"])
}

func TestRuntimeWeakRoots(t *testing.T) {
	rt := newTestRuntime(t)
	h := rt.Heap()

	scope := rt.NewHandleScope()
	d := h.AllocDummyObject()
	handle := scope.Make(value.EncodeObject(compress(d.Addr)))

	w := newWeakRootFor(rt, d)
	rt.Collect("test")
	require.NotZero(t, w.GetNoBarrier(), "weak root must follow a live referent")
	require.True(t, handle.Get().IsObject())

	scope.Release()
	rt.Collect("test")
	assert.Zero(t, w.GetNoBarrier(), "weak root must clear when the referent dies")
}
