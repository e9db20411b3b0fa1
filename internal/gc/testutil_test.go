package gc

import (
	"testing"

	"github.com/facebook/hermes-sub002/internal/heap"
	"github.com/facebook/hermes-sub002/internal/idtracker"
	"github.com/facebook/hermes-sub002/internal/storage"
	"github.com/facebook/hermes-sub002/pkg/logger"
	"github.com/facebook/hermes-sub002/pkg/options"
	"github.com/facebook/hermes-sub002/pkg/value"
	"github.com/stretchr/testify/require"
)

// testRuntime is a minimal host: a flat root list, a weak-root list, and a
// recording symbol table.
type testRuntime struct {
	roots      []*value.HermesValue
	weakRoots  []*WeakRoot
	symbolsEnd uint32

	// lastFreed records the liveness bitmap of the most recent FreeSymbols
	// call.
	lastFreed []uint64
	numFreed  int
}

func (r *testRuntime) MarkRoots(v RootVisitor, markLongLived bool) {
	for _, hv := range r.roots {
		v.VisitRootHV(hv)
	}
}

func (r *testRuntime) MarkRootsForCompleteMarking(v RootVisitor) {
	r.MarkRoots(v, true)
}

func (r *testRuntime) MarkWeakRoots(v WeakRootVisitor, markLongLived bool) {
	for _, w := range r.weakRoots {
		v.VisitWeakRoot(w)
	}
}

func (r *testRuntime) FreeSymbols(live []uint64) {
	r.lastFreed = append([]uint64(nil), live...)
	r.numFreed++
}

func (r *testRuntime) UnmarkSymbols() {}

func (r *testRuntime) SymbolsEnd() uint32 {
	return r.symbolsEnd
}

func (r *testRuntime) IsSymbolLive(id value.SymbolID) bool {
	return true
}

func (r *testRuntime) MallocSize() uint64 {
	return 0
}

// addRoot registers a root holding v and returns it for later inspection;
// the collector rewrites it in place when the referent moves.
func (r *testRuntime) addRoot(v value.HermesValue) *value.HermesValue {
	hv := new(value.HermesValue)
	*hv = v
	r.roots = append(r.roots, hv)
	return hv
}

// dropRoot removes a previously added root.
func (r *testRuntime) dropRoot(hv *value.HermesValue) {
	for i, root := range r.roots {
		if root == hv {
			r.roots = append(r.roots[:i], r.roots[i+1:]...)
			return
		}
	}
}

func newTestHeap(t *testing.T, optFns ...options.OptionFunc) (*Heap, *testRuntime) {
	t.Helper()
	log := logger.NewNop()

	provider, err := storage.New(&storage.Config{Logger: log})
	require.NoError(t, err)

	tracker, err := idtracker.New(&idtracker.Config{Logger: log})
	require.NoError(t, err)

	opts := options.NewDefaultOptions()
	opts.MinHeapSize = 4 * 1024 * 1024
	opts.InitHeapSize = 8 * 1024 * 1024
	opts.MaxHeapSize = 64 * 1024 * 1024
	for _, fn := range optFns {
		fn(&opts)
	}

	rt := &testRuntime{symbolsEnd: 64}

	h, err := New(&Config{
		Options:   &opts,
		Logger:    log,
		Provider:  provider,
		Tracker:   tracker,
		Callbacks: rt,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, h.Close())
		require.NoError(t, tracker.Close())
		require.NoError(t, provider.Close())
	})

	return h, rt
}

// rootAddr resolves the cell address a root currently holds.
func rootAddr(hv *value.HermesValue) heap.Address {
	return heap.Decompress(hv.Pointer())
}
