// Package hades provides the embeddable surface of the heap manager: a
// Runtime that owns the storage provider, the object-id tracker, the
// symbol table, the root set (handle scopes and weak roots), and the Hades
// collector itself. A host engine creates one Runtime per isolate,
// allocates through it, and keeps cell references alive via handles.
package hades

import (
	"context"

	"github.com/facebook/hermes-sub002/internal/gc"
	"github.com/facebook/hermes-sub002/internal/idtracker"
	"github.com/facebook/hermes-sub002/internal/storage"
	"github.com/facebook/hermes-sub002/pkg/logger"
	"github.com/facebook/hermes-sub002/pkg/options"
	"github.com/facebook/hermes-sub002/pkg/value"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Runtime is an instance of the heap manager. It implements the
// collector's runtime callbacks, so the GC sees exactly the roots the host
// registered through handle scopes and weak roots.
//
// Runtime is single-mutator: all allocation and mutation must come from
// one goroutine, mirroring the one-interpreter-thread model of the engine
// it serves.
type Runtime struct {
	log      *zap.SugaredLogger
	opts     *options.Options
	provider *storage.Provider
	tracker  *idtracker.Tracker
	heap     *gc.Heap

	symbols *SymbolTable
	scopes  []*HandleScope

	// weakRoots are host-registered weak references the collector updates
	// and clears.
	weakRoots []*gc.WeakRoot

	// mallocBytes is host-reported external malloc usage.
	mallocBytes uint64
}

// CrashManager re-exports the collector's crash-manager contract for
// hosts.
type CrashManager = gc.CrashManager

// NewRuntime creates and initializes a heap-manager instance.
func NewRuntime(ctx context.Context, service string, opts ...options.OptionFunc) (*Runtime, error) {
	return NewRuntimeWithCrashManager(ctx, service, nil, opts...)
}

// NewRuntimeWithCrashManager additionally wires a crash-manager sink that
// receives the heap's custom data.
func NewRuntimeWithCrashManager(
	ctx context.Context,
	service string,
	crash CrashManager,
	opts ...options.OptionFunc,
) (*Runtime, error) {
	log := logger.New(service)

	defaultOpts := options.NewDefaultOptions()
	for _, opt := range opts {
		opt(&defaultOpts)
	}

	provider, err := storage.New(&storage.Config{Logger: log})
	if err != nil {
		return nil, err
	}

	tracker, err := idtracker.New(&idtracker.Config{Logger: log})
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		log:      log,
		opts:     &defaultOpts,
		provider: provider,
		tracker:  tracker,
		symbols:  NewSymbolTable(),
	}

	heap, err := gc.New(&gc.Config{
		Options:   &defaultOpts,
		Logger:    log,
		Provider:  provider,
		Tracker:   tracker,
		Callbacks: rt,
		Crash:     crash,
	})
	if err != nil {
		return nil, err
	}
	rt.heap = heap

	return rt, nil
}

// Heap exposes the collector for allocation and collection operations.
func (rt *Runtime) Heap() *gc.Heap {
	return rt.heap
}

// Symbols exposes the runtime's symbol table.
func (rt *Runtime) Symbols() *SymbolTable {
	return rt.symbols
}

// RegisterWeakRoot adds a host weak root to the set the collector
// maintains.
func (rt *Runtime) RegisterWeakRoot(w *gc.WeakRoot) {
	rt.weakRoots = append(rt.weakRoots, w)
}

// UnregisterWeakRoot removes a previously registered weak root.
func (rt *Runtime) UnregisterWeakRoot(w *gc.WeakRoot) {
	for i, r := range rt.weakRoots {
		if r == w {
			rt.weakRoots = append(rt.weakRoots[:i], rt.weakRoots[i+1:]...)
			return
		}
	}
}

// SetMallocBytes records host-side malloc usage reported in heap info.
func (rt *Runtime) SetMallocBytes(n uint64) {
	rt.mallocBytes = n
}

// Collect forces a full collection cycle.
func (rt *Runtime) Collect(cause string) {
	rt.heap.Collect(cause)
}

// TTIReached forwards the time-to-interactive signal to the collector.
func (rt *Runtime) TTIReached() {
	rt.heap.TTIReached()
}

// Close shuts down the runtime: finalizers run, the collector stops, and
// all memory returns to the host.
func (rt *Runtime) Close(ctx context.Context) error {
	rt.heap.FinalizeAll()
	return multierr.Combine(
		rt.heap.Close(),
		rt.tracker.Close(),
		rt.provider.Close(),
	)
}

// The gc.RuntimeCallbacks implementation. The collector calls these on the
// mutator thread with the world stopped.

// MarkRoots visits every handle in every live scope.
func (rt *Runtime) MarkRoots(v gc.RootVisitor, markLongLived bool) {
	for _, scope := range rt.scopes {
		for _, h := range scope.handles {
			v.VisitRootHV(&h.v)
		}
	}
}

// MarkRootsForCompleteMarking revisits all roots; the handle set is small
// enough that re-walking it is cheaper than tracking barrier coverage.
func (rt *Runtime) MarkRootsForCompleteMarking(v gc.RootVisitor) {
	rt.MarkRoots(v, true)
}

// MarkWeakRoots visits the host-registered weak roots.
func (rt *Runtime) MarkWeakRoots(v gc.WeakRootVisitor, markLongLived bool) {
	for _, w := range rt.weakRoots {
		v.VisitWeakRoot(w)
	}
}

// FreeSymbols reclaims symbols the collection proved dead.
func (rt *Runtime) FreeSymbols(live []uint64) {
	rt.symbols.FreeDead(live)
}

// UnmarkSymbols resets symbol liveness at the start of a collection. The
// table derives liveness entirely from the collector's bitmap, so there is
// no state to reset.
func (rt *Runtime) UnmarkSymbols() {}

// SymbolsEnd reports the symbol-id range the liveness bitmap must cover.
func (rt *Runtime) SymbolsEnd() uint32 {
	return rt.symbols.SymbolsEnd()
}

// IsSymbolLive reports whether the id is currently allocated.
func (rt *Runtime) IsSymbolLive(id value.SymbolID) bool {
	return rt.symbols.IsLive(id)
}

// MallocSize reports host-side malloc usage.
func (rt *Runtime) MallocSize() uint64 {
	return rt.mallocBytes
}
