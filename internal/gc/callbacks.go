package gc

import (
	"github.com/facebook/hermes-sub002/pkg/value"
)

// RootVisitor is handed to the host when the collector needs the root set.
// Roots live outside the heap (handles, stack maps, caches), so they are
// visited through Go pointers rather than heap addresses; the collector may
// rewrite a root in place when the referent moves.
type RootVisitor interface {
	// VisitRootHV visits a root holding a 64-bit value.
	VisitRootHV(hv *value.HermesValue)
	// VisitRootPtr visits a root holding a bare cell reference.
	VisitRootPtr(p *value.CompressedPointer)
	// VisitRootSym visits a root holding a symbol id.
	VisitRootSym(s *value.SymbolID)
}

// WeakRootVisitor visits the host's weak roots. Weak roots never keep their
// referent alive; the collector updates them on moves and nulls them when
// the referent is reclaimed.
type WeakRootVisitor interface {
	VisitWeakRoot(w *WeakRoot)
}

// RuntimeCallbacks is the contract between the collector and the host
// runtime. All callbacks run on the mutator thread with the world stopped
// unless noted otherwise.
type RuntimeCallbacks interface {
	// MarkRoots walks every mutator root. markLongLived additionally walks
	// roots that only reference long-lived cells; young collections skip
	// them unless a compaction is evacuating part of the old generation.
	MarkRoots(v RootVisitor, markLongLived bool)

	// MarkRootsForCompleteMarking walks the roots that write barriers
	// cannot cover, such as thread-local caches refreshed since barriers
	// were enabled. Called once, during the complete-marking pause.
	MarkRootsForCompleteMarking(v RootVisitor)

	// MarkWeakRoots walks every weak root.
	MarkWeakRoots(v WeakRootVisitor, markLongLived bool)

	// FreeSymbols reclaims every symbol id whose bit is clear in live. The
	// bitmap covers ids below the SymbolsEnd observed at mark start.
	FreeSymbols(live []uint64)

	// UnmarkSymbols resets the host's symbol liveness state at the start of
	// an old collection.
	UnmarkSymbols()

	// SymbolsEnd returns one past the highest allocated symbol id.
	SymbolsEnd() uint32

	// IsSymbolLive reports host-side liveness; used by diagnostics.
	IsSymbolLive(id value.SymbolID) bool

	// MallocSize reports mutator-external malloc usage for heap info.
	MallocSize() uint64
}

// CrashManager receives the custom data the collector publishes so that
// crash reports can describe the heap: the GC kind once, and one entry per
// live segment keyed by seginfo names.
type CrashManager interface {
	SetCustomData(key, value string)
	SetContextualCustomData(key, value string)
	RemoveContextualCustomData(key string)
}

// NopCrashManager discards everything; it stands in when the host supplies
// no crash manager.
type NopCrashManager struct{}

func (NopCrashManager) SetCustomData(key, value string)           {}
func (NopCrashManager) SetContextualCustomData(key, value string) {}
func (NopCrashManager) RemoveContextualCustomData(key string)     {}
