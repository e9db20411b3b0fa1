// Package cell defines the object model the collector operates on: the cell
// kind enumeration, the per-kind metadata table that replaces virtual
// dispatch, and accessors for the concrete cell layouts the heap manager
// itself owns (freelist spans, boxed doubles, array storage, weak maps,
// BigInt payloads, and the dummy objects the test suite allocates).
//
// A cell is a kind-and-size header followed by fields laid out at fixed
// offsets in segment memory. Nothing in this package performs write
// barriers; mutator-facing setters accept the Mutator interface through
// which the collector supplies them.
package cell

import (
	"github.com/facebook/hermes-sub002/internal/heap"
	"github.com/facebook/hermes-sub002/pkg/value"
)

// Kind discriminates cell layouts. It is stored in the low byte of every
// cell header.
type Kind = heap.KindID

const (
	// KindInvalid marks memory that holds no cell; reading it is a bug.
	KindInvalid Kind = iota

	// KindFreelist marks a span of free old-generation memory. Every free
	// span of at least MinCellSize bytes is exactly one freelist cell.
	KindFreelist

	// KindBoxedDouble is a heap-allocated double, created when a number
	// cannot be encoded inline in a SmallHermesValue.
	KindBoxedDouble

	// KindDummyObject is a fixed-size object with one slot of each flavor,
	// used by the test suite to exercise barriers and finalization.
	KindDummyObject

	// KindArrayStorage is a variable-sized array of SmallHermesValue
	// elements with distinct size and capacity.
	KindArrayStorage

	// KindWeakMap is the GC-facing portion of a JavaScript WeakMap: a
	// reference to the value storage plus the id of its entry table.
	KindWeakMap

	// KindBigInt is an immutable sequence of 64-bit BigInt digits.
	KindBigInt

	// KindFiller plugs the tail trimmed off a live cell during sweep.
	KindFiller

	// FirstDynamicKind is where host-registered kinds begin.
	FirstDynamicKind
)

// SlotVisitor is implemented by the collector's acceptors. Mark callbacks
// report each outgoing-reference slot of a cell by its address and flavor;
// the acceptor reads, and possibly rewrites, the slot through the space.
type SlotVisitor interface {
	// VisitPointer visits a slot holding a bare compressed pointer.
	VisitPointer(slot heap.Address)
	// VisitHermesValue visits a 64-bit value slot.
	VisitHermesValue(slot heap.Address)
	// VisitSmallValue visits a 32-bit value slot.
	VisitSmallValue(slot heap.Address)
	// VisitSymbol visits a slot holding a symbol id.
	VisitSymbol(slot heap.Address)
	// VisitWeakSlot visits a slot holding a weak-reference slot index.
	VisitWeakSlot(slot heap.Address)
}

// Mutator is the slice of the collector's interface that barriered cell
// setters need: every store of a reference-bearing field goes through it so
// the snapshot and relocation barriers run.
type Mutator interface {
	value.BoxedDoubleAllocator

	Space() *heap.Space
	// BarrieredWritePointer stores p at loc with full write barriers.
	BarrieredWritePointer(loc heap.Address, p value.CompressedPointer)
	// BarrieredWriteHermesValue stores v at loc with full write barriers.
	BarrieredWriteHermesValue(loc heap.Address, v value.HermesValue)
	// BarrieredWriteSmallValue stores v at loc with full write barriers.
	BarrieredWriteSmallValue(loc heap.Address, v value.SmallHermesValue)
	// BarrieredWriteSymbol stores id at loc with the snapshot barrier.
	// Symbols never relocate, so there is no generational side.
	BarrieredWriteSymbol(loc heap.Address, id value.SymbolID)
}

// VTable is the fixed per-kind metadata record. A kind with a nil Finalize
// needs no finalization; a nil TrimmedSize cannot release tail space; Mark
// may be nil for leaf kinds with no outgoing references.
type VTable struct {
	Name string
	Kind Kind

	// FixedSize is the cell size for fixed-size kinds, zero for
	// variable-sized kinds whose size lives in the header.
	FixedSize uint32

	// Finalize runs exactly once, when the cell dies without having been
	// promoted, or during sweep. It must not allocate and must terminate.
	Finalize func(s *heap.Space, a heap.Address)

	// TrimmedSize reports the prefix of the cell still in use; sweep may
	// release the tail. It never returns less than MinCellSize or more
	// than allocatedSize.
	TrimmedSize func(s *heap.Space, a heap.Address, allocatedSize uint32) uint32

	// Mark reports every outgoing-reference slot to the visitor.
	Mark func(s *heap.Space, a heap.Address, v SlotVisitor)
}

// registry maps kinds to their metadata. Built-in kinds register during
// package initialization; hosts register theirs before creating a heap.
var registry [256]*VTable

// Register installs the metadata record for a kind. Registering the same
// kind twice replaces the record, which tests use to interpose counters.
func Register(vt *VTable) {
	registry[vt.Kind] = vt
}

// TableFor returns the metadata record for a kind.
func TableFor(k Kind) *VTable {
	return registry[k]
}

// SizeOf returns the allocated size of the normal-sized cell at a. Large
// cells carry a zero header size and are resolved through their jumbo
// segment by the collector, never through this helper.
func SizeOf(s *heap.Space, a heap.Address) uint32 {
	return s.ReadHeader(a).Size()
}

// KindOf returns the kind of the cell at a.
func KindOf(s *heap.Space, a heap.Address) Kind {
	return s.ReadHeader(a).Kind()
}

// Init writes a fresh header. Every allocation path funnels through this
// before the cell's fields are initialized.
func Init(s *heap.Space, a heap.Address, kind Kind, size uint32) {
	s.WriteHeader(a, heap.NewHeader(kind, size))
}

// InitLarge writes the header of a jumbo-allocated cell, whose size field
// is zero by contract.
func InitLarge(s *heap.Space, a heap.Address, kind Kind) {
	s.WriteHeader(a, heap.NewHeader(kind, 0))
}
