package cell

import (
	"sync/atomic"

	"github.com/facebook/hermes-sub002/internal/heap"
	"github.com/facebook/hermes-sub002/pkg/value"
)

// DummyObject is the workhorse of the GC test suite: a fixed-size cell with
// one slot of each reference flavor plus a finalizer that counts into a
// package-level counter, so tests can assert exactly which cells died.
//
// Layout:
//
//	0   header
//	8   hv: a 64-bit HermesValue slot
//	16  ptr: a bare compressed pointer slot
//	20  shv: a 32-bit SmallHermesValue slot
//	24  weak: a weak-reference slot index, or ^0 when unused
//	28  symbol: a SymbolID, or the invalid id when unused
const (
	dummyHVOffset     = 8
	dummyPtrOffset    = 16
	dummySHVOffset    = 20
	dummyWeakOffset   = 24
	dummySymbolOffset = 28

	// DummyObjectSize is the allocation size of a DummyObject.
	DummyObjectSize = 32

	// noWeakSlot marks an unused weak slot field.
	noWeakSlot = 0xFFFFFFFF
)

// dummyFinalized counts DummyObject finalizations process-wide.
var dummyFinalized atomic.Int64

// DummyFinalizedCount returns the number of DummyObjects finalized so far.
func DummyFinalizedCount() int64 {
	return dummyFinalized.Load()
}

// DummyObject is an accessor over a dummy cell.
type DummyObject struct {
	Addr heap.Address
}

// InitDummyObject writes an empty dummy cell at a: every slot starts at its
// distinguished empty value so constructor barriers have nothing to snapshot.
func InitDummyObject(s *heap.Space, a heap.Address) DummyObject {
	Init(s, a, KindDummyObject, DummyObjectSize)
	s.WriteHermesValue(a+dummyHVOffset, value.EncodeEmpty())
	s.WritePointer(a+dummyPtrOffset, value.NullCompressedPointer)
	s.WriteSmallValue(a+dummySHVOffset, value.EncodeEmptySHV())
	s.WriteWord32(a+dummyWeakOffset, noWeakSlot)
	s.WriteSymbol(a+dummySymbolOffset, value.InvalidSymbolID)
	return DummyObject{Addr: a}
}

// HV reads the 64-bit value slot.
func (d DummyObject) HV(s *heap.Space) value.HermesValue {
	return s.ReadHermesValue(d.Addr + dummyHVOffset)
}

// SetHV stores into the 64-bit value slot with barriers.
func (d DummyObject) SetHV(m Mutator, v value.HermesValue) {
	m.BarrieredWriteHermesValue(d.Addr+dummyHVOffset, v)
}

// Ptr reads the bare pointer slot.
func (d DummyObject) Ptr(s *heap.Space) value.CompressedPointer {
	return s.ReadPointer(d.Addr + dummyPtrOffset)
}

// SetPtr stores into the bare pointer slot with barriers.
func (d DummyObject) SetPtr(m Mutator, p value.CompressedPointer) {
	m.BarrieredWritePointer(d.Addr+dummyPtrOffset, p)
}

// SHV reads the 32-bit value slot.
func (d DummyObject) SHV(s *heap.Space) value.SmallHermesValue {
	return s.ReadSmallValue(d.Addr + dummySHVOffset)
}

// SetSHV stores into the 32-bit value slot with barriers.
func (d DummyObject) SetSHV(m Mutator, v value.SmallHermesValue) {
	m.BarrieredWriteSmallValue(d.Addr+dummySHVOffset, v)
}

// WeakSlot reads the weak-reference slot index, or false when unused.
func (d DummyObject) WeakSlot(s *heap.Space) (uint32, bool) {
	idx := s.ReadWord32(d.Addr + dummyWeakOffset)
	return idx, idx != noWeakSlot
}

// SetWeakSlot stores a weak-reference slot index. Weak slots are not
// subject to the snapshot barrier; liveness flows through the slot table.
func (d DummyObject) SetWeakSlot(s *heap.Space, idx uint32) {
	s.WriteWord32(d.Addr+dummyWeakOffset, idx)
}

// Symbol reads the symbol slot.
func (d DummyObject) Symbol(s *heap.Space) value.SymbolID {
	return s.ReadSymbol(d.Addr + dummySymbolOffset)
}

// SetSymbol stores into the symbol slot. Symbol stores take the snapshot
// barrier like any reference store.
func (d DummyObject) SetSymbol(m Mutator, id value.SymbolID) {
	m.BarrieredWriteSymbol(d.Addr+dummySymbolOffset, id)
}

func markDummyObject(s *heap.Space, a heap.Address, v SlotVisitor) {
	v.VisitHermesValue(a + dummyHVOffset)
	v.VisitPointer(a + dummyPtrOffset)
	v.VisitSmallValue(a + dummySHVOffset)
	if idx := s.ReadWord32(a + dummyWeakOffset); idx != noWeakSlot {
		v.VisitWeakSlot(a + dummyWeakOffset)
	}
	v.VisitSymbol(a + dummySymbolOffset)
}

func finalizeDummyObject(s *heap.Space, a heap.Address) {
	dummyFinalized.Add(1)
}

func init() {
	Register(&VTable{
		Name:      "dummy-object",
		Kind:      KindDummyObject,
		FixedSize: DummyObjectSize,
		Finalize:  finalizeDummyObject,
		Mark:      markDummyObject,
	})
}
