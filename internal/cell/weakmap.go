package cell

import (
	"github.com/facebook/hermes-sub002/internal/heap"
	"github.com/facebook/hermes-sub002/pkg/value"
)

// WeakMap is the GC-facing half of a JavaScript WeakMap. The cell holds a
// strong reference to the value storage (an ArrayStorage indexed by entry)
// and the id of its entry table, which the collector owns because entries
// pack weak key roots that only make sense to GC machinery.
//
// The value-storage field is deliberately a bare pointer slot the marker
// can null out and restore: that temporary disconnection is how ephemeron
// marking avoids retaining values of unreachable keys.
//
// Layout:
//
//	0   header
//	8   valueStorage: compressed pointer to an ArrayStorage, or null
//	12  entryTableID (uint32)
const (
	weakMapValueStorageOffset = 8
	weakMapEntryTableOffset   = 12

	// WeakMapSize is the allocation size of a WeakMap cell.
	WeakMapSize = 16
)

// WeakMap is an accessor over a weak-map cell.
type WeakMap struct {
	Addr heap.Address
}

// InitWeakMap writes a weak-map cell at a, bound to the entry table with
// the given id and no value storage yet.
func InitWeakMap(s *heap.Space, a heap.Address, entryTableID uint32) WeakMap {
	Init(s, a, KindWeakMap, WeakMapSize)
	s.WritePointer(a+weakMapValueStorageOffset, value.NullCompressedPointer)
	s.WriteWord32(a+weakMapEntryTableOffset, entryTableID)
	return WeakMap{Addr: a}
}

// ValueStorage reads the value-storage reference.
func (w WeakMap) ValueStorage(s *heap.Space) value.CompressedPointer {
	return s.ReadPointer(w.Addr + weakMapValueStorageOffset)
}

// SetValueStorage stores the value-storage reference with barriers.
func (w WeakMap) SetValueStorage(m Mutator, p value.CompressedPointer) {
	m.BarrieredWritePointer(w.Addr+weakMapValueStorageOffset, p)
}

// ValueStorageSlot exposes the slot address for the marker's null-out and
// restore dance; nothing else should touch it directly.
func (w WeakMap) ValueStorageSlot() heap.Address {
	return w.Addr + weakMapValueStorageOffset
}

// EntryTableID returns the id of the collector-owned entry table.
func (w WeakMap) EntryTableID(s *heap.Space) uint32 {
	return s.ReadWord32(w.Addr + weakMapEntryTableOffset)
}

func markWeakMap(s *heap.Space, a heap.Address, v SlotVisitor) {
	v.VisitPointer(a + weakMapValueStorageOffset)
}

func init() {
	Register(&VTable{
		Name:      "weak-map",
		Kind:      KindWeakMap,
		FixedSize: WeakMapSize,
		Mark:      markWeakMap,
	})
}
