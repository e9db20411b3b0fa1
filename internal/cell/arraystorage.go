package cell

import (
	"github.com/facebook/hermes-sub002/internal/heap"
	"github.com/facebook/hermes-sub002/pkg/value"
)

// ArrayStorage is a variable-sized vector of SmallHermesValue elements with
// a capacity fixed at allocation and a size that grows up to it. It backs
// indexed property storage and the weak map's value storage.
//
// Layout:
//
//	0   header
//	8   capacity (uint32)
//	12  size (uint32)
//	16  elements: capacity * 4 bytes of SmallHermesValue
const (
	arrayCapacityOffset = 8
	arraySizeOffset     = 12
	arrayElementsOffset = 16
	arrayElementSize    = 4
)

// ArrayStorageAllocSize returns the allocation size for a capacity,
// including header and alignment padding.
func ArrayStorageAllocSize(capacity uint32) uint32 {
	return heap.AlignUp(arrayElementsOffset + capacity*arrayElementSize)
}

// ArrayStorage is an accessor over an array-storage cell.
type ArrayStorage struct {
	Addr heap.Address
}

// InitArrayStorage writes an array cell at a with the given capacity and a
// size of zero.
func InitArrayStorage(s *heap.Space, a heap.Address, allocSize, capacity uint32) ArrayStorage {
	Init(s, a, KindArrayStorage, allocSize)
	s.WriteWord32(a+arrayCapacityOffset, capacity)
	s.WriteWord32(a+arraySizeOffset, 0)
	return ArrayStorage{Addr: a}
}

// InitLargeArrayStorage writes a jumbo-allocated array cell, whose header
// size field must stay zero.
func InitLargeArrayStorage(s *heap.Space, a heap.Address, capacity uint32) ArrayStorage {
	InitLarge(s, a, KindArrayStorage)
	s.WriteWord32(a+arrayCapacityOffset, capacity)
	s.WriteWord32(a+arraySizeOffset, 0)
	return ArrayStorage{Addr: a}
}

// Capacity returns the element capacity.
func (as ArrayStorage) Capacity(s *heap.Space) uint32 {
	return s.ReadWord32(as.Addr + arrayCapacityOffset)
}

// Size returns the number of initialized elements.
func (as ArrayStorage) Size(s *heap.Space) uint32 {
	return s.ReadWord32(as.Addr + arraySizeOffset)
}

// ElementSlot returns the address of element i; the weak-map marker
// addresses value slots directly during the ephemeron fixpoint.
func (as ArrayStorage) ElementSlot(i uint32) heap.Address {
	return as.Addr + arrayElementsOffset + heap.Address(i)*arrayElementSize
}

// Get reads element i.
func (as ArrayStorage) Get(s *heap.Space, i uint32) value.SmallHermesValue {
	return s.ReadSmallValue(as.ElementSlot(i))
}

// Set stores element i with barriers. i must be below Size.
func (as ArrayStorage) Set(m Mutator, i uint32, v value.SmallHermesValue) {
	m.BarrieredWriteSmallValue(as.ElementSlot(i), v)
}

// Resize grows or shrinks the initialized prefix, filling fresh elements
// with the empty value. Growth stays within capacity.
func (as ArrayStorage) Resize(m Mutator, newSize uint32) {
	s := m.Space()
	old := as.Size(s)
	for i := old; i < newSize; i++ {
		// Fresh elements are born empty; no prior value exists, so the
		// plain store is the constructor barrier's degenerate case.
		s.WriteSmallValue(as.ElementSlot(i), value.EncodeEmptySHV())
	}
	s.WriteWord32(as.Addr+arraySizeOffset, newSize)
}

func markArrayStorage(s *heap.Space, a heap.Address, v SlotVisitor) {
	as := ArrayStorage{Addr: a}
	n := as.Size(s)
	for i := uint32(0); i < n; i++ {
		v.VisitSmallValue(as.ElementSlot(i))
	}
}

func init() {
	Register(&VTable{
		Name: "array-storage",
		Kind: KindArrayStorage,
		Mark: markArrayStorage,
	})
}
