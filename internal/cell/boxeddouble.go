package cell

import (
	"math"

	"github.com/facebook/hermes-sub002/internal/heap"
)

// BoxedDouble is the heap cell behind a SmallHermesValue whose numeric
// payload does not compress inline. The cell is immutable after creation.
//
// Layout:
//
//	0   header
//	8   IEEE-754 double bits
const (
	boxedDoubleValueOffset = 8

	// BoxedDoubleSize is the allocation size of a BoxedDouble.
	BoxedDoubleSize = 16
)

// InitBoxedDouble writes a boxed double at a.
func InitBoxedDouble(s *heap.Space, a heap.Address, d float64) {
	Init(s, a, KindBoxedDouble, BoxedDoubleSize)
	s.WriteWord(a+boxedDoubleValueOffset, math.Float64bits(d))
}

// BoxedDoubleValue reads the payload of the boxed double at a.
func BoxedDoubleValue(s *heap.Space, a heap.Address) float64 {
	return math.Float64frombits(s.ReadWord(a + boxedDoubleValueOffset))
}

func init() {
	Register(&VTable{
		Name:      "boxed-double",
		Kind:      KindBoxedDouble,
		FixedSize: BoxedDoubleSize,
	})
}
